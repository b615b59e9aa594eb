package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MappingStatus is the lifecycle state of a supplier SKU's resolution
// to a master SKU. conflict is never terminal: it requires a manual
// mapping or an explicit acceptance of the automatic suggestion.
type MappingStatus string

const (
	MappingPending  MappingStatus = "pending"
	MappingMapped   MappingStatus = "mapped"
	MappingConflict MappingStatus = "conflict"
)

// SKU is a sellable variant owned by an SPU. SupplierSKU is unique
// within a supplier; MasterSKU stays empty until resolved and, once
// set, is stable unless explicitly remapped.
type SKU struct {
	SupplierSKU   string          `json:"supplier_sku"`
	MasterSKU     string          `json:"master_sku,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock"`
	Weight        decimal.Decimal `json:"weight"`
	Barcode       string          `json:"barcode,omitempty"`
	MappingStatus MappingStatus   `json:"mapping_status"`
	// StockSyncedAt is the receipt time of the newest inbound
	// price/stock event applied to this SKU. Older webhook events
	// must not overwrite newer state.
	StockSyncedAt time.Time `json:"stock_synced_at,omitempty"`
}

// SPU is the merchandising-level product record shared by its variants.
type SPU struct {
	ID          string    `json:"id"`
	Supplier    Provider  `json:"supplier"`
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Vendor      string    `json:"vendor,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Images      []string  `json:"images,omitempty"`
	SKUs        []SKU     `json:"skus"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MasterSKU is an entry in the seller's canonical catalog, the target
// of reconciliation.
type MasterSKU struct {
	Code    string `json:"code"`
	Barcode string `json:"barcode,omitempty"`
	Title   string `json:"title"`
}

// InventoryLevel is a point-in-time stock/price reading for one SKU.
type InventoryLevel struct {
	SKU   string          `json:"sku"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}
