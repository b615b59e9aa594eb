package entity

import (
	"time"

	"skubridge-integration-layer/internal/domain"

	"github.com/shopspring/decimal"
)

// Monetary and weight values are stored as strings so round-tripping
// through BSON never loses precision.

// MongoSKUDoc represents a supplier SKU in MongoDB.
type MongoSKUDoc struct {
	SupplierSKU   string    `bson:"supplierSku"`
	MasterSKU     string    `bson:"masterSku,omitempty"`
	Price         string    `bson:"price"`
	Stock         int       `bson:"stock"`
	Weight        string    `bson:"weight"`
	Barcode       string    `bson:"barcode,omitempty"`
	MappingStatus string    `bson:"mappingStatus"`
	StockSyncedAt time.Time `bson:"stockSyncedAt,omitempty"`
}

// ToDomain converts the MongoDB document to a domain entity.
func (d *MongoSKUDoc) ToDomain() domain.SKU {
	price, _ := decimal.NewFromString(d.Price)
	weight, _ := decimal.NewFromString(d.Weight)
	return domain.SKU{
		SupplierSKU:   d.SupplierSKU,
		MasterSKU:     d.MasterSKU,
		Price:         price,
		Stock:         d.Stock,
		Weight:        weight,
		Barcode:       d.Barcode,
		MappingStatus: domain.MappingStatus(d.MappingStatus),
		StockSyncedAt: d.StockSyncedAt,
	}
}

// MongoSKUDocFromDomain converts a domain entity to a MongoDB document.
func MongoSKUDocFromDomain(sku *domain.SKU) *MongoSKUDoc {
	return &MongoSKUDoc{
		SupplierSKU:   sku.SupplierSKU,
		MasterSKU:     sku.MasterSKU,
		Price:         sku.Price.String(),
		Stock:         sku.Stock,
		Weight:        sku.Weight.String(),
		Barcode:       sku.Barcode,
		MappingStatus: string(sku.MappingStatus),
		StockSyncedAt: sku.StockSyncedAt,
	}
}

// MongoSPUDoc represents a supplier product in MongoDB.
type MongoSPUDoc struct {
	ID          string        `bson:"_id"`
	Supplier    string        `bson:"supplier"`
	ExternalID  string        `bson:"externalId"`
	Title       string        `bson:"title"`
	Description string        `bson:"description,omitempty"`
	Vendor      string        `bson:"vendor,omitempty"`
	Tags        []string      `bson:"tags,omitempty"`
	Images      []string      `bson:"images,omitempty"`
	SKUs        []MongoSKUDoc `bson:"skus"`
	CreatedAt   time.Time     `bson:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity.
func (d *MongoSPUDoc) ToDomain() *domain.SPU {
	spu := &domain.SPU{
		ID:          d.ID,
		Supplier:    domain.Provider(d.Supplier),
		ExternalID:  d.ExternalID,
		Title:       d.Title,
		Description: d.Description,
		Vendor:      d.Vendor,
		Tags:        d.Tags,
		Images:      d.Images,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	for i := range d.SKUs {
		spu.SKUs = append(spu.SKUs, d.SKUs[i].ToDomain())
	}
	return spu
}

// MongoSPUDocFromDomain converts a domain entity to a MongoDB document.
func MongoSPUDocFromDomain(spu *domain.SPU) *MongoSPUDoc {
	doc := &MongoSPUDoc{
		ID:          spu.ID,
		Supplier:    spu.Supplier.String(),
		ExternalID:  spu.ExternalID,
		Title:       spu.Title,
		Description: spu.Description,
		Vendor:      spu.Vendor,
		Tags:        spu.Tags,
		Images:      spu.Images,
		CreatedAt:   spu.CreatedAt,
		UpdatedAt:   spu.UpdatedAt,
	}
	for i := range spu.SKUs {
		doc.SKUs = append(doc.SKUs, *MongoSKUDocFromDomain(&spu.SKUs[i]))
	}
	return doc
}

// MongoMasterSKUDoc represents a canonical catalog entry in MongoDB.
type MongoMasterSKUDoc struct {
	Code    string `bson:"_id"`
	Barcode string `bson:"barcode,omitempty"`
	Title   string `bson:"title"`
}

// ToDomain converts the MongoDB document to a domain entity.
func (d *MongoMasterSKUDoc) ToDomain() domain.MasterSKU {
	return domain.MasterSKU{Code: d.Code, Barcode: d.Barcode, Title: d.Title}
}
