package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind enumerates the canonical webhook event kinds.
type EventKind string

const (
	EventProductCreated EventKind = "product.created"
	EventProductUpdated EventKind = "product.updated"
	EventStockUpdated   EventKind = "stock.updated"
)

// WebhookRequest is the inbound webhook as delivered by the route
// layer. RawBody and Headers are verbatim, never a re-serialized copy:
// signature verification depends on the exact bytes the provider sent.
type WebhookRequest struct {
	Provider   Provider
	Topic      string
	Headers    http.Header
	RawBody    []byte
	ReceivedAt time.Time
}

// CanonicalEvent is the provider-agnostic form of an inbound webhook.
// Ephemeral: consumed once, persisted only as an idempotency key.
type CanonicalEvent struct {
	Kind       EventKind        `json:"kind"`
	Supplier   Provider         `json:"supplier"`
	EventID    string           `json:"event_id,omitempty"` // provider-scoped delivery id, may be empty
	ReceivedAt time.Time        `json:"received_at"`
	ExternalID string           `json:"external_id"`
	SKU        string           `json:"sku"`
	Title      string           `json:"title,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Stock      *int             `json:"stock,omitempty"`
}

// IdempotencyKey derives a provider-scoped deduplication key. When the
// provider supplies no delivery id, a hash of the normalized payload
// plus a one-minute timestamp bucket stands in, so redeliveries of the
// same event collapse while genuinely new events do not.
func (e *CanonicalEvent) IdempotencyKey() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s:%s", e.Supplier, e.EventID)
	}
	price, stock := "", ""
	if e.Price != nil {
		price = e.Price.String()
	}
	if e.Stock != nil {
		stock = fmt.Sprintf("%d", *e.Stock)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		e.Kind, e.ExternalID, e.SKU, e.Title, price, stock)))
	bucket := e.ReceivedAt.UTC().Truncate(time.Minute).Unix()
	return fmt.Sprintf("%s:%s:%d", e.Supplier, hex.EncodeToString(sum[:]), bucket)
}
