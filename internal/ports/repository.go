package ports

import (
	"context"
	"time"

	"skubridge-integration-layer/internal/domain"
)

// CredentialStore persists per-user, per-provider token records. Pure
// data access; serialization of concurrent mutation is the caller's
// concern (last writer wins at this level).
type CredentialStore interface {
	Get(ctx context.Context, userID string, provider domain.Provider) (*domain.Integration, error)
	Upsert(ctx context.Context, record *domain.Integration) error
	ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*domain.Integration, error)
}

// CatalogStore is the external catalog collaborator. All upserts are
// idempotent on their natural key (supplier + supplier_sku for SKUs,
// supplier + external_id for SPUs).
type CatalogStore interface {
	FindMasterByBarcode(ctx context.Context, barcode string) ([]domain.MasterSKU, error)
	FindMasterByCode(ctx context.Context, code string) (*domain.MasterSKU, error)
	ListMasterSKUs(ctx context.Context) ([]domain.MasterSKU, error)

	FindSKUBySupplierSKU(ctx context.Context, supplierSKU string) (*domain.SKU, error)
	UpsertSKU(ctx context.Context, sku *domain.SKU) error
	ListSKUsByMappingStatus(ctx context.Context, status domain.MappingStatus) ([]domain.SKU, error)

	FindSPUByExternalID(ctx context.Context, supplier domain.Provider, externalID string) (*domain.SPU, error)
	UpsertSPU(ctx context.Context, spu *domain.SPU) error
}

// MappingStore persists supplier→master SKU mappings with provenance.
type MappingStore interface {
	GetBySupplierSKU(ctx context.Context, supplierSKU string) (*domain.SKUMapping, error)
	Upsert(ctx context.Context, mapping *domain.SKUMapping) error
	List(ctx context.Context) ([]domain.SKUMapping, error)
}

// ConnectorConfigStore persists connector configurations.
type ConnectorConfigStore interface {
	GetByID(ctx context.Context, id string) (*domain.ConnectorConfig, error)
	GetByUserAndProvider(ctx context.Context, userID string, provider domain.Provider) (*domain.ConnectorConfig, error)
	Upsert(ctx context.Context, cfg *domain.ConnectorConfig) error
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]*domain.ConnectorConfig, error)
}

// SessionStore persists short-lived OAuth state between the authorize
// redirect and the provider callback.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByState(ctx context.Context, state string) (*domain.Session, error)
	Delete(ctx context.Context, state string) error
}

// IdempotencyStore tracks applied webhook events so redeliveries are
// not double-applied.
type IdempotencyStore interface {
	// MarkProcessed atomically marks a key as processed with a TTL.
	// It returns true when the key was newly marked, false when the
	// event was already processed.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
}

// ConnectorRegistry resolves a configured connector for a provider.
// Unknown or inactive providers are rejected at configuration time.
type ConnectorRegistry interface {
	Resolve(cfg *domain.ConnectorConfig) (Connector, error)
}
