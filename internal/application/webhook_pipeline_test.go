package application

import (
	"context"
	"net/http"
	"testing"
	"time"

	"skubridge-integration-layer/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipelineFixture(conn *fakeConnector) (*WebhookPipeline, *memCatalog, *memIdem) {
	catalog := newMemCatalog()
	recon := newTestReconciliation(catalog, newMemMappings())
	idem := newMemIdem()
	configs := newMemConfigs(&domain.ConnectorConfig{
		ID:       "cfg-1",
		UserID:   "user-1",
		Provider: conn.provider,
		IsActive: true,
	})
	pipeline := NewWebhookPipeline(configs, newFakeRegistry(conn), recon, idem, nil, zerolog.Nop())
	return pipeline, catalog, idem
}

func TestWebhookPipeline_InvalidSignatureDropsEvent(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConnector{
		provider: domain.ProviderShopify,
		verifyFn: func(req *domain.WebhookRequest) error {
			return &domain.WebhookAuthError{Provider: domain.ProviderShopify, Reason: "HMAC signature mismatch"}
		},
		normalizeFn: func(req *domain.WebhookRequest) (*domain.CanonicalEvent, error) {
			t.Fatal("normalize must not run after failed verification")
			return nil, nil
		},
	}
	pipeline, catalog, _ := pipelineFixture(conn)

	req := &domain.WebhookRequest{
		Provider:   domain.ProviderShopify,
		Headers:    http.Header{},
		RawBody:    []byte(`{"id":1}`),
		ReceivedAt: time.Now(),
	}
	err := pipeline.Handle(ctx, "user-1", domain.ProviderShopify, req)
	require.Error(t, err)
	assert.True(t, domain.IsWebhookAuth(err))
	assert.Empty(t, catalog.skus)
}

func TestWebhookPipeline_IgnoredTopicIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConnector{
		provider: domain.ProviderShopify,
		normalizeFn: func(req *domain.WebhookRequest) (*domain.CanonicalEvent, error) {
			return nil, nil
		},
	}
	pipeline, catalog, _ := pipelineFixture(conn)

	req := &domain.WebhookRequest{
		Provider:   domain.ProviderShopify,
		Topic:      "orders/create",
		Headers:    http.Header{},
		RawBody:    []byte(`{}`),
		ReceivedAt: time.Now(),
	}
	require.NoError(t, pipeline.Handle(ctx, "user-1", domain.ProviderShopify, req))
	assert.Empty(t, catalog.skus)
}

func TestWebhookPipeline_RedeliveryIsDeduplicated(t *testing.T) {
	ctx := context.Background()
	applied := 0
	stock := 5
	conn := &fakeConnector{
		provider: domain.ProviderSupplierERP,
		normalizeFn: func(req *domain.WebhookRequest) (*domain.CanonicalEvent, error) {
			applied++
			return &domain.CanonicalEvent{
				Kind:       domain.EventStockUpdated,
				Supplier:   domain.ProviderSupplierERP,
				EventID:    "evt-77",
				SKU:        "SUP-1",
				Stock:      &stock,
				ReceivedAt: req.ReceivedAt,
			}, nil
		},
	}
	pipeline, catalog, idem := pipelineFixture(conn)

	req := &domain.WebhookRequest{
		Provider:   domain.ProviderSupplierERP,
		Headers:    http.Header{},
		RawBody:    []byte(`{"event_id":"evt-77"}`),
		ReceivedAt: time.Now(),
	}
	require.NoError(t, pipeline.Handle(ctx, "user-1", domain.ProviderSupplierERP, req))
	require.NoError(t, pipeline.Handle(ctx, "user-1", domain.ProviderSupplierERP, req))

	// Both deliveries were normalized but only the first was applied.
	assert.Equal(t, 2, applied)
	seen, err := idem.IsProcessed(ctx, "supplier-erp:evt-77")
	require.NoError(t, err)
	assert.True(t, seen)

	sku, err := catalog.FindSKUBySupplierSKU(ctx, "SUP-1")
	require.NoError(t, err)
	require.NotNil(t, sku)
	assert.Equal(t, 5, sku.Stock)
}

func TestWebhookPipeline_ApplyFailureStaysRetryable(t *testing.T) {
	ctx := context.Background()
	stock := 3
	conn := &fakeConnector{
		provider: domain.ProviderSupplierERP,
		normalizeFn: func(req *domain.WebhookRequest) (*domain.CanonicalEvent, error) {
			return &domain.CanonicalEvent{
				Kind:       domain.EventStockUpdated,
				Supplier:   domain.ProviderSupplierERP,
				EventID:    "evt-88",
				SKU:        "SUP-2",
				Stock:      &stock,
				ReceivedAt: req.ReceivedAt,
			}, nil
		},
	}
	pipeline, catalog, idem := pipelineFixture(conn)
	catalog.failUpsertSKU = map[string]error{"SUP-2": assert.AnError}

	req := &domain.WebhookRequest{
		Provider:   domain.ProviderSupplierERP,
		Headers:    http.Header{},
		RawBody:    []byte(`{"event_id":"evt-88"}`),
		ReceivedAt: time.Now(),
	}
	require.Error(t, pipeline.Handle(ctx, "user-1", domain.ProviderSupplierERP, req))

	// The key must not be marked, so the provider's redelivery gets
	// another chance.
	seen, err := idem.IsProcessed(ctx, "supplier-erp:evt-88")
	require.NoError(t, err)
	assert.False(t, seen)

	// Redelivery succeeds once the store recovers.
	catalog.failUpsertSKU = nil
	require.NoError(t, pipeline.Handle(ctx, "user-1", domain.ProviderSupplierERP, req))
	sku, err := catalog.FindSKUBySupplierSKU(ctx, "SUP-2")
	require.NoError(t, err)
	require.NotNil(t, sku)
	assert.Equal(t, 3, sku.Stock)
}

func TestWebhookPipeline_UnknownUserRejected(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConnector{provider: domain.ProviderShopify}
	pipeline, _, _ := pipelineFixture(conn)

	req := &domain.WebhookRequest{
		Provider:   domain.ProviderShopify,
		Headers:    http.Header{},
		RawBody:    []byte(`{}`),
		ReceivedAt: time.Now(),
	}
	err := pipeline.Handle(ctx, "nobody", domain.ProviderShopify, req)
	require.Error(t, err)

	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
