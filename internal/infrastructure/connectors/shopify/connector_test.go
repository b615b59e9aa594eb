package shopify

import (
	"context"
	"net/http"
	"testing"
	"time"

	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/infrastructure/connectors/signature"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configured(t *testing.T) *Connector {
	t.Helper()
	conn := New(zerolog.Nop()).(*Connector)
	err := conn.Configure(&domain.ConnectorConfig{
		Provider: domain.ProviderShopify,
		IsActive: true,
		Credentials: map[string]string{
			domain.CredShopDomain:    "test.myshopify.com",
			domain.CredClientID:      "api-key",
			domain.CredClientSecret:  "api-secret",
			domain.CredWebhookSecret: "hook-secret",
		},
	})
	require.NoError(t, err)
	return conn
}

func TestConfigure_MissingCredentials(t *testing.T) {
	conn := New(zerolog.Nop())
	err := conn.Configure(&domain.ConnectorConfig{
		Provider:    domain.ProviderShopify,
		Credentials: map[string]string{domain.CredShopDomain: "test.myshopify.com"},
	})
	require.Error(t, err)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, domain.CredClientID, cfgErr.Field)
}

func TestVerifyWebhook(t *testing.T) {
	conn := configured(t)
	body := []byte(`{"id":123,"title":"Mug"}`)

	t.Run("valid signature", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("X-Shopify-Hmac-Sha256", signature.Compute("hook-secret", body))
		err := conn.VerifyWebhook(&domain.WebhookRequest{
			Provider: domain.ProviderShopify,
			Headers:  headers,
			RawBody:  body,
		})
		assert.NoError(t, err)
	})

	t.Run("invalid signature", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("X-Shopify-Hmac-Sha256", signature.Compute("wrong", body))
		err := conn.VerifyWebhook(&domain.WebhookRequest{
			Provider: domain.ProviderShopify,
			Headers:  headers,
			RawBody:  body,
		})
		require.Error(t, err)
		assert.True(t, domain.IsWebhookAuth(err))
	})

	t.Run("missing signature", func(t *testing.T) {
		err := conn.VerifyWebhook(&domain.WebhookRequest{
			Provider: domain.ProviderShopify,
			Headers:  http.Header{},
			RawBody:  body,
		})
		require.Error(t, err)
		assert.True(t, domain.IsWebhookAuth(err))
	})
}

func TestNormalizeWebhook(t *testing.T) {
	conn := configured(t)
	now := time.Now()

	t.Run("products create maps to canonical event", func(t *testing.T) {
		body := []byte(`{
			"id": 632910392,
			"title": "IPod Nano",
			"variants": [
				{"sku": "IPOD-N-1", "price": "199.99", "inventory_quantity": 13}
			]
		}`)
		headers := http.Header{}
		headers.Set("X-Shopify-Topic", "products/create")
		headers.Set("X-Shopify-Webhook-Id", "wh-abc")

		evt, err := conn.NormalizeWebhook(&domain.WebhookRequest{
			Provider:   domain.ProviderShopify,
			Headers:    headers,
			RawBody:    body,
			ReceivedAt: now,
		})
		require.NoError(t, err)
		require.NotNil(t, evt)
		assert.Equal(t, domain.EventProductCreated, evt.Kind)
		assert.Equal(t, domain.ProviderShopify, evt.Supplier)
		assert.Equal(t, "wh-abc", evt.EventID)
		assert.Equal(t, "632910392", evt.ExternalID)
		assert.Equal(t, "IPOD-N-1", evt.SKU)
		assert.Equal(t, "IPod Nano", evt.Title)
		require.NotNil(t, evt.Price)
		assert.Equal(t, "199.99", evt.Price.String())
		require.NotNil(t, evt.Stock)
		assert.Equal(t, 13, *evt.Stock)
	})

	t.Run("unconsumed topic is ignored", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("X-Shopify-Topic", "orders/create")

		evt, err := conn.NormalizeWebhook(&domain.WebhookRequest{
			Provider: domain.ProviderShopify,
			Headers:  headers,
			RawBody:  []byte(`{"id":1}`),
		})
		require.NoError(t, err)
		assert.Nil(t, evt)
	})

	t.Run("malformed payload errors", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("X-Shopify-Topic", "products/update")

		_, err := conn.NormalizeWebhook(&domain.WebhookRequest{
			Provider: domain.ProviderShopify,
			Headers:  headers,
			RawBody:  []byte(`not json`),
		})
		assert.Error(t, err)
	})
}

func TestGenerateOAuthURL(t *testing.T) {
	conn := configured(t)

	url, err := conn.GenerateOAuthURL("https://app.example.com/auth/shopify/callback",
		[]string{"read_products", "write_products"}, "state-123")
	require.NoError(t, err)
	assert.Contains(t, url, "https://test.myshopify.com/admin/oauth/authorize")
	assert.Contains(t, url, "client_id=api-key")
	assert.Contains(t, url, "scope=read_products%2Cwrite_products")
	assert.Contains(t, url, "state=state-123")
}

func TestRefresh_NotSupported(t *testing.T) {
	conn := configured(t)
	_, err := conn.Refresh(context.Background(), "whatever")
	require.Error(t, err)
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
