package woocommerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/infrastructure/connectors/signature"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProduct(id int, sku, name, price string, stock int) map[string]interface{} {
	return map[string]interface{}{
		"id":             id,
		"name":           name,
		"sku":            sku,
		"price":          price,
		"stock_quantity": stock,
	}
}

func newTestConnector(t *testing.T, siteURL string) *Connector {
	t.Helper()
	conn := New(zerolog.Nop()).(*Connector)
	err := conn.Configure(&domain.ConnectorConfig{
		Provider: domain.ProviderWooCommerce,
		IsActive: true,
		Credentials: map[string]string{
			domain.CredSiteURL:        siteURL,
			domain.CredConsumerKey:    "ck_test",
			domain.CredConsumerSecret: "cs_test",
			domain.CredWebhookSecret:  "hook-secret",
		},
	})
	require.NoError(t, err)
	return conn
}

func TestTestConnection(t *testing.T) {
	t.Run("accepted credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "ck_test", user)
			assert.Equal(t, "cs_test", pass)
			json.NewEncoder(w).Encode([]map[string]interface{}{})
		}))
		defer srv.Close()

		ok, err := newTestConnector(t, srv.URL).TestConnection(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rejected credentials report false without error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		ok, err := newTestConnector(t, srv.URL).TestConnection(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestImportProducts(t *testing.T) {
	// 120 products, so the window spans native pages of 100.
	total := 120
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wp-json/wc/v3/products", r.URL.Path)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		if page < 1 {
			page = 1
		}

		start := (page - 1) * perPage
		var products []map[string]interface{}
		for i := start; i < start+perPage && i < total; i++ {
			products = append(products, testProduct(i+1, "WC-"+strconv.Itoa(i+1), "Product "+strconv.Itoa(i+1), "9.99", 3))
		}
		w.Header().Set("X-WP-Total", strconv.Itoa(total))
		json.NewEncoder(w).Encode(products)
	}))
	defer srv.Close()

	conn := newTestConnector(t, srv.URL)

	t.Run("offset window crossing a page boundary", func(t *testing.T) {
		batch, err := conn.ImportProducts(context.Background(), 30, 90)
		require.NoError(t, err)
		require.Len(t, batch.SPUs, 30)
		assert.Equal(t, "91", batch.SPUs[0].ExternalID)
		assert.Equal(t, "120", batch.SPUs[29].ExternalID)
		assert.False(t, batch.More)
	})

	t.Run("more flag set when items remain", func(t *testing.T) {
		batch, err := conn.ImportProducts(context.Background(), 10, 0)
		require.NoError(t, err)
		require.Len(t, batch.SPUs, 10)
		assert.True(t, batch.More)
	})

	t.Run("product without sku is a per-item failure", func(t *testing.T) {
		srvBad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-WP-Total", "2")
			json.NewEncoder(w).Encode([]map[string]interface{}{
				testProduct(1, "WC-1", "Good", "1.00", 1),
				testProduct(2, "", "No SKU", "2.00", 2),
			})
		}))
		defer srvBad.Close()

		batch, err := newTestConnector(t, srvBad.URL).ImportProducts(context.Background(), 10, 0)
		require.NoError(t, err)
		assert.Len(t, batch.SPUs, 1)
		require.Len(t, batch.Failed, 1)
		assert.Equal(t, "2", batch.Failed[0].ExternalID)
	})
}

func TestFetchInventory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sku := r.URL.Query().Get("sku")
		if sku == "WC-1" {
			json.NewEncoder(w).Encode([]map[string]interface{}{
				testProduct(1, "WC-1", "Product 1", "19.50", 8),
			})
			return
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{})
	}))
	defer srv.Close()

	levels, err := newTestConnector(t, srv.URL).FetchInventory(context.Background(), []string{"WC-1", "UNKNOWN"})
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, "WC-1", levels[0].SKU)
	assert.Equal(t, 8, levels[0].Stock)
	assert.Equal(t, "19.5", levels[0].Price.String())
}

func TestVerifyWebhook(t *testing.T) {
	conn := newTestConnector(t, "https://store.example.com")
	body := []byte(`{"id":1}`)

	headers := http.Header{}
	headers.Set("X-WC-Webhook-Signature", signature.Compute("hook-secret", body))
	assert.NoError(t, conn.VerifyWebhook(&domain.WebhookRequest{Headers: headers, RawBody: body}))

	headers.Set("X-WC-Webhook-Signature", signature.Compute("wrong", body))
	err := conn.VerifyWebhook(&domain.WebhookRequest{Headers: headers, RawBody: body})
	require.Error(t, err)
	assert.True(t, domain.IsWebhookAuth(err))
}

func TestNormalizeWebhook(t *testing.T) {
	conn := newTestConnector(t, "https://store.example.com")
	now := time.Now()

	t.Run("product updated", func(t *testing.T) {
		body, err := json.Marshal(testProduct(55, "WC-55", "Renamed Product", "12.00", 4))
		require.NoError(t, err)

		headers := http.Header{}
		headers.Set("X-WC-Webhook-Topic", "product.updated")
		headers.Set("X-WC-Webhook-Delivery-ID", "d-9")

		evt, err := conn.NormalizeWebhook(&domain.WebhookRequest{
			Headers:    headers,
			RawBody:    body,
			ReceivedAt: now,
		})
		require.NoError(t, err)
		require.NotNil(t, evt)
		assert.Equal(t, domain.EventProductUpdated, evt.Kind)
		assert.Equal(t, domain.ProviderWooCommerce, evt.Supplier)
		assert.Equal(t, "d-9", evt.EventID)
		assert.Equal(t, "55", evt.ExternalID)
		assert.Equal(t, "WC-55", evt.SKU)
		require.NotNil(t, evt.Stock)
		assert.Equal(t, 4, *evt.Stock)
	})

	t.Run("unconsumed topic ignored", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("X-WC-Webhook-Topic", "order.created")

		evt, err := conn.NormalizeWebhook(&domain.WebhookRequest{Headers: headers, RawBody: []byte(`{}`)})
		require.NoError(t, err)
		assert.Nil(t, evt)
	})
}
