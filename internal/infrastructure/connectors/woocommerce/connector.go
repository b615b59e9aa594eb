// Package woocommerce adapts the WooCommerce REST API (wp-json/wc/v3)
// to the connector contract. Authentication is basic auth with the
// store's consumer key pair; webhooks are signed with the per-webhook
// secret.
package woocommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/infrastructure/connectors/signature"
	"skubridge-integration-layer/internal/ports"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	headerSignature  = "X-WC-Webhook-Signature"
	headerTopic      = "X-WC-Webhook-Topic"
	headerDeliveryID = "X-WC-Webhook-Delivery-ID"

	// WooCommerce caps per_page at 100.
	maxPerPage = 100
)

// Connector is the WooCommerce implementation of the connector
// contract.
type Connector struct {
	cfg        *domain.ConnectorConfig
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New returns an unconfigured WooCommerce connector.
func New(logger zerolog.Logger) ports.Connector {
	return &Connector{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Provider implements ports.Connector.
func (c *Connector) Provider() domain.Provider {
	return domain.ProviderWooCommerce
}

// Configure implements ports.Connector.
func (c *Connector) Configure(cfg *domain.ConnectorConfig) error {
	if err := cfg.RequireCredentials(domain.CredSiteURL, domain.CredConsumerKey, domain.CredConsumerSecret); err != nil {
		return err
	}
	c.cfg = cfg
	c.baseURL = strings.TrimRight(cfg.Credential(domain.CredSiteURL), "/")
	return nil
}

// doGet issues an authenticated GET with retry on transient failures.
// Retries use exponential backoff capped at three attempts; 4xx
// responses are never retried.
func (c *Connector) doGet(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + "/wp-json/wc/v3" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var resp *http.Response
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.SetBasicAuth(c.cfg.Credential(domain.CredConsumerKey), c.cfg.Credential(domain.CredConsumerSecret))

		r, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if r.StatusCode >= http.StatusInternalServerError || r.StatusCode == http.StatusTooManyRequests {
			r.Body.Close()
			return &domain.TransientProviderError{Provider: domain.ProviderWooCommerce, StatusCode: r.StatusCode}
		}
		resp = r
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		var transient *domain.TransientProviderError
		if !errors.As(err, &transient) {
			err = &domain.TransientProviderError{Provider: domain.ProviderWooCommerce, Err: err}
		}
		return nil, err
	}
	return resp, nil
}

// TestConnection implements ports.Connector with a one-item product
// list, the cheapest authenticated read the API offers.
func (c *Connector) TestConnection(ctx context.Context) (bool, error) {
	q := url.Values{"per_page": {"1"}}
	resp, err := c.doGet(ctx, "/products", q)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, c.baseURL, body)
	}
}

// wcProduct is the subset of the WooCommerce product schema this
// connector reads. Simple products carry sku/price/stock on the
// product itself; variable products carry them per variation, which
// this integration treats as a single-variant product.
type wcProduct struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	SKU           string   `json:"sku"`
	Price         string   `json:"price"`
	StockQuantity *int     `json:"stock_quantity"`
	Weight        string   `json:"weight"`
	Tags          []wcTerm `json:"tags"`
	Images        []struct {
		Src string `json:"src"`
	} `json:"images"`
}

type wcTerm struct {
	Name string `json:"name"`
}

// ImportProducts implements ports.Connector. WooCommerce paginates
// with page/per_page, so the offset is translated into a page number
// plus a skip within the first page.
func (c *Connector) ImportProducts(ctx context.Context, limit, offset int) (*domain.ImportBatch, error) {
	batch := &domain.ImportBatch{}
	remaining := limit
	cursor := offset

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		perPage := maxPerPage
		page := cursor/perPage + 1
		skip := cursor % perPage

		q := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(perPage)},
			"orderby":  {"id"},
			"order":    {"asc"},
		}
		products, total, err := c.fetchProductPage(ctx, q)
		if err != nil {
			return nil, err
		}
		if skip >= len(products) {
			break
		}
		window := products[skip:]
		if len(window) > remaining {
			window = window[:remaining]
		}

		for _, p := range window {
			spu, err := c.toSPU(p)
			if err != nil {
				batch.Failed = append(batch.Failed, domain.ItemFailure{
					ExternalID: strconv.FormatInt(p.ID, 10),
					Reason:     err.Error(),
				})
				continue
			}
			batch.SPUs = append(batch.SPUs, spu)
		}

		cursor += len(window)
		remaining -= len(window)
		if len(products) < perPage {
			break
		}
		if total > 0 && cursor >= total {
			break
		}
	}

	// X-WP-Total tells us whether items remain past the window.
	q := url.Values{"page": {"1"}, "per_page": {"1"}}
	_, total, err := c.fetchProductPage(ctx, q)
	if err == nil && total > cursor {
		batch.More = true
	}
	return batch, nil
}

// fetchProductPage returns one page of products plus the X-WP-Total
// count when the store reports it.
func (c *Connector) fetchProductPage(ctx context.Context, q url.Values) ([]wcProduct, int, error) {
	resp, err := c.doGet(ctx, "/products", q)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, 0, &domain.AuthError{Provider: domain.ProviderWooCommerce, Reason: fmt.Sprintf("product list rejected with status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("product list failed with status %d: %s", resp.StatusCode, body)
	}

	var products []wcProduct
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, 0, fmt.Errorf("failed to decode product list: %w", err)
	}
	total, _ := strconv.Atoi(resp.Header.Get("X-WP-Total"))
	return products, total, nil
}

func (c *Connector) toSPU(p wcProduct) (*domain.SPU, error) {
	if p.SKU == "" {
		return nil, fmt.Errorf("product %d has no SKU", p.ID)
	}

	sku := domain.SKU{
		SupplierSKU:   p.SKU,
		MappingStatus: domain.MappingPending,
	}
	if p.Price != "" {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("malformed price %q on product %d: %w", p.Price, p.ID, err)
		}
		sku.Price = price
	}
	if p.StockQuantity != nil {
		sku.Stock = *p.StockQuantity
	}
	if p.Weight != "" {
		weight, err := decimal.NewFromString(p.Weight)
		if err == nil {
			sku.Weight = weight
		}
	}

	spu := &domain.SPU{
		Supplier:    domain.ProviderWooCommerce,
		ExternalID:  strconv.FormatInt(p.ID, 10),
		Title:       p.Name,
		Description: p.Description,
		SKUs:        []domain.SKU{sku},
	}
	for _, t := range p.Tags {
		spu.Tags = append(spu.Tags, t.Name)
	}
	for _, img := range p.Images {
		spu.Images = append(spu.Images, img.Src)
	}
	return spu, nil
}

// FetchInventory implements ports.Connector using the sku filter the
// products endpoint supports.
func (c *Connector) FetchInventory(ctx context.Context, skus []string) ([]domain.InventoryLevel, error) {
	var levels []domain.InventoryLevel
	for _, s := range skus {
		q := url.Values{"sku": {s}, "per_page": {"1"}}
		products, _, err := c.fetchProductPage(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(products) == 0 {
			continue
		}
		p := products[0]
		level := domain.InventoryLevel{SKU: s}
		if p.Price != "" {
			if price, err := decimal.NewFromString(p.Price); err == nil {
				level.Price = price
			}
		}
		if p.StockQuantity != nil {
			level.Stock = *p.StockQuantity
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// VerifyWebhook implements ports.Connector. WooCommerce signs the raw
// body with the webhook's shared secret, base64 HMAC-SHA256.
func (c *Connector) VerifyWebhook(req *domain.WebhookRequest) error {
	secret := c.cfg.Credential(domain.CredWebhookSecret)
	if secret == "" {
		secret = c.cfg.Credential(domain.CredConsumerSecret)
	}
	if !signature.Verify(secret, req.RawBody, req.Headers.Get(headerSignature)) {
		return &domain.WebhookAuthError{Provider: domain.ProviderWooCommerce, Reason: "HMAC signature mismatch"}
	}
	return nil
}

// NormalizeWebhook implements ports.Connector. The topic header uses
// dotted resource.event form; only product created and updated map to
// canonical events.
func (c *Connector) NormalizeWebhook(req *domain.WebhookRequest) (*domain.CanonicalEvent, error) {
	topic := req.Topic
	if topic == "" {
		topic = req.Headers.Get(headerTopic)
	}

	var kind domain.EventKind
	switch topic {
	case "product.created":
		kind = domain.EventProductCreated
	case "product.updated":
		kind = domain.EventProductUpdated
	default:
		return nil, nil
	}

	var payload wcProduct
	if err := json.Unmarshal(req.RawBody, &payload); err != nil {
		return nil, fmt.Errorf("malformed product payload: %w", err)
	}
	if payload.ID == 0 {
		return nil, fmt.Errorf("product payload missing id")
	}

	evt := &domain.CanonicalEvent{
		Kind:       kind,
		Supplier:   domain.ProviderWooCommerce,
		EventID:    req.Headers.Get(headerDeliveryID),
		ReceivedAt: req.ReceivedAt,
		ExternalID: strconv.FormatInt(payload.ID, 10),
		SKU:        payload.SKU,
		Title:      payload.Name,
	}
	if payload.Price != "" {
		price, err := decimal.NewFromString(payload.Price)
		if err != nil {
			return nil, fmt.Errorf("malformed price %q: %w", payload.Price, err)
		}
		evt.Price = &price
	}
	if payload.StockQuantity != nil {
		stock := *payload.StockQuantity
		evt.Stock = &stock
	}
	return evt, nil
}

var _ ports.Connector = (*Connector)(nil)
