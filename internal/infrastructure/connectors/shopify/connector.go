// Package shopify adapts the Shopify Admin REST API to the connector
// contract using the bold-commerce client. Shopify access tokens do
// not expire, so Refresh is not supported and token records carry a
// zero lifetime.
package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/infrastructure/connectors/signature"
	"skubridge-integration-layer/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	headerHmac      = "X-Shopify-Hmac-Sha256"
	headerTopic     = "X-Shopify-Topic"
	headerWebhookID = "X-Shopify-Webhook-Id"

	// Shopify caps page size at 250 on the products endpoint.
	maxPageSize = 250
)

// Connector is the Shopify implementation of the connector contract.
type Connector struct {
	cfg        *domain.ConnectorConfig
	app        goshopify.App
	shopDomain string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New returns an unconfigured Shopify connector.
func New(logger zerolog.Logger) ports.Connector {
	return &Connector{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Provider implements ports.Connector.
func (c *Connector) Provider() domain.Provider {
	return domain.ProviderShopify
}

// Configure implements ports.Connector. Requires the shop domain and
// app credentials; an access token is only required for API calls, not
// for starting the OAuth flow.
func (c *Connector) Configure(cfg *domain.ConnectorConfig) error {
	if err := cfg.RequireCredentials(domain.CredShopDomain, domain.CredClientID, domain.CredClientSecret); err != nil {
		return err
	}
	c.cfg = cfg
	c.shopDomain = cfg.Credential(domain.CredShopDomain)
	c.app = goshopify.App{
		ApiKey:    cfg.Credential(domain.CredClientID),
		ApiSecret: cfg.Credential(domain.CredClientSecret),
	}
	return nil
}

func (c *Connector) client() (*goshopify.Client, error) {
	token := c.cfg.Credential(domain.CredAccessToken)
	if token == "" {
		return nil, &domain.AuthError{Provider: domain.ProviderShopify, Reason: "no access token, complete the OAuth flow first"}
	}
	client, err := goshopify.NewClient(c.app, c.shopDomain, token, goshopify.WithRetry(3))
	if err != nil {
		return nil, fmt.Errorf("failed to create shopify client: %w", err)
	}
	return client, nil
}

// TestConnection implements ports.Connector. A rejected token reports
// false without error; transport and server failures are returned as
// errors.
func (c *Connector) TestConnection(ctx context.Context) (bool, error) {
	client, err := c.client()
	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			return false, nil
		}
		return false, err
	}

	if _, err := client.Shop.Get(ctx, nil); err != nil {
		var respErr goshopify.ResponseError
		if errors.As(err, &respErr) {
			switch {
			case respErr.Status == http.StatusUnauthorized || respErr.Status == http.StatusForbidden:
				return false, nil
			case respErr.Status >= http.StatusInternalServerError || respErr.Status == http.StatusTooManyRequests:
				return false, &domain.TransientProviderError{Provider: domain.ProviderShopify, StatusCode: respErr.Status, Err: err}
			}
		}
		if strings.Contains(strings.ToLower(err.Error()), "unauthorized") {
			return false, nil
		}
		return false, fmt.Errorf("shop lookup failed: %w", err)
	}
	return true, nil
}

// ImportProducts implements ports.Connector. Shopify paginates with
// since_id cursors, so the offset is satisfied by walking cursor pages
// and discarding the first offset items. One extra item is fetched to
// decide whether another page exists.
func (c *Connector) ImportProducts(ctx context.Context, limit, offset int) (*domain.ImportBatch, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}

	wanted := offset + limit + 1
	var products []goshopify.Product
	var sinceID uint64
	for len(products) < wanted {
		pageSize := wanted - len(products)
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
		page, err := client.Product.List(ctx, goshopify.ListOptions{SinceId: &sinceID, Limit: pageSize})
		if err != nil {
			return nil, c.wrapAPIError("product list failed", err)
		}
		if len(page) == 0 {
			break
		}
		products = append(products, page...)
		sinceID = page[len(page)-1].Id
		if len(page) < pageSize {
			break
		}
	}

	if offset >= len(products) {
		return &domain.ImportBatch{}, nil
	}
	window := products[offset:]
	more := len(window) > limit
	if more {
		window = window[:limit]
	}

	batch := &domain.ImportBatch{More: more}
	for _, p := range window {
		spu, err := c.toSPU(p)
		if err != nil {
			batch.Failed = append(batch.Failed, domain.ItemFailure{
				ExternalID: fmt.Sprintf("%d", p.Id),
				Reason:     err.Error(),
			})
			continue
		}
		batch.SPUs = append(batch.SPUs, spu)
	}
	return batch, nil
}

// toSPU maps a Shopify product with its variants into the canonical
// product shape. A product with no usable SKUs is a per-item failure,
// not a silent drop.
func (c *Connector) toSPU(p goshopify.Product) (*domain.SPU, error) {
	spu := &domain.SPU{
		Supplier:    domain.ProviderShopify,
		ExternalID:  fmt.Sprintf("%d", p.Id),
		Title:       p.Title,
		Description: p.BodyHTML,
		Vendor:      p.Vendor,
	}
	if p.Tags != "" {
		for _, tag := range strings.Split(p.Tags, ",") {
			spu.Tags = append(spu.Tags, strings.TrimSpace(tag))
		}
	}
	for _, img := range p.Images {
		spu.Images = append(spu.Images, img.Src)
	}

	for _, v := range p.Variants {
		if v.Sku == "" {
			continue
		}
		sku := domain.SKU{
			SupplierSKU:   v.Sku,
			Barcode:       v.Barcode,
			Stock:         v.InventoryQuantity,
			MappingStatus: domain.MappingPending,
		}
		if v.Price != nil {
			sku.Price = *v.Price
		}
		if v.Weight != nil {
			sku.Weight = *v.Weight
		}
		spu.SKUs = append(spu.SKUs, sku)
	}
	if len(spu.SKUs) == 0 {
		return nil, fmt.Errorf("product %d has no variants with a SKU", p.Id)
	}
	return spu, nil
}

// FetchInventory implements ports.Connector. Shopify has no lookup by
// variant SKU, so the product list is scanned for matching variants.
// SKUs not found on any variant are omitted from the result.
func (c *Connector) FetchInventory(ctx context.Context, skus []string) ([]domain.InventoryLevel, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(skus))
	for _, s := range skus {
		wanted[s] = true
	}

	var levels []domain.InventoryLevel
	var sinceID uint64
	for len(wanted) > 0 {
		page, err := client.Product.List(ctx, goshopify.ListOptions{SinceId: &sinceID, Limit: maxPageSize})
		if err != nil {
			return nil, c.wrapAPIError("product list failed", err)
		}
		if len(page) == 0 {
			break
		}
		for _, p := range page {
			for _, v := range p.Variants {
				if !wanted[v.Sku] {
					continue
				}
				level := domain.InventoryLevel{SKU: v.Sku, Stock: v.InventoryQuantity}
				if v.Price != nil {
					level.Price = *v.Price
				}
				levels = append(levels, level)
				delete(wanted, v.Sku)
			}
		}
		sinceID = page[len(page)-1].Id
		if len(page) < maxPageSize {
			break
		}
	}
	return levels, nil
}

// VerifyWebhook implements ports.Connector using the HMAC header
// Shopify signs every delivery with.
func (c *Connector) VerifyWebhook(req *domain.WebhookRequest) error {
	secret := c.cfg.Credential(domain.CredWebhookSecret)
	if secret == "" {
		secret = c.cfg.Credential(domain.CredClientSecret)
	}
	if !signature.Verify(secret, req.RawBody, req.Headers.Get(headerHmac)) {
		return &domain.WebhookAuthError{Provider: domain.ProviderShopify, Reason: "HMAC signature mismatch"}
	}
	return nil
}

type webhookProduct struct {
	Id       uint64 `json:"id"`
	Title    string `json:"title"`
	Variants []struct {
		Sku               string `json:"sku"`
		Price             string `json:"price"`
		InventoryQuantity int    `json:"inventory_quantity"`
	} `json:"variants"`
}

// NormalizeWebhook implements ports.Connector. Product create and
// update topics map onto canonical events; every other topic is
// ignored with a nil event.
func (c *Connector) NormalizeWebhook(req *domain.WebhookRequest) (*domain.CanonicalEvent, error) {
	topic := req.Topic
	if topic == "" {
		topic = req.Headers.Get(headerTopic)
	}

	var kind domain.EventKind
	switch topic {
	case "products/create":
		kind = domain.EventProductCreated
	case "products/update":
		kind = domain.EventProductUpdated
	default:
		return nil, nil
	}

	var payload webhookProduct
	if err := json.Unmarshal(req.RawBody, &payload); err != nil {
		return nil, fmt.Errorf("malformed product payload: %w", err)
	}
	if payload.Id == 0 {
		return nil, fmt.Errorf("product payload missing id")
	}

	evt := &domain.CanonicalEvent{
		Kind:       kind,
		Supplier:   domain.ProviderShopify,
		EventID:    req.Headers.Get(headerWebhookID),
		ReceivedAt: req.ReceivedAt,
		ExternalID: fmt.Sprintf("%d", payload.Id),
		Title:      payload.Title,
	}
	if len(payload.Variants) > 0 {
		v := payload.Variants[0]
		evt.SKU = v.Sku
		if v.Price != "" {
			price, err := decimal.NewFromString(v.Price)
			if err != nil {
				return nil, fmt.Errorf("malformed variant price %q: %w", v.Price, err)
			}
			evt.Price = &price
		}
		stock := v.InventoryQuantity
		evt.Stock = &stock
	}
	return evt, nil
}

// GenerateOAuthURL implements ports.OAuthConnector. Scopes are joined
// with commas as Shopify expects.
func (c *Connector) GenerateOAuthURL(redirectURI string, scopes []string, state string) (string, error) {
	return fmt.Sprintf(
		"https://%s/admin/oauth/authorize?client_id=%s&scope=%s&redirect_uri=%s&state=%s",
		c.shopDomain,
		c.app.ApiKey,
		url.QueryEscape(strings.Join(scopes, ",")),
		url.QueryEscape(redirectURI),
		url.QueryEscape(state),
	), nil
}

// ExchangeCode implements ports.OAuthConnector. The token endpoint is
// called directly because the library exchange does not send the
// redirect_uri, which Shopify validates against the authorize request.
func (c *Connector) ExchangeCode(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error) {
	values := url.Values{}
	values.Set("client_id", c.app.ApiKey)
	values.Set("client_secret", c.app.ApiSecret)
	values.Set("code", code)
	values.Set("redirect_uri", redirectURI)

	tokenURL := fmt.Sprintf("https://%s/admin/oauth/access_token", c.shopDomain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransientProviderError{Provider: domain.ProviderShopify, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &domain.TransientProviderError{Provider: domain.ProviderShopify, StatusCode: resp.StatusCode, Err: fmt.Errorf("token exchange: %s", body)}
		}
		return nil, &domain.AuthError{Provider: domain.ProviderShopify, Reason: fmt.Sprintf("token exchange rejected: status %d, body %s", resp.StatusCode, body)}
	}

	var tokenResponse struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResponse.AccessToken == "" {
		return nil, &domain.AuthError{Provider: domain.ProviderShopify, Reason: "token exchange returned empty access token"}
	}

	// Offline Shopify tokens have no expiry and no refresh token.
	return &domain.TokenGrant{AccessToken: tokenResponse.AccessToken}, nil
}

// Refresh implements ports.OAuthConnector. Shopify offline tokens
// never expire; a refresh request indicates the token record was
// stored with a spurious lifetime.
func (c *Connector) Refresh(ctx context.Context, refreshToken string) (*domain.TokenGrant, error) {
	return nil, &domain.ConfigurationError{Provider: domain.ProviderShopify, Reason: "shopify access tokens do not expire and cannot be refreshed"}
}

// ListWebhooks implements ports.WebhookSubscriber.
func (c *Connector) ListWebhooks(ctx context.Context) ([]string, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	webhooks, err := client.Webhook.List(ctx, nil)
	if err != nil {
		return nil, c.wrapAPIError("webhook list failed", err)
	}
	topics := make([]string, 0, len(webhooks))
	for _, wh := range webhooks {
		topics = append(topics, wh.Topic)
	}
	return topics, nil
}

// CreateWebhook implements ports.WebhookSubscriber.
func (c *Connector) CreateWebhook(ctx context.Context, topic, address string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	if _, err := client.Webhook.Create(ctx, goshopify.Webhook{
		Topic:   topic,
		Address: address,
		Format:  "json",
	}); err != nil {
		return c.wrapAPIError("webhook create failed", err)
	}
	return nil
}

// wrapAPIError classifies library errors into the domain taxonomy.
func (c *Connector) wrapAPIError(msg string, err error) error {
	var respErr goshopify.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.Status == http.StatusUnauthorized || respErr.Status == http.StatusForbidden:
			return &domain.AuthError{Provider: domain.ProviderShopify, Reason: msg, Err: err}
		case respErr.Status >= http.StatusInternalServerError || respErr.Status == http.StatusTooManyRequests:
			return &domain.TransientProviderError{Provider: domain.ProviderShopify, StatusCode: respErr.Status, Err: err}
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

var (
	_ ports.Connector         = (*Connector)(nil)
	_ ports.OAuthConnector    = (*Connector)(nil)
	_ ports.WebhookSubscriber = (*Connector)(nil)
)
