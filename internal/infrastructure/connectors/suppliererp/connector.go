// Package suppliererp adapts the supplier ERP feed API to the
// connector contract. The ERP speaks plain offset pagination and a
// standard OAuth2 authorization-code flow with expiring, rotating
// refresh tokens; it sends webhooks without a signature scheme.
package suppliererp

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
	"skubridge-integration-layer/internal/ports"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// The ERP rejects limit values above 200.
const maxLimit = 200

// Connector is the supplier ERP implementation of the connector
// contract.
type Connector struct {
	cfg        *domain.ConnectorConfig
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New returns an unconfigured supplier ERP connector.
func New(logger zerolog.Logger) ports.Connector {
	return &Connector{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Provider implements ports.Connector.
func (c *Connector) Provider() domain.Provider {
	return domain.ProviderSupplierERP
}

// Configure implements ports.Connector.
func (c *Connector) Configure(cfg *domain.ConnectorConfig) error {
	if err := cfg.RequireCredentials(domain.CredBaseURL, domain.CredClientID, domain.CredClientSecret); err != nil {
		return err
	}
	c.cfg = cfg
	c.baseURL = strings.TrimRight(cfg.Credential(domain.CredBaseURL), "/")
	return nil
}

// doGet issues an authenticated GET with retry on transient failures.
func (c *Connector) doGet(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	token := c.cfg.Credential(domain.CredAccessToken)
	if token == "" {
		return nil, &domain.AuthError{Provider: domain.ProviderSupplierERP, Reason: "no access token, complete the OAuth flow first"}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var resp *http.Response
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		r, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if r.StatusCode >= http.StatusInternalServerError || r.StatusCode == http.StatusTooManyRequests {
			r.Body.Close()
			return &domain.TransientProviderError{Provider: domain.ProviderSupplierERP, StatusCode: r.StatusCode}
		}
		resp = r
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		var transient *domain.TransientProviderError
		if !errors.As(err, &transient) {
			err = &domain.TransientProviderError{Provider: domain.ProviderSupplierERP, Err: err}
		}
		return nil, err
	}
	return resp, nil
}

// TestConnection implements ports.Connector.
func (c *Connector) TestConnection(ctx context.Context) (bool, error) {
	q := url.Values{"limit": {"1"}, "offset": {"0"}}
	resp, err := c.doGet(ctx, "/api/v1/products", q)
	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			return false, nil
		}
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
		return false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
}

// erpProduct is the ERP feed's product document.
type erpProduct struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Vendor      string   `json:"vendor"`
	Tags        []string `json:"tags"`
	Images      []string `json:"images"`
	Variants    []struct {
		SKU     string          `json:"sku"`
		Barcode string          `json:"barcode"`
		Price   decimal.Decimal `json:"price"`
		Stock   int             `json:"stock"`
		Weight  decimal.Decimal `json:"weight"`
	} `json:"variants"`
}

type erpProductPage struct {
	Products []erpProduct `json:"products"`
	Total    int          `json:"total"`
}

// ImportProducts implements ports.Connector. The ERP's native
// pagination is already offset/limit so this is a direct pass-through,
// split into capped page requests.
func (c *Connector) ImportProducts(ctx context.Context, limit, offset int) (*domain.ImportBatch, error) {
	batch := &domain.ImportBatch{}
	remaining := limit
	cursor := offset
	total := 0

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageLimit := remaining
		if pageLimit > maxLimit {
			pageLimit = maxLimit
		}

		page, err := c.fetchProductPage(ctx, pageLimit, cursor)
		if err != nil {
			return nil, err
		}
		total = page.Total
		if len(page.Products) == 0 {
			break
		}

		for _, p := range page.Products {
			spu, err := c.toSPU(p)
			if err != nil {
				batch.Failed = append(batch.Failed, domain.ItemFailure{ExternalID: p.ID, Reason: err.Error()})
				continue
			}
			batch.SPUs = append(batch.SPUs, spu)
		}

		cursor += len(page.Products)
		remaining -= len(page.Products)
		if len(page.Products) < pageLimit {
			break
		}
	}

	batch.More = total > cursor
	return batch, nil
}

func (c *Connector) fetchProductPage(ctx context.Context, limit, offset int) (*erpProductPage, error) {
	q := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	resp, err := c.doGet(ctx, "/api/v1/products", q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &domain.AuthError{Provider: domain.ProviderSupplierERP, Reason: fmt.Sprintf("product feed rejected with status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("product feed failed with status %d: %s", resp.StatusCode, body)
	}

	var page erpProductPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode product feed: %w", err)
	}
	return &page, nil
}

func (c *Connector) toSPU(p erpProduct) (*domain.SPU, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("product missing id")
	}
	spu := &domain.SPU{
		Supplier:    domain.ProviderSupplierERP,
		ExternalID:  p.ID,
		Title:       p.Title,
		Description: p.Description,
		Vendor:      p.Vendor,
		Tags:        p.Tags,
		Images:      p.Images,
	}
	for _, v := range p.Variants {
		if v.SKU == "" {
			continue
		}
		spu.SKUs = append(spu.SKUs, domain.SKU{
			SupplierSKU:   v.SKU,
			Barcode:       v.Barcode,
			Price:         v.Price,
			Stock:         v.Stock,
			Weight:        v.Weight,
			MappingStatus: domain.MappingPending,
		})
	}
	if len(spu.SKUs) == 0 {
		return nil, fmt.Errorf("product %s has no variants with a SKU", p.ID)
	}
	return spu, nil
}

// FetchInventory implements ports.Connector using the ERP's batch
// inventory endpoint.
func (c *Connector) FetchInventory(ctx context.Context, skus []string) ([]domain.InventoryLevel, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	q := url.Values{"skus": {strings.Join(skus, ",")}}
	resp, err := c.doGet(ctx, "/api/v1/inventory", q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("inventory fetch failed with status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Levels []struct {
			SKU   string          `json:"sku"`
			Price decimal.Decimal `json:"price"`
			Stock int             `json:"stock"`
		} `json:"levels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode inventory response: %w", err)
	}

	levels := make([]domain.InventoryLevel, 0, len(payload.Levels))
	for _, l := range payload.Levels {
		levels = append(levels, domain.InventoryLevel{SKU: l.SKU, Price: l.Price, Stock: l.Stock})
	}
	return levels, nil
}

// VerifyWebhook implements ports.Connector. The ERP does not sign its
// webhooks; deliveries are accepted and deduplicated downstream by
// event id.
func (c *Connector) VerifyWebhook(req *domain.WebhookRequest) error {
	return nil
}

// erpEvent is the ERP webhook envelope.
type erpEvent struct {
	EventID   string  `json:"event_id"`
	Type      string  `json:"type"`
	ProductID string  `json:"product_id"`
	SKU       string  `json:"sku"`
	Title     string  `json:"title"`
	Price     *string `json:"price"`
	Stock     *int    `json:"stock"`
}

// NormalizeWebhook implements ports.Connector.
func (c *Connector) NormalizeWebhook(req *domain.WebhookRequest) (*domain.CanonicalEvent, error) {
	var payload erpEvent
	if err := json.Unmarshal(req.RawBody, &payload); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}

	var kind domain.EventKind
	switch payload.Type {
	case "product.created":
		kind = domain.EventProductCreated
	case "product.updated":
		kind = domain.EventProductUpdated
	case "stock.updated":
		kind = domain.EventStockUpdated
	default:
		return nil, nil
	}

	evt := &domain.CanonicalEvent{
		Kind:       kind,
		Supplier:   domain.ProviderSupplierERP,
		EventID:    payload.EventID,
		ReceivedAt: req.ReceivedAt,
		ExternalID: payload.ProductID,
		SKU:        payload.SKU,
		Title:      payload.Title,
	}
	if payload.Price != nil {
		price, err := decimal.NewFromString(*payload.Price)
		if err != nil {
			return nil, fmt.Errorf("malformed price %q: %w", *payload.Price, err)
		}
		evt.Price = &price
	}
	if payload.Stock != nil {
		stock := *payload.Stock
		evt.Stock = &stock
	}
	return evt, nil
}

// GenerateOAuthURL implements ports.OAuthConnector.
func (c *Connector) GenerateOAuthURL(redirectURI string, scopes []string, state string) (string, error) {
	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", c.cfg.Credential(domain.CredClientID))
	values.Set("redirect_uri", redirectURI)
	values.Set("scope", strings.Join(scopes, " "))
	values.Set("state", state)
	return c.baseURL + "/oauth/authorize?" + values.Encode(), nil
}

// ExchangeCode implements ports.OAuthConnector.
func (c *Connector) ExchangeCode(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error) {
	values := url.Values{}
	values.Set("grant_type", "authorization_code")
	values.Set("code", code)
	values.Set("redirect_uri", redirectURI)
	return c.tokenRequest(ctx, values)
}

// Refresh implements ports.OAuthConnector. The ERP rotates refresh
// tokens on most responses; when it omits one the grant's RefreshToken
// stays empty and the caller keeps the previous token.
func (c *Connector) Refresh(ctx context.Context, refreshToken string) (*domain.TokenGrant, error) {
	if refreshToken == "" {
		return nil, &domain.AuthError{Provider: domain.ProviderSupplierERP, Reason: "no refresh token on record"}
	}
	values := url.Values{}
	values.Set("grant_type", "refresh_token")
	values.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, values)
}

func (c *Connector) tokenRequest(ctx context.Context, values url.Values) (*domain.TokenGrant, error) {
	values.Set("client_id", c.cfg.Credential(domain.CredClientID))
	values.Set("client_secret", c.cfg.Credential(domain.CredClientSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransientProviderError{Provider: domain.ProviderSupplierERP, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &domain.TransientProviderError{Provider: domain.ProviderSupplierERP, StatusCode: resp.StatusCode, Err: fmt.Errorf("token endpoint: %s", body)}
		}
		return nil, &domain.AuthError{Provider: domain.ProviderSupplierERP, Reason: fmt.Sprintf("token request rejected: status %d, body %s", resp.StatusCode, body)}
	}

	var tokenResponse struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResponse.AccessToken == "" {
		return nil, &domain.AuthError{Provider: domain.ProviderSupplierERP, Reason: "token endpoint returned empty access token"}
	}

	return &domain.TokenGrant{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		ExpiresIn:    tokenResponse.ExpiresIn,
	}, nil
}

var (
	_ ports.Connector      = (*Connector)(nil)
	_ ports.OAuthConnector = (*Connector)(nil)
)
