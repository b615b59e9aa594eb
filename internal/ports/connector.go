package ports

import (
	"context"

	"skubridge-integration-layer/internal/domain"
)

// Connector is the uniform capability interface over one external
// marketplace or supplier API. Implementations encapsulate the
// provider's authentication scheme, pagination convention, and rate
// limits entirely; no other component may assume a particular page
// size or rate-limit header.
type Connector interface {
	// Provider identifies the marketplace this connector talks to.
	Provider() domain.Provider

	// Configure binds a ConnectorConfig. It fails fast with a
	// ConfigurationError when required credential fields are absent.
	Configure(cfg *domain.ConnectorConfig) error

	// TestConnection issues a minimal authenticated request. Ordinary
	// auth failure is a false result, not an error; an error is
	// returned only for transport-level failure (DNS, TLS, timeout).
	TestConnection(ctx context.Context) (bool, error)

	// ImportProducts fetches up to limit items starting at offset,
	// normalized to offset/limit at this boundary regardless of the
	// provider's native pagination. The internal page loop advances
	// monotonically, stops on an empty page or when limit is reached,
	// and honors ctx cancellation between pages. A single item's
	// transformation failure lands in the batch's Failed list and
	// never aborts the call.
	ImportProducts(ctx context.Context, limit, offset int) (*domain.ImportBatch, error)

	// FetchInventory returns current stock/price per SKU, in the order
	// given. SKUs unknown to the provider are omitted, not errors.
	FetchInventory(ctx context.Context, skus []string) ([]domain.InventoryLevel, error)

	// VerifyWebhook validates the event signature using the provider's
	// scheme. A mismatch yields a WebhookAuthError; providers without
	// a signature scheme accept unconditionally.
	VerifyWebhook(req *domain.WebhookRequest) error

	// NormalizeWebhook translates the provider payload into the
	// canonical event schema. Unrecognized topics yield a nil event
	// and no error so the caller can acknowledge and drop them.
	NormalizeWebhook(req *domain.WebhookRequest) (*domain.CanonicalEvent, error)
}

// OAuthConnector is the optional capability set for OAuth-based
// providers.
type OAuthConnector interface {
	Connector

	// GenerateOAuthURL builds the provider authorize URL. Pure and
	// deterministic for fixed inputs.
	GenerateOAuthURL(redirectURI string, scopes []string, state string) (string, error)

	// ExchangeCode trades an authorization code for tokens.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error)

	// Refresh trades a refresh token for a new grant. Providers that
	// do not rotate refresh tokens leave TokenGrant.RefreshToken
	// empty; callers keep the previous one.
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenGrant, error)
}

// WebhookSubscriber is the optional capability for providers whose API
// can register webhook endpoints on our behalf.
type WebhookSubscriber interface {
	ListWebhooks(ctx context.Context) ([]string, error)
	CreateWebhook(ctx context.Context, topic, address string) error
}
