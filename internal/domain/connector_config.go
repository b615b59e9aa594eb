package domain

import "time"

// Credential map keys shared by the connector implementations. Each
// provider requires its own subset; Configure fails fast when a
// required key is absent.
const (
	CredAPIKey         = "api_key"
	CredAccessToken    = "access_token"
	CredRefreshToken   = "refresh_token"
	CredShopDomain     = "shop_domain"
	CredSiteURL        = "site_url"
	CredBaseURL        = "base_url"
	CredWebhookSecret  = "webhook_secret"
	CredClientID       = "client_id"
	CredClientSecret   = "client_secret"
	CredConsumerKey    = "consumer_key"
	CredConsumerSecret = "consumer_secret"
)

// ConnectorConfig binds a user's connection to one provider. The
// credentials map is opaque at this level; each connector validates the
// keys it needs. A config is owned by exactly one user account.
type ConnectorConfig struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Provider    Provider          `json:"provider"`
	UserID      string            `json:"user_id"`
	Credentials map[string]string `json:"credentials"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Credential returns the named credential or the empty string.
func (c *ConnectorConfig) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}

// RequireCredentials verifies that every named credential is present
// and non-empty.
func (c *ConnectorConfig) RequireCredentials(keys ...string) error {
	for _, key := range keys {
		if c.Credential(key) == "" {
			return &ConfigurationError{Provider: c.Provider, Field: key, Reason: "required credential is missing"}
		}
	}
	return nil
}

// SetCredential stores a credential, allocating the map on first use.
func (c *ConnectorConfig) SetCredential(key, value string) {
	if c.Credentials == nil {
		c.Credentials = make(map[string]string)
	}
	c.Credentials[key] = value
}
