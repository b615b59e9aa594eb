package domain

import "time"

// Integration is the per-user, per-provider OAuth token record. It is
// created on the OAuth callback and mutated only by the token refresher
// or an explicit refresh call; concurrent mutation for the same
// (user, provider) pair must serialize through one path.
type Integration struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Provider     Provider  `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"` // seconds; 0 means the token never expires
	UpdatedAt    time.Time `json:"updated_at"`
	NeedsReauth  bool      `json:"needs_reauth"`
}

// ExpiresAt derives the absolute expiry: updated_at + expires_in.
// The zero time is returned for non-expiring tokens.
func (i *Integration) ExpiresAt() time.Time {
	if i.ExpiresIn == 0 {
		return time.Time{}
	}
	return i.UpdatedAt.Add(time.Duration(i.ExpiresIn) * time.Second)
}

// NonExpiring reports whether the provider issued a token without an
// expiry (Shopify access tokens are valid until revoked).
func (i *Integration) NonExpiring() bool {
	return i.ExpiresIn == 0
}

// ExpiringWithin reports whether the token expires within d of now.
// Non-expiring tokens never qualify.
func (i *Integration) ExpiringWithin(d time.Duration, now time.Time) bool {
	if i.NonExpiring() {
		return false
	}
	return i.ExpiresAt().Sub(now) < d
}

// Expired reports whether the token is past its absolute expiry.
func (i *Integration) Expired(now time.Time) bool {
	if i.NonExpiring() {
		return false
	}
	return now.After(i.ExpiresAt())
}

// TokenGrant is the result of an OAuth code exchange or refresh.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string // empty when the provider does not rotate refresh tokens
	ExpiresIn    int64  // seconds; 0 for non-expiring tokens
}
