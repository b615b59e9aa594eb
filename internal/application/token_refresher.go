package application

import (
	"context"
	"fmt"
	"time"

	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/infrastructure/metrics"
	"skubridge-integration-layer/internal/ports"

	"github.com/rs/zerolog"
)

// DefaultRefreshWindow selects tokens whose expiry is closer than this
// for refresh.
const DefaultRefreshWindow = 5 * time.Minute

// TokenRefresher keeps per-user, per-provider OAuth tokens valid. One
// integration's failure never aborts the rest; the stale token stays
// in place and the next cycle retries. A record that cannot be
// refreshed past its absolute expiry is flagged as needing
// re-authentication; nothing is deleted automatically.
type TokenRefresher struct {
	credentials ports.CredentialStore
	configs     ports.ConnectorConfigStore
	registry    ports.ConnectorRegistry
	window      time.Duration
	locks       *keyedMutex
	logger      zerolog.Logger
	now         func() time.Time
}

// NewTokenRefresher creates a refresher with the given look-ahead
// window; zero means DefaultRefreshWindow.
func NewTokenRefresher(
	credentials ports.CredentialStore,
	configs ports.ConnectorConfigStore,
	registry ports.ConnectorRegistry,
	window time.Duration,
	logger zerolog.Logger,
) *TokenRefresher {
	if window <= 0 {
		window = DefaultRefreshWindow
	}
	return &TokenRefresher{
		credentials: credentials,
		configs:     configs,
		registry:    registry,
		window:      window,
		locks:       newKeyedMutex(),
		logger:      logger,
		now:         time.Now,
	}
}

// RunOnce performs one refresh cycle and returns how many records were
// refreshed.
func (r *TokenRefresher) RunOnce(ctx context.Context) (int, error) {
	now := r.now()
	records, err := r.credentials.ListExpiringBefore(ctx, now.Add(r.window))
	if err != nil {
		return 0, fmt.Errorf("failed to list expiring tokens: %w", err)
	}

	refreshed := 0
	for _, rec := range records {
		if err := r.refreshOne(ctx, rec); err != nil {
			metrics.TokenRefreshes.WithLabelValues(rec.Provider.String(), "failure").Inc()
			r.logger.Error().
				Err(err).
				Str("provider", rec.Provider.String()).
				Str("user", rec.UserID).
				Msg("Token refresh failed, keeping stale token for next cycle")
			continue
		}
		metrics.TokenRefreshes.WithLabelValues(rec.Provider.String(), "success").Inc()
		refreshed++
	}
	return refreshed, nil
}

// refreshOne refreshes a single record under the per-(user, provider)
// lock. The lock scope includes the token exchange because the
// round-trip result decides the mutation.
func (r *TokenRefresher) refreshOne(ctx context.Context, rec *domain.Integration) error {
	key := tokenLockKey(rec.UserID, rec.Provider)
	r.locks.Lock(key)
	defer r.locks.Unlock(key)

	// Re-read under the lock: a concurrent refresh may already have
	// produced a newer token, in which case this one bows out.
	current, err := r.credentials.Get(ctx, rec.UserID, rec.Provider)
	if err != nil {
		return fmt.Errorf("failed to reload token record: %w", err)
	}
	if current == nil {
		return nil // disconnected in the meantime
	}
	if current.UpdatedAt.After(rec.UpdatedAt) {
		r.logger.Debug().
			Str("provider", rec.Provider.String()).
			Str("user", rec.UserID).
			Msg("Token already refreshed concurrently, skipping")
		return nil
	}

	cfg, err := r.configs.GetByUserAndProvider(ctx, rec.UserID, rec.Provider)
	if err != nil {
		return fmt.Errorf("failed to load connector config: %w", err)
	}
	if cfg == nil {
		return &domain.ConfigurationError{Provider: rec.Provider, Reason: fmt.Sprintf("no connector configured for user %s", rec.UserID)}
	}

	conn, err := r.registry.Resolve(cfg)
	if err != nil {
		return err
	}
	oauthConn, ok := conn.(ports.OAuthConnector)
	if !ok {
		return &domain.ConfigurationError{Provider: rec.Provider, Reason: "provider does not support token refresh"}
	}

	grant, err := oauthConn.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if current.Expired(r.now()) && !current.NeedsReauth {
			// Past absolute expiry with no way to refresh: surface it
			// for user re-authentication, keep the record intact.
			current.NeedsReauth = true
			if upsertErr := r.credentials.Upsert(ctx, current); upsertErr != nil {
				r.logger.Error().Err(upsertErr).Str("user", current.UserID).Msg("Failed to flag integration for re-auth")
			}
		}
		return fmt.Errorf("refresh exchange failed: %w", err)
	}

	current.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		current.RefreshToken = grant.RefreshToken
	}
	current.ExpiresIn = grant.ExpiresIn
	current.UpdatedAt = r.now()
	current.NeedsReauth = false

	if err := r.credentials.Upsert(ctx, current); err != nil {
		return fmt.Errorf("failed to store refreshed token: %w", err)
	}

	// Keep the connector config's working copy of the token in step.
	cfg.SetCredential(domain.CredAccessToken, current.AccessToken)
	cfg.SetCredential(domain.CredRefreshToken, current.RefreshToken)
	cfg.UpdatedAt = r.now()
	if err := r.configs.Upsert(ctx, cfg); err != nil {
		r.logger.Warn().Err(err).Str("user", current.UserID).Msg("Failed to sync refreshed token into connector config")
	}

	r.logger.Info().
		Str("provider", current.Provider.String()).
		Str("user", current.UserID).
		Time("expiresAt", current.ExpiresAt()).
		Msg("Token refreshed")
	return nil
}

func tokenLockKey(userID string, provider domain.Provider) string {
	return "token:" + userID + ":" + provider.String()
}
