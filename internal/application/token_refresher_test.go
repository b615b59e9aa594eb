package application

import (
	"context"
	"testing"
	"time"

	"skubridge-integration-layer/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refresherFixture(conn *fakeConnector, records ...*domain.Integration) (*TokenRefresher, *memCredentials, *memConfigs) {
	credentials := newMemCredentials(records...)
	var configs []*domain.ConnectorConfig
	for _, rec := range records {
		configs = append(configs, &domain.ConnectorConfig{
			ID:       "cfg-" + rec.UserID,
			UserID:   rec.UserID,
			Provider: rec.Provider,
			IsActive: true,
			Credentials: map[string]string{
				domain.CredAccessToken:  rec.AccessToken,
				domain.CredRefreshToken: rec.RefreshToken,
			},
		})
	}
	configStore := newMemConfigs(configs...)
	refresher := NewTokenRefresher(credentials, configStore, newFakeRegistry(conn), DefaultRefreshWindow, zerolog.Nop())
	return refresher, credentials, configStore
}

func TestRunOnce_RefreshesExpiringToken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	conn := &fakeConnector{
		provider: domain.ProviderSupplierERP,
		refreshFn: func(ctx context.Context, refreshToken string) (*domain.TokenGrant, error) {
			assert.Equal(t, "refresh-old", refreshToken)
			return &domain.TokenGrant{
				AccessToken:  "access-new",
				RefreshToken: "refresh-new",
				ExpiresIn:    3600,
			}, nil
		},
	}
	// Expires in 3 minutes, inside the 5 minute window.
	rec := &domain.Integration{
		ID:           "int-1",
		UserID:       "user-1",
		Provider:     domain.ProviderSupplierERP,
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresIn:    180,
		UpdatedAt:    now,
	}
	refresher, credentials, configStore := refresherFixture(conn, rec)
	refresher.now = func() time.Time { return now }

	refreshed, err := refresher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)

	current, err := credentials.Get(ctx, "user-1", domain.ProviderSupplierERP)
	require.NoError(t, err)
	assert.Equal(t, "access-new", current.AccessToken)
	assert.Equal(t, "refresh-new", current.RefreshToken)
	assert.Equal(t, int64(3600), current.ExpiresIn)
	assert.False(t, current.NeedsReauth)

	// The connector config's working copy follows the token record.
	cfg, err := configStore.GetByUserAndProvider(ctx, "user-1", domain.ProviderSupplierERP)
	require.NoError(t, err)
	assert.Equal(t, "access-new", cfg.Credential(domain.CredAccessToken))
	assert.Equal(t, "refresh-new", cfg.Credential(domain.CredRefreshToken))
}

func TestRunOnce_NonExpiringTokenIsSkipped(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConnector{
		provider: domain.ProviderShopify,
		refreshFn: func(ctx context.Context, refreshToken string) (*domain.TokenGrant, error) {
			t.Fatal("non-expiring token must never be refreshed")
			return nil, nil
		},
	}
	rec := &domain.Integration{
		ID:          "int-1",
		UserID:      "user-1",
		Provider:    domain.ProviderShopify,
		AccessToken: "access",
		ExpiresIn:   0,
		UpdatedAt:   time.Now(),
	}
	refresher, _, _ := refresherFixture(conn, rec)

	refreshed, err := refresher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed)
}

func TestRunOnce_OneFailureDoesNotAbortOthers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	conn := &fakeConnector{
		provider: domain.ProviderSupplierERP,
		refreshFn: func(ctx context.Context, refreshToken string) (*domain.TokenGrant, error) {
			if refreshToken == "refresh-bad" {
				return nil, &domain.TransientProviderError{Provider: domain.ProviderSupplierERP, StatusCode: 503}
			}
			return &domain.TokenGrant{AccessToken: "access-new", RefreshToken: "refresh-new", ExpiresIn: 3600}, nil
		},
	}
	bad := &domain.Integration{
		ID: "int-1", UserID: "user-bad", Provider: domain.ProviderSupplierERP,
		AccessToken: "access-bad", RefreshToken: "refresh-bad",
		ExpiresIn: 60, UpdatedAt: now,
	}
	good := &domain.Integration{
		ID: "int-2", UserID: "user-good", Provider: domain.ProviderSupplierERP,
		AccessToken: "access-good", RefreshToken: "refresh-good",
		ExpiresIn: 60, UpdatedAt: now,
	}
	refresher, credentials, _ := refresherFixture(conn, bad, good)
	refresher.now = func() time.Time { return now }

	refreshed, err := refresher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)

	// The failed record keeps its stale token for the next cycle.
	stale, err := credentials.Get(ctx, "user-bad", domain.ProviderSupplierERP)
	require.NoError(t, err)
	assert.Equal(t, "access-bad", stale.AccessToken)

	fresh, err := credentials.Get(ctx, "user-good", domain.ProviderSupplierERP)
	require.NoError(t, err)
	assert.Equal(t, "access-new", fresh.AccessToken)
}

func TestRunOnce_RotationFallbackKeepsOldRefreshToken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	conn := &fakeConnector{
		provider: domain.ProviderSupplierERP,
		refreshFn: func(ctx context.Context, refreshToken string) (*domain.TokenGrant, error) {
			// Provider issues a new access token without rotating the
			// refresh token.
			return &domain.TokenGrant{AccessToken: "access-new", ExpiresIn: 3600}, nil
		},
	}
	rec := &domain.Integration{
		ID: "int-1", UserID: "user-1", Provider: domain.ProviderSupplierERP,
		AccessToken: "access-old", RefreshToken: "refresh-keep",
		ExpiresIn: 60, UpdatedAt: now,
	}
	refresher, credentials, _ := refresherFixture(conn, rec)
	refresher.now = func() time.Time { return now }

	refreshed, err := refresher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)

	current, err := credentials.Get(ctx, "user-1", domain.ProviderSupplierERP)
	require.NoError(t, err)
	assert.Equal(t, "access-new", current.AccessToken)
	assert.Equal(t, "refresh-keep", current.RefreshToken)
}

func TestRunOnce_ExpiredUnrefreshableIsFlaggedForReauth(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	conn := &fakeConnector{
		provider: domain.ProviderSupplierERP,
		refreshFn: func(ctx context.Context, refreshToken string) (*domain.TokenGrant, error) {
			return nil, &domain.AuthError{Provider: domain.ProviderSupplierERP, Reason: "refresh token revoked"}
		},
	}
	// Already past its absolute expiry.
	rec := &domain.Integration{
		ID: "int-1", UserID: "user-1", Provider: domain.ProviderSupplierERP,
		AccessToken: "access-old", RefreshToken: "refresh-dead",
		ExpiresIn: 60, UpdatedAt: now.Add(-time.Hour),
	}
	refresher, credentials, _ := refresherFixture(conn, rec)
	refresher.now = func() time.Time { return now }

	refreshed, err := refresher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed)

	current, err := credentials.Get(ctx, "user-1", domain.ProviderSupplierERP)
	require.NoError(t, err)
	// Flagged, not deleted: the user must re-authenticate.
	assert.True(t, current.NeedsReauth)
	assert.Equal(t, "access-old", current.AccessToken)

	// The flagged record is excluded from the next cycle.
	refreshed, err = refresher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed)
}
