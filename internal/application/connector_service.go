package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConnectorService handles connector configuration lifecycle: connect,
// disconnect, and the OAuth dance for providers that need it.
type ConnectorService struct {
	configs     ports.ConnectorConfigStore
	credentials ports.CredentialStore
	sessions    ports.SessionStore
	registry    ports.ConnectorRegistry
	logger      zerolog.Logger
	appURL      string
}

// NewConnectorService creates a new connector lifecycle service.
// appURL is the externally reachable base URL used to build OAuth
// redirect and webhook callback addresses.
func NewConnectorService(
	configs ports.ConnectorConfigStore,
	credentials ports.CredentialStore,
	sessions ports.SessionStore,
	registry ports.ConnectorRegistry,
	logger zerolog.Logger,
	appURL string,
) *ConnectorService {
	return &ConnectorService{
		configs:     configs,
		credentials: credentials,
		sessions:    sessions,
		registry:    registry,
		logger:      logger,
		appURL:      appURL,
	}
}

// ConnectInput is the input for a user connect action.
type ConnectInput struct {
	UserID      string
	Name        string
	Provider    string
	Credentials map[string]string
}

// Connect creates or updates the user's connector configuration for a
// provider. Credentials are validated by the connector itself and a
// minimal authenticated request proves they work before anything is
// stored.
func (s *ConnectorService) Connect(ctx context.Context, input ConnectInput) (*domain.ConnectorConfig, error) {
	provider, err := domain.ParseProvider(input.Provider)
	if err != nil {
		return nil, err
	}

	existing, err := s.configs.GetByUserAndProvider(ctx, input.UserID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing connector: %w", err)
	}

	now := time.Now()
	cfg := &domain.ConnectorConfig{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Provider:    provider,
		UserID:      input.UserID,
		Credentials: input.Credentials,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
	}

	// Resolve validates the provider and required credential fields.
	conn, err := s.registry.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	ok, err := conn.TestConnection(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection test against %s failed: %w", provider, err)
	}
	if !ok {
		return nil, &domain.AuthError{Provider: provider, Reason: "credentials rejected by provider"}
	}

	if err := s.configs.Upsert(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to save connector config: %w", err)
	}

	s.logger.Info().
		Str("provider", provider.String()).
		Str("user", input.UserID).
		Str("connector", cfg.ID).
		Msg("Connector configured")
	return cfg, nil
}

// Disconnect removes the user's connector configuration for a
// provider.
func (s *ConnectorService) Disconnect(ctx context.Context, userID string, provider domain.Provider) error {
	cfg, err := s.configs.GetByUserAndProvider(ctx, userID, provider)
	if err != nil {
		return fmt.Errorf("failed to load connector config: %w", err)
	}
	if cfg == nil {
		return fmt.Errorf("no %s connector configured for user %s", provider, userID)
	}

	if err := s.configs.Delete(ctx, cfg.ID); err != nil {
		return fmt.Errorf("failed to delete connector config: %w", err)
	}

	s.logger.Info().
		Str("provider", provider.String()).
		Str("user", userID).
		Msg("Connector disconnected")
	return nil
}

// GetConfig returns the user's connector configuration for a provider,
// or an error when none exists.
func (s *ConnectorService) GetConfig(ctx context.Context, userID string, provider domain.Provider) (*domain.ConnectorConfig, error) {
	cfg, err := s.configs.GetByUserAndProvider(ctx, userID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load connector config: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no %s connector configured for user %s", provider, userID)
	}
	return cfg, nil
}

// BeginOAuth starts the authorization flow for an OAuth-based
// provider: it stores a short-lived state session and returns the
// provider authorize URL to redirect the user to.
func (s *ConnectorService) BeginOAuth(ctx context.Context, userID string, provider domain.Provider, returnURL string) (string, error) {
	cfg, err := s.GetConfig(ctx, userID, provider)
	if err != nil {
		return "", err
	}

	conn, err := s.registry.Resolve(cfg)
	if err != nil {
		return "", err
	}
	oauthConn, ok := conn.(ports.OAuthConnector)
	if !ok {
		return "", &domain.ConfigurationError{Provider: provider, Reason: "provider does not use OAuth"}
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := hex.EncodeToString(stateBytes)

	scopes := defaultScopes(provider)
	session := &domain.Session{
		ID:        uuid.New().String(),
		State:     state,
		UserID:    userID,
		Provider:  provider,
		Shop:      cfg.Credential(domain.CredShopDomain),
		Scopes:    scopes,
		ReturnURL: returnURL,
		ExpiresAt: time.Now().Add(10 * time.Minute),
		CreatedAt: time.Now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create OAuth session: %w", err)
	}

	authURL, err := oauthConn.GenerateOAuthURL(s.redirectURI(provider), scopes, state)
	if err != nil {
		return "", fmt.Errorf("failed to build authorize URL: %w", err)
	}
	return authURL, nil
}

// CompleteOAuth finishes the flow on the provider callback: verifies
// the state, exchanges the code, stores the token record, and
// registers webhooks when the provider supports subscription via API.
func (s *ConnectorService) CompleteOAuth(ctx context.Context, provider domain.Provider, state, code string) (*domain.Integration, error) {
	session, err := s.sessions.GetByState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth session: %w", err)
	}
	if session == nil || session.Provider != provider {
		return nil, &domain.AuthError{Provider: provider, Reason: "unknown or mismatched OAuth state"}
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, &domain.AuthError{Provider: provider, Reason: "OAuth session expired"}
	}
	// One-shot state.
	if err := s.sessions.Delete(ctx, state); err != nil {
		s.logger.Warn().Err(err).Str("state", state).Msg("Failed to delete OAuth session")
	}

	cfg, err := s.GetConfig(ctx, session.UserID, provider)
	if err != nil {
		return nil, err
	}
	conn, err := s.registry.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	oauthConn, ok := conn.(ports.OAuthConnector)
	if !ok {
		return nil, &domain.ConfigurationError{Provider: provider, Reason: "provider does not use OAuth"}
	}

	grant, err := oauthConn.ExchangeCode(ctx, code, s.redirectURI(provider))
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	record := &domain.Integration{
		ID:           uuid.New().String(),
		UserID:       session.UserID,
		Provider:     provider,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresIn:    grant.ExpiresIn,
		UpdatedAt:    time.Now(),
	}
	if err := s.credentials.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store token record: %w", err)
	}

	cfg.SetCredential(domain.CredAccessToken, grant.AccessToken)
	if grant.RefreshToken != "" {
		cfg.SetCredential(domain.CredRefreshToken, grant.RefreshToken)
	}
	cfg.UpdatedAt = time.Now()
	if err := s.configs.Upsert(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to update connector config: %w", err)
	}

	s.subscribeWebhooks(ctx, cfg)

	s.logger.Info().
		Str("provider", provider.String()).
		Str("user", session.UserID).
		Msg("OAuth flow completed")
	return record, nil
}

// subscribeWebhooks registers our webhook endpoint with the provider
// when its API supports it. Best effort: a failure here never fails
// the OAuth flow.
func (s *ConnectorService) subscribeWebhooks(ctx context.Context, cfg *domain.ConnectorConfig) {
	conn, err := s.registry.Resolve(cfg)
	if err != nil {
		return
	}
	sub, ok := conn.(ports.WebhookSubscriber)
	if !ok {
		return
	}

	address := fmt.Sprintf("%s/webhooks/%s/%s", s.appURL, cfg.Provider, cfg.UserID)
	existing, err := sub.ListWebhooks(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", cfg.Provider.String()).Msg("Failed to list provider webhooks")
		return
	}
	have := make(map[string]bool, len(existing))
	for _, topic := range existing {
		have[topic] = true
	}

	for _, topic := range defaultWebhookTopics(cfg.Provider) {
		if have[topic] {
			continue
		}
		if err := sub.CreateWebhook(ctx, topic, address); err != nil {
			s.logger.Warn().
				Err(err).
				Str("provider", cfg.Provider.String()).
				Str("topic", topic).
				Msg("Failed to register webhook")
			continue
		}
		s.logger.Info().
			Str("provider", cfg.Provider.String()).
			Str("topic", topic).
			Msg("Webhook registered")
	}
}

func (s *ConnectorService) redirectURI(provider domain.Provider) string {
	return fmt.Sprintf("%s/auth/%s/callback", s.appURL, provider)
}

func defaultScopes(provider domain.Provider) []string {
	switch provider {
	case domain.ProviderShopify:
		return []string{"read_products", "write_products", "read_inventory"}
	case domain.ProviderSupplierERP:
		return []string{"catalog:read", "inventory:read"}
	default:
		return nil
	}
}

func defaultWebhookTopics(provider domain.Provider) []string {
	switch provider {
	case domain.ProviderShopify:
		return []string{"products/create", "products/update"}
	default:
		return nil
	}
}
