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

// DefaultDedupTTL bounds how long applied event keys are remembered.
// Providers redeliver within hours, not days.
const DefaultDedupTTL = 24 * time.Hour

// WebhookPipeline drives an inbound webhook through its stages in
// strict order: signature verification, normalization, idempotency
// check, application. Stage 1 failure is fatal to the event and it is
// never applied; stage 2-4 failures are returned so the provider's
// redelivery mechanism can retry (the pipeline itself does not retry).
type WebhookPipeline struct {
	configs  ports.ConnectorConfigStore
	registry ports.ConnectorRegistry
	recon    *ReconciliationService
	idem     ports.IdempotencyStore
	events   ports.EventPublisher
	dedupTTL time.Duration
	logger   zerolog.Logger
}

// NewWebhookPipeline creates a new ingestion pipeline.
func NewWebhookPipeline(
	configs ports.ConnectorConfigStore,
	registry ports.ConnectorRegistry,
	recon *ReconciliationService,
	idem ports.IdempotencyStore,
	events ports.EventPublisher,
	logger zerolog.Logger,
) *WebhookPipeline {
	return &WebhookPipeline{
		configs:  configs,
		registry: registry,
		recon:    recon,
		idem:     idem,
		events:   events,
		dedupTTL: DefaultDedupTTL,
		logger:   logger,
	}
}

// Handle processes one inbound webhook for a user's connector.
func (p *WebhookPipeline) Handle(ctx context.Context, userID string, provider domain.Provider, req *domain.WebhookRequest) error {
	cfg, err := p.configs.GetByUserAndProvider(ctx, userID, provider)
	if err != nil {
		return fmt.Errorf("failed to load connector config: %w", err)
	}
	if cfg == nil {
		return &domain.ConfigurationError{Provider: provider, Reason: fmt.Sprintf("no connector configured for user %s", userID)}
	}

	conn, err := p.registry.Resolve(cfg)
	if err != nil {
		return err
	}

	// Stage 1: signature verification over the verbatim raw body.
	if err := conn.VerifyWebhook(req); err != nil {
		metrics.WebhooksReceived.WithLabelValues(provider.String(), metrics.WebhookDroppedAuth).Inc()
		p.logger.Warn().
			Err(err).
			Str("provider", provider.String()).
			Str("user", userID).
			Str("topic", req.Topic).
			Msg("Webhook signature verification failed, event dropped")
		return err
	}

	// Stage 2: normalization to the canonical schema.
	evt, err := conn.NormalizeWebhook(req)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(provider.String(), metrics.WebhookFailed).Inc()
		return fmt.Errorf("failed to normalize webhook: %w", err)
	}
	if evt == nil {
		// Topic we do not consume; acknowledge and drop.
		metrics.WebhooksReceived.WithLabelValues(provider.String(), metrics.WebhookIgnored).Inc()
		p.logger.Debug().Str("provider", provider.String()).Str("topic", req.Topic).Msg("Ignoring webhook topic")
		return nil
	}

	// Stage 3: idempotency. The key is only marked after a successful
	// application so a stage-4 failure stays retryable on redelivery.
	key := evt.IdempotencyKey()
	seen, err := p.idem.IsProcessed(ctx, key)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if seen {
		metrics.WebhooksReceived.WithLabelValues(provider.String(), metrics.WebhookDeduped).Inc()
		p.logger.Debug().
			Str("provider", provider.String()).
			Str("eventKey", key).
			Msg("Duplicate webhook delivery, already applied")
		return nil
	}

	// Stage 4: application.
	if err := p.recon.ApplyInboundUpdate(ctx, evt); err != nil {
		metrics.WebhooksReceived.WithLabelValues(provider.String(), metrics.WebhookFailed).Inc()
		return fmt.Errorf("failed to apply webhook event: %w", err)
	}

	if _, err := p.idem.MarkProcessed(ctx, key, p.dedupTTL); err != nil {
		// The event is applied; a failed mark only risks one extra
		// no-op application on redelivery.
		p.logger.Warn().Err(err).Str("eventKey", key).Msg("Failed to record idempotency key")
	}

	if p.events != nil {
		p.events.Publish(evt)
	}
	metrics.WebhooksReceived.WithLabelValues(provider.String(), metrics.WebhookApplied).Inc()
	p.logger.Info().
		Str("provider", provider.String()).
		Str("kind", string(evt.Kind)).
		Str("sku", evt.SKU).
		Msg("Webhook event applied")
	return nil
}
