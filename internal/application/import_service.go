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

// ImportService drives paginated bulk imports through a connector and
// persists the results, isolating per-item failures. Page fetching is
// sequential per connector instance; independent connectors (other
// users, other providers) run fully in parallel.
type ImportService struct {
	registry ports.ConnectorRegistry
	catalog  ports.CatalogStore
	recon    *ReconciliationService
	logger   zerolog.Logger
}

// NewImportService creates a new import orchestrator.
func NewImportService(
	registry ports.ConnectorRegistry,
	catalog ports.CatalogStore,
	recon *ReconciliationService,
	logger zerolog.Logger,
) *ImportService {
	return &ImportService{
		registry: registry,
		catalog:  catalog,
		recon:    recon,
		logger:   logger,
	}
}

// RunImport imports up to limit products starting at offset. One
// item's failure is counted and logged, never escalated to abort the
// batch. Cancellation is best effort: no further items are processed,
// the in-flight item completes, and partial counts are still reported.
func (s *ImportService) RunImport(ctx context.Context, cfg *domain.ConnectorConfig, limit, offset int) (*domain.ImportResult, error) {
	conn, err := s.registry.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	batch, err := conn.ImportProducts(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("import from %s failed: %w", cfg.Provider, err)
	}

	result := &domain.ImportResult{
		More:           batch.More,
		ProductsFailed: len(batch.Failed),
		Failures:       append([]domain.ItemFailure(nil), batch.Failed...),
	}
	for _, f := range batch.Failed {
		s.logger.Warn().
			Str("provider", cfg.Provider.String()).
			Str("externalId", f.ExternalID).
			Str("reason", f.Reason).
			Msg("Item failed during import transformation")
	}

	cancelled := false
	for _, spu := range batch.SPUs {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if err := s.persistOne(ctx, cfg.Provider, spu, result); err != nil {
			result.ProductsFailed++
			result.Failures = append(result.Failures, domain.ItemFailure{
				ExternalID: spu.ExternalID,
				Reason:     err.Error(),
			})
			s.logger.Warn().
				Err(err).
				Str("provider", cfg.Provider.String()).
				Str("externalId", spu.ExternalID).
				Msg("Item failed during import persistence")
		}
	}

	result.Duration = time.Since(start)
	result.Success = !cancelled

	metrics.ProductsImported.WithLabelValues(cfg.Provider.String()).
		Add(float64(result.ProductsImported + result.ProductsUpdated))
	metrics.ProductsFailed.WithLabelValues(cfg.Provider.String()).
		Add(float64(result.ProductsFailed))
	metrics.ImportDuration.WithLabelValues(cfg.Provider.String()).
		Observe(result.Duration.Seconds())

	s.logger.Info().
		Str("provider", cfg.Provider.String()).
		Int("imported", result.ProductsImported).
		Int("updated", result.ProductsUpdated).
		Int("failed", result.ProductsFailed).
		Bool("more", result.More).
		Bool("cancelled", cancelled).
		Dur("duration", result.Duration).
		Msg("Import run finished")
	return result, nil
}

// persistOne stores a single SPU and reconciles its SKUs, updating the
// imported/updated counters.
func (s *ImportService) persistOne(ctx context.Context, provider domain.Provider, spu *domain.SPU, result *domain.ImportResult) error {
	existing, err := s.catalog.FindSPUByExternalID(ctx, provider, spu.ExternalID)
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}

	spu.Supplier = provider
	now := time.Now()
	spu.UpdatedAt = now
	if existing != nil {
		spu.ID = existing.ID
		spu.CreatedAt = existing.CreatedAt
	} else {
		spu.CreatedAt = now
	}

	if err := s.catalog.UpsertSPU(ctx, spu); err != nil {
		return fmt.Errorf("persist failed: %w", err)
	}
	if _, err := s.recon.ReconcileSKUs(ctx, spu); err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	if existing != nil {
		result.ProductsUpdated++
	} else {
		result.ProductsImported++
	}
	return nil
}

// FetchInventoryLevels is a thin pass-through for the route layer:
// current stock/price per SKU from the provider, unknown SKUs omitted.
func (s *ImportService) FetchInventoryLevels(ctx context.Context, cfg *domain.ConnectorConfig, skus []string) ([]domain.InventoryLevel, error) {
	conn, err := s.registry.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	return conn.FetchInventory(ctx, skus)
}
