package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/ports"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"
)

// MatchPolicy holds the tunables of the automatic matching policy.
// Thresholds are deliberately configuration, not constants: the right
// values depend on how noisy a supplier's titles are.
type MatchPolicy struct {
	// TitleSimilarityThreshold is the minimum normalized similarity
	// (1 - levenshtein/maxlen) for a fuzzy title candidate.
	TitleSimilarityThreshold float64
	// TieMargin is how close a runner-up may score before the match
	// is considered ambiguous and the SKU goes to conflict.
	TieMargin float64
}

// DefaultMatchPolicy returns the defaults used when no overrides are
// configured.
func DefaultMatchPolicy() MatchPolicy {
	return MatchPolicy{
		TitleSimilarityThreshold: 0.85,
		TieMargin:                0.05,
	}
}

// ReconciliationService maintains the mapping between supplier-native
// SKUs and master SKUs. Per-supplier-SKU mutation is serialized so a
// concurrent manual mapping and automatic reconciliation cannot
// interleave into an inconsistent status.
type ReconciliationService struct {
	catalog  ports.CatalogStore
	mappings ports.MappingStore
	policy   MatchPolicy
	locks    *keyedMutex
	logger   zerolog.Logger
}

// NewReconciliationService creates a new reconciliation engine.
func NewReconciliationService(
	catalog ports.CatalogStore,
	mappings ports.MappingStore,
	policy MatchPolicy,
	logger zerolog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		catalog:  catalog,
		mappings: mappings,
		policy:   policy,
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// ReconcileSKUs attempts an automatic match for every SKU of the
// product: exact barcode first, then normalized-SKU exact match, then
// a bounded fuzzy title match. Exactly one candidate above threshold
// with no runner-up inside the tie margin maps the SKU; zero
// candidates leave it pending; several close candidates put it in
// conflict. Only the given product is mutated; the updated product is
// returned.
func (s *ReconciliationService) ReconcileSKUs(ctx context.Context, spu *domain.SPU) (*domain.SPU, error) {
	for i := range spu.SKUs {
		sku := &spu.SKUs[i]

		s.locks.Lock(skuLockKey(sku.SupplierSKU))
		err := s.reconcileOne(ctx, sku, spu.Title)
		s.locks.Unlock(skuLockKey(sku.SupplierSKU))
		if err != nil {
			return nil, err
		}
	}
	return spu, nil
}

// reconcileOne resolves a single SKU. Caller holds the per-SKU lock.
func (s *ReconciliationService) reconcileOne(ctx context.Context, sku *domain.SKU, title string) error {
	// A manual mapping always wins over the automatic policy.
	existing, err := s.mappings.GetBySupplierSKU(ctx, sku.SupplierSKU)
	if err != nil {
		return fmt.Errorf("failed to look up mapping for %s: %w", sku.SupplierSKU, err)
	}
	if existing != nil && existing.Provenance == domain.ProvenanceManual {
		sku.MasterSKU = existing.MasterSKU
		sku.MappingStatus = domain.MappingMapped
		return s.catalog.UpsertSKU(ctx, sku)
	}

	if sku.MappingStatus == domain.MappingMapped && sku.MasterSKU != "" {
		// Already resolved; master SKUs are stable unless remapped.
		return s.catalog.UpsertSKU(ctx, sku)
	}

	code, status, err := s.match(ctx, sku, title)
	if err != nil {
		return err
	}

	sku.MappingStatus = status
	if status == domain.MappingMapped {
		supersedes := ""
		if existing != nil && existing.MasterSKU != code {
			supersedes = existing.MasterSKU
		}
		sku.MasterSKU = code
		mapping := &domain.SKUMapping{
			SupplierSKU: sku.SupplierSKU,
			MasterSKU:   code,
			Provenance:  domain.ProvenanceAutomatic,
			Supersedes:  supersedes,
			UpdatedAt:   time.Now(),
		}
		if err := s.mappings.Upsert(ctx, mapping); err != nil {
			return fmt.Errorf("failed to record automatic mapping for %s: %w", sku.SupplierSKU, err)
		}
		s.logger.Info().
			Str("supplierSku", sku.SupplierSKU).
			Str("masterSku", code).
			Msg("SKU mapped automatically")
	} else if status == domain.MappingConflict {
		s.logger.Warn().
			Str("supplierSku", sku.SupplierSKU).
			Msg("Ambiguous automatic match, SKU needs manual resolution")
	}

	return s.catalog.UpsertSKU(ctx, sku)
}

// match runs the deterministic matching policy and returns the chosen
// master code together with the resulting status.
func (s *ReconciliationService) match(ctx context.Context, sku *domain.SKU, title string) (string, domain.MappingStatus, error) {
	// 1. Exact barcode match.
	if sku.Barcode != "" {
		candidates, err := s.catalog.FindMasterByBarcode(ctx, sku.Barcode)
		if err != nil {
			return "", "", fmt.Errorf("barcode lookup failed for %s: %w", sku.SupplierSKU, err)
		}
		switch len(candidates) {
		case 0:
			// Fall through to the next stage.
		case 1:
			return candidates[0].Code, domain.MappingMapped, nil
		default:
			return "", domain.MappingConflict, nil
		}
	}

	// 2. Normalized-SKU exact match.
	if norm := NormalizeSKU(sku.SupplierSKU); norm != "" {
		master, err := s.catalog.FindMasterByCode(ctx, norm)
		if err != nil {
			return "", "", fmt.Errorf("code lookup failed for %s: %w", sku.SupplierSKU, err)
		}
		if master != nil {
			return master.Code, domain.MappingMapped, nil
		}
	}

	// 3. Bounded fuzzy title match.
	if title == "" {
		return "", domain.MappingPending, nil
	}
	masters, err := s.catalog.ListMasterSKUs(ctx)
	if err != nil {
		return "", "", fmt.Errorf("master catalog listing failed: %w", err)
	}

	type scored struct {
		code  string
		score float64
	}
	var candidates []scored
	for _, m := range masters {
		score := titleSimilarity(title, m.Title)
		if score >= s.policy.TitleSimilarityThreshold {
			candidates = append(candidates, scored{code: m.Code, score: score})
		}
	}
	if len(candidates) == 0 {
		return "", domain.MappingPending, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > 1 && candidates[0].score-candidates[1].score < s.policy.TieMargin {
		return "", domain.MappingConflict, nil
	}
	return candidates[0].code, domain.MappingMapped, nil
}

// CreateManualMapping upserts a manual supplier→master mapping. It is
// idempotent and overrides any prior mapping for that supplier SKU;
// the override is recorded, not silently dropped.
func (s *ReconciliationService) CreateManualMapping(ctx context.Context, supplierSKU, masterSKU string) error {
	if supplierSKU == "" || masterSKU == "" {
		return fmt.Errorf("supplier SKU and master SKU are both required")
	}

	s.locks.Lock(skuLockKey(supplierSKU))
	defer s.locks.Unlock(skuLockKey(supplierSKU))

	prior, err := s.mappings.GetBySupplierSKU(ctx, supplierSKU)
	if err != nil {
		return fmt.Errorf("failed to look up mapping for %s: %w", supplierSKU, err)
	}

	supersedes := ""
	if prior != nil && prior.MasterSKU != masterSKU {
		supersedes = prior.MasterSKU
		s.logger.Info().
			Str("supplierSku", supplierSKU).
			Str("from", prior.MasterSKU).
			Str("to", masterSKU).
			Msg("Manual mapping overrides prior mapping")
	}

	mapping := &domain.SKUMapping{
		SupplierSKU: supplierSKU,
		MasterSKU:   masterSKU,
		Provenance:  domain.ProvenanceManual,
		Supersedes:  supersedes,
		UpdatedAt:   time.Now(),
	}
	if err := s.mappings.Upsert(ctx, mapping); err != nil {
		return fmt.Errorf("failed to save mapping for %s: %w", supplierSKU, err)
	}

	// Reflect the mapping on the stored SKU when we know it.
	sku, err := s.catalog.FindSKUBySupplierSKU(ctx, supplierSKU)
	if err != nil {
		return fmt.Errorf("failed to load SKU %s: %w", supplierSKU, err)
	}
	if sku != nil {
		sku.MasterSKU = masterSKU
		sku.MappingStatus = domain.MappingMapped
		if err := s.catalog.UpsertSKU(ctx, sku); err != nil {
			return fmt.Errorf("failed to update SKU %s: %w", supplierSKU, err)
		}
	}

	return nil
}

// BulkCreateMappings applies CreateManualMapping per pair. A failure
// on one pair never prevents the remaining pairs from being processed;
// every pair gets an outcome.
func (s *ReconciliationService) BulkCreateMappings(ctx context.Context, pairs []domain.MappingPair) []domain.MappingOutcome {
	outcomes := make([]domain.MappingOutcome, 0, len(pairs))
	for _, pair := range pairs {
		outcome := domain.MappingOutcome{SupplierSKU: pair.SupplierSKU, OK: true}
		if err := s.CreateManualMapping(ctx, pair.SupplierSKU, pair.MasterSKU); err != nil {
			outcome.OK = false
			outcome.Error = err.Error()
			s.logger.Warn().Err(err).Str("supplierSku", pair.SupplierSKU).Msg("Bulk mapping pair failed")
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// Report partitions all known supplier SKUs into disjoint mapped,
// pending, and conflict sets, reflecting the latest mutation.
func (s *ReconciliationService) Report(ctx context.Context) (*domain.ReconciliationReport, error) {
	mapped, err := s.catalog.ListSKUsByMappingStatus(ctx, domain.MappingMapped)
	if err != nil {
		return nil, fmt.Errorf("failed to list mapped SKUs: %w", err)
	}
	pending, err := s.catalog.ListSKUsByMappingStatus(ctx, domain.MappingPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending SKUs: %w", err)
	}
	conflicts, err := s.catalog.ListSKUsByMappingStatus(ctx, domain.MappingConflict)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicted SKUs: %w", err)
	}
	return &domain.ReconciliationReport{Mapped: mapped, Pending: pending, Conflicts: conflicts}, nil
}

// PendingMappings returns the SKUs that require manual attention:
// pending plus conflicts.
func (s *ReconciliationService) PendingMappings(ctx context.Context) ([]domain.SKU, error) {
	report, err := s.Report(ctx)
	if err != nil {
		return nil, err
	}
	return append(report.Pending, report.Conflicts...), nil
}

// ApplyInboundUpdate applies a canonical webhook event. When the SKU's
// master is already resolved the price/stock lands directly (ordered
// by receipt time, so a late redelivery of an older event never
// overwrites newer state); otherwise the SKU is stored and sent
// through reconciliation.
func (s *ReconciliationService) ApplyInboundUpdate(ctx context.Context, evt *domain.CanonicalEvent) error {
	if evt.SKU == "" {
		s.logger.Debug().Str("kind", string(evt.Kind)).Msg("Inbound event carries no SKU, ignoring")
		return nil
	}

	s.locks.Lock(skuLockKey(evt.SKU))
	defer s.locks.Unlock(skuLockKey(evt.SKU))

	sku, err := s.catalog.FindSKUBySupplierSKU(ctx, evt.SKU)
	if err != nil {
		return fmt.Errorf("failed to load SKU %s: %w", evt.SKU, err)
	}

	if sku == nil {
		// First sighting of this SKU; create it pending and try to
		// resolve it right away.
		sku = &domain.SKU{
			SupplierSKU:   evt.SKU,
			MappingStatus: domain.MappingPending,
		}
		applyEventFields(sku, evt)
		if evt.Kind == domain.EventProductCreated && evt.ExternalID != "" {
			spu := &domain.SPU{
				Supplier:   evt.Supplier,
				ExternalID: evt.ExternalID,
				Title:      evt.Title,
				SKUs:       []domain.SKU{*sku},
				CreatedAt:  evt.ReceivedAt,
				UpdatedAt:  evt.ReceivedAt,
			}
			if err := s.catalog.UpsertSPU(ctx, spu); err != nil {
				return fmt.Errorf("failed to store SPU %s: %w", evt.ExternalID, err)
			}
		}
		return s.reconcileOne(ctx, sku, evt.Title)
	}

	// Receipt-time ordering: drop events older than what we already
	// applied.
	if !evt.ReceivedAt.After(sku.StockSyncedAt) {
		s.logger.Debug().
			Str("supplierSku", evt.SKU).
			Time("eventAt", evt.ReceivedAt).
			Time("syncedAt", sku.StockSyncedAt).
			Msg("Stale inbound event, skipping")
		return nil
	}

	applyEventFields(sku, evt)
	if sku.MappingStatus == domain.MappingMapped {
		return s.catalog.UpsertSKU(ctx, sku)
	}
	return s.reconcileOne(ctx, sku, evt.Title)
}

func applyEventFields(sku *domain.SKU, evt *domain.CanonicalEvent) {
	if evt.Price != nil {
		sku.Price = *evt.Price
	}
	if evt.Stock != nil {
		sku.Stock = *evt.Stock
	}
	sku.StockSyncedAt = evt.ReceivedAt
}

func skuLockKey(supplierSKU string) string {
	return "sku:" + supplierSKU
}

// NormalizeSKU uppercases a SKU and strips separators so cosmetically
// different supplier codes still match exactly.
func NormalizeSKU(sku string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(sku) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// titleSimilarity is 1 - levenshtein/maxlen over lowercased titles.
func titleSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	max := len([]rune(a))
	if l := len([]rune(b)); l > max {
		max = l
	}
	return 1 - float64(dist)/float64(max)
}
