package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/ports"
)

// In-memory fakes for the stores the services depend on.

type memCatalog struct {
	mu      sync.Mutex
	masters []domain.MasterSKU
	skus    map[string]domain.SKU
	spus    map[string]*domain.SPU

	failUpsertSKU map[string]error
}

func newMemCatalog(masters ...domain.MasterSKU) *memCatalog {
	return &memCatalog{
		masters: masters,
		skus:    make(map[string]domain.SKU),
		spus:    make(map[string]*domain.SPU),
	}
}

func (c *memCatalog) FindMasterByBarcode(ctx context.Context, barcode string) ([]domain.MasterSKU, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.MasterSKU
	for _, m := range c.masters {
		if m.Barcode == barcode {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *memCatalog) FindMasterByCode(ctx context.Context, code string) (*domain.MasterSKU, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.masters {
		if m.Code == code {
			found := m
			return &found, nil
		}
	}
	return nil, nil
}

func (c *memCatalog) ListMasterSKUs(ctx context.Context) ([]domain.MasterSKU, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.MasterSKU(nil), c.masters...), nil
}

func (c *memCatalog) FindSKUBySupplierSKU(ctx context.Context, supplierSKU string) (*domain.SKU, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sku, ok := c.skus[supplierSKU]; ok {
		found := sku
		return &found, nil
	}
	return nil, nil
}

func (c *memCatalog) UpsertSKU(ctx context.Context, sku *domain.SKU) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failUpsertSKU[sku.SupplierSKU]; ok {
		return err
	}
	c.skus[sku.SupplierSKU] = *sku
	return nil
}

func (c *memCatalog) ListSKUsByMappingStatus(ctx context.Context, status domain.MappingStatus) ([]domain.SKU, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.SKU
	for _, sku := range c.skus {
		if sku.MappingStatus == status {
			out = append(out, sku)
		}
	}
	return out, nil
}

func (c *memCatalog) FindSPUByExternalID(ctx context.Context, supplier domain.Provider, externalID string) (*domain.SPU, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if spu, ok := c.spus[spuKey(supplier, externalID)]; ok {
		copied := *spu
		return &copied, nil
	}
	return nil, nil
}

func (c *memCatalog) UpsertSPU(ctx context.Context, spu *domain.SPU) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *spu
	c.spus[spuKey(spu.Supplier, spu.ExternalID)] = &copied
	return nil
}

func spuKey(supplier domain.Provider, externalID string) string {
	return supplier.String() + ":" + externalID
}

type memMappings struct {
	mu       sync.Mutex
	mappings map[string]domain.SKUMapping
}

func newMemMappings() *memMappings {
	return &memMappings{mappings: make(map[string]domain.SKUMapping)}
}

func (m *memMappings) GetBySupplierSKU(ctx context.Context, supplierSKU string) (*domain.SKUMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mapping, ok := m.mappings[supplierSKU]; ok {
		found := mapping
		return &found, nil
	}
	return nil, nil
}

func (m *memMappings) Upsert(ctx context.Context, mapping *domain.SKUMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[mapping.SupplierSKU] = *mapping
	return nil
}

func (m *memMappings) List(ctx context.Context) ([]domain.SKUMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SKUMapping
	for _, mapping := range m.mappings {
		out = append(out, mapping)
	}
	return out, nil
}

type memConfigs struct {
	mu      sync.Mutex
	configs map[string]*domain.ConnectorConfig
}

func newMemConfigs(configs ...*domain.ConnectorConfig) *memConfigs {
	s := &memConfigs{configs: make(map[string]*domain.ConnectorConfig)}
	for _, cfg := range configs {
		s.configs[cfg.ID] = cfg
	}
	return s
}

func (s *memConfigs) GetByID(ctx context.Context, id string) (*domain.ConnectorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[id], nil
}

func (s *memConfigs) GetByUserAndProvider(ctx context.Context, userID string, provider domain.Provider) (*domain.ConnectorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cfg := range s.configs {
		if cfg.UserID == userID && cfg.Provider == provider {
			return cfg, nil
		}
	}
	return nil, nil
}

func (s *memConfigs) Upsert(ctx context.Context, cfg *domain.ConnectorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg
	return nil
}

func (s *memConfigs) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, id)
	return nil
}

func (s *memConfigs) ListActive(ctx context.Context) ([]*domain.ConnectorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ConnectorConfig
	for _, cfg := range s.configs {
		if cfg.IsActive {
			out = append(out, cfg)
		}
	}
	return out, nil
}

type memCredentials struct {
	mu      sync.Mutex
	records map[string]domain.Integration
}

func newMemCredentials(records ...*domain.Integration) *memCredentials {
	s := &memCredentials{records: make(map[string]domain.Integration)}
	for _, rec := range records {
		s.records[credKey(rec.UserID, rec.Provider)] = *rec
	}
	return s
}

func credKey(userID string, provider domain.Provider) string {
	return userID + ":" + provider.String()
}

func (s *memCredentials) Get(ctx context.Context, userID string, provider domain.Provider) (*domain.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[credKey(userID, provider)]; ok {
		found := rec
		return &found, nil
	}
	return nil, nil
}

func (s *memCredentials) Upsert(ctx context.Context, record *domain.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[credKey(record.UserID, record.Provider)] = *record
	return nil
}

func (s *memCredentials) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*domain.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Integration
	for _, rec := range s.records {
		if rec.NonExpiring() || rec.NeedsReauth {
			continue
		}
		if rec.ExpiresAt().Before(cutoff) {
			found := rec
			out = append(out, &found)
		}
	}
	return out, nil
}

type memIdem struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemIdem() *memIdem {
	return &memIdem{keys: make(map[string]bool)}
}

func (s *memIdem) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *memIdem) IsProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

// fakeConnector lets tests script connector behavior per method.
type fakeConnector struct {
	provider domain.Provider

	importFn    func(ctx context.Context, limit, offset int) (*domain.ImportBatch, error)
	inventoryFn func(ctx context.Context, skus []string) ([]domain.InventoryLevel, error)
	verifyFn    func(req *domain.WebhookRequest) error
	normalizeFn func(req *domain.WebhookRequest) (*domain.CanonicalEvent, error)
	refreshFn   func(ctx context.Context, refreshToken string) (*domain.TokenGrant, error)
	exchangeFn  func(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error)
	testFn      func(ctx context.Context) (bool, error)
}

func (f *fakeConnector) Provider() domain.Provider { return f.provider }

func (f *fakeConnector) Configure(cfg *domain.ConnectorConfig) error { return nil }

func (f *fakeConnector) TestConnection(ctx context.Context) (bool, error) {
	if f.testFn != nil {
		return f.testFn(ctx)
	}
	return true, nil
}

func (f *fakeConnector) ImportProducts(ctx context.Context, limit, offset int) (*domain.ImportBatch, error) {
	if f.importFn != nil {
		return f.importFn(ctx, limit, offset)
	}
	return &domain.ImportBatch{}, nil
}

func (f *fakeConnector) FetchInventory(ctx context.Context, skus []string) ([]domain.InventoryLevel, error) {
	if f.inventoryFn != nil {
		return f.inventoryFn(ctx, skus)
	}
	return nil, nil
}

func (f *fakeConnector) VerifyWebhook(req *domain.WebhookRequest) error {
	if f.verifyFn != nil {
		return f.verifyFn(req)
	}
	return nil
}

func (f *fakeConnector) NormalizeWebhook(req *domain.WebhookRequest) (*domain.CanonicalEvent, error) {
	if f.normalizeFn != nil {
		return f.normalizeFn(req)
	}
	return nil, nil
}

func (f *fakeConnector) GenerateOAuthURL(redirectURI string, scopes []string, state string) (string, error) {
	return "https://auth.example.com/authorize?state=" + state, nil
}

func (f *fakeConnector) ExchangeCode(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error) {
	if f.exchangeFn != nil {
		return f.exchangeFn(ctx, code, redirectURI)
	}
	return &domain.TokenGrant{AccessToken: "token-" + code}, nil
}

func (f *fakeConnector) Refresh(ctx context.Context, refreshToken string) (*domain.TokenGrant, error) {
	if f.refreshFn != nil {
		return f.refreshFn(ctx, refreshToken)
	}
	return nil, fmt.Errorf("refresh not scripted")
}

// fakeRegistry resolves every config to a scripted connector, keyed by
// provider.
type fakeRegistry struct {
	connectors map[domain.Provider]*fakeConnector
}

func newFakeRegistry(conns ...*fakeConnector) *fakeRegistry {
	r := &fakeRegistry{connectors: make(map[domain.Provider]*fakeConnector)}
	for _, conn := range conns {
		r.connectors[conn.provider] = conn
	}
	return r
}

func (r *fakeRegistry) Resolve(cfg *domain.ConnectorConfig) (ports.Connector, error) {
	if cfg == nil {
		return nil, &domain.ConfigurationError{Reason: "connector config is nil"}
	}
	conn, ok := r.connectors[cfg.Provider]
	if !ok {
		return nil, &domain.ConfigurationError{Provider: cfg.Provider, Reason: "no connector registered for provider"}
	}
	return conn, nil
}
