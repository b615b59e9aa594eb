// Package connectors wires one connector implementation per provider
// into a closed registry. Providers are enumerated at compile time;
// an unknown or inactive provider is rejected when the connector is
// configured, not when it is first called.
package connectors

import (
	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/ports"

	"github.com/rs/zerolog"
)

// Factory builds an unconfigured connector instance.
type Factory func(logger zerolog.Logger) ports.Connector

// Registry instantiates and configures connectors by provider.
type Registry struct {
	factories map[domain.Provider]Factory
	logger    zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		factories: make(map[domain.Provider]Factory),
		logger:    logger,
	}
}

// Register binds a factory to a provider. Last registration wins;
// registration happens once at startup.
func (r *Registry) Register(provider domain.Provider, factory Factory) {
	r.factories[provider] = factory
}

// Resolve builds a connector for the config's provider and binds the
// config to it. Unknown providers and missing credentials both fail
// here, before any provider call is made.
func (r *Registry) Resolve(cfg *domain.ConnectorConfig) (ports.Connector, error) {
	if cfg == nil {
		return nil, &domain.ConfigurationError{Reason: "connector config is nil"}
	}
	if !cfg.IsActive {
		return nil, &domain.ConfigurationError{Provider: cfg.Provider, Reason: "connector is disabled"}
	}

	factory, ok := r.factories[cfg.Provider]
	if !ok {
		return nil, &domain.ConfigurationError{Provider: cfg.Provider, Field: "provider", Reason: "no connector registered for provider"}
	}

	conn := factory(r.logger)
	if err := conn.Configure(cfg); err != nil {
		return nil, err
	}
	return conn, nil
}

var _ ports.ConnectorRegistry = (*Registry)(nil)
