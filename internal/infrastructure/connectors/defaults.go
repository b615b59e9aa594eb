package connectors

import (
	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/infrastructure/connectors/shopify"
	"skubridge-integration-layer/internal/infrastructure/connectors/suppliererp"
	"skubridge-integration-layer/internal/infrastructure/connectors/woocommerce"

	"github.com/rs/zerolog"
)

// Default returns a registry with every supported provider bound.
func Default(logger zerolog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(domain.ProviderShopify, shopify.New)
	r.Register(domain.ProviderWooCommerce, woocommerce.New)
	r.Register(domain.ProviderSupplierERP, suppliererp.New)
	return r
}
