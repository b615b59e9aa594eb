package domain

import "fmt"

// Provider identifies an external marketplace or supplier platform.
// The set is closed: connectors are registered per provider at startup
// and unknown values are rejected at configuration time.
type Provider string

const (
	ProviderSupplierERP Provider = "supplier-erp"
	ProviderShopify     Provider = "shopify"
	ProviderWooCommerce Provider = "woocommerce"
)

// KnownProviders lists every provider the registry can dispatch to.
func KnownProviders() []Provider {
	return []Provider{ProviderSupplierERP, ProviderShopify, ProviderWooCommerce}
}

// ParseProvider validates a raw provider identifier.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	if !p.Valid() {
		return "", &ConfigurationError{Provider: p, Field: "provider", Reason: fmt.Sprintf("unknown provider %q", s)}
	}
	return p, nil
}

// Valid reports whether the provider is part of the closed set.
func (p Provider) Valid() bool {
	switch p {
	case ProviderSupplierERP, ProviderShopify, ProviderWooCommerce:
		return true
	}
	return false
}

func (p Provider) String() string {
	return string(p)
}
