// Package metrics holds the Prometheus collectors shared by the
// integration services. Collectors register on the default registry;
// cmd/api exposes them via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook outcomes used as label values.
const (
	WebhookApplied     = "applied"
	WebhookDeduped     = "deduped"
	WebhookDroppedAuth = "dropped_auth"
	WebhookIgnored     = "ignored"
	WebhookFailed      = "failed"
)

var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skubridge",
		Name:      "webhooks_received_total",
		Help:      "Inbound webhook events by provider and outcome.",
	}, []string{"provider", "outcome"})

	ProductsImported = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skubridge",
		Name:      "products_imported_total",
		Help:      "Products imported or updated per provider.",
	}, []string{"provider"})

	ProductsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skubridge",
		Name:      "products_failed_total",
		Help:      "Products that failed transformation or persistence per provider.",
	}, []string{"provider"})

	ImportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skubridge",
		Name:      "import_duration_seconds",
		Help:      "Wall-clock duration of import runs.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"provider"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skubridge",
		Name:      "token_refreshes_total",
		Help:      "Token refresh attempts by provider and outcome.",
	}, []string{"provider", "outcome"})
)
