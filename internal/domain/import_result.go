package domain

import "time"

// ItemFailure records one item that failed transformation during an
// import, with enough detail to retry it manually.
type ItemFailure struct {
	ExternalID string `json:"external_id"`
	Reason     string `json:"reason"`
}

// ImportBatch is what a connector hands back from one import_products
// call: the successfully transformed SPUs, the per-item failures, and
// whether the provider has more items beyond the requested window.
type ImportBatch struct {
	SPUs   []*SPU
	Failed []ItemFailure
	More   bool
}

// ImportResult summarizes a completed (or cancelled) import run.
type ImportResult struct {
	Success          bool          `json:"success"`
	ProductsImported int           `json:"products_imported"`
	ProductsUpdated  int           `json:"products_updated"`
	ProductsFailed   int           `json:"products_failed"`
	Duration         time.Duration `json:"duration"`
	More             bool          `json:"more"`
	Failures         []ItemFailure `json:"failures,omitempty"`
}
