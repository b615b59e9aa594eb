package domain

import "time"

// MappingProvenance records how a mapping came to exist.
type MappingProvenance string

const (
	ProvenanceAutomatic MappingProvenance = "automatic"
	ProvenanceManual    MappingProvenance = "manual"
)

// SKUMapping binds a supplier SKU to exactly one master SKU at a time.
// Creating a mapping for an already-mapped supplier SKU supersedes the
// prior mapping; the previous target is kept in Supersedes so the
// override is auditable rather than silently dropped.
type SKUMapping struct {
	SupplierSKU string            `json:"supplier_sku"`
	MasterSKU   string            `json:"master_sku"`
	Provenance  MappingProvenance `json:"provenance"`
	Supersedes  string            `json:"supersedes,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// MappingPair is one (supplier, master) pair in a bulk request.
type MappingPair struct {
	SupplierSKU string `json:"supplier_sku"`
	MasterSKU   string `json:"master_sku"`
}

// MappingOutcome is the per-pair result of a bulk mapping call. A
// failed pair never prevents the remaining pairs from being processed.
type MappingOutcome struct {
	SupplierSKU string `json:"supplier_sku"`
	OK          bool   `json:"ok"`
	Error       string `json:"error,omitempty"`
}

// ReconciliationReport partitions all known supplier SKUs into three
// disjoint sets by current mapping status.
type ReconciliationReport struct {
	Mapped    []SKU `json:"mapped"`
	Pending   []SKU `json:"pending"`
	Conflicts []SKU `json:"conflicts"`
}
