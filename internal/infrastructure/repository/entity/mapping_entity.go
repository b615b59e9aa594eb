package entity

import (
	"time"

	"skubridge-integration-layer/internal/domain"
)

// MongoMappingDoc represents a supplier-to-master SKU mapping in
// MongoDB, keyed by supplier SKU.
type MongoMappingDoc struct {
	SupplierSKU string    `bson:"_id"`
	MasterSKU   string    `bson:"masterSku"`
	Provenance  string    `bson:"provenance"`
	Supersedes  string    `bson:"supersedes,omitempty"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity.
func (d *MongoMappingDoc) ToDomain() *domain.SKUMapping {
	return &domain.SKUMapping{
		SupplierSKU: d.SupplierSKU,
		MasterSKU:   d.MasterSKU,
		Provenance:  domain.MappingProvenance(d.Provenance),
		Supersedes:  d.Supersedes,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MongoMappingDocFromDomain converts a domain entity to a MongoDB
// document.
func MongoMappingDocFromDomain(m *domain.SKUMapping) *MongoMappingDoc {
	return &MongoMappingDoc{
		SupplierSKU: m.SupplierSKU,
		MasterSKU:   m.MasterSKU,
		Provenance:  string(m.Provenance),
		Supersedes:  m.Supersedes,
		UpdatedAt:   m.UpdatedAt,
	}
}
