package entity

import (
	"time"

	"skubridge-integration-layer/internal/domain"
)

// MongoConnectorConfigDoc represents a connector configuration in
// MongoDB.
type MongoConnectorConfigDoc struct {
	ID          string            `bson:"_id"`
	Name        string            `bson:"name"`
	Provider    string            `bson:"provider"`
	UserID      string            `bson:"userId"`
	Credentials map[string]string `bson:"credentials"`
	IsActive    bool              `bson:"isActive"`
	CreatedAt   time.Time         `bson:"createdAt"`
	UpdatedAt   time.Time         `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity.
func (d *MongoConnectorConfigDoc) ToDomain() *domain.ConnectorConfig {
	return &domain.ConnectorConfig{
		ID:          d.ID,
		Name:        d.Name,
		Provider:    domain.Provider(d.Provider),
		UserID:      d.UserID,
		Credentials: d.Credentials,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MongoConnectorConfigDocFromDomain converts a domain entity to a
// MongoDB document.
func MongoConnectorConfigDocFromDomain(cfg *domain.ConnectorConfig) *MongoConnectorConfigDoc {
	return &MongoConnectorConfigDoc{
		ID:          cfg.ID,
		Name:        cfg.Name,
		Provider:    cfg.Provider.String(),
		UserID:      cfg.UserID,
		Credentials: cfg.Credentials,
		IsActive:    cfg.IsActive,
		CreatedAt:   cfg.CreatedAt,
		UpdatedAt:   cfg.UpdatedAt,
	}
}
