package entity

import (
	"time"

	"skubridge-integration-layer/internal/domain"
)

// MongoIntegrationDoc represents an OAuth token record in MongoDB.
type MongoIntegrationDoc struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"userId"`
	Provider     string    `bson:"provider"`
	AccessToken  string    `bson:"accessToken"`
	RefreshToken string    `bson:"refreshToken"`
	ExpiresIn    int64     `bson:"expiresIn"`
	ExpiresAt    time.Time `bson:"expiresAt,omitempty"`
	UpdatedAt    time.Time `bson:"updatedAt"`
	NeedsReauth  bool      `bson:"needsReauth"`
}

// ToDomain converts the MongoDB document to a domain entity.
func (d *MongoIntegrationDoc) ToDomain() *domain.Integration {
	return &domain.Integration{
		ID:           d.ID,
		UserID:       d.UserID,
		Provider:     domain.Provider(d.Provider),
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		ExpiresIn:    d.ExpiresIn,
		UpdatedAt:    d.UpdatedAt,
		NeedsReauth:  d.NeedsReauth,
	}
}

// MongoIntegrationDocFromDomain converts a domain entity to a MongoDB
// document. ExpiresAt is denormalized so expiry queries can use an
// index instead of computing updatedAt + expiresIn per document.
func MongoIntegrationDocFromDomain(record *domain.Integration) *MongoIntegrationDoc {
	return &MongoIntegrationDoc{
		ID:           record.ID,
		UserID:       record.UserID,
		Provider:     record.Provider.String(),
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		ExpiresIn:    record.ExpiresIn,
		ExpiresAt:    record.ExpiresAt(),
		UpdatedAt:    record.UpdatedAt,
		NeedsReauth:  record.NeedsReauth,
	}
}
