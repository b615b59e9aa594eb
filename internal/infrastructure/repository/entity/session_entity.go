package entity

import (
	"time"

	"skubridge-integration-layer/internal/domain"
)

// MongoSessionDoc represents an OAuth state session in MongoDB.
type MongoSessionDoc struct {
	ID        string    `bson:"_id"`
	State     string    `bson:"state"`
	UserID    string    `bson:"userId"`
	Provider  string    `bson:"provider"`
	Shop      string    `bson:"shop,omitempty"`
	Scopes    []string  `bson:"scopes,omitempty"`
	ReturnURL string    `bson:"returnUrl,omitempty"`
	ExpiresAt time.Time `bson:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt"`
}

// ToDomain converts the MongoDB document to a domain entity.
func (d *MongoSessionDoc) ToDomain() *domain.Session {
	return &domain.Session{
		ID:        d.ID,
		State:     d.State,
		UserID:    d.UserID,
		Provider:  domain.Provider(d.Provider),
		Shop:      d.Shop,
		Scopes:    d.Scopes,
		ReturnURL: d.ReturnURL,
		ExpiresAt: d.ExpiresAt,
		CreatedAt: d.CreatedAt,
	}
}

// MongoSessionDocFromDomain converts a domain entity to a MongoDB
// document.
func MongoSessionDocFromDomain(s *domain.Session) *MongoSessionDoc {
	return &MongoSessionDoc{
		ID:        s.ID,
		State:     s.State,
		UserID:    s.UserID,
		Provider:  s.Provider.String(),
		Shop:      s.Shop,
		Scopes:    s.Scopes,
		ReturnURL: s.ReturnURL,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
	}
}
