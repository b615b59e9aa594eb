package repository

import (
	"context"
	"fmt"

	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/infrastructure/repository/entity"
	"skubridge-integration-layer/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSessionRepository implements SessionStore using MongoDB. A TTL
// index on expiresAt lets Mongo reap abandoned sessions.
type MongoSessionRepository struct {
	collection *mongo.Collection
}

// NewMongoSessionRepository creates a new MongoDB session repository
// and ensures its indexes.
func NewMongoSessionRepository(db *mongo.Database) ports.SessionStore {
	collection := db.Collection("oauth_sessions")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "state", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	_, _ = collection.Indexes().CreateMany(context.Background(), indexes)

	return &MongoSessionRepository{collection: collection}
}

// Create stores a new OAuth state session.
func (r *MongoSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	doc := entity.MongoSessionDocFromDomain(session)
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByState retrieves a session by its state value.
func (r *MongoSessionRepository) GetByState(ctx context.Context, state string) (*domain.Session, error) {
	var doc entity.MongoSessionDoc
	err := r.collection.FindOne(ctx, bson.M{"state": state}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return doc.ToDomain(), nil
}

// Delete removes a session by its state value.
func (r *MongoSessionRepository) Delete(ctx context.Context, state string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"state": state}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
