package repository

import (
	"context"
	"fmt"
	"time"

	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/infrastructure/repository/entity"
	"skubridge-integration-layer/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCredentialRepository implements CredentialStore using MongoDB.
type MongoCredentialRepository struct {
	collection *mongo.Collection
}

// NewMongoCredentialRepository creates a new MongoDB credential
// repository and ensures its indexes.
func NewMongoCredentialRepository(db *mongo.Database) ports.CredentialStore {
	collection := db.Collection("integrations")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "provider", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "expiresAt", Value: 1}},
		},
	}
	_, _ = collection.Indexes().CreateMany(context.Background(), indexes)

	return &MongoCredentialRepository{collection: collection}
}

// Get retrieves the token record for a user and provider.
func (r *MongoCredentialRepository) Get(ctx context.Context, userID string, provider domain.Provider) (*domain.Integration, error) {
	var doc entity.MongoIntegrationDoc
	filter := bson.M{"userId": userID, "provider": provider.String()}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token record: %w", err)
	}
	return doc.ToDomain(), nil
}

// Upsert saves or replaces the token record for its (user, provider)
// pair.
func (r *MongoCredentialRepository) Upsert(ctx context.Context, record *domain.Integration) error {
	doc := entity.MongoIntegrationDocFromDomain(record)

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"userId": record.UserID, "provider": record.Provider.String()}
	update := bson.M{"$set": doc}

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to save token record: %w", err)
	}
	return nil
}

// ListExpiringBefore returns records whose absolute expiry falls before
// the cutoff and that are not flagged for re-auth. Non-expiring tokens
// carry the zero expiresAt and are excluded by the lower bound.
func (r *MongoCredentialRepository) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*domain.Integration, error) {
	filter := bson.M{
		"expiresAt":   bson.M{"$gt": time.Time{}, "$lt": cutoff},
		"needsReauth": false,
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring tokens: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*domain.Integration
	for cursor.Next(ctx) {
		var doc entity.MongoIntegrationDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode token record: %w", err)
		}
		records = append(records, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return records, nil
}
