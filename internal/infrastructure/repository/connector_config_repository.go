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

// MongoConnectorConfigRepository implements ConnectorConfigStore using
// MongoDB.
type MongoConnectorConfigRepository struct {
	collection *mongo.Collection
}

// NewMongoConnectorConfigRepository creates a new MongoDB connector
// config repository and ensures its unique (user, provider) index.
func NewMongoConnectorConfigRepository(db *mongo.Database) ports.ConnectorConfigStore {
	collection := db.Collection("connector_configs")

	_, _ = collection.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "provider", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return &MongoConnectorConfigRepository{collection: collection}
}

// GetByID retrieves a connector config by its id.
func (r *MongoConnectorConfigRepository) GetByID(ctx context.Context, id string) (*domain.ConnectorConfig, error) {
	var doc entity.MongoConnectorConfigDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connector config: %w", err)
	}
	return doc.ToDomain(), nil
}

// GetByUserAndProvider retrieves a user's connector config for one
// provider.
func (r *MongoConnectorConfigRepository) GetByUserAndProvider(ctx context.Context, userID string, provider domain.Provider) (*domain.ConnectorConfig, error) {
	var doc entity.MongoConnectorConfigDoc
	filter := bson.M{"userId": userID, "provider": provider.String()}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connector config: %w", err)
	}
	return doc.ToDomain(), nil
}

// Upsert saves or replaces a connector config.
func (r *MongoConnectorConfigRepository) Upsert(ctx context.Context, cfg *domain.ConnectorConfig) error {
	doc := entity.MongoConnectorConfigDocFromDomain(cfg)
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"_id": cfg.ID}
	update := bson.M{"$set": doc}

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to save connector config: %w", err)
	}
	return nil
}

// Delete removes a connector config by id.
func (r *MongoConnectorConfigRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete connector config: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("connector config not found")
	}
	return nil
}

// ListActive retrieves every active connector config.
func (r *MongoConnectorConfigRepository) ListActive(ctx context.Context) ([]*domain.ConnectorConfig, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"isActive": true})
	if err != nil {
		return nil, fmt.Errorf("failed to list connector configs: %w", err)
	}
	defer cursor.Close(ctx)

	var configs []*domain.ConnectorConfig
	for cursor.Next(ctx) {
		var doc entity.MongoConnectorConfigDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode connector config: %w", err)
		}
		configs = append(configs, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return configs, nil
}
