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

// MongoMappingRepository implements MappingStore using MongoDB.
type MongoMappingRepository struct {
	collection *mongo.Collection
}

// NewMongoMappingRepository creates a new MongoDB mapping repository.
func NewMongoMappingRepository(db *mongo.Database) ports.MappingStore {
	return &MongoMappingRepository{collection: db.Collection("sku_mappings")}
}

// GetBySupplierSKU retrieves the mapping for a supplier SKU.
func (r *MongoMappingRepository) GetBySupplierSKU(ctx context.Context, supplierSKU string) (*domain.SKUMapping, error) {
	var doc entity.MongoMappingDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": supplierSKU}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return doc.ToDomain(), nil
}

// Upsert saves or replaces the mapping for its supplier SKU. One
// mapping per supplier SKU is enforced by the document key.
func (r *MongoMappingRepository) Upsert(ctx context.Context, mapping *domain.SKUMapping) error {
	doc := entity.MongoMappingDocFromDomain(mapping)

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"_id": mapping.SupplierSKU}
	update := bson.M{"$set": doc}

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	return nil
}

// List retrieves every mapping.
func (r *MongoMappingRepository) List(ctx context.Context) ([]domain.SKUMapping, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer cursor.Close(ctx)

	var mappings []domain.SKUMapping
	for cursor.Next(ctx) {
		var doc entity.MongoMappingDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode mapping: %w", err)
		}
		mappings = append(mappings, *doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return mappings, nil
}
