package repository

import (
	"context"
	"fmt"
	"time"

	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/infrastructure/repository/entity"
	"skubridge-integration-layer/internal/ports"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCatalogRepository implements CatalogStore using MongoDB. Master
// SKUs, supplier SKUs, and SPUs each live in their own collection.
type MongoCatalogRepository struct {
	mastersCollection *mongo.Collection
	skusCollection    *mongo.Collection
	spusCollection    *mongo.Collection
}

// NewMongoCatalogRepository creates a new MongoDB catalog repository
// and ensures its indexes.
func NewMongoCatalogRepository(db *mongo.Database) ports.CatalogStore {
	masters := db.Collection("master_skus")
	skus := db.Collection("supplier_skus")
	spus := db.Collection("spus")

	_, _ = masters.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "barcode", Value: 1}},
	})
	_, _ = skus.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "supplierSku", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "mappingStatus", Value: 1}},
		},
	})
	_, _ = spus.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "supplier", Value: 1}, {Key: "externalId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return &MongoCatalogRepository{
		mastersCollection: masters,
		skusCollection:    skus,
		spusCollection:    spus,
	}
}

// FindMasterByBarcode retrieves every master SKU carrying the barcode.
// Barcodes are expected unique but duplicates do occur in real
// catalogs, so all matches are returned and the caller decides.
func (r *MongoCatalogRepository) FindMasterByBarcode(ctx context.Context, barcode string) ([]domain.MasterSKU, error) {
	cursor, err := r.mastersCollection.Find(ctx, bson.M{"barcode": barcode})
	if err != nil {
		return nil, fmt.Errorf("failed to find masters by barcode: %w", err)
	}
	defer cursor.Close(ctx)

	var masters []domain.MasterSKU
	for cursor.Next(ctx) {
		var doc entity.MongoMasterSKUDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode master SKU: %w", err)
		}
		masters = append(masters, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return masters, nil
}

// FindMasterByCode retrieves a master SKU by its code.
func (r *MongoCatalogRepository) FindMasterByCode(ctx context.Context, code string) (*domain.MasterSKU, error) {
	var doc entity.MongoMasterSKUDoc
	err := r.mastersCollection.FindOne(ctx, bson.M{"_id": code}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get master SKU: %w", err)
	}
	master := doc.ToDomain()
	return &master, nil
}

// ListMasterSKUs retrieves the full canonical catalog.
func (r *MongoCatalogRepository) ListMasterSKUs(ctx context.Context) ([]domain.MasterSKU, error) {
	cursor, err := r.mastersCollection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list master SKUs: %w", err)
	}
	defer cursor.Close(ctx)

	var masters []domain.MasterSKU
	for cursor.Next(ctx) {
		var doc entity.MongoMasterSKUDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode master SKU: %w", err)
		}
		masters = append(masters, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return masters, nil
}

// FindSKUBySupplierSKU retrieves one supplier SKU record.
func (r *MongoCatalogRepository) FindSKUBySupplierSKU(ctx context.Context, supplierSKU string) (*domain.SKU, error) {
	var doc entity.MongoSKUDoc
	err := r.skusCollection.FindOne(ctx, bson.M{"supplierSku": supplierSKU}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get supplier SKU: %w", err)
	}
	sku := doc.ToDomain()
	return &sku, nil
}

// UpsertSKU saves or replaces a supplier SKU keyed by supplier_sku.
func (r *MongoCatalogRepository) UpsertSKU(ctx context.Context, sku *domain.SKU) error {
	doc := entity.MongoSKUDocFromDomain(sku)

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"supplierSku": sku.SupplierSKU}
	update := bson.M{"$set": doc}

	_, err := r.skusCollection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to save supplier SKU: %w", err)
	}
	return nil
}

// ListSKUsByMappingStatus retrieves all supplier SKUs in one mapping
// state.
func (r *MongoCatalogRepository) ListSKUsByMappingStatus(ctx context.Context, status domain.MappingStatus) ([]domain.SKU, error) {
	cursor, err := r.skusCollection.Find(ctx, bson.M{"mappingStatus": string(status)})
	if err != nil {
		return nil, fmt.Errorf("failed to list supplier SKUs: %w", err)
	}
	defer cursor.Close(ctx)

	var skus []domain.SKU
	for cursor.Next(ctx) {
		var doc entity.MongoSKUDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode supplier SKU: %w", err)
		}
		skus = append(skus, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return skus, nil
}

// FindSPUByExternalID retrieves a supplier product by its provider
// identity.
func (r *MongoCatalogRepository) FindSPUByExternalID(ctx context.Context, supplier domain.Provider, externalID string) (*domain.SPU, error) {
	var doc entity.MongoSPUDoc
	filter := bson.M{"supplier": supplier.String(), "externalId": externalID}

	err := r.spusCollection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get SPU: %w", err)
	}
	return doc.ToDomain(), nil
}

// UpsertSPU saves or replaces a supplier product keyed by its provider
// identity.
func (r *MongoCatalogRepository) UpsertSPU(ctx context.Context, spu *domain.SPU) error {
	if spu.ID == "" {
		spu.ID = uuid.New().String()
	}
	doc := entity.MongoSPUDocFromDomain(spu)
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"supplier": spu.Supplier.String(), "externalId": spu.ExternalID}
	update := bson.M{"$set": doc}

	_, err := r.spusCollection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to save SPU: %w", err)
	}
	return nil
}
