package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// CreateIndexes sets up the unique product_id index on the inventory
// collection and the lookup indexes both collections are queried by.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	inventoryIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "product_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("product_id_idx"),
		},
		{
			Keys:    bson.D{{Key: "warehouse_location", Value: 1}},
			Options: options.Index().SetName("warehouse_location_idx"),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("updated_at_idx"),
		},
	}
	if _, err := db.Collection(colInventory).Indexes().CreateMany(ctx, inventoryIndexes); err != nil {
		return fmt.Errorf("failed to create inventory indexes: %w", err)
	}

	movementIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "product_id", Value: 1}},
			Options: options.Index().SetName("movement_product_id_idx"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetName("movement_created_at_idx"),
		},
	}
	if _, err := db.Collection(colMovements).Indexes().CreateMany(ctx, movementIndexes); err != nil {
		return fmt.Errorf("failed to create movement indexes: %w", err)
	}

	return nil
}
