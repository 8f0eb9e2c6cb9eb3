package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rmaksim/inventory-service/internal/domain"
	"github.com/rmaksim/inventory-service/internal/observability"
)

const (
	colInventory = "inventory"
	colMovements = "stock_movements"
)

type mongoRepository struct {
	inventory *mongo.Collection
	movements *mongo.Collection
	timeout   time.Duration
	metrics   *observability.Metrics
}

// NewMongoRepository creates an InventoryRepository backed by MongoDB.
// Every store call runs under opTimeout so no operation blocks indefinitely.
func NewMongoRepository(db *mongo.Database, opTimeout time.Duration, metrics *observability.Metrics) InventoryRepository {
	return &mongoRepository{
		inventory: db.Collection(colInventory),
		movements: db.Collection(colMovements),
		timeout:   opTimeout,
		metrics:   metrics,
	}
}

func (r *mongoRepository) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *mongoRepository) FindByProductID(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	done := r.metrics.TrackDBOperation("find_one", colInventory)

	var rec domain.InventoryRecord
	err := r.inventory.FindOne(ctx, bson.M{"product_id": productID}).Decode(&rec)
	done(err)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find inventory record: %w", err)
	}

	return &rec, nil
}

func (r *mongoRepository) Insert(ctx context.Context, rec *domain.InventoryRecord) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	done := r.metrics.TrackDBOperation("insert_one", colInventory)

	_, err := r.inventory.InsertOne(ctx, rec)
	done(err)

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert inventory record: %w", err)
	}

	return nil
}

func (r *mongoRepository) UpdateQuantityCAS(ctx context.Context, productID string, oldQuantity, newQuantity int, updatedAt time.Time) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	done := r.metrics.TrackDBOperation("update_one", colInventory)

	// The quantity field in the filter makes this a conditional write: it
	// matches only if nobody changed the quantity since the caller read it.
	filter := bson.M{"product_id": productID, "quantity": oldQuantity}
	update := bson.M{"$set": bson.M{"quantity": newQuantity, "updated_at": updatedAt}}

	res, err := r.inventory.UpdateOne(ctx, filter, update)
	done(err)

	if err != nil {
		return fmt.Errorf("failed to update quantity: %w", err)
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing record from a lost race.
		exists, err := r.exists(ctx, productID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}

	return nil
}

func (r *mongoRepository) exists(ctx context.Context, productID string) (bool, error) {
	n, err := r.inventory.CountDocuments(ctx, bson.M{"product_id": productID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check record existence: %w", err)
	}
	return n > 0, nil
}

func (r *mongoRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	done := r.metrics.TrackDBOperation("count", colInventory)

	n, err := r.inventory.CountDocuments(ctx, listQuery(filter))
	done(err)

	if err != nil {
		return 0, fmt.Errorf("failed to count inventory records: %w", err)
	}
	return n, nil
}

func (r *mongoRepository) FindPage(ctx context.Context, filter ListFilter, skip, limit int) ([]domain.InventoryRecord, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	done := r.metrics.TrackDBOperation("find", colInventory)

	opts := options.Find().
		SetSkip(int64(skip)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "updated_at", Value: -1}})

	cursor, err := r.inventory.Find(ctx, listQuery(filter), opts)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("failed to query inventory page: %w", err)
	}

	var records []domain.InventoryRecord
	err = cursor.All(ctx, &records)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("failed to decode inventory page: %w", err)
	}

	return records, nil
}

func (r *mongoRepository) AppendMovement(ctx context.Context, mv *domain.StockMovement) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	done := r.metrics.TrackDBOperation("insert_one", colMovements)

	_, err := r.movements.InsertOne(ctx, mv)
	done(err)

	if err != nil {
		return fmt.Errorf("failed to append stock movement: %w", err)
	}
	return nil
}

func (r *mongoRepository) ListMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	done := r.metrics.TrackDBOperation("find", colMovements)

	// Ascending creation order so the result replays the ledger.
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.movements.Find(ctx, bson.M{"product_id": productID}, opts)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}

	var movements []domain.StockMovement
	err = cursor.All(ctx, &movements)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stock movements: %w", err)
	}

	return movements, nil
}

func (r *mongoRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	return r.inventory.Database().Client().Ping(ctx, nil)
}

func listQuery(filter ListFilter) bson.M {
	query := bson.M{}
	if filter.ProductID != "" {
		query["product_id"] = filter.ProductID
	}
	return query
}
