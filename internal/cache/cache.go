package cache

import (
	"context"
	"errors"

	"github.com/rmaksim/inventory-service/internal/domain"
)

var ErrCacheMiss = errors.New("record not found in cache")

// RecordCache is a read-through cache for single inventory records. Writers
// invalidate; the engine falls back to the store on any cache failure.
type RecordCache interface {
	Get(ctx context.Context, productID string) (*domain.InventoryRecord, error)
	Set(ctx context.Context, productID string, rec *domain.InventoryRecord) error
	Delete(ctx context.Context, productID string) error
}
