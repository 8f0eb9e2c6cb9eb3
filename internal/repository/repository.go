package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rmaksim/inventory-service/internal/domain"
)

var (
	ErrNotFound  = errors.New("inventory record not found")
	ErrDuplicate = errors.New("inventory record already exists")

	// ErrConflict is returned by UpdateQuantityCAS when the conditional
	// write matched no document, i.e. another writer changed the quantity
	// between the caller's read and this write.
	ErrConflict = errors.New("concurrent modification conflict")
)

// ListFilter narrows Count and FindPage. A zero value matches everything.
type ListFilter struct {
	ProductID string
}

// InventoryRepository defines the ledger store contract the engine depends
// on. Consumers define this interface, not the MongoDB implementation.
type InventoryRepository interface {
	FindByProductID(ctx context.Context, productID string) (*domain.InventoryRecord, error)
	Insert(ctx context.Context, rec *domain.InventoryRecord) error

	// UpdateQuantityCAS sets quantity and updated_at only when the stored
	// quantity still equals oldQuantity. Returns ErrNotFound when no record
	// exists for productID and ErrConflict when the quantity moved.
	UpdateQuantityCAS(ctx context.Context, productID string, oldQuantity, newQuantity int, updatedAt time.Time) error

	Count(ctx context.Context, filter ListFilter) (int64, error)
	FindPage(ctx context.Context, filter ListFilter, skip, limit int) ([]domain.InventoryRecord, error)

	AppendMovement(ctx context.Context, mv *domain.StockMovement) error
	ListMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)

	Ping(ctx context.Context) error
}
