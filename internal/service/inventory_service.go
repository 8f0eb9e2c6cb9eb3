package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rmaksim/inventory-service/internal/cache"
	"github.com/rmaksim/inventory-service/internal/domain"
	"github.com/rmaksim/inventory-service/internal/observability"
	"github.com/rmaksim/inventory-service/internal/repository"
)

const (
	reasonInitialStock = "Initial stock creation"
	reasonManualUpdate = "Manual update"
)

// InventoryService enforces the quantity invariants and keeps the movement
// ledger consistent with the inventory records.
//
// Quantity mutations use optimistic concurrency: read, compute, then a
// conditional write keyed on the previously-read quantity, retried up to
// maxRetries before surfacing ErrConflict. Two concurrent adjustments on the
// same product can therefore never double-apply or drive stock negative.
type InventoryService struct {
	repo       repository.InventoryRepository
	cache      cache.RecordCache
	metrics    *observability.Metrics
	logger     *zap.Logger
	maxRetries int
	sfg        singleflight.Group // Prevents cache stampede
}

func NewInventoryService(repo repository.InventoryRepository, recordCache cache.RecordCache, metrics *observability.Metrics, logger *zap.Logger, maxRetries int) *InventoryService {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &InventoryService{
		repo:       repo,
		cache:      recordCache,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Create inserts a new inventory record. When the initial quantity is
// positive a movement is appended so the ledger replays to the current state.
func (s *InventoryService) Create(ctx context.Context, productID string, quantity int, warehouseLocation string) (*domain.InventoryRecord, error) {
	now := time.Now().UTC()
	rec := &domain.InventoryRecord{
		ProductID:         productID,
		Quantity:          quantity,
		WarehouseLocation: warehouseLocation,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.repo.Insert(ctx, rec)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, fmt.Errorf("product %s: %w", productID, ErrAlreadyExists)
	}
	if err != nil {
		return nil, err
	}

	if quantity > 0 {
		s.appendMovement(ctx, productID, quantity, quantity, reasonInitialStock)
	}

	s.logger.Info("inventory record created",
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
		zap.String("warehouse_location", warehouseLocation))
	return rec, nil
}

// Get returns the record for productID, serving from the cache when possible.
func (s *InventoryService) Get(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(productID, func() (interface{}, error) {
		rec, err := s.cache.Get(ctx, productID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("product_id", productID), zap.Error(err))
		}

		rec, err = s.findWithRetry(ctx, productID)
		if err != nil {
			return nil, err
		}

		go func() {
			cctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Set(cctx, productID, rec); err != nil {
				s.logger.Warn("cache set failed", zap.String("product_id", productID), zap.Error(err))
			}
		}()

		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.InventoryRecord), nil
}

// List returns one page of records sorted by updated_at descending, plus the
// total count matching the filter before pagination.
func (s *InventoryService) List(ctx context.Context, skip, limit int, productID string) ([]domain.InventoryRecord, int64, error) {
	filter := repository.ListFilter{ProductID: productID}

	total, err := s.repo.Count(ctx, filter)
	if err != nil && retryable(ctx, err) {
		total, err = s.repo.Count(ctx, filter)
	}
	if err != nil {
		return nil, 0, err
	}

	records, err := s.repo.FindPage(ctx, filter, skip, limit)
	if err != nil && retryable(ctx, err) {
		records, err = s.repo.FindPage(ctx, filter, skip, limit)
	}
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Update sets the quantity to an absolute value and records the delta in the
// ledger. A non-negative target is guaranteed by input validation, so no
// stock guard applies here.
func (s *InventoryService) Update(ctx context.Context, productID string, quantity int, reason string) (*domain.InventoryRecord, error) {
	if reason == "" {
		reason = reasonManualUpdate
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		rec, err := s.findWithRetry(ctx, productID)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		err = s.repo.UpdateQuantityCAS(ctx, productID, rec.Quantity, quantity, now)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		if err != nil {
			return nil, err
		}

		s.appendMovement(ctx, productID, quantity-rec.Quantity, quantity, reason)
		s.invalidate(productID)

		s.logger.Info("inventory updated",
			zap.String("product_id", productID),
			zap.Int("old_quantity", rec.Quantity),
			zap.Int("new_quantity", quantity),
			zap.String("reason", reason))

		rec.Quantity = quantity
		rec.UpdatedAt = now
		return rec, nil
	}

	return nil, fmt.Errorf("product %s: %w", productID, ErrConflict)
}

// Adjust applies a signed delta. The adjustment is rejected before any write
// when it would drive the quantity negative.
func (s *InventoryService) Adjust(ctx context.Context, productID string, delta int, reason string) (*domain.InventoryRecord, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		rec, err := s.findWithRetry(ctx, productID)
		if err != nil {
			return nil, err
		}

		newQuantity := rec.Quantity + delta
		if newQuantity < 0 {
			return nil, fmt.Errorf("%w: current quantity %d, requested change %d, would result in %d",
				ErrInsufficientStock, rec.Quantity, delta, newQuantity)
		}

		now := time.Now().UTC()
		err = s.repo.UpdateQuantityCAS(ctx, productID, rec.Quantity, newQuantity, now)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		if err != nil {
			return nil, err
		}

		s.appendMovement(ctx, productID, delta, newQuantity, reason)
		s.invalidate(productID)

		s.logger.Info("stock adjusted",
			zap.String("product_id", productID),
			zap.Int("quantity_change", delta),
			zap.Int("new_quantity", newQuantity),
			zap.String("reason", reason))

		rec.Quantity = newQuantity
		rec.UpdatedAt = now
		return rec, nil
	}

	return nil, fmt.Errorf("product %s: %w", productID, ErrConflict)
}

// Movements returns the audit trail for a product in creation order. The
// ledger is a weak reference: it outlives its inventory record, so no
// existence check is made.
func (s *InventoryService) Movements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	movements, err := s.repo.ListMovements(ctx, productID, limit)
	if err != nil && retryable(ctx, err) {
		movements, err = s.repo.ListMovements(ctx, productID, limit)
	}
	return movements, err
}

// Ping reports store connectivity for health checks.
func (s *InventoryService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// findWithRetry reads a record, retrying once on transient store errors.
// Mutating writes are never retried here; only the read is.
func (s *InventoryService) findWithRetry(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	rec, err := s.repo.FindByProductID(ctx, productID)
	if err != nil && retryable(ctx, err) {
		rec, err = s.repo.FindByProductID(ctx, productID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, repository.ErrConflict)
}

// appendMovement writes the ledger entry for a committed quantity change. The
// record write is the durability boundary, so a failed append is a reportable
// inconsistency rather than a reason to fail the call: it is logged and
// counted, never silently swallowed.
func (s *InventoryService) appendMovement(ctx context.Context, productID string, change, newQuantity int, reason string) {
	mv := &domain.StockMovement{
		ProductID:      productID,
		QuantityChange: change,
		NewQuantity:    newQuantity,
		Reason:         reason,
		CreatedAt:      time.Now().UTC(),
	}

	// The append must outlive caller cancellation once the record write
	// committed.
	if err := s.repo.AppendMovement(context.WithoutCancel(ctx), mv); err != nil {
		s.metrics.LedgerWriteFailures.Inc()
		s.logger.Error("ledger entry missing for committed quantity change",
			zap.String("product_id", productID),
			zap.Int("quantity_change", change),
			zap.Int("new_quantity", newQuantity),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

func (s *InventoryService) invalidate(productID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, productID); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("product_id", productID), zap.Error(err))
	}
}
