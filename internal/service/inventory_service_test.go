package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rmaksim/inventory-service/internal/cache"
	"github.com/rmaksim/inventory-service/internal/domain"
	"github.com/rmaksim/inventory-service/internal/observability"
	"github.com/rmaksim/inventory-service/internal/repository"
)

type mockRepository struct {
	mu        sync.Mutex
	records   map[string]*domain.InventoryRecord
	movements []domain.StockMovement

	findErr      error
	findErrOnce  bool
	appendErr    error
	casConflicts int
}

func newMockRepository() *mockRepository {
	return &mockRepository{records: map[string]*domain.InventoryRecord{}}
}

func (m *mockRepository) FindByProductID(_ context.Context, productID string) (*domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		err := m.findErr
		if m.findErrOnce {
			m.findErr = nil
		}
		return nil, err
	}
	rec, ok := m.records[productID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *mockRepository) Insert(_ context.Context, rec *domain.InventoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ProductID]; ok {
		return repository.ErrDuplicate
	}
	cp := *rec
	m.records[rec.ProductID] = &cp
	return nil
}

func (m *mockRepository) UpdateQuantityCAS(_ context.Context, productID string, oldQuantity, newQuantity int, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.casConflicts > 0 {
		m.casConflicts--
		return repository.ErrConflict
	}
	rec, ok := m.records[productID]
	if !ok {
		return repository.ErrNotFound
	}
	if rec.Quantity != oldQuantity {
		return repository.ErrConflict
	}
	rec.Quantity = newQuantity
	rec.UpdatedAt = updatedAt
	return nil
}

func (m *mockRepository) Count(_ context.Context, filter repository.ListFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		err := m.findErr
		if m.findErrOnce {
			m.findErr = nil
		}
		return 0, err
	}
	var n int64
	for id := range m.records {
		if filter.ProductID == "" || filter.ProductID == id {
			n++
		}
	}
	return n, nil
}

func (m *mockRepository) FindPage(_ context.Context, filter repository.ListFilter, skip, limit int) ([]domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InventoryRecord
	for id, rec := range m.records {
		if filter.ProductID == "" || filter.ProductID == id {
			out = append(out, *rec)
		}
	}
	if skip > len(out) {
		return nil, nil
	}
	out = out[skip:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepository) AppendMovement(_ context.Context, mv *domain.StockMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.movements = append(m.movements, *mv)
	return nil
}

func (m *mockRepository) ListMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StockMovement
	for _, mv := range m.movements {
		if mv.ProductID == productID {
			out = append(out, mv)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockRepository) Ping(context.Context) error { return nil }

func (m *mockRepository) movementsFor(productID string) []domain.StockMovement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StockMovement
	for _, mv := range m.movements {
		if mv.ProductID == productID {
			out = append(out, mv)
		}
	}
	return out
}

func (m *mockRepository) quantity(t *testing.T, productID string) int {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[productID]
	require.True(t, ok)
	return rec.Quantity
}

type mockCache struct {
	mu      sync.Mutex
	store   map[string]*domain.InventoryRecord
	getErr  error
	deletes []string
}

func newMockCache() *mockCache {
	return &mockCache{store: map[string]*domain.InventoryRecord{}}
}

func (c *mockCache) Get(_ context.Context, productID string) (*domain.InventoryRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	rec, ok := c.store[productID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return rec, nil
}

func (c *mockCache) Set(_ context.Context, productID string, rec *domain.InventoryRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[productID] = rec
	return nil
}

func (c *mockCache) Delete(_ context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, productID)
	c.deletes = append(c.deletes, productID)
	return nil
}

func (c *mockCache) cached(productID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[productID]
	return ok
}

func newTestService(repo *mockRepository, recordCache *mockCache) (*InventoryService, *observability.Metrics) {
	metrics := observability.NewMetrics()
	svc := NewInventoryService(repo, recordCache, metrics, zap.NewNop(), 3)
	return svc, metrics
}

func TestCreate_InitialStock(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())

	rec, err := svc.Create(context.Background(), "P1", 100, "WH-A")
	require.NoError(t, err)
	assert.Equal(t, "P1", rec.ProductID)
	assert.Equal(t, 100, rec.Quantity)
	assert.Equal(t, "WH-A", rec.WarehouseLocation)

	movements := repo.movementsFor("P1")
	require.Len(t, movements, 1)
	assert.Equal(t, 100, movements[0].QuantityChange)
	assert.Equal(t, 100, movements[0].NewQuantity)
	assert.Equal(t, "Initial stock creation", movements[0].Reason)
}

func TestCreate_ZeroQuantity_NoMovement(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())

	_, err := svc.Create(context.Background(), "P1", 0, "WH-A")
	require.NoError(t, err)
	assert.Empty(t, repo.movementsFor("P1"))
}

func TestCreate_Duplicate(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 10, "WH-A")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "P1", 20, "WH-B")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Exactly one record, untouched by the failed create.
	assert.Equal(t, 10, repo.quantity(t, "P1"))
	assert.Len(t, repo.movementsFor("P1"), 1)
}

func TestGet_CacheMiss_ReadsStoreAndFillsCache(t *testing.T) {
	repo := newMockRepository()
	recordCache := newMockCache()
	svc, _ := newTestService(repo, recordCache)
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 50, "WH-A")
	require.NoError(t, err)

	rec, err := svc.Get(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 50, rec.Quantity)

	// The cache fill is asynchronous.
	assert.Eventually(t, func() bool { return recordCache.cached("P1") }, time.Second, 10*time.Millisecond)
}

func TestGet_CacheHit_SkipsStore(t *testing.T) {
	repo := newMockRepository()
	recordCache := newMockCache()
	svc, _ := newTestService(repo, recordCache)

	cached := &domain.InventoryRecord{ProductID: "P1", Quantity: 7}
	require.NoError(t, recordCache.Set(context.Background(), "P1", cached))

	rec, err := svc.Get(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 7, rec.Quantity)
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(newMockRepository(), newMockCache())

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_CacheFailure_FallsBackToStore(t *testing.T) {
	repo := newMockRepository()
	recordCache := newMockCache()
	recordCache.getErr = errors.New("redis down")
	svc, _ := newTestService(repo, recordCache)
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 5, "WH-A")
	require.NoError(t, err)

	rec, err := svc.Get(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Quantity)
}

func TestUpdate_AbsoluteSet(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 70, "WH-A")
	require.NoError(t, err)

	rec, err := svc.Update(ctx, "P1", 200, "recount")
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Quantity)

	movements := repo.movementsFor("P1")
	require.Len(t, movements, 2)
	assert.Equal(t, 130, movements[1].QuantityChange)
	assert.Equal(t, 200, movements[1].NewQuantity)
	assert.Equal(t, "recount", movements[1].Reason)
}

func TestUpdate_DefaultReason(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 10, "WH-A")
	require.NoError(t, err)

	_, err = svc.Update(ctx, "P1", 4, "")
	require.NoError(t, err)

	movements := repo.movementsFor("P1")
	require.Len(t, movements, 2)
	assert.Equal(t, -6, movements[1].QuantityChange)
	assert.Equal(t, "Manual update", movements[1].Reason)
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := newTestService(newMockRepository(), newMockCache())

	_, err := svc.Update(context.Background(), "missing", 10, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjust_Subtraction(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 100, "WH-A")
	require.NoError(t, err)

	rec, err := svc.Adjust(ctx, "P1", -30, "sold")
	require.NoError(t, err)
	assert.Equal(t, 70, rec.Quantity)

	movements := repo.movementsFor("P1")
	require.Len(t, movements, 2)
	assert.Equal(t, -30, movements[1].QuantityChange)
	assert.Equal(t, 70, movements[1].NewQuantity)
	assert.Equal(t, "sold", movements[1].Reason)
}

func TestAdjust_InsufficientStock(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 70, "WH-A")
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, "P1", -1000, "x")
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "current quantity 70")
	assert.Contains(t, err.Error(), "requested change -1000")
	assert.Contains(t, err.Error(), "would result in -930")

	// Rejected before any write: quantity unchanged, no movement appended.
	assert.Equal(t, 70, repo.quantity(t, "P1"))
	assert.Len(t, repo.movementsFor("P1"), 1)
}

func TestAdjust_NotFound(t *testing.T) {
	svc, _ := newTestService(newMockRepository(), newMockCache())

	_, err := svc.Adjust(context.Background(), "missing", 5, "restock")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjust_RetriesOnConflict(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 100, "WH-A")
	require.NoError(t, err)

	repo.mu.Lock()
	repo.casConflicts = 2
	repo.mu.Unlock()

	rec, err := svc.Adjust(ctx, "P1", -10, "sold")
	require.NoError(t, err)
	assert.Equal(t, 90, rec.Quantity)
}

func TestAdjust_ConflictExhaustion(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 100, "WH-A")
	require.NoError(t, err)

	repo.mu.Lock()
	repo.casConflicts = 3
	repo.mu.Unlock()

	_, err = svc.Adjust(ctx, "P1", -10, "sold")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 100, repo.quantity(t, "P1"))
	assert.Len(t, repo.movementsFor("P1"), 1)
}

func TestAdjust_ConcurrentNeverOversells(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 100, "WH-A")
	require.NoError(t, err)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Adjust(ctx, "P1", -60, "flash sale")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var failures, successes int
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		failures++
		assert.True(t,
			errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrConflict),
			"unexpected error: %v", err)
	}

	// Only one -60 can fit into 100; the final quantity is never negative
	// and never double-decremented.
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
	assert.Equal(t, 40, repo.quantity(t, "P1"))
}

func TestLedgerReplaysToCurrentQuantity(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 100, "WH-A")
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, "P1", -30, "sold")
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, "P1", 15, "restock")
	require.NoError(t, err)
	_, err = svc.Update(ctx, "P1", 200, "recount")
	require.NoError(t, err)

	var sum int
	for _, mv := range repo.movementsFor("P1") {
		sum += mv.QuantityChange
	}
	assert.Equal(t, repo.quantity(t, "P1"), sum)
}

func TestMovementAppendFailure_ReportedNotSwallowed(t *testing.T) {
	repo := newMockRepository()
	svc, metrics := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 100, "WH-A")
	require.NoError(t, err)

	repo.mu.Lock()
	repo.appendErr = errors.New("movements collection unavailable")
	repo.mu.Unlock()

	// The record write committed, so the adjustment still succeeds; the
	// missing ledger entry is reported via the failure counter.
	rec, err := svc.Adjust(ctx, "P1", -10, "sold")
	require.NoError(t, err)
	assert.Equal(t, 90, rec.Quantity)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LedgerWriteFailures))
}

func TestList_RetriesTransientReadError(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 10, "WH-A")
	require.NoError(t, err)

	repo.mu.Lock()
	repo.findErr = errors.New("transient network error")
	repo.findErrOnce = true
	repo.mu.Unlock()

	records, total, err := svc.List(ctx, 0, 20, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, records, 1)
}

func TestList_FilterByProduct(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 10, "WH-A")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "P2", 20, "WH-B")
	require.NoError(t, err)

	records, total, err := svc.List(ctx, 0, 20, "P2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, "P2", records[0].ProductID)
}

func TestMutationsInvalidateCache(t *testing.T) {
	repo := newMockRepository()
	recordCache := newMockCache()
	svc, _ := newTestService(repo, recordCache)
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 100, "WH-A")
	require.NoError(t, err)

	require.NoError(t, recordCache.Set(ctx, "P1", &domain.InventoryRecord{ProductID: "P1", Quantity: 100}))
	_, err = svc.Adjust(ctx, "P1", -1, "sold")
	require.NoError(t, err)
	assert.False(t, recordCache.cached("P1"))

	require.NoError(t, recordCache.Set(ctx, "P1", &domain.InventoryRecord{ProductID: "P1", Quantity: 99}))
	_, err = svc.Update(ctx, "P1", 50, "")
	require.NoError(t, err)
	assert.False(t, recordCache.cached("P1"))
}

func TestMovements_ReturnsAuditTrail(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo, newMockCache())
	ctx := context.Background()

	_, err := svc.Create(ctx, "P1", 100, "WH-A")
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, "P1", -25, "sold")
	require.NoError(t, err)

	movements, err := svc.Movements(ctx, "P1", 100)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, 100, movements[0].QuantityChange)
	assert.Equal(t, -25, movements[1].QuantityChange)
}
