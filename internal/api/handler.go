package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rmaksim/inventory-service/internal/domain"
	"github.com/rmaksim/inventory-service/internal/observability"
	"github.com/rmaksim/inventory-service/internal/service"
)

const movementsPageLimit = 100

// InventoryEngine is the engine contract the handlers depend on.
// Consumers define this interface, not the service implementation.
type InventoryEngine interface {
	Create(ctx context.Context, productID string, quantity int, warehouseLocation string) (*domain.InventoryRecord, error)
	Get(ctx context.Context, productID string) (*domain.InventoryRecord, error)
	List(ctx context.Context, skip, limit int, productID string) ([]domain.InventoryRecord, int64, error)
	Update(ctx context.Context, productID string, quantity int, reason string) (*domain.InventoryRecord, error)
	Adjust(ctx context.Context, productID string, delta int, reason string) (*domain.InventoryRecord, error)
	Movements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)
	Ping(ctx context.Context) error
}

type Handler struct {
	engine          InventoryEngine
	logger          *zap.Logger
	environment     string
	defaultPageSize int
	maxPageSize     int
	timeout         time.Duration
}

func NewHandler(engine InventoryEngine, logger *zap.Logger, environment string, defaultPageSize, maxPageSize int, timeout time.Duration) *Handler {
	return &Handler{
		engine:          engine,
		logger:          logger,
		environment:     environment,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		timeout:         timeout,
	}
}

type paginatedResponse struct {
	CurrentPage int                      `json:"current_page"`
	PerPage     int                      `json:"per_page"`
	Total       int64                    `json:"total"`
	LastPage    int64                    `json:"last_page"`
	Data        []domain.InventoryRecord `json:"data"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, limit, violations := h.parsePagination(r)
	if len(violations) > 0 {
		h.respondViolations(w, violations)
		return
	}

	productID := r.URL.Query().Get("product_id")
	skip := (page - 1) * limit

	records, total, err := h.engine.List(ctx, skip, limit, productID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.InventoryRecord{}
	}

	lastPage := int64(1)
	if total > 0 {
		lastPage = (total + int64(limit) - 1) / int64(limit)
	}

	h.respondJSON(w, http.StatusOK, paginatedResponse{
		CurrentPage: page,
		PerPage:     limit,
		Total:       total,
		LastPage:    lastPage,
		Data:        records,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.engine.Get(ctx, chi.URLParam(r, "product_id"))
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, rec)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if violations := validateCreate(req); len(violations) > 0 {
		h.respondViolations(w, violations)
		return
	}

	rec, err := h.engine.Create(ctx, req.ProductID, *req.Quantity, req.WarehouseLocation)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, rec)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if violations := validateUpdate(req); len(violations) > 0 {
		h.respondViolations(w, violations)
		return
	}

	rec, err := h.engine.Update(ctx, chi.URLParam(r, "product_id"), *req.Quantity, req.Reason)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, rec)
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if violations := validateAdjust(req); len(violations) > 0 {
		h.respondViolations(w, violations)
		return
	}

	rec, err := h.engine.Adjust(ctx, chi.URLParam(r, "product_id"), *req.Quantity, req.Reason)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, rec)
}

func (h *Handler) Movements(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	movements, err := h.engine.Movements(ctx, chi.URLParam(r, "product_id"), movementsPageLimit)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	if movements == nil {
		movements = []domain.StockMovement{}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"data": movements})
}

type healthResponse struct {
	Status      string    `json:"status"`
	Environment string    `json:"environment"`
	Database    string    `json:"database"`
	Timestamp   time.Time `json:"timestamp"`
}

// Health always answers 200; a failed store ping degrades the status instead
// of failing the endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, database := "healthy", "connected"
	if err := h.engine.Ping(ctx); err != nil {
		h.logger.Error("database health check failed", zap.Error(err))
		status, database = "degraded", "disconnected"
	}

	h.respondJSON(w, http.StatusOK, healthResponse{
		Status:      status,
		Environment: h.environment,
		Database:    database,
		Timestamp:   time.Now().UTC(),
	})
}

func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.engine.Ping(ctx); err != nil {
		h.logger.Error("readiness check failed", zap.Error(err))
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": "disconnected",
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "connected",
	})
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service":     "inventory-service",
		"version":     "1.0.0",
		"status":      "running",
		"environment": h.environment,
		"metrics":     "/metrics",
		"health": map[string]string{
			"liveness":  "/health/live",
			"readiness": "/health/ready",
		},
	})
}

func (h *Handler) parsePagination(r *http.Request) (page, limit int, violations []FieldViolation) {
	page, limit = 1, h.defaultPageSize
	query := r.URL.Query()

	if raw := query.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			violations = append(violations, FieldViolation{Field: "page", Message: "page must be an integer >= 1"})
		} else {
			page = n
		}
	}
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > h.maxPageSize {
			violations = append(violations, FieldViolation{
				Field:   "limit",
				Message: "limit must be an integer between 1 and " + strconv.Itoa(h.maxPageSize),
			})
		} else {
			limit = n
		}
	}
	return page, limit, violations
}

// respondEngineError maps engine failures to HTTP statuses. Unexpected errors
// return a generic message carrying the correlation id; the detail stays in
// the server log.
func (h *Handler) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrAlreadyExists):
		h.respondError(w, http.StatusBadRequest, "already_exists", err.Error())
	case errors.Is(err, service.ErrInsufficientStock):
		h.respondError(w, http.StatusBadRequest, "insufficient_stock", err.Error())
	case errors.Is(err, service.ErrConflict):
		h.respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusServiceUnavailable, "store_unavailable", "store operation timed out, please retry")
	default:
		traceID := observability.TraceID(r.Context())
		h.logger.Error("unhandled engine error",
			zap.String("trace_id", traceID),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		h.respondJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal server error - please try again later",
			Code:    "internal_error",
			TraceID: traceID,
		})
	}
}
