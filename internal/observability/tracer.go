package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ctxKey int

const traceIDKey ctxKey = iota

// TraceID returns the correlation id assigned to the request, or "unknown"
// outside the tracer middleware.
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// Tracer wraps every inbound request with a fresh correlation id, in-flight
// tracking, HTTP metrics and one structured log record per completed call.
// It observes and forwards; it never alters the handler's outcome.
type Tracer struct {
	metrics *Metrics
	logger  *zap.Logger
}

func NewTracer(metrics *Metrics, logger *zap.Logger) *Tracer {
	return &Tracer{metrics: metrics, logger: logger}
}

func (t *Tracer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := uuid.NewString()
		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		w.Header().Set("X-Trace-Id", traceID)

		method := r.Method
		path := r.URL.Path

		t.metrics.ActiveRequests.Inc()
		t.metrics.RequestsInFlight.WithLabelValues(method, path).Inc()

		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		requestSize := computeRequestSize(r)

		// Deferred so the exit path runs exactly once, panics included.
		defer func() {
			duration := time.Since(start)
			status := sw.Status()

			t.metrics.ActiveRequests.Dec()
			t.metrics.RequestsInFlight.WithLabelValues(method, path).Dec()

			statusLabel := strconv.Itoa(status)
			t.metrics.RequestsTotal.WithLabelValues(method, path, statusLabel).Inc()
			t.metrics.RequestDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
			t.metrics.RequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
			t.metrics.ResponseSize.WithLabelValues(method, path).Observe(float64(sw.written))

			t.logger.Info("request completed",
				zap.String("trace_id", traceID),
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status_code", status),
				zap.Duration("duration", duration),
				zap.Int64("request_size_bytes", requestSize),
				zap.Int64("response_size_bytes", sw.written),
			)
		}()

		next.ServeHTTP(sw, r.WithContext(ctx))
	})
}

// statusWriter captures the status code and bytes written by the handler.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Status reports the response code, defaulting to 500 when the handler never
// wrote one (e.g. it panicked before responding).
func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusInternalServerError
	}
	return w.status
}

func computeRequestSize(r *http.Request) int64 {
	size := int64(len(r.Method) + len(r.URL.String()))
	for name, values := range r.Header {
		for _, value := range values {
			size += int64(len(name) + len(value))
		}
	}
	if r.ContentLength > 0 {
		size += r.ContentLength
	}
	return size
}
