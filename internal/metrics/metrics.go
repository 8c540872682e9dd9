package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lazypower/daybook/internal/engine"
	"github.com/lazypower/daybook/internal/model"
)

type ctxKey string

const routeLabelKey ctxKey = "metrics_route"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daybook_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daybook_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "daybook_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	storeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "daybook_store_latency_seconds",
		Help:    "Histogram of document store operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "collection", "route"})

	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daybook_mutations_total",
		Help: "Day document mutations by facet, operation and result.",
	}, []string{"facet", "op", "result"})

	colorAssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daybook_color_assignments_total",
		Help: "Palette colors assigned, by the generator stage that produced them.",
	}, []string{"stage"})
)

// Middleware records request metrics and stores the route label in the
// context for downstream instrumentation.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := context.WithValue(r.Context(), routeLabelKey, r.URL.Path)

			next.ServeHTTP(ww, r.WithContext(ctx))

			// The pattern is only known once chi has routed the request.
			route := routePattern(r)
			status := ww.Status()
			statusCode := strconv.Itoa(status)

			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, statusCode).Observe(time.Since(start).Seconds())
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(r.Method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStoreLatency records the latency of one store operation.
func ObserveStoreLatency(ctx context.Context, operation, collection string, start time.Time) {
	storeLatency.WithLabelValues(operation, collection, routeFromContext(ctx)).Observe(time.Since(start).Seconds())
}

// Observer feeds engine events into the mutation and color counters.
type Observer struct{}

var _ engine.Observer = Observer{}

func (Observer) Mutation(facet model.Facet, op engine.Op, result string) {
	mutationsTotal.WithLabelValues(string(facet), string(op), result).Inc()
}

func (Observer) ColorAssigned(stage engine.ColorStage) {
	colorAssignmentsTotal.WithLabelValues(string(stage)).Inc()
}

func routeFromContext(ctx context.Context) string {
	if route, ok := ctx.Value(routeLabelKey).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
