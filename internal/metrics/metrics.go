// Package metrics provides Prometheus instrumentation for the
// settlement engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MarketsCreated counts markets created, partitioned by kind.
	MarketsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_markets_created_total",
		Help: "Total number of markets created",
	}, []string{"kind"})

	// TradesTotal counts trades executed, partitioned by side and direction.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_trades_total",
		Help: "Total number of trades executed",
	}, []string{"side", "direction"})

	// ResolutionsTotal counts terminal transitions by outcome.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_resolutions_total",
		Help: "Total number of terminal market transitions",
	}, []string{"outcome"})

	// ClaimsTotal counts settlement payouts (claims and void reclaims).
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_claims_total",
		Help: "Total number of settlement payouts",
	}, []string{"path"})

	// OracleSubmissions counts accepted oracle writes per adapter.
	OracleSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_oracle_submissions_total",
		Help: "Total accepted oracle value submissions",
	}, []string{"adapter"})

	// KeeperTickErrors counts failed keeper ticks per loop.
	KeeperTickErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_keeper_tick_errors_total",
		Help: "Keeper loop ticks that ended in error",
	}, []string{"keeper"})

	// WebSocketClients tracks connected event-stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settle_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settle_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
