package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"surveyentry/internal/auth"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector records per-route request metrics and writes one access log entry per request.
type Collector struct {
	logger   *zap.Logger
	gatherer prometheus.Gatherer

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	uptime   prometheus.GaugeFunc
}

// NewCollector registers HTTP metrics with reg, plus connection pool stats when db is set.
func NewCollector(reg *prometheus.Registry, db *sql.DB, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	startedAt := time.Now()
	c := &Collector{
		logger:   logger,
		gatherer: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "surveyentry_http_requests_total",
			Help: "HTTP requests by method, normalized path and status",
		}, []string{"method", "path", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "surveyentry_http_request_duration_seconds",
			Help:    "HTTP request latency by method and normalized path",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		uptime: f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "surveyentry_uptime_seconds",
			Help: "Seconds since the collector was created",
		}, func() float64 { return time.Since(startedAt).Seconds() }),
	}
	if db != nil {
		reg.MustRegister(collectors.NewDBStatsCollector(db, "surveyentry"))
	}
	return c
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r = r.WithContext(auth.WithOperatorSlot(r.Context()))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		path := normalizedPath(r.URL.Path)
		c.requests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		c.latency.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())

		operatorID := int64(0)
		if op, ok := auth.SlotOperator(r.Context()); ok {
			operatorID = op.ID
		}
		c.logger.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int64("operator_id", operatorID),
			zap.Int64("administration_id", extractAdministrationID(r.URL.Path)),
			zap.String("method", r.Method),
			zap.String("path", path),
			zap.Int("status", rec.status),
			zap.Float64("latency_ms", float64(elapsed.Microseconds())/1000.0),
			zap.String("remote_ip", strings.TrimSpace(r.RemoteAddr)),
		)
	})
}

func (c *Collector) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func extractAdministrationID(path string) int64 {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "administrations" {
			if id, err := strconv.ParseInt(parts[i+1], 10, 64); err == nil {
				return id
			}
		}
	}
	return 0
}
