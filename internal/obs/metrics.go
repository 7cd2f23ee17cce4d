package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the dashboard's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	refreshes        *prometheus.CounterVec
	refreshWaiters   prometheus.Histogram
	forcedLogouts    *prometheus.CounterVec
	accessRestricted prometheus.Counter
	landings         *prometheus.CounterVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers collectors on reg. Pass prometheus.NewRegistry() in tests.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_token_refreshes_total",
			Help: "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
		refreshWaiters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dashboard_token_refresh_waiters",
			Help:    "Requests parked behind a single in-flight refresh.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		}),
		forcedLogouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_forced_logouts_total",
			Help: "Sessions cleared because authentication could not be recovered.",
		}, []string{"reason"}),
		accessRestricted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_access_restricted_total",
			Help: "Upstream 403 responses surfaced as notices.",
		}),
		landings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_landings_total",
			Help: "Workspace resolutions by destination.",
		}, []string{"destination"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.refreshes,
		m.refreshWaiters,
		m.forcedLogouts,
		m.accessRestricted,
		m.landings,
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

// Refresh outcomes.
const (
	RefreshSucceeded = "succeeded"
	RefreshFailed    = "failed"
)

func (m *Metrics) ObserveRefresh(outcome string, waiters int) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
	m.refreshWaiters.Observe(float64(waiters))
}

func (m *Metrics) ForcedLogout(reason string) {
	if m == nil {
		return
	}
	m.forcedLogouts.WithLabelValues(reason).Inc()
}

func (m *Metrics) AccessRestricted() {
	if m == nil {
		return
	}
	m.accessRestricted.Inc()
}

func (m *Metrics) Landing(destination string) {
	if m == nil {
		return
	}
	m.landings.WithLabelValues(destination).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// GinMiddleware records RPS, latency and in-flight requests per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		m.httpInFlight.Inc()
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpInFlight.Dec()
	}
}
