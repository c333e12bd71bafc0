// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dataspace"

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	otpEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "otp",
			Name:      "events_total",
			Help:      "One-time passcode events by flow and outcome",
		},
		[]string{"flow", "outcome"},
	)

	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "attempts_total",
			Help:      "Connection attempts by dialect and result category",
		},
		[]string{"dialect", "result"},
	)

	tableLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "table_loads_total",
			Help:      "Table fetches by dialect and outcome",
		},
		[]string{"dialect", "outcome"},
	)

	tableLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "table_load_duration_seconds",
			Help:      "Duration of single table fetches in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"dialect"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of live per-user sessions",
		},
	)
)

func init() {
	registerMetric(httpRequests)
	registerMetric(httpDuration)
	registerMetric(otpEvents)
	registerMetric(connectAttempts)
	registerMetric(tableLoads)
	registerMetric(tableLoadDuration)
	registerMetric(activeSessions)
}

// registerMetric registers collector, tolerating duplicate registration.
func registerMetric(collector prometheus.Collector) {
	if err := prometheus.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			panic(err)
		}
	}
}

// ObserveOTP counts an OTP event, e.g. flow "signup", outcome "issued".
func ObserveOTP(flow, outcome string) {
	otpEvents.WithLabelValues(flow, outcome).Inc()
}

// ObserveConnect counts a connection attempt. result is "ok" or a failure category.
func ObserveConnect(dialect, result string) {
	connectAttempts.WithLabelValues(dialect, result).Inc()
}

// ObserveTableLoad records one table fetch.
func ObserveTableLoad(dialect string, ok bool, elapsed time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	tableLoads.WithLabelValues(dialect, outcome).Inc()
	tableLoadDuration.WithLabelValues(dialect).Observe(elapsed.Seconds())
}

// SetActiveSessions publishes the current session count.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
