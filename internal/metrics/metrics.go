// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletd"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	ledgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger engine operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	ledgerVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "volume_minor_units_total",
			Help:      "Minor units moved by committed ledger operations.",
		},
		[]string{"operation"},
	)

	authResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "resolutions_total",
			Help:      "Credential resolutions by principal kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Gateway webhook deliveries by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	sweeperRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "deposit_sweeps_total",
			Help:      "Stale deposit sweeper runs by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerOperations,
		ledgerVolume,
		authResolutions,
		webhookDeliveries,
		sweeperRuns,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency. The route label is the
// matched route pattern, never the raw path, so references in URLs do not
// blow up cardinality. statusOf maps a returned error to the status the
// application error handler will write; nil falls back to fiber.Error codes.
func Middleware(statusOf func(error) int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil && statusOf != nil {
			status = statusOf(err)
		} else if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		method := c.Method()
		httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return err
	}
}

// RecordLedgerOperation counts a ledger engine call. amount is only added to
// the volume counter when the operation committed a balance change.
func RecordLedgerOperation(operation, outcome string, amount int64) {
	ledgerOperations.WithLabelValues(operation, outcome).Inc()
	if outcome == "applied" && amount > 0 {
		ledgerVolume.WithLabelValues(operation).Add(float64(amount))
	}
}

// RecordAuthResolution counts a credential resolution attempt.
func RecordAuthResolution(kind, outcome string) {
	authResolutions.WithLabelValues(kind, outcome).Inc()
}

// RecordWebhook counts a webhook delivery.
func RecordWebhook(event, outcome string) {
	webhookDeliveries.WithLabelValues(event, outcome).Inc()
}

// RecordSweep counts a sweeper run.
func RecordSweep(outcome string) {
	sweeperRuns.WithLabelValues(outcome).Inc()
}
