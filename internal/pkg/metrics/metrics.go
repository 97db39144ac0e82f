package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the rotation service
type Metrics struct {
	// Rotation cycle counters
	RotationsProcessedTotal prometheus.Counter
	RotationsFailedTotal    prometheus.Counter
	RotationsSkippedTotal   prometheus.Counter
	CyclesTotal             *prometheus.CounterVec
	CycleDurationSeconds    prometheus.Histogram

	// Quota ledger gauges
	QuotaUnitsUsed       prometheus.Gauge
	CircuitBreakerActive prometheus.Gauge

	// Platform API counters
	PlatformCallsTotal  *prometheus.CounterVec
	PlatformErrorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RotationsProcessedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "titlepulse_rotations_processed_total",
				Help: "Total number of successfully rotated campaigns",
			},
		),
		RotationsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "titlepulse_rotations_failed_total",
				Help: "Total number of failed campaign rotations",
			},
		),
		RotationsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "titlepulse_rotations_skipped_total",
				Help: "Total number of rotations skipped due to lock contention",
			},
		),
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "titlepulse_rotation_cycles_total",
				Help: "Total number of rotation cycles by outcome",
			},
			[]string{"outcome"},
		),
		CycleDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "titlepulse_rotation_cycle_duration_seconds",
				Help:    "Wall-clock duration of rotation cycles",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 120, 300},
			},
		),
		QuotaUnitsUsed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "titlepulse_quota_units_used",
				Help: "API units consumed against today's quota budget",
			},
		),
		CircuitBreakerActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "titlepulse_quota_circuit_breaker_active",
				Help: "Whether the global quota circuit breaker is tripped (0 or 1)",
			},
		),
		PlatformCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "titlepulse_platform_calls_total",
				Help: "Total YouTube API calls by operation",
			},
			[]string{"operation"},
		),
		PlatformErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "titlepulse_platform_errors_total",
				Help: "Total YouTube API call failures by operation",
			},
			[]string{"operation"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.RotationsProcessedTotal,
		m.RotationsFailedTotal,
		m.RotationsSkippedTotal,
		m.CyclesTotal,
		m.CycleDurationSeconds,
		m.QuotaUnitsUsed,
		m.CircuitBreakerActive,
		m.PlatformCallsTotal,
		m.PlatformErrorsTotal,
	)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
