// Package metrics exposes Prometheus metrics and the /healthz probe.
package metrics

import (
	"time"

	"tokenwatch/internal/breaker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metrics for tokenwatch.
type Metrics struct {
	Registry *prometheus.Registry

	AnalysesTotal *prometheus.CounterVec // labels: result=ok|insufficient|error
	AlertsTotal   *prometheus.CounterVec // labels: result=sent|failed

	FetchDur    *prometheus.HistogramVec // labels: source
	FetchErrors *prometheus.CounterVec   // labels: source

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	BacktestRuns   prometheus.Counter
	BacktestEvents *prometheus.CounterVec // labels: action
	BacktestDur    prometheus.Histogram

	WatcherReconnects prometheus.Counter
	WatcherChanges    prometheus.Counter

	// Circuit breakers
	BreakerState *prometheus.GaugeVec   // labels: name; 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec // labels: name
}

// NewMetrics registers all metrics on a fresh registry that also carries
// the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenwatch_analyses_total",
			Help: "Contract analyses by outcome",
		}, []string{"result"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenwatch_alerts_total",
			Help: "Alerts by delivery outcome",
		}, []string{"result"}),

		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tokenwatch_fetch_duration_seconds",
			Help:    "Upstream fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenwatch_fetch_errors_total",
			Help: "Upstream fetch failures",
		}, []string{"source"}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenwatch_cache_hits_total",
			Help: "Record cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenwatch_cache_misses_total",
			Help: "Record cache misses",
		}),

		BacktestRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenwatch_backtest_runs_total",
			Help: "Completed backtest runs",
		}),
		BacktestEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenwatch_backtest_events_total",
			Help: "Simulated trade events by action",
		}, []string{"action"}),
		BacktestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tokenwatch_backtest_duration_seconds",
			Help:    "Backtest replay latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		WatcherReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenwatch_watcher_reconnects_total",
			Help: "Real-time watcher reconnection attempts",
		}),
		WatcherChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenwatch_watcher_changes_total",
			Help: "Account changes detected by the watcher",
		}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tokenwatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenwatch_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"name"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.AnalysesTotal,
		m.AlertsTotal,
		m.FetchDur,
		m.FetchErrors,
		m.CacheHits,
		m.CacheMisses,
		m.BacktestRuns,
		m.BacktestEvents,
		m.BacktestDur,
		m.WatcherReconnects,
		m.WatcherChanges,
		m.BreakerState,
		m.BreakerTrips,
	)
	return m
}

// ObserveFetch records one upstream call.
func (m *Metrics) ObserveFetch(source string, took time.Duration, err error) {
	m.FetchDur.WithLabelValues(source).Observe(took.Seconds())
	if err != nil {
		m.FetchErrors.WithLabelValues(source).Inc()
	}
}

// CacheLookup counts a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if hit {
		m.CacheHits.Inc()
		return
	}
	m.CacheMisses.Inc()
}

// Analysis counts an analysis outcome: "ok", "insufficient" or "error".
func (m *Metrics) Analysis(result string) {
	m.AnalysesTotal.WithLabelValues(result).Inc()
}

// Alert counts a delivery attempt.
func (m *Metrics) Alert(err error) {
	if err != nil {
		m.AlertsTotal.WithLabelValues("failed").Inc()
		return
	}
	m.AlertsTotal.WithLabelValues("sent").Inc()
}

// Backtest records a finished replay.
func (m *Metrics) Backtest(took time.Duration, buys, sells int) {
	m.BacktestRuns.Inc()
	m.BacktestDur.Observe(took.Seconds())
	m.BacktestEvents.WithLabelValues("buy").Add(float64(buys))
	m.BacktestEvents.WithLabelValues("sell").Add(float64(sells))
}

// BreakerChanged matches breaker.Breaker.OnStateChange.
func (m *Metrics) BreakerChanged(name string, _, to breaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
	if to == breaker.StateOpen {
		m.BreakerTrips.WithLabelValues(name).Inc()
	}
}
