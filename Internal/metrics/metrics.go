package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for scan runs.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec   // labels: status
	CandidateCount *prometheus.GaugeVec     // labels: stage
	RejectedTotal  *prometheus.CounterVec   // labels: stage
	SetupsTotal    *prometheus.CounterVec   // labels: setup
	StageDuration  *prometheus.HistogramVec // labels: stage
	PicksLast      prometheus.Gauge
	ProviderErrors prometheus.Counter
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "momentum_scan_runs_total",
			Help: "Scan runs by outcome",
		}, []string{"status"}),
		CandidateCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "momentum_scan_candidates",
			Help: "Candidates remaining after each pipeline stage in the last run",
		}, []string{"stage"}),
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "momentum_scan_rejected_total",
			Help: "Candidates rejected by hard filters",
		}, []string{"stage"}),
		SetupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "momentum_scan_setups_total",
			Help: "Classified setups by tag",
		}, []string{"setup"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "momentum_scan_stage_duration_seconds",
			Help:    "Wall time per pipeline stage",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 60},
		}, []string{"stage"}),
		PicksLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "momentum_scan_picks",
			Help: "Picks produced by the last run",
		}),
		ProviderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "momentum_provider_errors_total",
			Help: "Failed calls to the market data provider",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "momentum_cache_hits_total",
			Help: "Daily bar cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "momentum_cache_misses_total",
			Help: "Daily bar cache misses",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RunsTotal,
		m.CandidateCount,
		m.RejectedTotal,
		m.SetupsTotal,
		m.StageDuration,
		m.PicksLast,
		m.ProviderErrors,
		m.CacheHits,
		m.CacheMisses,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records how long a stage took. Safe on a nil receiver.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetCandidates(stage string, n int) {
	if m == nil {
		return
	}
	m.CandidateCount.WithLabelValues(stage).Set(float64(n))
}

func (m *Metrics) AddRejected(stage string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RejectedTotal.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) IncSetup(setup string) {
	if m == nil {
		return
	}
	m.SetupsTotal.WithLabelValues(setup).Inc()
}

func (m *Metrics) IncRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetPicks(n int) {
	if m == nil {
		return
	}
	m.PicksLast.Set(float64(n))
}

func (m *Metrics) IncProviderError() {
	if m == nil {
		return
	}
	m.ProviderErrors.Inc()
}

func (m *Metrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
		return
	}
	m.CacheMisses.Inc()
}
