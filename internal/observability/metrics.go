package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "seismic_locator"

// Metrics holds the Prometheus counters, histograms, and gauges for the locator.
type Metrics struct {
	CyclesTotal     prometheus.Counter
	CycleErrors     prometheus.Counter
	CycleDuration   prometheus.Histogram
	LocatorRunning  prometheus.Gauge
	PicksFetched    prometheus.Counter
	PicksDropped    prometheus.Counter
	ClustersFormed  prometheus.Counter
	SolveFailures   *prometheus.CounterVec // labels: reason={stations,geometry,convergence,outliers,other}
	OriginsSaved    prometheus.Counter
	OriginsPruned   prometheus.Counter
	PersistErrors   prometheus.Counter
	OriginRMS       prometheus.Histogram
	OutliersRemoved prometheus.Counter

	// Station registry cache.
	StationCacheSize  prometheus.Gauge
	StationRefreshes  *prometheus.CounterVec // labels: trigger={stale,unknown_station}
	StationRefreshErr prometheus.Counter

	// Origin notifications.
	Notifications *prometheus.CounterVec // labels: outcome={success,error}
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      help("Total poll cycles started."),
		}),
		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_errors_total",
			Help:      help("Poll cycles that ended with a storage error."),
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      help("Duration of a complete fetch-associate-solve-persist cycle."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		LocatorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      help("1 when the poll loop is active, 0 when shut down."),
		}),
		PicksFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "picks_fetched_total",
			Help:      help("Total P picks read within the lookback window."),
		}),
		PicksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "picks_dropped_total",
			Help:      help("Picks dropped because their station is not in the registry."),
		}),
		ClustersFormed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clusters_total",
			Help:      help("Candidate clusters produced by the associator."),
		}),
		SolveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solve_failures_total",
			Help:      help("Clusters the solver could not locate, by reason."),
		}, []string{"reason"}),
		OriginsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "origins_persisted_total",
			Help:      help("Origins inserted or updated."),
		}),
		OriginsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "origins_pruned_total",
			Help:      help("Origins deleted after losing picks to a newer solve."),
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      help("Origin persist transactions that failed."),
		}),
		OriginRMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "origin_rms_seconds",
			Help:      help("RMS residual of persisted origins."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3},
		}),
		OutliersRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outliers_rejected_total",
			Help:      help("Arrivals excluded from solutions as outliers."),
		}),
		StationCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "station_cache_size",
			Help:      help("Stations currently held in the registry cache."),
		}),
		StationRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_refreshes_total",
			Help:      help("Station registry reloads by trigger."),
		}, []string{"trigger"}),
		StationRefreshErr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_refresh_errors_total",
			Help:      help("Station registry reloads that failed."),
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      help("Origin notifications published, by outcome."),
		}, []string{"outcome"}),
	}
}

// NewMetrics creates and registers all locator metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleErrors,
		m.CycleDuration,
		m.LocatorRunning,
		m.PicksFetched,
		m.PicksDropped,
		m.ClustersFormed,
		m.SolveFailures,
		m.OriginsSaved,
		m.OriginsPruned,
		m.PersistErrors,
		m.OriginRMS,
		m.OutliersRemoved,
		m.StationCacheSize,
		m.StationRefreshes,
		m.StationRefreshErr,
		m.Notifications,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
