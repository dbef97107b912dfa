package instrument

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lattice-dev/lattice/pkg/cell"
	"github.com/lattice-dev/lattice/pkg/store"
)

// MetricsConfig configures the Prometheus instrumentation.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "lattice").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for effect run duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus instrumentation.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets for effect run duration.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "lattice",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// fanoutBuckets cover trigger fanout from a lone subscriber up to storms.
var fanoutBuckets = []float64{0, 1, 2, 4, 8, 16, 32, 64, 128}

// Collector holds the Prometheus instruments backing a set of graph hooks.
type Collector struct {
	cellSets          *prometheus.CounterVec
	trackedEdges      prometheus.Counter
	triggers          prometheus.Counter
	triggerFanout     prometheus.Histogram
	effectRuns        prometheus.Counter
	effectRunDuration prometheus.Histogram
	effectsStopped    prometheus.Counter
}

// newCollector registers the graph instruments with the configured registry.
func newCollector(config MetricsConfig) *Collector {
	factory := promauto.With(config.Registry)

	return &Collector{
		cellSets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cell_sets_total",
			Help:        "Total cell writes by result (changed or unchanged)",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		trackedEdges: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dependency_edges_total",
			Help:        "Total dependency edges recorded by effect runs",
			ConstLabels: config.ConstLabels,
		}),

		triggers: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "triggers_total",
			Help:        "Total triggers walked by the graph",
			ConstLabels: config.ConstLabels,
		}),

		triggerFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "trigger_fanout",
			Help:        "Subscriber snapshot size per trigger",
			ConstLabels: config.ConstLabels,
			Buckets:     fanoutBuckets,
		}),

		effectRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "effect_runs_total",
			Help:        "Total effect body executions",
			ConstLabels: config.ConstLabels,
		}),

		effectRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "effect_run_duration_seconds",
			Help:        "Effect body execution duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		effectsStopped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "effects_stopped_total",
			Help:        "Total effects stopped",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Prometheus builds graph hooks backed by Prometheus metrics and returns
// them together with the Collector holding the instruments.
//
// Metrics collected (with the default namespace):
//   - lattice_cell_sets_total: Counter of cell writes by result
//   - lattice_dependency_edges_total: Counter of recorded dependency edges
//   - lattice_triggers_total: Counter of graph triggers
//   - lattice_trigger_fanout: Histogram of subscribers per trigger
//   - lattice_effect_runs_total: Counter of effect body executions
//   - lattice_effect_run_duration_seconds: Histogram of effect run duration
//   - lattice_effects_stopped_total: Counter of stopped effects
//
// Each call registers a fresh set of instruments, so instrumenting several
// graphs against one registry needs either distinct subsystems or distinct
// registries via WithRegistry; duplicate registration panics, as usual with
// promauto.
//
// Example:
//
//	hooks, _ := instrument.Prometheus(instrument.WithNamespace("myapp"))
//	g := cell.NewGraph(cell.WithHooks(hooks))
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) (cell.Hooks, *Collector) {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	m := newCollector(config)

	return cell.Hooks{
		OnCellSet: func(cellID uint64, changed bool) {
			result := "unchanged"
			if changed {
				result = "changed"
			}
			m.cellSets.WithLabelValues(result).Inc()
		},
		OnTrack: func(effectID, targetID uint64, key string) {
			m.trackedEdges.Inc()
		},
		OnTrigger: func(targetID uint64, key string, fanout int) {
			m.triggers.Inc()
			m.triggerFanout.Observe(float64(fanout))
		},
		OnEffectRun: func(effectID uint64, d time.Duration) {
			m.effectRuns.Inc()
			m.effectRunDuration.Observe(d.Seconds())
		},
		OnEffectStop: func(effectID uint64) {
			m.effectsStopped.Inc()
		},
	}, m
}

// StoreCollector publishes registry-level metrics for one Store: a counter
// of change notifications and gauges for registered and dirty keys. The
// gauges read the store lazily at scrape time.
type StoreCollector struct {
	s             *store.Store
	notifications prometheus.Counter
	listenerID    cell.ListenerID
}

// CollectStore attaches a StoreCollector to the store. Close detaches it.
func CollectStore(s *store.Store, opts ...MetricsOption) *StoreCollector {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	c := &StoreCollector{
		s: s,
		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "store_notifications_total",
			Help:        "Total aggregate change notifications from the store",
			ConstLabels: config.ConstLabels,
		}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   config.Namespace,
		Subsystem:   config.Subsystem,
		Name:        "store_keys",
		Help:        "Number of keys registered in the store",
		ConstLabels: config.ConstLabels,
	}, func() float64 { return float64(s.Len()) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   config.Namespace,
		Subsystem:   config.Subsystem,
		Name:        "store_dirty_keys",
		Help:        "Number of keys whose dirty flag is set",
		ConstLabels: config.ConstLabels,
	}, func() float64 { return float64(len(s.ChangedKeys())) })

	c.listenerID = s.AddListener(func() { c.notifications.Inc() })
	return c
}

// Close detaches the collector's listener from the store. The registered
// instruments stay in the registry; gauge reads on a disposed store report
// zero.
func (c *StoreCollector) Close() {
	c.s.RemoveListener(c.listenerID)
}
