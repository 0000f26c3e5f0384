package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all prometheus metrics of the service.
type Metrics struct {
	registry *prometheus.Registry

	ImportsTotal         *prometheus.CounterVec
	ImportDuration       prometheus.Histogram
	EventsImported       prometheus.Counter
	ParseErrors          prometheus.Counter
	ScheduleChanges      *prometheus.CounterVec
	LifecycleTransitions *prometheus.CounterVec
	FetchesTotal         *prometheus.CounterVec
}

// New creates the metrics on a private registry so independent instances
// (tests, multiple services) never collide on registration.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ImportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_imports_total",
			Help:      "Schedule imports by outcome (success, failed, duplicate, rejected).",
		}, []string{"outcome"}),
		ImportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "schedule_import_duration_seconds",
			Help:      "Time taken to process a schedule import.",
			Buckets:   prometheus.DefBuckets,
		}),
		EventsImported: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_events_imported_total",
			Help:      "Cleaning events written into new schedule versions.",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_parse_errors_total",
			Help:      "Per-record normalization errors.",
		}),
		ScheduleChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_changes_total",
			Help:      "Diff entries between consecutive schedule versions.",
		}, []string{"type"}),
		LifecycleTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_transitions_total",
			Help:      "Lifecycle actions by action and result.",
		}, []string{"action", "result"}),
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_fetches_total",
			Help:      "Scheduled schedule-file fetches by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
