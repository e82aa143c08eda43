// Package metrics exposes Prometheus counters for the derived-entity cascades.
// A nil *Metrics is valid and records nothing, so services can be built
// without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventsync"

// Metrics holds every collector the services report to.
type Metrics struct {
	recurrencesCreated  prometheus.Counter
	recurrencesDeleted  prometheus.Counter
	recurrenceErrors    prometheus.Counter
	rebuildDuration     prometheus.Histogram
	eventsResynced      prometheus.Counter
	translationsCreated *prometheus.CounterVec
	writesDenied        *prometheus.CounterVec
	deletionsDenied     prometheus.Counter
	groupedQueries      *prometheus.CounterVec
}

// New registers all collectors on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		recurrencesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "recurrences_created_total",
			Help: "Recurrence records created by rebuilds.",
		}),
		recurrencesDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "recurrences_deleted_total",
			Help: "Recurrence records deleted by rebuilds and parent deletions.",
		}),
		recurrenceErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "recurrence_entry_errors_total",
			Help: "Further dates skipped during a rebuild because they did not parse.",
		}),
		rebuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "recurrence_rebuild_seconds",
			Help:    "Duration of one recurrence rebuild.",
			Buckets: prometheus.DefBuckets,
		}),
		eventsResynced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "location_events_resynced_total",
			Help: "Event location fields recomputed by the location sync.",
		}),
		translationsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "translations_created_total",
			Help: "Translation clones created, by language.",
		}, []string{"language"}),
		writesDenied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "field_writes_denied_total",
			Help: "Rejected writes to single-writer fields, by field.",
		}, []string{"field"}),
		deletionsDenied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "location_deletions_denied_total",
			Help: "Location trash or delete requests vetoed because events reference them.",
		}),
		groupedQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "archive_queries_total",
			Help: "Archive listings served, by view.",
		}, []string{"view"}),
	}
}

func (m *Metrics) RecurrencesCreated(n int) {
	if m == nil {
		return
	}
	m.recurrencesCreated.Add(float64(n))
}

func (m *Metrics) RecurrencesDeleted(n int) {
	if m == nil {
		return
	}
	m.recurrencesDeleted.Add(float64(n))
}

func (m *Metrics) RecurrenceEntryFailed() {
	if m == nil {
		return
	}
	m.recurrenceErrors.Inc()
}

// ObserveRebuild records the time elapsed since start.
func (m *Metrics) ObserveRebuild(start time.Time) {
	if m == nil {
		return
	}
	m.rebuildDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) EventResynced() {
	if m == nil {
		return
	}
	m.eventsResynced.Inc()
}

func (m *Metrics) TranslationCreated(lang string) {
	if m == nil {
		return
	}
	m.translationsCreated.WithLabelValues(lang).Inc()
}

func (m *Metrics) WriteDenied(field string) {
	if m == nil {
		return
	}
	m.writesDenied.WithLabelValues(field).Inc()
}

func (m *Metrics) DeletionDenied() {
	if m == nil {
		return
	}
	m.deletionsDenied.Inc()
}

func (m *Metrics) ArchiveQuery(view string) {
	if m == nil {
		return
	}
	if view == "" {
		view = "default"
	}
	m.groupedQueries.WithLabelValues(view).Inc()
}
