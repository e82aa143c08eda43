package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/eventsync/internal/metrics"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.RecurrencesCreated(2)
		m.RecurrencesDeleted(1)
		m.RecurrenceEntryFailed()
		m.ObserveRebuild(time.Now())
		m.EventResynced()
		m.TranslationCreated("en")
		m.WriteDenied("location_name")
		m.DeletionDenied()
		m.ArchiveQuery("calendar")
	})
}

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.RecurrencesCreated(2)
	m.RecurrencesCreated(1)
	m.WriteDenied("location_name")
	m.ArchiveQuery("")
	m.ObserveRebuild(time.Now())

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]int{}
	for _, f := range families {
		counts[f.GetName()] = len(f.GetMetric())
	}
	assert.Equal(t, 1, counts["eventsync_field_writes_denied_total"])
	assert.Equal(t, 1, counts["eventsync_archive_queries_total"])
	assert.Equal(t, 1, counts["eventsync_recurrence_rebuild_seconds"])

	n, err := testutil.GatherAndCount(reg, "eventsync_recurrences_created_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
