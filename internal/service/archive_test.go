package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/eventsync/internal/domain"
	"github.com/pkordes/eventsync/internal/metrics"
	"github.com/pkordes/eventsync/internal/service"
)

func TestArchivePlanner_DefaultView(t *testing.T) {
	p := service.NewArchivePlanner(fixedDates(), 0)

	spec, err := p.Plan(service.ViewDefault, domain.PaginationParams{Page: 2})

	require.NoError(t, err)
	assert.Equal(t, service.DefaultPageSize, p.PageSize())
	assert.Equal(t, domain.PaginationParams{Page: 2, Limit: 6}, spec.Page)
	assert.Equal(t, []domain.RecordType{domain.TypeEvent}, spec.Types)
	assert.Equal(t, []domain.Status{domain.StatusPublished}, spec.Statuses)
	assert.Equal(t, []domain.SortField{{Field: domain.FieldDateTime, Kind: domain.KindDateTime}}, spec.Sort)
	assert.True(t, spec.IgnoreSticky)
	assert.False(t, spec.Grouped())
}

func TestArchivePlanner_CalendarView(t *testing.T) {
	p := service.NewArchivePlanner(fixedDates(), 6)

	spec, err := p.Plan(service.ViewCalendar, domain.PaginationParams{})

	require.NoError(t, err)
	assert.True(t, spec.Grouped())
	assert.ElementsMatch(t, []domain.RecordType{domain.TypeEvent, domain.TypeRecurrence}, spec.Types)
	assert.Equal(t, []domain.FieldFilter{{
		Field: domain.FieldDateTime, Op: domain.OpGte, Kind: domain.KindDateTime,
		Values: []string{"2025-03-01 12:00:00"},
	}}, spec.Filters)
	assert.Equal(t, "day", spec.Clauses.GroupBy)
	assert.Contains(t, spec.Clauses.Fields, "AS day")
}

func TestArchivePlanner_LocationsView(t *testing.T) {
	p := service.NewArchivePlanner(fixedDates(), 6)

	spec, err := p.Plan(service.ViewLocations, domain.PaginationParams{})

	require.NoError(t, err)
	assert.True(t, spec.Grouped())
	assert.Equal(t, domain.FieldLocationSortName, spec.Sort[0].Field)
	assert.Equal(t, domain.FieldDateTime, spec.Sort[1].Field)
	for _, f := range spec.Filters {
		assert.Equal(t, domain.OpPresent, f.Op)
	}
	assert.Contains(t, spec.Clauses.Fields, "AS location_sort_name")
}

func TestArchivePlanner_UnknownView(t *testing.T) {
	_, err := service.NewArchivePlanner(fixedDates(), 6).Plan("week", domain.PaginationParams{})

	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestArchiveService_DefaultViewIsFlat(t *testing.T) {
	rows := []domain.ResultRow{row(map[string]string{domain.FieldDateTime: "2025-03-01 18:00:00"})}
	q := &mockQuerier{results: [][]domain.ResultRow{rows}}
	reg := prometheus.NewRegistry()
	svc := service.NewArchiveService(
		service.NewArchivePlanner(fixedDates(), 6),
		service.NewGroupingEngine(q, fixedDates()),
		q,
		metrics.New(reg),
	)

	got, err := svc.List(context.Background(), service.ViewDefault, domain.PaginationParams{Page: 1})

	require.NoError(t, err)
	assert.Equal(t, rows, got.Records)
	assert.Nil(t, got.Groups)
	assert.Equal(t, 6, got.Limit)
	assert.Len(t, q.calls, 1)

	n, err := testutil.GatherAndCount(reg, "eventsync_archive_queries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArchiveService_CalendarIsGrouped(t *testing.T) {
	q := &mockQuerier{results: [][]domain.ResultRow{
		{row(map[string]string{"day": "2025-03-05"})},
		{row(map[string]string{domain.FieldDateTime: "2025-03-05 19:00:00"})},
	}}
	svc := service.NewArchiveService(
		service.NewArchivePlanner(fixedDates(), 6),
		service.NewGroupingEngine(q, fixedDates()),
		q,
		nil,
	)

	got, err := svc.List(context.Background(), service.ViewCalendar, domain.PaginationParams{Page: 1})

	require.NoError(t, err)
	assert.Nil(t, got.Records)
	require.Len(t, got.Groups, 1)
	assert.Len(t, q.calls, 2)
}

// The flat view runs against the in-memory store end to end.
func TestArchiveService_DefaultViewOverStore(t *testing.T) {
	e := newEngine(t)
	late := concertInput()
	late.Title = "Late"
	late.Fields[domain.FieldDateTime] = "2025-05-01 18:00:00"
	late.FurtherDates = nil
	e.saveEvent(t, late)
	early := concertInput()
	early.Title = "Early"
	early.FurtherDates = nil
	e.saveEvent(t, early)
	draft := concertInput()
	draft.Title = "Draft"
	draft.Status = domain.StatusDraft
	e.saveEvent(t, draft)

	svc := service.NewArchiveService(service.NewArchivePlanner(e.dates, 6), service.NewGroupingEngine(e.store, e.dates), e.store, nil)
	got, err := svc.List(context.Background(), service.ViewDefault, domain.PaginationParams{Page: 1})

	require.NoError(t, err)
	require.Len(t, got.Records, 2)
	assert.Equal(t, "Early", got.Records[0].Record.Title)
	assert.Equal(t, "Late", got.Records[1].Record.Title)
}
