package service

import (
	"context"
	"fmt"

	"github.com/pkordes/eventsync/internal/domain"
)

// Querier executes a QuerySpec. repo.RecordRepo satisfies it.
type Querier interface {
	Query(ctx context.Context, spec domain.QuerySpec) ([]domain.ResultRow, error)
}

// GroupingEngine turns a probe page of bucket keys into complete buckets.
//
// The probe returns one row per day or location. The first and last key of
// the page bound a range; the full query is re-run without paging inside
// that range and its rows are partitioned in first-seen order.
type GroupingEngine struct {
	querier Querier
	dates   *DateService
}

// NewGroupingEngine constructs a GroupingEngine.
func NewGroupingEngine(q Querier, dates *DateService) *GroupingEngine {
	return &GroupingEngine{querier: q, dates: dates}
}

// Group runs probe and returns the buckets of its page. An empty probe
// yields no buckets and no second query.
func (g *GroupingEngine) Group(ctx context.Context, view string, probe domain.QuerySpec) ([]domain.GroupedEvents, error) {
	var keyColumn string
	switch view {
	case ViewCalendar:
		keyColumn = "day"
	case ViewLocations:
		keyColumn = domain.FieldLocationSortName
	default:
		return nil, fmt.Errorf("%w: view %q is not grouped", domain.ErrValidation, view)
	}

	keys, err := g.querier.Query(ctx, probe)
	if err != nil {
		return nil, fmt.Errorf("service.GroupingEngine.Group: probe: %w", err)
	}
	if len(keys) == 0 {
		return []domain.GroupedEvents{}, nil
	}
	first := keys[0].Values[keyColumn]
	last := keys[len(keys)-1].Values[keyColumn]

	full := probe
	full.Clauses = nil
	full.Unpaged = true
	full.Filters = append([]domain.FieldFilter{}, probe.Filters...)
	if view == ViewCalendar {
		full.Filters = append(full.Filters, domain.FieldFilter{
			Field: domain.FieldDateTime, Op: domain.OpBetween, Kind: domain.KindDate,
			Values: []string{first, last},
		})
	} else {
		full.Filters = append(full.Filters,
			domain.FieldFilter{Field: domain.FieldLocationSortName, Op: domain.OpGte, Kind: domain.KindText, Values: []string{first}},
			domain.FieldFilter{Field: domain.FieldLocationSortName, Op: domain.OpLte, Kind: domain.KindText, Values: []string{last}},
		)
	}

	rows, err := g.querier.Query(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("service.GroupingEngine.Group: %w", err)
	}

	titleOf := func(row domain.ResultRow) string { return row.Values[domain.FieldLocationName] }
	if view == ViewCalendar {
		titleOf = g.dayTitle
	}
	return partition(rows, titleOf), nil
}

func (g *GroupingEngine) dayTitle(row domain.ResultRow) string {
	raw := row.Values[domain.FieldDateTime]
	t, err := g.dates.Parse(raw)
	if err != nil {
		return raw
	}
	return g.dates.FormatDay(t)
}

// partition buckets rows by title in first-seen order.
func partition(rows []domain.ResultRow, titleOf func(domain.ResultRow) string) []domain.GroupedEvents {
	out := []domain.GroupedEvents{}
	index := map[string]int{}
	for _, row := range rows {
		title := titleOf(row)
		i, ok := index[title]
		if !ok {
			i = len(out)
			index[title] = i
			out = append(out, domain.GroupedEvents{Title: title})
		}
		out[i].Records = append(out[i].Records, row)
	}
	return out
}
