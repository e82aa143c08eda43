package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkordes/eventsync/internal/domain"
	"github.com/pkordes/eventsync/internal/metrics"
)

// DefaultPageSize is the archive page size when none is configured.
const DefaultPageSize = 6

// Archive views.
const (
	ViewDefault   = ""
	ViewCalendar  = "calendar"
	ViewLocations = "locations"
)

// archiveFields are selected for every listed record.
var archiveFields = []string{
	domain.FieldDateTime,
	domain.FieldDuration,
	domain.FieldLocationName,
	domain.FieldLocationSortName,
}

// ArchivePlanner builds the query for one archive view of published events.
type ArchivePlanner struct {
	dates    *DateService
	pageSize int
}

// NewArchivePlanner constructs an ArchivePlanner. pageSize <= 0 uses DefaultPageSize.
func NewArchivePlanner(dates *DateService, pageSize int) *ArchivePlanner {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &ArchivePlanner{dates: dates, pageSize: pageSize}
}

// PageSize is the limit used when a request does not set one.
func (a *ArchivePlanner) PageSize() int { return a.pageSize }

// Plan returns the query for view. The calendar and locations views carry a
// probe clause that returns one row per day or per location.
func (a *ArchivePlanner) Plan(view string, page domain.PaginationParams) (domain.QuerySpec, error) {
	if page.Limit <= 0 {
		page.Limit = a.pageSize
	}
	if page.Page < 1 {
		page.Page = 1
	}

	spec := domain.QuerySpec{
		Types:        []domain.RecordType{domain.TypeEvent},
		Statuses:     []domain.Status{domain.StatusPublished},
		Select:       archiveFields,
		Sort:         []domain.SortField{{Field: domain.FieldDateTime, Kind: domain.KindDateTime}},
		Page:         page,
		IgnoreSticky: true,
	}

	switch view {
	case ViewDefault:
	case ViewCalendar:
		spec.Types = eventLikeTypes
		spec.Filters = []domain.FieldFilter{{
			Field:  domain.FieldDateTime,
			Op:     domain.OpGte,
			Kind:   domain.KindDateTime,
			Values: []string{a.dates.Now().Format(time.DateTime)},
		}}
		spec.Clauses = &domain.RawClauses{
			Fields:  "to_char(NULLIF(f_date_and_time.value, '')::timestamp, 'YYYY-MM-DD') AS day",
			GroupBy: "day",
			OrderBy: "day ASC",
		}
	case ViewLocations:
		spec.Types = eventLikeTypes
		spec.Filters = []domain.FieldFilter{
			{Field: domain.FieldLocationSortName, Op: domain.OpPresent},
			{Field: domain.FieldLocationName, Op: domain.OpPresent},
		}
		spec.Sort = []domain.SortField{
			{Field: domain.FieldLocationSortName, Kind: domain.KindText},
			{Field: domain.FieldDateTime, Kind: domain.KindDateTime},
		}
		spec.Clauses = &domain.RawClauses{
			Fields:  "MIN(f_location_name.value) AS location_name, f_location_sort_name.value AS location_sort_name",
			GroupBy: "f_location_sort_name.value",
			OrderBy: "f_location_sort_name.value ASC",
		}
	default:
		return domain.QuerySpec{}, fmt.Errorf("%w: unknown view %q", domain.ErrValidation, view)
	}
	return spec, nil
}

// ArchivePage is one page of an archive view. Flat views fill Records,
// grouped views fill Groups.
type ArchivePage struct {
	View    string                 `json:"view"`
	Page    int                    `json:"page"`
	Limit   int                    `json:"limit"`
	Records []domain.ResultRow     `json:"records,omitempty"`
	Groups  []domain.GroupedEvents `json:"groups,omitempty"`
}

// ArchiveService serves archive listings: plan, execute, then group.
type ArchiveService struct {
	planner  *ArchivePlanner
	grouping *GroupingEngine
	querier  Querier
	metrics  *metrics.Metrics
}

// NewArchiveService constructs an ArchiveService.
func NewArchiveService(planner *ArchivePlanner, grouping *GroupingEngine, q Querier, m *metrics.Metrics) *ArchiveService {
	return &ArchiveService{planner: planner, grouping: grouping, querier: q, metrics: m}
}

// PageSize is the default page size of the archive.
func (s *ArchiveService) PageSize() int { return s.planner.PageSize() }

// List returns one page of view.
func (s *ArchiveService) List(ctx context.Context, view string, page domain.PaginationParams) (ArchivePage, error) {
	spec, err := s.planner.Plan(view, page)
	if err != nil {
		return ArchivePage{}, err
	}
	s.metrics.ArchiveQuery(view)

	out := ArchivePage{View: view, Page: spec.Page.Page, Limit: spec.Page.Limit}
	if !spec.Grouped() {
		rows, err := s.querier.Query(ctx, spec)
		if err != nil {
			return ArchivePage{}, fmt.Errorf("service.ArchiveService.List: %w", err)
		}
		out.Records = rows
		return out, nil
	}

	groups, err := s.grouping.Group(ctx, view, spec)
	if err != nil {
		return ArchivePage{}, fmt.Errorf("service.ArchiveService.List: %w", err)
	}
	out.Groups = groups
	return out, nil
}
