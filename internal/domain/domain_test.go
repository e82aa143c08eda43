package domain_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/pkordes/eventsync/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestNewPaginationParams_Defaults(t *testing.T) {
	p := domain.NewPaginationParams(nil, nil, 6)

	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 6, p.Limit)
	assert.Equal(t, 0, p.Offset())
}

func TestNewPaginationParams_Overrides(t *testing.T) {
	p := domain.NewPaginationParams(intPtr(3), intPtr(10), 6)

	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, 20, p.Offset())
}

func TestNewPaginationParams_CapsLimit(t *testing.T) {
	p := domain.NewPaginationParams(nil, intPtr(500), 6)

	assert.Equal(t, domain.MaxPageSize, p.Limit)
}

func TestNewPaginationParams_IgnoresNonPositive(t *testing.T) {
	p := domain.NewPaginationParams(intPtr(0), intPtr(-2), 6)

	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 6, p.Limit)
}

func TestStatus_Visible(t *testing.T) {
	assert.True(t, domain.StatusPublished.Visible())
	assert.True(t, domain.StatusScheduled.Visible())
	assert.True(t, domain.StatusPrivate.Visible())
	assert.False(t, domain.StatusDraft.Visible())
	assert.False(t, domain.StatusTrashed.Visible())
}

func TestTagSets_Without(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	sets := domain.TagSets{
		domain.TaxonomyEventFilter:  {a},
		domain.TaxonomyTranslations: {b},
	}

	got := sets.Without(domain.TaxonomyTranslations)

	assert.Equal(t, domain.TagSets{domain.TaxonomyEventFilter: {a}}, got)
	assert.Len(t, sets, 2, "source must not be modified")
}

func TestFieldAlias(t *testing.T) {
	assert.Equal(t, "f_date_and_time", domain.FieldAlias(domain.FieldDateTime))
	assert.Equal(t, "f__title_de", domain.FieldAlias("_title_de"))
	assert.Equal(t, "f_a_b", domain.FieldAlias("A-b"))
}

func TestQuerySpec_Fields_Dedupes(t *testing.T) {
	spec := domain.QuerySpec{
		Select:  []string{domain.FieldDateTime},
		Filters: []domain.FieldFilter{{Field: domain.FieldDateTime}, {Field: domain.FieldLocationName}},
		Sort:    []domain.SortField{{Field: domain.FieldLocationSortName}},
	}

	assert.Equal(t, []string{domain.FieldDateTime, domain.FieldLocationName, domain.FieldLocationSortName}, spec.Fields())
}

func TestFieldError_MatchesValidationAndKind(t *testing.T) {
	err := error(&domain.FieldError{Kind: domain.ErrDuplicateDate, Message: "Each date must be unique"})

	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.True(t, errors.Is(err, domain.ErrDuplicateDate))
	assert.False(t, errors.Is(err, domain.ErrDateEqualsOriginal))
	assert.Equal(t, "Each date must be unique", err.Error())
}

func TestLocation_DisplaySortName(t *testing.T) {
	loc := domain.NewLocation(domain.Record{Title: "Hall A"}, domain.Fields{})
	assert.Equal(t, "Hall A", loc.DisplaySortName())

	loc = domain.NewLocation(domain.Record{Title: "The Hall"}, domain.Fields{domain.FieldSortName: "Hall, The"})
	assert.Equal(t, "Hall, The", loc.DisplaySortName())
}

func TestNewEvent_ParsesLocationID(t *testing.T) {
	id := uuid.New()
	ev := domain.NewEvent(domain.Record{}, domain.Fields{domain.FieldLocationID: id.String()}, nil)
	if assert.NotNil(t, ev.LocationID) {
		assert.Equal(t, id, *ev.LocationID)
	}

	ev = domain.NewEvent(domain.Record{}, domain.Fields{domain.FieldLocationID: "garbage"}, nil)
	assert.Nil(t, ev.LocationID)
}
