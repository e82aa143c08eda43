package domain

import (
	"sort"

	"github.com/google/uuid"
)

// Event field names.
const (
	FieldDateTime         = "date_and_time"
	FieldDuration         = "duration"
	FieldLocationID       = "location_id"
	FieldLocationName     = "location_name"
	FieldLocationSortName = "location_sort_name"
	FieldQuickInfos       = "quick_infos"
	FieldExternalLink     = "external_link"
	FieldTicketLink       = "ticket_link"
)

// Location field names.
const (
	FieldSortName = "sort_name"
	FieldAddress  = "address"
	FieldArea     = "area"
	FieldTel      = "tel"
	FieldEmail    = "email"
	FieldWebsite  = "website"
	FieldMapsURL  = "maps_url"
)

// Reserved taxonomies.
const (
	// TaxonomyLanguage holds exactly one term per record: its language slug.
	TaxonomyLanguage = "language"
	// TaxonomyTranslations holds the translation group term shared by all
	// peers of a translation set. It is per-record and never copied.
	TaxonomyTranslations = "translations"
	// TaxonomyEventFilter is the classification taxonomy for events.
	TaxonomyEventFilter = "event_filter"
)

// TitleField returns the staging field holding the title to use when a
// translation into lang is generated.
func TitleField(lang string) string {
	return "_title_" + lang
}

// Fields is the flat set of named field values stored for one record.
type Fields map[string]string

// Clone returns a copy of f that can be modified independently.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Names returns the field names in f in ascending order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// TagSets maps a taxonomy name to the term ids attached to a record.
type TagSets map[string][]uuid.UUID

// Without returns a copy of t that omits the given taxonomies.
func (t TagSets) Without(taxonomies ...string) TagSets {
	out := make(TagSets, len(t))
	for tax, ids := range t {
		skip := false
		for _, x := range taxonomies {
			if tax == x {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		out[tax] = append([]uuid.UUID(nil), ids...)
	}
	return out
}

// Taxonomies returns the taxonomy names in t in ascending order.
func (t TagSets) Taxonomies() []string {
	names := make([]string, 0, len(t))
	for k := range t {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
