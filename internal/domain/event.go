package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is the typed view of an event or recurrence record.
// LocationName and LocationSortName are derived and never authoritative.
type Event struct {
	Record
	DateTime         string
	Duration         string
	FurtherDates     []string
	LocationID       *uuid.UUID
	LocationName     string
	LocationSortName string
	Fields           Fields
}

// NewEvent builds an Event from a record and its stored field values.
func NewEvent(rec Record, fields Fields, furtherDates []string) Event {
	e := Event{
		Record:           rec,
		DateTime:         fields[FieldDateTime],
		Duration:         fields[FieldDuration],
		FurtherDates:     furtherDates,
		LocationName:     fields[FieldLocationName],
		LocationSortName: fields[FieldLocationSortName],
		Fields:           fields,
	}
	if id, err := uuid.Parse(fields[FieldLocationID]); err == nil {
		e.LocationID = &id
	}
	return e
}

// Location is the typed view of a location record.
type Location struct {
	Record
	SortName string
	Address  string
	Area     string
	Tel      string
	Email    string
	Website  string
	MapsURL  string
}

// NewLocation builds a Location from a record and its stored field values.
func NewLocation(rec Record, fields Fields) Location {
	return Location{
		Record:   rec,
		SortName: fields[FieldSortName],
		Address:  fields[FieldAddress],
		Area:     fields[FieldArea],
		Tel:      fields[FieldTel],
		Email:    fields[FieldEmail],
		Website:  fields[FieldWebsite],
		MapsURL:  fields[FieldMapsURL],
	}
}

// DisplaySortName is the explicit sort name, falling back to the title.
func (l Location) DisplaySortName() string {
	if l.SortName != "" {
		return l.SortName
	}
	return l.Title
}

// EventDate is one date of an event: the primary date or one recurrence.
// It is produced when listing an event's dates and never persisted.
type EventDate struct {
	Date      time.Time `json:"date"`
	RecordID  uuid.UUID `json:"record_id"`
	IsCurrent bool      `json:"is_current"`
}

// GroupedEvents is one bucket of an archive listing: a day or a location.
type GroupedEvents struct {
	Title   string      `json:"title"`
	Records []ResultRow `json:"records"`
}

// Term is a taxonomy term that can be attached to records.
// Identity within a taxonomy is determined by Slug.
type Term struct {
	ID        uuid.UUID `json:"id"`
	Taxonomy  string    `json:"taxonomy"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}
