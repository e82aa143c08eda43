// Package domain contains the core data types for the eventsync backend.
// This package depends only on uuid and is imported by every other internal
// package (repo, service, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordType identifies what kind of content a Record holds.
type RecordType string

const (
	// TypeEvent is an original, editor-owned event.
	TypeEvent RecordType = "event"
	// TypeRecurrence is a derived child of an event carrying one further date.
	TypeRecurrence RecordType = "recurrence"
	// TypeLocation is a physical place referenced by events.
	TypeLocation RecordType = "location"
)

// Valid reports whether t is one of the known record types.
func (t RecordType) Valid() bool {
	switch t {
	case TypeEvent, TypeRecurrence, TypeLocation:
		return true
	}
	return false
}

// IsEventLike reports whether records of this type carry event fields.
// Recurrences are event-like; only events are "original".
func (t RecordType) IsEventLike() bool {
	return t == TypeEvent || t == TypeRecurrence
}

// Status is the publication state of a Record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "publish"
	StatusScheduled Status = "future"
	StatusPrivate   Status = "private"
	StatusTrashed   Status = "trash"
)

// VisibleStatuses are the statuses for which derived data is maintained.
var VisibleStatuses = []Status{StatusPublished, StatusScheduled, StatusPrivate}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusScheduled, StatusPrivate, StatusTrashed:
		return true
	}
	return false
}

// Visible reports whether the status counts as visible (published, scheduled
// or private). Recurrences and translations are only built for visible records.
func (s Status) Visible() bool {
	for _, v := range VisibleStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Record is a typed entry in the content store.
// ParentID is nil for everything except recurrences.
type Record struct {
	ID        uuid.UUID  `json:"id"`
	Type      RecordType `json:"type"`
	Title     string     `json:"title"`
	Slug      string     `json:"slug"`
	Status    Status     `json:"status"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	Sticky    bool       `json:"sticky,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsOriginalEvent reports whether the record is an editor-owned event,
// as opposed to a recurrence or a location.
func (r Record) IsOriginalEvent() bool {
	return r.Type == TypeEvent
}
