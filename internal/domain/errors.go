package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. missing title, duplicate further date).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrInvalidDateFormat is returned when a date-time does not parse in the
// canonical "YYYY-MM-DD HH:MM:SS" pattern. During a recurrence rebuild it
// aborts only the entry being processed.
var ErrInvalidDateFormat = errors.New("invalid date format")

// ErrDuplicateDate is returned when two further dates of one submission are equal.
var ErrDuplicateDate = errors.New("duplicate date")

// ErrDateEqualsOriginal is returned when a further date equals the event's
// primary date and time.
var ErrDateEqualsOriginal = errors.New("date equals original")

// ErrMissingPrerequisite is returned when an operation is invoked on a record
// that cannot support it, e.g. a recurrence rebuild for a non-event.
var ErrMissingPrerequisite = errors.New("missing prerequisite")

// ErrWriteDenied is returned when a caller tries to write a field that has a
// single owning writer. The stored value is left untouched.
// Handlers should map this to HTTP 403.
var ErrWriteDenied = errors.New("write denied: field is managed by location sync")

// ErrDeletionDenied is returned when a location is trashed or deleted while
// events still reference it. Handlers should map this to HTTP 409.
var ErrDeletionDenied = errors.New("deletion denied: location has attached events")

// ErrTranslationCreateFailed is returned when cloning a record into a
// missing language fails. Clones created before the failure are kept.
var ErrTranslationCreateFailed = errors.New("translation create failed")

// FieldError is a validation failure tied to one submitted value.
// It matches both ErrValidation and Kind with errors.Is, and its Error text
// is the message shown to the editor.
type FieldError struct {
	Field   string
	Index   int
	Kind    error
	Message string
}

func (e *FieldError) Error() string { return e.Message }

// Unwrap exposes ErrValidation and the specific kind to errors.Is.
func (e *FieldError) Unwrap() []error { return []error{ErrValidation, e.Kind} }
