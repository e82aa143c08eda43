// Package service contains the business logic of the event engine: date
// handling, location denormalization, recurrence rebuilds, translation
// propagation and grouped archive queries.
// No SQL lives here; services depend on repo interfaces, not implementations.
package service

import (
	"log/slog"

	"github.com/pkordes/eventsync/internal/repo"
)

// Stores bundles the repositories shared by the engine components.
type Stores struct {
	Records      repo.RecordRepo
	Fields       repo.FieldRepo
	Terms        repo.TermRepo
	Translations repo.TranslationRepo
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
