package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/pkordes/eventsync/internal/domain"
	"github.com/pkordes/eventsync/internal/metrics"
)

const (
	msgDateEqualsOriginal = "Each date must be different from the original event's date and time"
	msgDuplicateDate      = "Each date must be unique"
)

// RecurrenceEngine keeps the recurrence children of an event in 1:1
// correspondence with its further dates. Children are never edited: every
// rebuild deletes all of them first and recreates the set.
type RecurrenceEngine struct {
	st        Stores
	dates     *DateService
	locations *LocationSync
	metrics   *metrics.Metrics
	logger    *slog.Logger
	locks     keyedMutex
}

// NewRecurrenceEngine constructs a RecurrenceEngine.
func NewRecurrenceEngine(st Stores, dates *DateService, locations *LocationSync, m *metrics.Metrics, logger *slog.Logger) *RecurrenceEngine {
	return &RecurrenceEngine{st: st, dates: dates, locations: locations, metrics: m, logger: orDefault(logger)}
}

// OnSave rebuilds the recurrences of a saved event using c.FurtherDates
// when submitted. Unless c is nested, every linked translation is rebuilt
// afterwards from its own stored further dates.
//
// Further dates that do not parse are reported in the returned error but
// do not stop the cascade; any other failure does.
func (e *RecurrenceEngine) OnSave(ctx context.Context, id uuid.UUID, c Cascade) error {
	var skipped error
	if err := e.Rebuild(ctx, id, c.FurtherDates); err != nil {
		if !errors.Is(err, domain.ErrInvalidDateFormat) {
			return fmt.Errorf("service.RecurrenceEngine.OnSave: %w", err)
		}
		skipped = err
	}
	if c.Nested {
		return wrapSkipped(skipped)
	}

	peers, err := e.st.Translations.Translations(ctx, id)
	if err != nil {
		return fmt.Errorf("service.RecurrenceEngine.OnSave: %w", err)
	}
	for _, lang := range sortedKeys(peers) {
		peer := peers[lang]
		if peer == id {
			continue
		}
		if err := e.Rebuild(ctx, peer, nil); err != nil {
			err = fmt.Errorf("translation %s: %w", lang, err)
			if !errors.Is(err, domain.ErrInvalidDateFormat) {
				return fmt.Errorf("service.RecurrenceEngine.OnSave: %w", err)
			}
			skipped = multierr.Append(skipped, err)
		}
	}
	return wrapSkipped(skipped)
}

func wrapSkipped(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("service.RecurrenceEngine.OnSave: %w", err)
}

// Rebuild deletes every recurrence of an event and, if the event is
// visible, creates one recurrence per further date. A non-nil submitted
// list replaces the stored one; both happen under the event lock, so the
// stored list and the recurrences always come from the same save.
//
// A further date that does not parse is skipped and reported in the
// returned error as domain.ErrInvalidDateFormat; recurrences created for
// other entries are kept. A store failure aborts the remaining entries and
// is returned on its own.
func (e *RecurrenceEngine) Rebuild(ctx context.Context, id uuid.UUID, submitted []string) error {
	defer e.metrics.ObserveRebuild(time.Now())

	unlock := e.locks.Lock(id)
	defer unlock()

	parent, err := e.st.Records.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("service.RecurrenceEngine.Rebuild: %w", err)
	}
	if !parent.IsOriginalEvent() {
		return fmt.Errorf("service.RecurrenceEngine.Rebuild: %w: %s is a %s, not an event",
			domain.ErrMissingPrerequisite, id, parent.Type)
	}

	if submitted != nil {
		if err := e.st.Fields.SetFurtherDates(ctx, id, submitted); err != nil {
			return fmt.Errorf("service.RecurrenceEngine.Rebuild: %w", err)
		}
	}
	if err := e.deleteChildren(ctx, id); err != nil {
		return fmt.Errorf("service.RecurrenceEngine.Rebuild: %w", err)
	}
	if !parent.Status.Visible() {
		return nil
	}

	dates := submitted
	if dates == nil {
		if dates, err = e.st.Fields.FurtherDates(ctx, id); err != nil {
			return fmt.Errorf("service.RecurrenceEngine.Rebuild: %w", err)
		}
	}
	fields, err := e.st.Fields.All(ctx, id)
	if err != nil {
		return fmt.Errorf("service.RecurrenceEngine.Rebuild: %w", err)
	}
	tags, err := e.st.Terms.TagSets(ctx, id)
	if err != nil {
		return fmt.Errorf("service.RecurrenceEngine.Rebuild: %w", err)
	}
	tags = tags.Without(domain.TaxonomyTranslations)

	var (
		errs    error
		created int
		seen    = map[string]bool{}
	)
	for i, raw := range dates {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		date, err := e.dates.Normalize(raw)
		if err != nil {
			e.metrics.RecurrenceEntryFailed()
			e.logger.WarnContext(ctx, "skipping further date", "event_id", id, "index", i, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("further date %d: %w", i, err))
			continue
		}
		if seen[date] {
			continue
		}
		seen[date] = true

		if err := e.createRecurrence(ctx, parent, date, fields, tags); err != nil {
			e.metrics.RecurrencesCreated(created)
			return fmt.Errorf("service.RecurrenceEngine.Rebuild: %w", err)
		}
		created++
	}
	e.metrics.RecurrencesCreated(created)
	e.logger.DebugContext(ctx, "recurrences rebuilt", "event_id", id, "created", created)

	if errs != nil {
		return fmt.Errorf("service.RecurrenceEngine.Rebuild: %w", errs)
	}
	return nil
}

// DeleteRecurrences removes every recurrence of an original event. It is a
// no-op for any other record, recurrences being leaves.
func (e *RecurrenceEngine) DeleteRecurrences(ctx context.Context, id uuid.UUID) error {
	rec, err := e.st.Records.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("service.RecurrenceEngine.DeleteRecurrences: %w", err)
	}
	if !rec.IsOriginalEvent() {
		return nil
	}

	unlock := e.locks.Lock(id)
	defer unlock()

	if err := e.deleteChildren(ctx, id); err != nil {
		return fmt.Errorf("service.RecurrenceEngine.DeleteRecurrences: %w", err)
	}
	return nil
}

// ValidateFurtherDates checks submitted further dates against the primary
// date-time and each other. Values are compared after normalization. The
// returned errors are *domain.FieldError values.
func (e *RecurrenceEngine) ValidateFurtherDates(primary string, dates []string) error {
	primaryNorm, err := e.dates.Normalize(primary)
	if err != nil {
		primaryNorm = strings.TrimSpace(primary)
	}

	seen := map[string]bool{}
	for i, raw := range dates {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		date, err := e.dates.Normalize(raw)
		if err != nil {
			return &domain.FieldError{Field: "further_dates", Index: i, Kind: domain.ErrInvalidDateFormat, Message: err.Error()}
		}
		if date == primaryNorm {
			return &domain.FieldError{Field: "further_dates", Index: i, Kind: domain.ErrDateEqualsOriginal, Message: msgDateEqualsOriginal}
		}
		if seen[date] {
			return &domain.FieldError{Field: "further_dates", Index: i, Kind: domain.ErrDuplicateDate, Message: msgDuplicateDate}
		}
		seen[date] = true
	}
	return nil
}

func (e *RecurrenceEngine) deleteChildren(ctx context.Context, id uuid.UUID) error {
	children, err := e.st.Records.Children(ctx, id, domain.TypeRecurrence)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := e.st.Records.Delete(ctx, child); err != nil {
			return fmt.Errorf("delete recurrence %s: %w", child, err)
		}
	}
	e.metrics.RecurrencesDeleted(len(children))
	return nil
}

func (e *RecurrenceEngine) createRecurrence(ctx context.Context, parent domain.Record, date string, fields domain.Fields, tags domain.TagSets) error {
	pid := parent.ID
	child, err := e.st.Records.Create(ctx, domain.Record{
		Type:     domain.TypeRecurrence,
		Title:    parent.Title,
		Slug:     recurrenceSlug(parent.Slug, date),
		Status:   parent.Status,
		ParentID: &pid,
	})
	if err != nil {
		return fmt.Errorf("create recurrence %s: %w", date, err)
	}

	copied := fields.Clone()
	copied[domain.FieldDateTime] = date
	if err := e.st.Fields.SetMany(ctx, child.ID, copied); err != nil {
		return fmt.Errorf("copy fields to %s: %w", child.ID, err)
	}
	for _, tax := range tags.Taxonomies() {
		if err := e.st.Terms.SetTerms(ctx, child.ID, tax, tags[tax]); err != nil {
			return fmt.Errorf("copy %s terms to %s: %w", tax, child.ID, err)
		}
	}
	return e.locations.SyncEvent(ctx, child.ID)
}

// recurrenceSlug derives a collision-free slug from the parent slug and the date.
func recurrenceSlug(parentSlug, date string) string {
	sum := md5.Sum([]byte(date))
	return parentSlug + "-" + hex.EncodeToString(sum[:])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
