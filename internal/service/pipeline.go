package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/pkordes/eventsync/internal/domain"
	"github.com/pkordes/eventsync/internal/metrics"
)

// maxRuleDates caps how many further dates one RRULE may expand into.
const maxRuleDates = 100

// Cascade is the state of one save as it moves through the stages.
type Cascade struct {
	// FurtherDates are the dates submitted with the save. nil means the
	// stored list is authoritative.
	FurtherDates []string

	// Nested marks a run started by another stage for a record it just
	// created. Nested runs touch only that record: no translation cascade
	// and no translation creation.
	Nested bool
}

// SaveInput is one editor submission for an event or a location.
type SaveInput struct {
	// ID selects the record to update. nil creates a new record.
	ID     *uuid.UUID
	Type   domain.RecordType
	Title  string
	Status domain.Status
	Sticky bool

	// Fields are merged into the stored fields; unnamed fields are kept.
	Fields domain.Fields

	// FurtherDates replaces the stored list when non-nil.
	FurtherDates []string

	// FurtherDatesRule is an optional RRULE whose occurrences after the
	// primary date are appended to FurtherDates.
	FurtherDatesRule string

	// Terms maps a classification taxonomy to term names. Each named
	// taxonomy is replaced; the language and translations taxonomies are
	// reserved.
	Terms map[string][]string

	// Language assigns the record's language. Empty keeps the stored one,
	// or uses the default for new records.
	Language string
}

// SavePipeline persists editor submissions and runs the derived-data stages
// in a fixed order: LocationSync, RecurrenceEngine, TranslationSync.
type SavePipeline struct {
	st           Stores
	dates        *DateService
	locations    *LocationSync
	recurrences  *RecurrenceEngine
	translations *TranslationSync
	guard        *FieldGuard
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewSavePipeline wires the stages together.
func NewSavePipeline(
	st Stores,
	dates *DateService,
	locations *LocationSync,
	recurrences *RecurrenceEngine,
	translations *TranslationSync,
	guard *FieldGuard,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SavePipeline {
	return &SavePipeline{
		st:           st,
		dates:        dates,
		locations:    locations,
		recurrences:  recurrences,
		translations: translations,
		guard:        guard,
		metrics:      m,
		logger:       orDefault(logger),
	}
}

// Save validates and persists a submission, then runs every stage for it.
// Returns domain.ErrValidation (or a *domain.FieldError) for bad input,
// domain.ErrWriteDenied for owned fields and domain.ErrNotFound for an
// unknown ID.
func (p *SavePipeline) Save(ctx context.Context, in SaveInput) (domain.Record, error) {
	var existing *domain.Record
	if in.ID != nil {
		rec, err := p.st.Records.GetByID(ctx, *in.ID)
		if err != nil {
			return domain.Record{}, fmt.Errorf("service.SavePipeline.Save: %w", err)
		}
		if in.Type == "" {
			in.Type = rec.Type
		}
		if in.Type != rec.Type {
			return domain.Record{}, fmt.Errorf("%w: cannot change type of %s to %s", domain.ErrValidation, rec.Type, in.Type)
		}
		existing = &rec
	}

	if err := p.validate(ctx, &in, existing); err != nil {
		return domain.Record{}, err
	}

	rec := domain.Record{
		Type:   in.Type,
		Title:  in.Title,
		Status: in.Status,
		Sticky: in.Sticky,
	}
	var err error
	if existing != nil {
		rec.ID = existing.ID
		rec.Slug = existing.Slug
		rec.ParentID = existing.ParentID
		rec, err = p.st.Records.Update(ctx, rec)
	} else {
		rec.Slug = slugify(in.Title)
		rec, err = p.st.Records.Create(ctx, rec)
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("service.SavePipeline.Save: %w", err)
	}

	if err := p.persist(ctx, rec.ID, in, existing == nil); err != nil {
		return domain.Record{}, fmt.Errorf("service.SavePipeline.Save: %w", err)
	}

	if err := p.run(ctx, rec.ID, Cascade{FurtherDates: in.FurtherDates}); err != nil {
		return domain.Record{}, fmt.Errorf("service.SavePipeline.Save: %w", err)
	}

	p.logger.InfoContext(ctx, "record saved", "record_id", rec.ID, "type", rec.Type, "status", rec.Status)
	return rec, nil
}

// Resave runs every stage again on the stored data of a record.
func (p *SavePipeline) Resave(ctx context.Context, id uuid.UUID) error {
	if err := p.run(ctx, id, Cascade{}); err != nil {
		return fmt.Errorf("service.SavePipeline.Resave: %w", err)
	}
	return nil
}

// SetField writes one field through the guard and re-runs the stages.
// Recurrences are derived and cannot be written.
func (p *SavePipeline) SetField(ctx context.Context, id uuid.UUID, name, value string) error {
	if err := p.guard.CheckField(name); err != nil {
		return fmt.Errorf("service.SavePipeline.SetField: %w", err)
	}
	rec, err := p.st.Records.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("service.SavePipeline.SetField: %w", err)
	}
	if rec.Type == domain.TypeRecurrence {
		return fmt.Errorf("%w: recurrences are derived from their event", domain.ErrValidation)
	}

	fields := domain.Fields{name: value}
	if rec.Type == domain.TypeEvent {
		if err := p.validateEventFields(fields, false); err != nil {
			return err
		}
	}
	if err := p.st.Fields.Set(ctx, id, name, fields[name]); err != nil {
		return fmt.Errorf("service.SavePipeline.SetField: %w", err)
	}
	if err := p.run(ctx, id, Cascade{}); err != nil {
		return fmt.Errorf("service.SavePipeline.SetField: %w", err)
	}
	return nil
}

// Trash moves a record to the trash. Locations still referenced by events
// are refused with domain.ErrDeletionDenied; original events lose all
// their recurrences.
func (p *SavePipeline) Trash(ctx context.Context, id uuid.UUID) error {
	if err := p.beforeDelete(ctx, id); err != nil {
		return fmt.Errorf("service.SavePipeline.Trash: %w", err)
	}
	if err := p.st.Records.SetStatus(ctx, id, domain.StatusTrashed); err != nil {
		return fmt.Errorf("service.SavePipeline.Trash: %w", err)
	}
	return nil
}

// Delete permanently removes a record with the same veto as Trash.
func (p *SavePipeline) Delete(ctx context.Context, id uuid.UUID) error {
	if err := p.beforeDelete(ctx, id); err != nil {
		return fmt.Errorf("service.SavePipeline.Delete: %w", err)
	}
	if err := p.st.Records.Delete(ctx, id); err != nil {
		return fmt.Errorf("service.SavePipeline.Delete: %w", err)
	}
	return nil
}

func (p *SavePipeline) beforeDelete(ctx context.Context, id uuid.UUID) error {
	rec, err := p.st.Records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.Type == domain.TypeLocation {
		ok, err := p.locations.CanDelete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			p.metrics.DeletionDenied()
			return domain.ErrDeletionDenied
		}
	}
	return p.recurrences.DeleteRecurrences(ctx, id)
}

// run executes the stages for one record. The order is fixed: location
// fields are recomputed before recurrences copy them, and translations
// are created last so their nested run sees complete source data.
func (p *SavePipeline) run(ctx context.Context, id uuid.UUID, c Cascade) error {
	rec, err := p.st.Records.GetByID(ctx, id)
	if err != nil {
		return err
	}

	// skipped collects further dates that did not parse. They abort only
	// their own entry, so the remaining stages still run.
	var skipped error

	switch rec.Type {
	case domain.TypeLocation:
		if err := p.locations.OnLocationSaved(ctx, id); err != nil {
			return err
		}
	case domain.TypeEvent:
		if err := p.locations.SyncEvent(ctx, id); err != nil {
			return err
		}
		if err := p.recurrences.OnSave(ctx, id, c); err != nil {
			if !errors.Is(err, domain.ErrInvalidDateFormat) {
				return err
			}
			skipped = err
		}
	case domain.TypeRecurrence:
		return p.locations.SyncEvent(ctx, id)
	}

	if c.Nested {
		return skipped
	}
	err = p.translations.Ensure(ctx, id, func(ctx context.Context, cloneID uuid.UUID) error {
		return p.run(ctx, cloneID, Cascade{Nested: true})
	})
	return multierr.Append(skipped, err)
}

// persist writes fields, terms and language of a saved record. Submitted
// further dates are stored by RecurrenceEngine.Rebuild under the event
// lock, together with the recurrences built from them.
func (p *SavePipeline) persist(ctx context.Context, id uuid.UUID, in SaveInput, created bool) error {
	if len(in.Fields) > 0 {
		if err := p.st.Fields.SetMany(ctx, id, in.Fields); err != nil {
			return err
		}
	}
	for _, tax := range sortedKeys(in.Terms) {
		ids := make([]uuid.UUID, 0, len(in.Terms[tax]))
		for _, name := range in.Terms[tax] {
			term, err := p.st.Terms.Upsert(ctx, tax, name, slugify(name))
			if err != nil {
				return err
			}
			ids = append(ids, term.ID)
		}
		if err := p.st.Terms.SetTerms(ctx, id, tax, ids); err != nil {
			return err
		}
	}

	lang := in.Language
	if lang == "" && created {
		lang = p.translations.DefaultLanguage()
	}
	if lang != "" {
		if err := p.st.Translations.SetLanguage(ctx, id, lang); err != nil {
			return err
		}
	}
	return nil
}

// validate normalizes in and reports the first problem found.
func (p *SavePipeline) validate(ctx context.Context, in *SaveInput, existing *domain.Record) error {
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", domain.ErrValidation, in.Type)
	}
	if in.Type == domain.TypeRecurrence {
		return fmt.Errorf("%w: recurrences are derived from their event", domain.ErrValidation)
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if in.Status == "" {
		in.Status = domain.StatusDraft
		if existing != nil {
			in.Status = existing.Status
		}
	}
	if !in.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, in.Status)
	}
	if err := p.guard.Check(in.Fields); err != nil {
		return err
	}
	for tax := range in.Terms {
		if tax == domain.TaxonomyLanguage || tax == domain.TaxonomyTranslations {
			return fmt.Errorf("%w: taxonomy %q is reserved", domain.ErrValidation, tax)
		}
	}
	if in.Language != "" && !p.translations.IsActive(in.Language) {
		return fmt.Errorf("%w: language %q is not active", domain.ErrValidation, in.Language)
	}

	if in.Type != domain.TypeEvent {
		if in.FurtherDates != nil || in.FurtherDatesRule != "" {
			return fmt.Errorf("%w: only events have further dates", domain.ErrValidation)
		}
		return nil
	}

	if in.Fields == nil {
		in.Fields = domain.Fields{}
	}
	if err := p.validateEventFields(in.Fields, existing == nil); err != nil {
		return err
	}

	primary := in.Fields[domain.FieldDateTime]
	if _, ok := in.Fields[domain.FieldDateTime]; !ok && existing != nil {
		stored, err := p.st.Fields.Get(ctx, existing.ID, domain.FieldDateTime)
		if err != nil {
			return fmt.Errorf("service.SavePipeline.Save: %w", err)
		}
		primary = stored
	}

	if in.FurtherDatesRule != "" {
		start, err := p.dates.Parse(primary)
		if err != nil {
			return fmt.Errorf("%w: a rule needs a valid date_and_time: %v", domain.ErrValidation, err)
		}
		expanded, err := p.dates.ExpandRule(in.FurtherDatesRule, start, maxRuleDates)
		if err != nil {
			return err
		}
		in.FurtherDates = append(append([]string{}, in.FurtherDates...), expanded...)
	}

	if in.FurtherDates != nil {
		if err := p.recurrences.ValidateFurtherDates(primary, in.FurtherDates); err != nil {
			return err
		}
		normalized := make([]string, 0, len(in.FurtherDates))
		for _, d := range in.FurtherDates {
			if strings.TrimSpace(d) == "" {
				continue
			}
			n, _ := p.dates.Normalize(d)
			normalized = append(normalized, n)
		}
		in.FurtherDates = normalized
	}
	return nil
}

// validateEventFields normalizes the date and checks the location reference
// of submitted event fields in place.
func (p *SavePipeline) validateEventFields(fields domain.Fields, requireDate bool) error {
	if v, ok := fields[domain.FieldDateTime]; ok || requireDate {
		if strings.TrimSpace(v) == "" {
			return &domain.FieldError{Field: domain.FieldDateTime, Kind: domain.ErrInvalidDateFormat, Message: "date_and_time is required"}
		}
		n, err := p.dates.Normalize(v)
		if err != nil {
			return &domain.FieldError{Field: domain.FieldDateTime, Kind: domain.ErrInvalidDateFormat, Message: err.Error()}
		}
		fields[domain.FieldDateTime] = n
	}
	// Events are looked up by the canonical form of location_id.
	if v, ok := fields[domain.FieldLocationID]; ok {
		v = strings.TrimSpace(v)
		if v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return fmt.Errorf("%w: location_id must be a UUID", domain.ErrValidation)
			}
			v = id.String()
		}
		fields[domain.FieldLocationID] = v
	}
	return nil
}
