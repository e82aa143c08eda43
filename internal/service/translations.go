package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pkordes/eventsync/internal/domain"
	"github.com/pkordes/eventsync/internal/metrics"
)

// AfterCreateFunc runs the remaining save stages for a freshly created
// translation clone.
type AfterCreateFunc func(ctx context.Context, id uuid.UUID) error

// TranslationSync makes sure every visible event or location has a linked
// translation in every active language.
type TranslationSync struct {
	st              Stores
	languages       []string
	defaultLanguage string
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// NewTranslationSync constructs a TranslationSync. languages are the active
// language codes in creation order; defaultLanguage is assumed for records
// without a language.
func NewTranslationSync(st Stores, languages []string, defaultLanguage string, m *metrics.Metrics, logger *slog.Logger) *TranslationSync {
	return &TranslationSync{
		st:              st,
		languages:       languages,
		defaultLanguage: defaultLanguage,
		metrics:         m,
		logger:          orDefault(logger),
	}
}

// Languages returns the active language codes.
func (s *TranslationSync) Languages() []string { return s.languages }

// IsActive reports whether lang is an active language.
func (s *TranslationSync) IsActive(lang string) bool {
	for _, l := range s.languages {
		if l == lang {
			return true
		}
	}
	return false
}

// Ensure clones a visible record into every active language it is missing,
// links all peers, then calls afterCreate for each clone. A failed clone
// stops the remaining languages and returns domain.ErrTranslationCreateFailed;
// clones created before it stay linked and still get afterCreate.
func (s *TranslationSync) Ensure(ctx context.Context, id uuid.UUID, afterCreate AfterCreateFunc) error {
	rec, err := s.st.Records.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("service.TranslationSync.Ensure: %w", err)
	}
	if rec.Type == domain.TypeRecurrence || !rec.Status.Visible() {
		return nil
	}

	lang, err := s.st.Translations.Language(ctx, id)
	if err != nil {
		return fmt.Errorf("service.TranslationSync.Ensure: %w", err)
	}
	if lang == "" {
		lang = s.defaultLanguage
		if err := s.st.Translations.SetLanguage(ctx, id, lang); err != nil {
			return fmt.Errorf("service.TranslationSync.Ensure: %w", err)
		}
	}

	peers, err := s.st.Translations.Translations(ctx, id)
	if err != nil {
		return fmt.Errorf("service.TranslationSync.Ensure: %w", err)
	}
	if peers == nil {
		peers = map[string]uuid.UUID{}
	}
	if _, ok := peers[lang]; !ok {
		peers[lang] = id
	}

	var missing []string
	for _, l := range s.languages {
		if _, ok := peers[l]; !ok {
			missing = append(missing, l)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	src, err := s.source(ctx, rec)
	if err != nil {
		return fmt.Errorf("service.TranslationSync.Ensure: %w", err)
	}

	var (
		created   []uuid.UUID
		createErr error
	)
	for _, l := range missing {
		cloneID, err := s.clone(ctx, src, l)
		if err != nil {
			createErr = fmt.Errorf("%w: %s: %v", domain.ErrTranslationCreateFailed, l, err)
			s.logger.ErrorContext(ctx, "translation clone failed", "record_id", id, "language", l, "error", err)
			break
		}
		peers[l] = cloneID
		created = append(created, cloneID)
		s.metrics.TranslationCreated(l)
	}

	if len(created) > 0 {
		if err := s.st.Translations.SaveTranslations(ctx, peers); err != nil {
			return fmt.Errorf("service.TranslationSync.Ensure: %w", err)
		}
	}
	for _, cloneID := range created {
		if err := afterCreate(ctx, cloneID); err != nil {
			return fmt.Errorf("service.TranslationSync.Ensure: clone %s: %w", cloneID, err)
		}
	}
	if createErr != nil {
		return fmt.Errorf("service.TranslationSync.Ensure: %w", createErr)
	}
	return nil
}

// cloneSource is everything copied from the source record into a clone.
type cloneSource struct {
	rec          domain.Record
	fields       domain.Fields
	furtherDates []string
	tags         domain.TagSets
}

func (s *TranslationSync) source(ctx context.Context, rec domain.Record) (cloneSource, error) {
	fields, err := s.st.Fields.All(ctx, rec.ID)
	if err != nil {
		return cloneSource{}, err
	}
	dates, err := s.st.Fields.FurtherDates(ctx, rec.ID)
	if err != nil {
		return cloneSource{}, err
	}
	tags, err := s.st.Terms.TagSets(ctx, rec.ID)
	if err != nil {
		return cloneSource{}, err
	}
	return cloneSource{
		rec:          rec,
		fields:       fields,
		furtherDates: dates,
		tags:         tags.Without(domain.TaxonomyTranslations, domain.TaxonomyLanguage),
	}, nil
}

// clone creates one translation. Every flat field is copied, the derived
// location fields included; the caller's afterCreate recomputes those.
func (s *TranslationSync) clone(ctx context.Context, src cloneSource, lang string) (uuid.UUID, error) {
	title := src.fields[domain.TitleField(lang)]
	if title == "" {
		title = src.rec.Title
	}

	rec, err := s.st.Records.Create(ctx, domain.Record{
		Type:   src.rec.Type,
		Title:  title,
		Slug:   slugify(title),
		Status: src.rec.Status,
		Sticky: src.rec.Sticky,
	})
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.st.Fields.SetMany(ctx, rec.ID, src.fields); err != nil {
		return uuid.Nil, err
	}
	if len(src.furtherDates) > 0 {
		if err := s.st.Fields.SetFurtherDates(ctx, rec.ID, src.furtherDates); err != nil {
			return uuid.Nil, err
		}
	}
	for _, tax := range src.tags.Taxonomies() {
		if err := s.st.Terms.SetTerms(ctx, rec.ID, tax, src.tags[tax]); err != nil {
			return uuid.Nil, err
		}
	}
	if err := s.st.Translations.SetLanguage(ctx, rec.ID, lang); err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// DefaultLanguage returns the language assumed for records without one.
func (s *TranslationSync) DefaultLanguage() string { return s.defaultLanguage }
