package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/eventsync/internal/domain"
)

// TranslationRepo stores record languages and translation groups. Both are
// kept as terms: a record's language is its single term in the language
// taxonomy, and all records sharing a term in the translations taxonomy are
// translations of each other.
type TranslationRepo interface {
	// Language returns the language code of a record, or "" when unset.
	Language(ctx context.Context, id uuid.UUID) (string, error)

	// SetLanguage assigns a language code to a record.
	SetLanguage(ctx context.Context, id uuid.UUID, lang string) error

	// Translations returns the translation group of a record keyed by
	// language, including the record itself. Empty when it has no group.
	Translations(ctx context.Context, id uuid.UUID) (map[string]uuid.UUID, error)

	// SaveTranslations links every peer into one translation group. An
	// existing group of any peer is reused.
	SaveTranslations(ctx context.Context, peers map[string]uuid.UUID) error
}

type pgTranslationRepo struct {
	db    db
	terms TermRepo
}

// NewTranslationRepo constructs a TranslationRepo backed by the provided db connection.
func NewTranslationRepo(db db) TranslationRepo {
	return &pgTranslationRepo{db: db, terms: NewTermRepo(db)}
}

func (r *pgTranslationRepo) Language(ctx context.Context, id uuid.UUID) (string, error) {
	terms, err := r.terms.ListByRecord(ctx, id, domain.TaxonomyLanguage)
	if err != nil {
		return "", fmt.Errorf("repo.TranslationRepo.Language: %w", err)
	}
	if len(terms) == 0 {
		return "", nil
	}
	return terms[0].Slug, nil
}

func (r *pgTranslationRepo) SetLanguage(ctx context.Context, id uuid.UUID, lang string) error {
	term, err := r.terms.Upsert(ctx, domain.TaxonomyLanguage, lang, lang)
	if err != nil {
		return fmt.Errorf("repo.TranslationRepo.SetLanguage: %w", err)
	}
	if err := r.terms.SetTerms(ctx, id, domain.TaxonomyLanguage, []uuid.UUID{term.ID}); err != nil {
		return fmt.Errorf("repo.TranslationRepo.SetLanguage: %w", err)
	}
	return nil
}

func (r *pgTranslationRepo) Translations(ctx context.Context, id uuid.UUID) (map[string]uuid.UUID, error) {
	const q = `
		SELECT lang.slug, peer.record_id
		FROM record_terms mine
		JOIN terms grp          ON grp.id = mine.term_id AND grp.taxonomy = @translations
		JOIN record_terms peer  ON peer.term_id = grp.id
		JOIN record_terms plang ON plang.record_id = peer.record_id
		JOIN terms lang         ON lang.id = plang.term_id AND lang.taxonomy = @language
		WHERE mine.record_id = @id
		ORDER BY lang.slug`

	args := pgx.NamedArgs{
		"id":           id,
		"translations": domain.TaxonomyTranslations,
		"language":     domain.TaxonomyLanguage,
	}
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("repo.TranslationRepo.Translations: %w", err)
	}
	defer rows.Close()

	out := map[string]uuid.UUID{}
	for rows.Next() {
		var (
			lang string
			pid  pgtype.UUID
		)
		if err := rows.Scan(&lang, &pid); err != nil {
			return nil, fmt.Errorf("repo.TranslationRepo.Translations: scan: %w", err)
		}
		out[lang] = uuid.UUID(pid.Bytes)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TranslationRepo.Translations: rows: %w", err)
	}
	return out, nil
}

func (r *pgTranslationRepo) SaveTranslations(ctx context.Context, peers map[string]uuid.UUID) error {
	if len(peers) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(peers))
	for _, id := range peers {
		ids = append(ids, id)
	}

	groupID, err := r.existingGroup(ctx, ids)
	if err != nil {
		return fmt.Errorf("repo.TranslationRepo.SaveTranslations: %w", err)
	}
	if groupID == uuid.Nil {
		slug := "group-" + uuid.NewString()
		term, err := r.terms.Upsert(ctx, domain.TaxonomyTranslations, slug, slug)
		if err != nil {
			return fmt.Errorf("repo.TranslationRepo.SaveTranslations: %w", err)
		}
		groupID = term.ID
	}

	for _, id := range ids {
		if err := r.terms.SetTerms(ctx, id, domain.TaxonomyTranslations, []uuid.UUID{groupID}); err != nil {
			return fmt.Errorf("repo.TranslationRepo.SaveTranslations: %w", err)
		}
	}
	return nil
}

// existingGroup returns the oldest translation group any of ids belongs to,
// or uuid.Nil.
func (r *pgTranslationRepo) existingGroup(ctx context.Context, ids []uuid.UUID) (uuid.UUID, error) {
	const q = `
		SELECT t.id
		FROM terms t
		JOIN record_terms rt ON rt.term_id = t.id
		WHERE t.taxonomy = @taxonomy AND rt.record_id = ANY(@ids)
		ORDER BY t.created_at, t.id
		LIMIT 1`

	var id pgtype.UUID
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"taxonomy": domain.TaxonomyTranslations, "ids": ids}).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.UUID(id.Bytes), nil
}
