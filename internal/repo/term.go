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

// TermRepo defines the persistence operations for taxonomy terms and the
// record_terms join table.
type TermRepo interface {
	// Upsert inserts a term by (taxonomy, slug), or returns the existing term
	// if the slug already exists in that taxonomy. The name of the first
	// creator is preserved on conflict.
	Upsert(ctx context.Context, taxonomy, name, slug string) (domain.Term, error)

	// TagSets returns every term id linked to a record, keyed by taxonomy.
	TagSets(ctx context.Context, recordID uuid.UUID) (domain.TagSets, error)

	// SetTerms replaces the record's links within one taxonomy with ids.
	// Links in other taxonomies are untouched.
	SetTerms(ctx context.Context, recordID uuid.UUID, taxonomy string, ids []uuid.UUID) error

	// ListByRecord returns the terms of one taxonomy linked to a record,
	// ordered by slug.
	ListByRecord(ctx context.Context, recordID uuid.UUID, taxonomy string) ([]domain.Term, error)

	// ListByTaxonomy returns every term of a taxonomy, ordered by name.
	ListByTaxonomy(ctx context.Context, taxonomy string) ([]domain.Term, error)
}

// pgTermRepo is the Postgres implementation of TermRepo.
type pgTermRepo struct {
	db db
}

// NewTermRepo constructs a TermRepo backed by the provided db connection.
func NewTermRepo(db db) TermRepo {
	return &pgTermRepo{db: db}
}

// Upsert inserts a term or returns the existing row on slug conflict.
// The DO UPDATE SET trick forces the RETURNING clause to fire even when
// the conflict handler skips the insert.
func (r *pgTermRepo) Upsert(ctx context.Context, taxonomy, name, slug string) (domain.Term, error) {
	const q = `
		INSERT INTO terms (taxonomy, name, slug)
		VALUES (@taxonomy, @name, @slug)
		ON CONFLICT (taxonomy, slug) DO UPDATE SET slug = EXCLUDED.slug
		RETURNING id, taxonomy, name, slug, created_at`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"taxonomy": taxonomy, "name": name, "slug": slug})
	result, err := scanTerm(row)
	if err != nil {
		return domain.Term{}, fmt.Errorf("repo.TermRepo.Upsert: %w", err)
	}
	return result, nil
}

func (r *pgTermRepo) TagSets(ctx context.Context, recordID uuid.UUID) (domain.TagSets, error) {
	const q = `
		SELECT t.taxonomy, t.id
		FROM terms t
		JOIN record_terms rt ON rt.term_id = t.id
		WHERE rt.record_id = @record_id
		ORDER BY t.taxonomy, t.slug`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"record_id": recordID})
	if err != nil {
		return nil, fmt.Errorf("repo.TermRepo.TagSets: %w", err)
	}
	defer rows.Close()

	sets := domain.TagSets{}
	for rows.Next() {
		var (
			taxonomy string
			id       pgtype.UUID
		)
		if err := rows.Scan(&taxonomy, &id); err != nil {
			return nil, fmt.Errorf("repo.TermRepo.TagSets: scan: %w", err)
		}
		sets[taxonomy] = append(sets[taxonomy], uuid.UUID(id.Bytes))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TermRepo.TagSets: rows: %w", err)
	}
	return sets, nil
}

func (r *pgTermRepo) SetTerms(ctx context.Context, recordID uuid.UUID, taxonomy string, ids []uuid.UUID) error {
	const del = `
		DELETE FROM record_terms
		WHERE record_id = @record_id
		  AND term_id IN (SELECT id FROM terms WHERE taxonomy = @taxonomy)`
	const ins = `
		INSERT INTO record_terms (record_id, term_id)
		SELECT @record_id, id FROM terms WHERE id = @term_id AND taxonomy = @taxonomy
		ON CONFLICT (record_id, term_id) DO NOTHING`

	if _, err := r.db.Exec(ctx, del, pgx.NamedArgs{"record_id": recordID, "taxonomy": taxonomy}); err != nil {
		return fmt.Errorf("repo.TermRepo.SetTerms: delete: %w", err)
	}
	for _, id := range ids {
		args := pgx.NamedArgs{"record_id": recordID, "term_id": id, "taxonomy": taxonomy}
		if _, err := r.db.Exec(ctx, ins, args); err != nil {
			return fmt.Errorf("repo.TermRepo.SetTerms: insert: %w", err)
		}
	}
	return nil
}

func (r *pgTermRepo) ListByRecord(ctx context.Context, recordID uuid.UUID, taxonomy string) ([]domain.Term, error) {
	const q = `
		SELECT t.id, t.taxonomy, t.name, t.slug, t.created_at
		FROM terms t
		JOIN record_terms rt ON rt.term_id = t.id
		WHERE rt.record_id = @record_id AND t.taxonomy = @taxonomy
		ORDER BY t.slug`

	terms, err := r.list(ctx, q, pgx.NamedArgs{"record_id": recordID, "taxonomy": taxonomy})
	if err != nil {
		return nil, fmt.Errorf("repo.TermRepo.ListByRecord: %w", err)
	}
	return terms, nil
}

func (r *pgTermRepo) ListByTaxonomy(ctx context.Context, taxonomy string) ([]domain.Term, error) {
	const q = `
		SELECT id, taxonomy, name, slug, created_at
		FROM terms
		WHERE taxonomy = @taxonomy
		ORDER BY name, slug`

	terms, err := r.list(ctx, q, pgx.NamedArgs{"taxonomy": taxonomy})
	if err != nil {
		return nil, fmt.Errorf("repo.TermRepo.ListByTaxonomy: %w", err)
	}
	return terms, nil
}

func (r *pgTermRepo) list(ctx context.Context, q string, args pgx.NamedArgs) ([]domain.Term, error) {
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	terms := []domain.Term{}
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return terms, nil
}

// scanTerm maps a single database row into a domain.Term.
func scanTerm(s scanner) (domain.Term, error) {
	var (
		t  domain.Term
		id pgtype.UUID
	)
	err := s.Scan(&id, &t.Taxonomy, &t.Name, &t.Slug, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Term{}, domain.ErrNotFound
		}
		return domain.Term{}, err
	}
	t.ID = uuid.UUID(id.Bytes)
	return t, nil
}
