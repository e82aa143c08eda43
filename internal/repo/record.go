// Package repo contains all database access logic for the eventsync backend.
// Each store has its own file with an interface and a Postgres implementation.
// No business logic lives here; only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/eventsync/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecordRepo is the content store: typed records with status and
// parent/child linkage. The service layer depends on this interface.
type RecordRepo interface {
	// Create inserts a new record and returns it with DB-generated id and timestamps.
	Create(ctx context.Context, rec domain.Record) (domain.Record, error)

	// GetByID retrieves a single record.
	// Returns domain.ErrNotFound if no record with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Record, error)

	// Update overwrites title, slug, status, parent and sticky flag.
	// Returns domain.ErrNotFound if no record with that ID exists.
	Update(ctx context.Context, rec domain.Record) (domain.Record, error)

	// SetStatus changes only the status of a record.
	SetStatus(ctx context.Context, id uuid.UUID, status domain.Status) error

	// Delete permanently removes a record. Fields, further dates and term
	// links cascade. Returns domain.ErrNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// Children returns the ids of all records of type typ whose parent is
	// parentID, in any status, oldest first.
	Children(ctx context.Context, parentID uuid.UUID, typ domain.RecordType) ([]uuid.UUID, error)

	// ListIDs returns the ids of all records of type typ in one of statuses.
	ListIDs(ctx context.Context, typ domain.RecordType, statuses []domain.Status) ([]uuid.UUID, error)

	// Query executes a QuerySpec. Probe specs (with raw clauses) return rows
	// with only Values populated.
	Query(ctx context.Context, spec domain.QuerySpec) ([]domain.ResultRow, error)
}

// pgRecordRepo is the Postgres implementation of RecordRepo.
type pgRecordRepo struct {
	db db
}

// NewRecordRepo constructs a RecordRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewRecordRepo(db db) RecordRepo {
	return &pgRecordRepo{db: db}
}

const recordColumns = `id, type, title, slug, status, parent_id, sticky, created_at, updated_at`

// Create inserts a new record row and returns the full persisted record.
func (r *pgRecordRepo) Create(ctx context.Context, rec domain.Record) (domain.Record, error) {
	const q = `
		INSERT INTO records (type, title, slug, status, parent_id, sticky)
		VALUES (@type, @title, @slug, @status, @parent_id, @sticky)
		RETURNING ` + recordColumns

	args := pgx.NamedArgs{
		"type":      string(rec.Type),
		"title":     rec.Title,
		"slug":      rec.Slug,
		"status":    string(rec.Status),
		"parent_id": rec.ParentID, // nil becomes NULL
		"sticky":    rec.Sticky,
	}

	result, err := scanRecord(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Record{}, fmt.Errorf("repo.RecordRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves a record by primary key.
func (r *pgRecordRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Record, error) {
	const q = `SELECT ` + recordColumns + ` FROM records WHERE id = @id`

	result, err := scanRecord(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Record{}, fmt.Errorf("repo.RecordRepo.GetByID: %w", err)
	}
	return result, nil
}

// Update overwrites the mutable columns of a record and returns the updated row.
func (r *pgRecordRepo) Update(ctx context.Context, rec domain.Record) (domain.Record, error) {
	const q = `
		UPDATE records
		SET title      = @title,
		    slug       = @slug,
		    status     = @status,
		    parent_id  = @parent_id,
		    sticky     = @sticky,
		    updated_at = now()
		WHERE id = @id
		RETURNING ` + recordColumns

	args := pgx.NamedArgs{
		"id":        rec.ID,
		"title":     rec.Title,
		"slug":      rec.Slug,
		"status":    string(rec.Status),
		"parent_id": rec.ParentID,
		"sticky":    rec.Sticky,
	}

	result, err := scanRecord(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Record{}, fmt.Errorf("repo.RecordRepo.Update: %w", err)
	}
	return result, nil
}

// SetStatus updates the status column only.
func (r *pgRecordRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	const q = `UPDATE records SET status = @status, updated_at = now() WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "status": string(status)})
	if err != nil {
		return fmt.Errorf("repo.RecordRepo.SetStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.RecordRepo.SetStatus: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a record by primary key.
func (r *pgRecordRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM records WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return fmt.Errorf("repo.RecordRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.RecordRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

// Children lists child record ids of the given type.
func (r *pgRecordRepo) Children(ctx context.Context, parentID uuid.UUID, typ domain.RecordType) ([]uuid.UUID, error) {
	const q = `
		SELECT id FROM records
		WHERE parent_id = @parent_id AND type = @type
		ORDER BY created_at, id`

	ids, err := collectIDs(ctx, r.db, q, pgx.NamedArgs{"parent_id": parentID, "type": string(typ)})
	if err != nil {
		return nil, fmt.Errorf("repo.RecordRepo.Children: %w", err)
	}
	return ids, nil
}

// ListIDs lists record ids of the given type in one of the statuses.
func (r *pgRecordRepo) ListIDs(ctx context.Context, typ domain.RecordType, statuses []domain.Status) ([]uuid.UUID, error) {
	const q = `
		SELECT id FROM records
		WHERE type = @type AND status = ANY(@statuses)
		ORDER BY created_at, id`

	ids, err := collectIDs(ctx, r.db, q, pgx.NamedArgs{"type": string(typ), "statuses": statusStrings(statuses)})
	if err != nil {
		return nil, fmt.Errorf("repo.RecordRepo.ListIDs: %w", err)
	}
	return ids, nil
}

// Query builds SQL from the QuerySpec and maps every returned row.
func (r *pgRecordRepo) Query(ctx context.Context, spec domain.QuerySpec) ([]domain.ResultRow, error) {
	sql, args := buildQuery(spec)

	rows, err := r.db.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("repo.RecordRepo.Query: %w", err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("repo.RecordRepo.Query: collect: %w", err)
	}

	out := make([]domain.ResultRow, 0, len(maps))
	for _, m := range maps {
		row, err := mapResultRow(m)
		if err != nil {
			return nil, fmt.Errorf("repo.RecordRepo.Query: map: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing scan helpers to
// be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord maps a single database row into a domain.Record.
func scanRecord(s scanner) (domain.Record, error) {
	var (
		rec      domain.Record
		id       pgtype.UUID
		parentID pgtype.UUID
		typ      string
		status   string
	)

	err := s.Scan(&id, &typ, &rec.Title, &rec.Slug, &status, &parentID, &rec.Sticky, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, domain.ErrNotFound
		}
		return domain.Record{}, err
	}

	rec.ID = uuid.UUID(id.Bytes)
	rec.Type = domain.RecordType(typ)
	rec.Status = domain.Status(status)
	if parentID.Valid {
		pid := uuid.UUID(parentID.Bytes)
		rec.ParentID = &pid
	}
	return rec, nil
}

// collectIDs runs a query selecting a single uuid column.
func collectIDs(ctx context.Context, db db, q string, args pgx.NamedArgs) ([]uuid.UUID, error) {
	rows, err := db.Query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, uuid.UUID(id.Bytes))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return ids, nil
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func typeStrings(types []domain.RecordType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
