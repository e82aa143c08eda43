package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pkordes/eventsync/internal/domain"
)

// FieldRepo is the structured field store: named string values per record
// plus the ordered further-dates list of events.
//
// FieldRepo itself applies no write policy. Callers outside the location
// sync must go through the service-level field guard.
type FieldRepo interface {
	// All returns every flat field value stored for a record.
	All(ctx context.Context, id uuid.UUID) (domain.Fields, error)

	// Get returns one field value, or "" when it is not set.
	Get(ctx context.Context, id uuid.UUID, name string) (string, error)

	// Set upserts one field value.
	Set(ctx context.Context, id uuid.UUID, name, value string) error

	// SetMany upserts every given field value.
	SetMany(ctx context.Context, id uuid.UUID, fields domain.Fields) error

	// FurtherDates returns the stored further dates in submission order.
	FurtherDates(ctx context.Context, id uuid.UUID) ([]string, error)

	// SetFurtherDates replaces the further dates of a record.
	SetFurtherDates(ctx context.Context, id uuid.UUID, dates []string) error

	// RecordsWithValue returns ids of records of the given types whose field
	// name equals value. limit <= 0 means no limit.
	RecordsWithValue(ctx context.Context, name, value string, types []domain.RecordType, limit int) ([]uuid.UUID, error)
}

// pgFieldRepo is the Postgres implementation of FieldRepo.
type pgFieldRepo struct {
	db db
}

// NewFieldRepo constructs a FieldRepo backed by the provided db connection.
func NewFieldRepo(db db) FieldRepo {
	return &pgFieldRepo{db: db}
}

func (r *pgFieldRepo) All(ctx context.Context, id uuid.UUID) (domain.Fields, error) {
	const q = `SELECT name, value FROM record_fields WHERE record_id = @id ORDER BY name`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return nil, fmt.Errorf("repo.FieldRepo.All: %w", err)
	}
	defer rows.Close()

	fields := domain.Fields{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("repo.FieldRepo.All: scan: %w", err)
		}
		fields[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.FieldRepo.All: rows: %w", err)
	}
	return fields, nil
}

func (r *pgFieldRepo) Get(ctx context.Context, id uuid.UUID, name string) (string, error) {
	const q = `SELECT COALESCE((SELECT value FROM record_fields WHERE record_id = @id AND name = @name), '')`

	var value string
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "name": name}).Scan(&value); err != nil {
		return "", fmt.Errorf("repo.FieldRepo.Get: %w", err)
	}
	return value, nil
}

func (r *pgFieldRepo) Set(ctx context.Context, id uuid.UUID, name, value string) error {
	const q = `
		INSERT INTO record_fields (record_id, name, value)
		VALUES (@id, @name, @value)
		ON CONFLICT (record_id, name) DO UPDATE SET value = EXCLUDED.value`

	if _, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "name": name, "value": value}); err != nil {
		return fmt.Errorf("repo.FieldRepo.Set: %w", err)
	}
	return nil
}

// SetMany writes fields in name order so repeated saves issue identical statements.
func (r *pgFieldRepo) SetMany(ctx context.Context, id uuid.UUID, fields domain.Fields) error {
	for _, name := range fields.Names() {
		if err := r.Set(ctx, id, name, fields[name]); err != nil {
			return fmt.Errorf("repo.FieldRepo.SetMany: %w", err)
		}
	}
	return nil
}

func (r *pgFieldRepo) FurtherDates(ctx context.Context, id uuid.UUID) ([]string, error) {
	const q = `SELECT value FROM record_further_dates WHERE record_id = @id ORDER BY position`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return nil, fmt.Errorf("repo.FieldRepo.FurtherDates: %w", err)
	}
	dates, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("repo.FieldRepo.FurtherDates: %w", err)
	}
	if dates == nil {
		dates = []string{}
	}
	return dates, nil
}

func (r *pgFieldRepo) SetFurtherDates(ctx context.Context, id uuid.UUID, dates []string) error {
	const del = `DELETE FROM record_further_dates WHERE record_id = @id`
	const ins = `INSERT INTO record_further_dates (record_id, position, value) VALUES (@id, @position, @value)`

	if _, err := r.db.Exec(ctx, del, pgx.NamedArgs{"id": id}); err != nil {
		return fmt.Errorf("repo.FieldRepo.SetFurtherDates: delete: %w", err)
	}
	for i, d := range dates {
		if _, err := r.db.Exec(ctx, ins, pgx.NamedArgs{"id": id, "position": i, "value": d}); err != nil {
			return fmt.Errorf("repo.FieldRepo.SetFurtherDates: insert: %w", err)
		}
	}
	return nil
}

func (r *pgFieldRepo) RecordsWithValue(ctx context.Context, name, value string, types []domain.RecordType, limit int) ([]uuid.UUID, error) {
	q := `
		SELECT r.id
		FROM records r
		JOIN record_fields f ON f.record_id = r.id
		WHERE f.name = @name AND f.value = @value AND r.type = ANY(@types)
		ORDER BY r.created_at, r.id`
	args := pgx.NamedArgs{"name": name, "value": value, "types": typeStrings(types)}
	if limit > 0 {
		q += ` LIMIT @limit`
		args["limit"] = limit
	}

	ids, err := collectIDs(ctx, r.db, q, args)
	if err != nil {
		return nil, fmt.Errorf("repo.FieldRepo.RecordsWithValue: %w", err)
	}
	return ids, nil
}
