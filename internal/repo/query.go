package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pkordes/eventsync/internal/domain"
)

// recordFieldNames are the keys RowToMap produces for the record columns.
var recordFieldNames = map[string]bool{
	"id": true, "type": true, "title": true, "slug": true, "status": true,
	"parent_id": true, "sticky": true, "created_at": true, "updated_at": true,
}

// buildQuery translates a QuerySpec into SQL plus named arguments.
//
// Every field referenced by the query is LEFT JOINed from record_fields under
// domain.FieldAlias(name); selected fields come back as columns named after
// the field. Raw clauses replace the generated SELECT list, GROUP BY and
// ORDER BY parts when set.
func buildQuery(spec domain.QuerySpec) (string, pgx.NamedArgs) {
	args := pgx.NamedArgs{}
	var (
		joins  []string
		where  []string
		order  []string
		fields = spec.Fields()
	)

	for i, name := range fields {
		alias := domain.FieldAlias(name)
		param := fmt.Sprintf("field_%d", i)
		args[param] = name
		joins = append(joins, fmt.Sprintf(
			"LEFT JOIN record_fields %[1]s ON %[1]s.record_id = r.id AND %[1]s.name = @%[2]s", alias, param))
	}

	if len(spec.Types) > 0 {
		args["types"] = typeStrings(spec.Types)
		where = append(where, "r.type = ANY(@types)")
	}
	if len(spec.Statuses) > 0 {
		args["statuses"] = statusStrings(spec.Statuses)
		where = append(where, "r.status = ANY(@statuses)")
	}
	for i, f := range spec.Filters {
		where = append(where, filterSQL(f, i, args))
	}

	if !spec.IgnoreSticky {
		order = append(order, "r.sticky DESC")
	}
	for _, s := range spec.Sort {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		col := domain.FieldAlias(s.Field) + ".value"
		if s.Kind == domain.KindDateTime || s.Kind == domain.KindDate {
			col = fmt.Sprintf("NULLIF(%s, '')", col)
		}
		order = append(order, fmt.Sprintf("%s %s", castValue(col, s.Kind), dir))
	}

	selectList := "r." + strings.ReplaceAll(recordColumns, ", ", ", r.")
	for _, name := range spec.Select {
		selectList += fmt.Sprintf(", COALESCE(%s.value, '') AS %s", domain.FieldAlias(name), quoteIdent(name))
	}

	var groupBy string
	if c := spec.Clauses; c != nil {
		if c.Fields != "" {
			selectList = c.Fields
		}
		groupBy = c.GroupBy
		if c.OrderBy != "" {
			order = []string{c.OrderBy}
		}
	}
	if groupBy == "" {
		// Deterministic order for records sharing a sort value.
		order = append(order, "r.created_at ASC", "r.id ASC")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(selectList)
	b.WriteString("\nFROM records r")
	for _, j := range joins {
		b.WriteString("\n")
		b.WriteString(j)
	}
	if len(where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(where, "\n  AND "))
	}
	if groupBy != "" {
		b.WriteString("\nGROUP BY ")
		b.WriteString(groupBy)
	}
	if len(order) > 0 {
		b.WriteString("\nORDER BY ")
		b.WriteString(strings.Join(order, ", "))
	}
	if !spec.Unpaged && spec.Page.Limit > 0 {
		args["limit"] = spec.Page.Limit
		args["offset"] = spec.Page.Offset()
		b.WriteString("\nLIMIT @limit OFFSET @offset")
	}
	return b.String(), args
}

// filterSQL renders one field filter, registering its operands in args.
func filterSQL(f domain.FieldFilter, i int, args pgx.NamedArgs) string {
	col := domain.FieldAlias(f.Field) + ".value"
	if f.Op == domain.OpPresent {
		return fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", col, col)
	}

	operand := func(n int) string {
		name := fmt.Sprintf("filter_%d_%d", i, n)
		if n < len(f.Values) {
			args[name] = f.Values[n]
		} else {
			args[name] = ""
		}
		return castParam("@"+name, f.Kind)
	}

	// Cast only non-empty values so a blank stored value never breaks the query.
	lhs := castValue(fmt.Sprintf("NULLIF(%s, '')", col), f.Kind)
	if f.Kind == domain.KindText || f.Kind == "" {
		lhs = col
	}

	switch f.Op {
	case domain.OpBetween:
		return fmt.Sprintf("%s BETWEEN %s AND %s", lhs, operand(0), operand(1))
	case domain.OpGte, domain.OpLte, domain.OpEq:
		return fmt.Sprintf("%s %s %s", lhs, f.Op, operand(0))
	default:
		return "FALSE"
	}
}

func castValue(expr string, kind domain.ValueKind) string {
	switch kind {
	case domain.KindDateTime:
		return expr + "::timestamp"
	case domain.KindDate:
		return expr + "::timestamp::date"
	default:
		return expr
	}
}

func castParam(expr string, kind domain.ValueKind) string {
	switch kind {
	case domain.KindDateTime:
		return expr + "::timestamp"
	case domain.KindDate:
		return expr + "::date"
	default:
		return expr
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// mapResultRow converts a RowToMap result into a ResultRow. Record columns
// populate Record when "id" is present; everything else lands in Values.
func mapResultRow(m map[string]any) (domain.ResultRow, error) {
	row := domain.ResultRow{Values: map[string]string{}}

	if raw, ok := m["id"]; ok && raw != nil {
		id, err := toUUID(raw)
		if err != nil {
			return domain.ResultRow{}, fmt.Errorf("id: %w", err)
		}
		row.Record.ID = id
		row.Record.Type = domain.RecordType(toString(m["type"]))
		row.Record.Title = toString(m["title"])
		row.Record.Slug = toString(m["slug"])
		row.Record.Status = domain.Status(toString(m["status"]))
		if raw := m["parent_id"]; raw != nil {
			pid, err := toUUID(raw)
			if err != nil {
				return domain.ResultRow{}, fmt.Errorf("parent_id: %w", err)
			}
			row.Record.ParentID = &pid
		}
		if v, ok := m["sticky"].(bool); ok {
			row.Record.Sticky = v
		}
		if v, ok := m["created_at"].(time.Time); ok {
			row.Record.CreatedAt = v
		}
		if v, ok := m["updated_at"].(time.Time); ok {
			row.Record.UpdatedAt = v
		}
	}

	for k, v := range m {
		if row.Record.ID != uuid.Nil && recordFieldNames[k] {
			continue
		}
		row.Values[k] = toString(v)
	}
	return row, nil
}

func toUUID(v any) (uuid.UUID, error) {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x), nil
	case uuid.UUID:
		return x, nil
	case string:
		return uuid.Parse(x)
	default:
		return uuid.Nil, fmt.Errorf("unexpected uuid type %T", v)
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(time.DateTime)
	default:
		return fmt.Sprint(x)
	}
}
