package domain

import "strings"

// ValueKind tells the query executor how to compare a field value.
type ValueKind string

const (
	KindText     ValueKind = "text"
	KindDateTime ValueKind = "datetime"
	KindDate     ValueKind = "date"
)

// CompareOp is a comparison applied to a field value.
type CompareOp string

const (
	OpGte     CompareOp = ">="
	OpLte     CompareOp = "<="
	OpEq      CompareOp = "="
	OpBetween CompareOp = "BETWEEN"
	// OpPresent matches records whose field value exists and is non-empty.
	OpPresent CompareOp = "PRESENT"
)

// FieldFilter restricts a query by one field value.
// Values holds one operand, or two for OpBetween, and none for OpPresent.
type FieldFilter struct {
	Field  string
	Op     CompareOp
	Kind   ValueKind
	Values []string
}

// SortField orders a query by one field value.
type SortField struct {
	Field string
	Kind  ValueKind
	Desc  bool
}

// RawClauses are SQL fragments merged into the generated query by the
// executor. Non-empty parts replace the generated ones. Field values are
// addressable in the fragments through FieldAlias.
type RawClauses struct {
	Fields  string
	GroupBy string
	OrderBy string
}

// QuerySpec is a storage-independent description of a record listing.
type QuerySpec struct {
	Types    []RecordType
	Statuses []Status
	Filters  []FieldFilter
	Sort     []SortField
	// Select names field values to return in ResultRow.Values.
	Select []string
	Page   PaginationParams
	// Unpaged disables LIMIT/OFFSET.
	Unpaged bool
	// IgnoreSticky disables sticky records being ordered first.
	IgnoreSticky bool
	Clauses      *RawClauses
}

// Fields returns every field name the query references, without duplicates,
// in first-reference order: Select, then Filters, then Sort.
func (q QuerySpec) Fields() []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, f := range q.Select {
		add(f)
	}
	for _, f := range q.Filters {
		add(f.Field)
	}
	for _, s := range q.Sort {
		add(s.Field)
	}
	return out
}

// Grouped reports whether the query carries a probe clause.
func (q QuerySpec) Grouped() bool {
	return q.Clauses != nil && q.Clauses.GroupBy != ""
}

// FieldAlias is the SQL alias under which the executor joins the value of
// the named field. Raw clauses reference "<alias>.value".
func FieldAlias(field string) string {
	var b strings.Builder
	b.WriteString("f_")
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ResultRow is one row returned by a query.
// For probe queries Record is zero and only Values are populated.
type ResultRow struct {
	Record Record            `json:"record"`
	Values map[string]string `json:"values,omitempty"`
}
