package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/eventsync/internal/domain"
	"github.com/pkordes/eventsync/internal/repo"
	"github.com/pkordes/eventsync/internal/service"
)

// memStore is an in-memory double of every repo the engine uses.
type memStore struct {
	mu      sync.Mutex
	seq     int
	records map[uuid.UUID]domain.Record
	fields  map[uuid.UUID]domain.Fields
	further map[uuid.UUID][]string
	terms   map[uuid.UUID]domain.Term
	links   map[uuid.UUID]map[uuid.UUID]bool

	// failCreate, when set, is consulted before every record insert.
	failCreate func(rec domain.Record) error

	// beforeSetFurtherDates, when set, runs before every further-dates
	// write, outside the store mutex so it may block.
	beforeSetFurtherDates func(id uuid.UUID, dates []string)
}

var (
	_ repo.RecordRepo      = (*memStore)(nil)
	_ repo.FieldRepo       = (*memStore)(nil)
	_ repo.TermRepo        = (*memStore)(nil)
	_ repo.TranslationRepo = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		records: map[uuid.UUID]domain.Record{},
		fields:  map[uuid.UUID]domain.Fields{},
		further: map[uuid.UUID][]string{},
		terms:   map[uuid.UUID]domain.Term{},
		links:   map[uuid.UUID]map[uuid.UUID]bool{},
	}
}

func (m *memStore) stores() service.Stores {
	return service.Stores{Records: m, Fields: m, Terms: m, Translations: m}
}

// tick returns a strictly increasing timestamp so creation order is stable.
func (m *memStore) tick() time.Time {
	m.seq++
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Second)
}

// ---- RecordRepo ------------------------------------------------------------

func (m *memStore) Create(_ context.Context, rec domain.Record) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		if err := m.failCreate(rec); err != nil {
			return domain.Record{}, err
		}
	}
	rec.ID = uuid.New()
	rec.CreatedAt = m.tick()
	rec.UpdatedAt = rec.CreatedAt
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) Update(_ context.Context, rec domain.Record) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.records[rec.ID]
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	rec.CreatedAt = old.CreatedAt
	rec.UpdatedAt = m.tick()
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *memStore) SetStatus(_ context.Context, id uuid.UUID, status domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = status
	m.records[id] = rec
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return domain.ErrNotFound
	}
	m.deleteLocked(id)
	return nil
}

func (m *memStore) deleteLocked(id uuid.UUID) {
	for cid, rec := range m.records {
		if rec.ParentID != nil && *rec.ParentID == id {
			m.deleteLocked(cid)
		}
	}
	delete(m.records, id)
	delete(m.fields, id)
	delete(m.further, id)
	delete(m.links, id)
}

func (m *memStore) Children(_ context.Context, parentID uuid.UUID, typ domain.RecordType) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idsLocked(func(r domain.Record) bool {
		return r.ParentID != nil && *r.ParentID == parentID && r.Type == typ
	}), nil
}

func (m *memStore) ListIDs(_ context.Context, typ domain.RecordType, statuses []domain.Status) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idsLocked(func(r domain.Record) bool {
		return r.Type == typ && hasStatus(statuses, r.Status)
	}), nil
}

// Query supports type, status and field filters plus field sorting. Raw
// clauses are a SQL concern and are rejected.
func (m *memStore) Query(_ context.Context, spec domain.QuerySpec) ([]domain.ResultRow, error) {
	if spec.Clauses != nil {
		return nil, errors.New("memStore: raw clauses are not supported")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.idsLocked(func(r domain.Record) bool {
		if len(spec.Types) > 0 && !hasType(spec.Types, r.Type) {
			return false
		}
		if len(spec.Statuses) > 0 && !hasStatus(spec.Statuses, r.Status) {
			return false
		}
		for _, f := range spec.Filters {
			if !matchFilter(f, m.fields[r.ID][f.Field]) {
				return false
			}
		}
		return true
	})
	sort.SliceStable(ids, func(i, j int) bool {
		for _, s := range spec.Sort {
			a, b := m.fields[ids[i]][s.Field], m.fields[ids[j]][s.Field]
			if a != b {
				return (a < b) != s.Desc
			}
		}
		return false
	})

	out := []domain.ResultRow{}
	for _, id := range ids {
		values := map[string]string{}
		for _, name := range spec.Select {
			values[name] = m.fields[id][name]
		}
		out = append(out, domain.ResultRow{Record: m.records[id], Values: values})
	}
	if !spec.Unpaged && spec.Page.Limit > 0 {
		lo := min(spec.Page.Offset(), len(out))
		hi := min(lo+spec.Page.Limit, len(out))
		out = out[lo:hi]
	}
	return out, nil
}

func matchFilter(f domain.FieldFilter, v string) bool {
	if f.Op == domain.OpPresent {
		return v != ""
	}
	if f.Kind == domain.KindDate && len(v) >= 10 {
		v = v[:10]
	}
	switch f.Op {
	case domain.OpEq:
		return v == f.Values[0]
	case domain.OpGte:
		return v != "" && v >= f.Values[0]
	case domain.OpLte:
		return v != "" && v <= f.Values[0]
	case domain.OpBetween:
		return v != "" && v >= f.Values[0] && v <= f.Values[1]
	}
	return false
}

// idsLocked returns matching ids in creation order.
func (m *memStore) idsLocked(keep func(domain.Record) bool) []uuid.UUID {
	var recs []domain.Record
	for _, r := range m.records {
		if keep(r) {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	ids := []uuid.UUID{}
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}

// ---- FieldRepo -------------------------------------------------------------

func (m *memStore) All(_ context.Context, id uuid.UUID) (domain.Fields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fields[id].Clone(), nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fields[id][name], nil
}

func (m *memStore) Set(_ context.Context, id uuid.UUID, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fields[id] == nil {
		m.fields[id] = domain.Fields{}
	}
	m.fields[id][name] = value
	return nil
}

func (m *memStore) SetMany(ctx context.Context, id uuid.UUID, fields domain.Fields) error {
	for _, name := range fields.Names() {
		if err := m.Set(ctx, id, name, fields[name]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) FurtherDates(_ context.Context, id uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.further[id]...), nil
}

func (m *memStore) SetFurtherDates(_ context.Context, id uuid.UUID, dates []string) error {
	if m.beforeSetFurtherDates != nil {
		m.beforeSetFurtherDates(id, dates)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.further[id] = append([]string{}, dates...)
	return nil
}

func (m *memStore) RecordsWithValue(_ context.Context, name, value string, types []domain.RecordType, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.idsLocked(func(r domain.Record) bool {
		return hasType(types, r.Type) && m.fields[r.ID][name] == value
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// ---- TermRepo --------------------------------------------------------------

func (m *memStore) Upsert(_ context.Context, taxonomy, name, slug string) (domain.Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(taxonomy, name, slug), nil
}

func (m *memStore) upsertLocked(taxonomy, name, slug string) domain.Term {
	for _, t := range m.terms {
		if t.Taxonomy == taxonomy && t.Slug == slug {
			return t
		}
	}
	t := domain.Term{ID: uuid.New(), Taxonomy: taxonomy, Name: name, Slug: slug, CreatedAt: m.tick()}
	m.terms[t.ID] = t
	return t
}

func (m *memStore) TagSets(_ context.Context, recordID uuid.UUID) (domain.TagSets, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sets := domain.TagSets{}
	for _, t := range m.termsLocked(recordID, "") {
		sets[t.Taxonomy] = append(sets[t.Taxonomy], t.ID)
	}
	return sets, nil
}

func (m *memStore) SetTerms(_ context.Context, recordID uuid.UUID, taxonomy string, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setTermsLocked(recordID, taxonomy, ids)
	return nil
}

func (m *memStore) setTermsLocked(recordID uuid.UUID, taxonomy string, ids []uuid.UUID) {
	if m.links[recordID] == nil {
		m.links[recordID] = map[uuid.UUID]bool{}
	}
	for tid := range m.links[recordID] {
		if m.terms[tid].Taxonomy == taxonomy {
			delete(m.links[recordID], tid)
		}
	}
	for _, tid := range ids {
		if m.terms[tid].Taxonomy == taxonomy {
			m.links[recordID][tid] = true
		}
	}
}

func (m *memStore) ListByRecord(_ context.Context, recordID uuid.UUID, taxonomy string) ([]domain.Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.termsLocked(recordID, taxonomy), nil
}

func (m *memStore) ListByTaxonomy(_ context.Context, taxonomy string) ([]domain.Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Term{}
	for _, t := range m.terms {
		if t.Taxonomy == taxonomy {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// termsLocked returns a record's terms ordered by taxonomy then slug. An
// empty taxonomy matches all.
func (m *memStore) termsLocked(recordID uuid.UUID, taxonomy string) []domain.Term {
	out := []domain.Term{}
	for tid := range m.links[recordID] {
		t := m.terms[tid]
		if taxonomy == "" || t.Taxonomy == taxonomy {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Taxonomy != out[j].Taxonomy {
			return out[i].Taxonomy < out[j].Taxonomy
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}

// ---- TranslationRepo -------------------------------------------------------

func (m *memStore) Language(_ context.Context, id uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.languageLocked(id), nil
}

func (m *memStore) languageLocked(id uuid.UUID) string {
	if terms := m.termsLocked(id, domain.TaxonomyLanguage); len(terms) > 0 {
		return terms[0].Slug
	}
	return ""
}

func (m *memStore) SetLanguage(_ context.Context, id uuid.UUID, lang string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.upsertLocked(domain.TaxonomyLanguage, lang, lang)
	m.setTermsLocked(id, domain.TaxonomyLanguage, []uuid.UUID{t.ID})
	return nil
}

func (m *memStore) Translations(_ context.Context, id uuid.UUID) (map[string]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]uuid.UUID{}
	groups := m.termsLocked(id, domain.TaxonomyTranslations)
	if len(groups) == 0 {
		return out, nil
	}
	for rid, links := range m.links {
		if links[groups[0].ID] {
			out[m.languageLocked(rid)] = rid
		}
	}
	return out, nil
}

func (m *memStore) SaveTranslations(_ context.Context, peers map[string]uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var group uuid.UUID
	for _, id := range peers {
		if g := m.termsLocked(id, domain.TaxonomyTranslations); len(g) > 0 {
			group = g[0].ID
			break
		}
	}
	if group == uuid.Nil {
		slug := "group-" + uuid.NewString()
		group = m.upsertLocked(domain.TaxonomyTranslations, slug, slug).ID
	}
	for _, id := range peers {
		m.setTermsLocked(id, domain.TaxonomyTranslations, []uuid.UUID{group})
	}
	return nil
}

// ---- helpers ---------------------------------------------------------------

func hasType(types []domain.RecordType, t domain.RecordType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func hasStatus(statuses []domain.Status, s domain.Status) bool {
	for _, x := range statuses {
		if x == s {
			return true
		}
	}
	return false
}

// children returns the recurrence records of parent in creation order.
func (m *memStore) children(t *testing.T, parent uuid.UUID) []domain.Record {
	t.Helper()
	ids, _ := m.Children(context.Background(), parent, domain.TypeRecurrence)
	out := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		rec, _ := m.GetByID(context.Background(), id)
		out = append(out, rec)
	}
	return out
}

// childDates returns the sorted date_and_time values of parent's recurrences.
func (m *memStore) childDates(t *testing.T, parent uuid.UUID) []string {
	t.Helper()
	var dates []string
	for _, c := range m.children(t, parent) {
		dates = append(dates, m.field(c.ID, domain.FieldDateTime))
	}
	sort.Strings(dates)
	return dates
}

func (m *memStore) field(id uuid.UUID, name string) string {
	v, _ := m.Get(context.Background(), id, name)
	return v
}

// countType counts records of typ.
func (m *memStore) countType(typ domain.RecordType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.Type == typ {
			n++
		}
	}
	return n
}

// failAfter makes record creation of typ fail once n records of it were created.
func (m *memStore) failAfter(typ domain.RecordType, n int) {
	created := 0
	m.failCreate = func(rec domain.Record) error {
		if rec.Type != typ {
			return nil
		}
		if created >= n {
			return fmt.Errorf("insert %s: %w", strings.ToLower(string(typ)), errors.New("disk full"))
		}
		created++
		return nil
	}
}

// ---- engine ----------------------------------------------------------------

// testNow is the fixed clock of every engine built by newEngine.
var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type engine struct {
	store        *memStore
	dates        *service.DateService
	locations    *service.LocationSync
	recurrences  *service.RecurrenceEngine
	translations *service.TranslationSync
	pipeline     *service.SavePipeline
	events       *service.EventService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newEngine wires every component over a fresh memStore. languages
// defaults to a single "de".
func newEngine(t *testing.T, languages ...string) *engine {
	t.Helper()
	if len(languages) == 0 {
		languages = []string{"de"}
	}
	st := newMemStore()
	log := discardLogger()
	dates := service.NewDateService(time.UTC, "02.01.2006", "15:04", func() time.Time { return testNow })
	locations := service.NewLocationSync(st.stores(), nil, log)
	recurrences := service.NewRecurrenceEngine(st.stores(), dates, locations, nil, log)
	translations := service.NewTranslationSync(st.stores(), languages, languages[0], nil, log)
	guard := service.NewFieldGuard(nil, locations)
	pipeline := service.NewSavePipeline(st.stores(), dates, locations, recurrences, translations, guard, nil, log)
	return &engine{
		store:        st,
		dates:        dates,
		locations:    locations,
		recurrences:  recurrences,
		translations: translations,
		pipeline:     pipeline,
		events:       service.NewEventService(st.stores(), dates),
	}
}

func (e *engine) saveLocation(t *testing.T, title string, fields domain.Fields) domain.Record {
	t.Helper()
	rec, err := e.pipeline.Save(context.Background(), service.SaveInput{
		Type: domain.TypeLocation, Title: title, Status: domain.StatusPublished, Fields: fields,
	})
	require.NoError(t, err, "save location %q", title)
	return rec
}

func (e *engine) saveEvent(t *testing.T, in service.SaveInput) domain.Record {
	t.Helper()
	in.Type = domain.TypeEvent
	if in.Status == "" {
		in.Status = domain.StatusPublished
	}
	rec, err := e.pipeline.Save(context.Background(), in)
	require.NoError(t, err, "save event %q", in.Title)
	return rec
}
