package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/eventsync/internal/domain"
	"github.com/pkordes/eventsync/internal/handler"
	"github.com/pkordes/eventsync/internal/service"
)

// mockSaver is a test double for handler.Saver.
// Set only the method fields your test needs.
type mockSaver struct {
	save     func(ctx context.Context, in service.SaveInput) (domain.Record, error)
	setField func(ctx context.Context, id uuid.UUID, name, value string) error
	trash    func(ctx context.Context, id uuid.UUID) error
	delete   func(ctx context.Context, id uuid.UUID) error
}

func (m *mockSaver) Save(ctx context.Context, in service.SaveInput) (domain.Record, error) {
	return m.save(ctx, in)
}
func (m *mockSaver) SetField(ctx context.Context, id uuid.UUID, name, value string) error {
	return m.setField(ctx, id, name, value)
}
func (m *mockSaver) Trash(ctx context.Context, id uuid.UUID) error {
	return m.trash(ctx, id)
}
func (m *mockSaver) Delete(ctx context.Context, id uuid.UUID) error {
	return m.delete(ctx, id)
}

// mockEventReader is a test double for handler.EventReader.
type mockEventReader struct {
	get        func(ctx context.Context, id, currentID uuid.UUID) (service.EventView, error)
	eventDates func(ctx context.Context, id, currentID uuid.UUID) ([]domain.EventDate, error)
	calendar   func(ctx context.Context, id uuid.UUID) (string, error)
}

func (m *mockEventReader) Get(ctx context.Context, id, currentID uuid.UUID) (service.EventView, error) {
	return m.get(ctx, id, currentID)
}
func (m *mockEventReader) EventDates(ctx context.Context, id, currentID uuid.UUID) ([]domain.EventDate, error) {
	return m.eventDates(ctx, id, currentID)
}
func (m *mockEventReader) Calendar(ctx context.Context, id uuid.UUID) (string, error) {
	return m.calendar(ctx, id)
}

// mockArchiver is a test double for handler.Archiver.
type mockArchiver struct {
	list     func(ctx context.Context, view string, page domain.PaginationParams) (service.ArchivePage, error)
	pageSize int
}

func (m *mockArchiver) List(ctx context.Context, view string, page domain.PaginationParams) (service.ArchivePage, error) {
	return m.list(ctx, view, page)
}
func (m *mockArchiver) PageSize() int { return m.pageSize }

// mockLocationReader is a test double for handler.LocationReader.
type mockLocationReader struct {
	attachedEvents func(ctx context.Context, id uuid.UUID) ([]domain.Record, error)
}

func (m *mockLocationReader) AttachedEvents(ctx context.Context, id uuid.UUID) ([]domain.Record, error) {
	return m.attachedEvents(ctx, id)
}

// compile-time checks: the mocks must satisfy the handler interfaces.
var (
	_ handler.Saver          = (*mockSaver)(nil)
	_ handler.EventReader    = (*mockEventReader)(nil)
	_ handler.Archiver       = (*mockArchiver)(nil)
	_ handler.LocationReader = (*mockLocationReader)(nil)
)

// ---- helpers ---------------------------------------------------------------

// deps bundles the mocks behind one Server. Nil members are replaced by
// empty mocks so a test only sets what it exercises.
type deps struct {
	saver     *mockSaver
	events    *mockEventReader
	archive   *mockArchiver
	locations *mockLocationReader
}

func newHTTPHandler(d deps) http.Handler {
	if d.saver == nil {
		d.saver = &mockSaver{}
	}
	if d.events == nil {
		d.events = &mockEventReader{}
	}
	if d.archive == nil {
		d.archive = &mockArchiver{pageSize: 6}
	}
	if d.locations == nil {
		d.locations = &mockLocationReader{}
	}
	return handler.NewServer(d.saver, d.events, d.archive, d.locations, nil).Routes()
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorDetail {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func recordFixture(typ domain.RecordType) domain.Record {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Record{
		ID:        uuid.New(),
		Type:      typ,
		Title:     "Concert",
		Slug:      "concert",
		Status:    domain.StatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
