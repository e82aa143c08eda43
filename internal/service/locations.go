package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/pkordes/eventsync/internal/domain"
	"github.com/pkordes/eventsync/internal/metrics"
)

var eventLikeTypes = []domain.RecordType{domain.TypeEvent, domain.TypeRecurrence}

// LocationSync is the only writer of the location_name and
// location_sort_name fields of events and recurrences. Every path that
// changes them funnels into SyncEvent.
type LocationSync struct {
	st      Stores
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewLocationSync constructs a LocationSync over the given stores.
func NewLocationSync(st Stores, m *metrics.Metrics, logger *slog.Logger) *LocationSync {
	return &LocationSync{st: st, metrics: m, logger: orDefault(logger)}
}

// OwnsField reports whether name is one of the denormalized location fields.
func (s *LocationSync) OwnsField(name string) bool {
	return name == domain.FieldLocationName || name == domain.FieldLocationSortName
}

// SyncEvent recomputes the denormalized location fields of one event or
// recurrence from its location_id. A cleared, malformed or dangling
// reference yields empty strings.
func (s *LocationSync) SyncEvent(ctx context.Context, id uuid.UUID) error {
	ref, err := s.st.Fields.Get(ctx, id, domain.FieldLocationID)
	if err != nil {
		return fmt.Errorf("service.LocationSync.SyncEvent: %w", err)
	}

	var name, sortName string
	if locID, err := uuid.Parse(ref); err == nil {
		loc, err := s.location(ctx, locID)
		switch {
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrMissingPrerequisite):
			// dangling reference: clear
		case err != nil:
			return fmt.Errorf("service.LocationSync.SyncEvent: %w", err)
		default:
			name, sortName = loc.Title, loc.DisplaySortName()
		}
	}

	err = s.st.Fields.SetMany(ctx, id, domain.Fields{
		domain.FieldLocationName:     name,
		domain.FieldLocationSortName: sortName,
	})
	if err != nil {
		return fmt.Errorf("service.LocationSync.SyncEvent: %w", err)
	}
	s.metrics.EventResynced()
	return nil
}

// OnLocationSaved re-pushes SyncEvent for every event and recurrence that
// references a visible location. It writes fields directly and never
// re-enters the save pipeline, so nested saves cannot loop back here.
func (s *LocationSync) OnLocationSaved(ctx context.Context, id uuid.UUID) error {
	rec, err := s.st.Records.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("service.LocationSync.OnLocationSaved: %w", err)
	}
	if rec.Type != domain.TypeLocation || !rec.Status.Visible() {
		return nil
	}

	ids, err := s.eventsAt(ctx, id, 0)
	if err != nil {
		return fmt.Errorf("service.LocationSync.OnLocationSaved: %w", err)
	}
	for _, eventID := range ids {
		if err := s.SyncEvent(ctx, eventID); err != nil {
			return fmt.Errorf("service.LocationSync.OnLocationSaved: %w", err)
		}
	}
	s.logger.DebugContext(ctx, "location events resynced", "location_id", id, "events", len(ids))
	return nil
}

// CanDelete reports whether a location may be trashed or deleted: only when
// no event or recurrence references it by id.
func (s *LocationSync) CanDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	ids, err := s.eventsAt(ctx, id, 1)
	if err != nil {
		return false, fmt.Errorf("service.LocationSync.CanDelete: %w", err)
	}
	return len(ids) == 0, nil
}

// AttachedEvents returns every event and recurrence referencing a location.
func (s *LocationSync) AttachedEvents(ctx context.Context, id uuid.UUID) ([]domain.Record, error) {
	if _, err := s.location(ctx, id); err != nil {
		return nil, fmt.Errorf("service.LocationSync.AttachedEvents: %w", err)
	}
	ids, err := s.eventsAt(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("service.LocationSync.AttachedEvents: %w", err)
	}
	out := make([]domain.Record, 0, len(ids))
	for _, eventID := range ids {
		rec, err := s.st.Records.GetByID(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("service.LocationSync.AttachedEvents: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ResyncAll re-pushes every visible location. Failures of one location do
// not stop the others; all of them are returned together.
func (s *LocationSync) ResyncAll(ctx context.Context) error {
	ids, err := s.st.Records.ListIDs(ctx, domain.TypeLocation, domain.VisibleStatuses)
	if err != nil {
		return fmt.Errorf("service.LocationSync.ResyncAll: %w", err)
	}
	var errs error
	for _, id := range ids {
		errs = multierr.Append(errs, s.OnLocationSaved(ctx, id))
	}
	s.logger.InfoContext(ctx, "location resync finished", "locations", len(ids), "failed", len(multierr.Errors(errs)))
	if errs != nil {
		return fmt.Errorf("service.LocationSync.ResyncAll: %w", errs)
	}
	return nil
}

func (s *LocationSync) location(ctx context.Context, id uuid.UUID) (domain.Location, error) {
	rec, err := s.st.Records.GetByID(ctx, id)
	if err != nil {
		return domain.Location{}, err
	}
	if rec.Type != domain.TypeLocation {
		return domain.Location{}, fmt.Errorf("%w: %s is not a location", domain.ErrMissingPrerequisite, id)
	}
	fields, err := s.st.Fields.All(ctx, id)
	if err != nil {
		return domain.Location{}, err
	}
	return domain.NewLocation(rec, fields), nil
}

func (s *LocationSync) eventsAt(ctx context.Context, id uuid.UUID, limit int) ([]uuid.UUID, error) {
	return s.st.Fields.RecordsWithValue(ctx, domain.FieldLocationID, id.String(), eventLikeTypes, limit)
}
