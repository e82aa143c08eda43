// Package handler implements the HTTP handlers for the eventsync API.
// All handlers are methods on Server. They are split into resource files
// (health.go, events.go, locations.go, records.go) but share the Server
// struct and its dependencies.
package handler

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/eventsync/internal/domain"
	"github.com/pkordes/eventsync/internal/service"
)

// Saver runs editor writes through the save pipeline.
// Defining the interface here, in the consumer package, lets handler tests
// inject a mock without touching the service layer or the database.
type Saver interface {
	Save(ctx context.Context, in service.SaveInput) (domain.Record, error)
	SetField(ctx context.Context, id uuid.UUID, name, value string) error
	Trash(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EventReader serves event detail pages.
type EventReader interface {
	Get(ctx context.Context, id, currentID uuid.UUID) (service.EventView, error)
	EventDates(ctx context.Context, id, currentID uuid.UUID) ([]domain.EventDate, error)
	Calendar(ctx context.Context, id uuid.UUID) (string, error)
}

// Archiver serves archive listings.
type Archiver interface {
	List(ctx context.Context, view string, page domain.PaginationParams) (service.ArchivePage, error)
	PageSize() int
}

// LocationReader lists the events attached to a location.
type LocationReader interface {
	AttachedEvents(ctx context.Context, id uuid.UUID) ([]domain.Record, error)
}

// Server implements every API endpoint.
type Server struct {
	pipeline  Saver
	events    EventReader
	archive   Archiver
	locations LocationReader
	logger    *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
// A nil logger uses slog.Default.
func NewServer(pipeline Saver, events EventReader, archive Archiver, locations LocationReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pipeline:  pipeline,
		events:    events,
		archive:   archive,
		locations: locations,
		logger:    logger,
	}
}

// NewHealthHandler returns a Server for health-check-only use.
func NewHealthHandler() *Server {
	return NewServer(nil, nil, nil, nil, nil)
}

// Routes returns a chi router with every endpoint registered. main.go mounts
// it under the global middleware stack.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", s.ListEvents)
		r.Post("/", s.CreateEvent)
		r.Get("/{id}", s.GetEvent)
		r.Put("/{id}", s.UpdateEvent)
		r.Get("/{id}/dates", s.GetEventDates)
		r.Get("/{id}/calendar.ics", s.GetEventCalendar)
	})

	r.Route("/locations", func(r chi.Router) {
		r.Post("/", s.CreateLocation)
		r.Put("/{id}", s.UpdateLocation)
		r.Get("/{id}/events", s.ListLocationEvents)
	})

	r.Route("/records/{id}", func(r chi.Router) {
		r.Put("/fields/{name}", s.SetField)
		r.Post("/trash", s.TrashRecord)
		r.Delete("/", s.DeleteRecord)
	})

	return r
}
