package handler

import (
	"net/http"

	"github.com/pkordes/eventsync/internal/domain"
)

// CreateLocation handles POST /locations.
func (s *Server) CreateLocation(w http.ResponseWriter, r *http.Request) {
	s.save(w, r, domain.TypeLocation, nil)
}

// UpdateLocation handles PUT /locations/{id}. Saving a visible location
// pushes its name to every event that references it.
func (s *Server) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		requestError(w, err.Error())
		return
	}
	s.save(w, r, domain.TypeLocation, &id)
}

// ListLocationEvents handles GET /locations/{id}/events.
func (s *Server) ListLocationEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		requestError(w, err.Error())
		return
	}
	recs, err := s.locations.AttachedEvents(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
