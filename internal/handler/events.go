package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/eventsync/internal/domain"
	"github.com/pkordes/eventsync/internal/service"
)

// SaveRequest is the body of every event and location create or update.
// Fields are merged into the stored ones. FurtherDates replaces the stored
// list when present; omit it to keep the list.
type SaveRequest struct {
	Title            string              `json:"title"`
	Status           string              `json:"status,omitempty"`
	Sticky           bool                `json:"sticky,omitempty"`
	Fields           map[string]string   `json:"fields,omitempty"`
	FurtherDates     []string            `json:"further_dates,omitempty"`
	FurtherDatesRule string              `json:"further_dates_rule,omitempty"`
	Terms            map[string][]string `json:"terms,omitempty"`
	Language         string              `json:"language,omitempty"`
}

// ListEvents handles GET /events.
// Supports ?view= (calendar, locations or empty), ?page= and ?limit=.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	var (
		view        *string
		page, limit *int
	)
	if err := queryParam(r, "view", &view); err != nil {
		requestError(w, err.Error())
		return
	}
	if err := queryParam(r, "page", &page); err != nil {
		requestError(w, err.Error())
		return
	}
	if err := queryParam(r, "limit", &limit); err != nil {
		requestError(w, err.Error())
		return
	}

	v := ""
	if view != nil {
		v = *view
	}
	params := domain.NewPaginationParams(page, limit, s.archive.PageSize())
	out, err := s.archive.List(r.Context(), v, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateEvent handles POST /events.
func (s *Server) CreateEvent(w http.ResponseWriter, r *http.Request) {
	s.save(w, r, domain.TypeEvent, nil)
}

// UpdateEvent handles PUT /events/{id}.
func (s *Server) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		requestError(w, err.Error())
		return
	}
	s.save(w, r, domain.TypeEvent, &id)
}

// GetEvent handles GET /events/{id}. ?recurrence= marks the date being viewed.
func (s *Server) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, current, ok := s.eventParams(w, r)
	if !ok {
		return
	}
	view, err := s.events.Get(r.Context(), id, current)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetEventDates handles GET /events/{id}/dates.
func (s *Server) GetEventDates(w http.ResponseWriter, r *http.Request) {
	id, current, ok := s.eventParams(w, r)
	if !ok {
		return
	}
	if current == uuid.Nil {
		current = id
	}
	dates, err := s.events.EventDates(r.Context(), id, current)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dates)
}

// GetEventCalendar handles GET /events/{id}/calendar.ics.
func (s *Server) GetEventCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		requestError(w, err.Error())
		return
	}
	cal, err := s.events.Calendar(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="event-%s.ics"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(cal))
}

// eventParams binds the {id} path parameter and the optional ?recurrence=
// query parameter. It answers the request itself when binding fails.
func (s *Server) eventParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	id, err := pathUUID(r, "id")
	if err != nil {
		requestError(w, err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	var current *uuid.UUID
	if err := queryParam(r, "recurrence", &current); err != nil {
		requestError(w, err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	if current == nil {
		return id, uuid.Nil, true
	}
	return id, *current, true
}

// save decodes a SaveRequest and runs it through the pipeline. id is nil
// for creates.
func (s *Server) save(w http.ResponseWriter, r *http.Request, typ domain.RecordType, id *uuid.UUID) {
	var body SaveRequest
	if err := decodeBody(r, &body); err != nil {
		bodyError(w, err)
		return
	}

	in := requestToSaveInput(body, typ)
	in.ID = id
	rec, err := s.pipeline.Save(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if id == nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, rec)
}

// requestToSaveInput converts a SaveRequest body into a service.SaveInput.
func requestToSaveInput(body SaveRequest, typ domain.RecordType) service.SaveInput {
	in := service.SaveInput{
		Type:             typ,
		Title:            body.Title,
		Status:           domain.Status(strings.TrimSpace(body.Status)),
		Sticky:           body.Sticky,
		FurtherDates:     body.FurtherDates,
		FurtherDatesRule: strings.TrimSpace(body.FurtherDatesRule),
		Terms:            body.Terms,
		Language:         strings.TrimSpace(body.Language),
	}
	if body.Fields != nil {
		in.Fields = domain.Fields(body.Fields)
	}
	return in
}
