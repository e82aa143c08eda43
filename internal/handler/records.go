package handler

import "net/http"

// SetFieldRequest is the body of PUT /records/{id}/fields/{name}.
type SetFieldRequest struct {
	Value string `json:"value"`
}

// SetField handles PUT /records/{id}/fields/{name}.
// Writes to fields owned by the location sync are refused with 403.
func (s *Server) SetField(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		requestError(w, err.Error())
		return
	}
	name, err := pathString(r, "name")
	if err != nil {
		requestError(w, err.Error())
		return
	}
	var body SetFieldRequest
	if err := decodeBody(r, &body); err != nil {
		bodyError(w, err)
		return
	}

	if err := s.pipeline.SetField(r.Context(), id, name, body.Value); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TrashRecord handles POST /records/{id}/trash.
// Locations still referenced by events are refused with 409.
func (s *Server) TrashRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		requestError(w, err.Error())
		return
	}
	if err := s.pipeline.Trash(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRecord handles DELETE /records/{id}.
func (s *Server) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		requestError(w, err.Error())
		return
	}
	if err := s.pipeline.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
