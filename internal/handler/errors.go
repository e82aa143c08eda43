package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pkordes/eventsync/internal/domain"
)

// ErrorDetail is the body of every error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Field and Index locate a rejected submitted value.
	Field string `json:"field,omitempty"`
	Index *int   `json:"index,omitempty"`
}

// ErrorResponse wraps ErrorDetail under an "error" key.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestError answers 422 for input rejected before reaching the service
// layer, e.g. a malformed body or path parameter.
func requestError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ErrorDetail{Code: "validation_error", Message: message}})
}

// bodyError answers a body that could not be decoded: 413 when it exceeded
// the size limit, 422 otherwise.
func bodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: ErrorDetail{Code: "body_too_large", Message: err.Error()}})
		return
	}
	requestError(w, err.Error())
}

// writeError maps a service error onto a status and error body. Unknown
// errors are logged and answered with a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *domain.FieldError
	if errors.As(err, &fe) {
		detail := ErrorDetail{Code: kindCode(fe.Kind), Message: fe.Message, Field: fe.Field}
		if fe.Field == "further_dates" {
			idx := fe.Index
			detail.Index = &idx
		}
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: detail})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not_found", err, domain.ErrNotFound))
	case errors.Is(err, domain.ErrWriteDenied):
		writeJSON(w, http.StatusForbidden, errorBody("write_denied", err, domain.ErrWriteDenied))
	case errors.Is(err, domain.ErrDeletionDenied):
		writeJSON(w, http.StatusConflict, errorBody("deletion_denied", err, domain.ErrDeletionDenied))
	case errors.Is(err, domain.ErrInvalidDateFormat):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("invalid_date_format", err, domain.ErrInvalidDateFormat))
	case errors.Is(err, domain.ErrMissingPrerequisite):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("missing_prerequisite", err, domain.ErrMissingPrerequisite))
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("validation_error", err, domain.ErrValidation))
	case errors.Is(err, domain.ErrTranslationCreateFailed):
		s.logger.ErrorContext(r.Context(), "translation create failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("translation_create_failed", err, domain.ErrTranslationCreateFailed))
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{Code: "internal_error", Message: "internal server error"}})
	}
}

func errorBody(code string, err, sentinel error) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: unwrapMessage(err, sentinel)}}
}

func kindCode(kind error) string {
	switch {
	case errors.Is(kind, domain.ErrDuplicateDate):
		return "duplicate_date"
	case errors.Is(kind, domain.ErrDateEqualsOriginal):
		return "date_equals_original"
	case errors.Is(kind, domain.ErrInvalidDateFormat):
		return "invalid_date_format"
	default:
		return "validation_error"
	}
}

// unwrapMessage extracts the human-readable part after a wrapped sentinel.
// e.g. "service.SavePipeline.Save: validation error: title is required" → "title is required"
func unwrapMessage(err, sentinel error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return sentinel.Error()
}
