package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/tinoosan/tripsettle/internal/errs"
	"github.com/tinoosan/tripsettle/internal/settlement"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error     string     `json:"error"`
	Code      string     `json:"code,omitempty"`
	Field     string     `json:"field,omitempty"`
	ExpenseID *uuid.UUID `json:"expense_id,omitempty"`
}

// toJSON writes a JSON response with status code.
func toJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusBadRequest, msg, "invalid")
}
func notFound(w http.ResponseWriter) { writeErr(w, http.StatusNotFound, "not_found", "not_found") }
func unprocessable(w http.ResponseWriter, msg, code string) {
	writeErr(w, http.StatusUnprocessableEntity, msg, code)
}

// writeServiceError maps a service or engine error onto a status and payload.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *settlement.ValidationError
	var ce *settlement.ConfigurationError
	switch {
	case errors.As(err, &ve):
		resp := errorResponse{Error: ve.Reason, Code: "validation_error", Field: ve.Field}
		if ve.ExpenseID != uuid.Nil {
			id := ve.ExpenseID
			resp.ExpenseID = &id
		}
		toJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.As(err, &ce):
		resp := errorResponse{Error: err.Error(), Code: "unsupported_split_type", Field: "split_type"}
		if ce.ExpenseID != uuid.Nil {
			id := ce.ExpenseID
			resp.ExpenseID = &id
		}
		toJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, errs.ErrNotFound):
		notFound(w)
	case errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, err.Error(), "conflict")
	case errors.Is(err, errs.ErrForbidden):
		writeErr(w, http.StatusForbidden, err.Error(), "forbidden")
	case errors.Is(err, errs.ErrInvalid):
		badRequest(w, err.Error())
	case errors.Is(err, errs.ErrImmutable):
		writeErr(w, http.StatusConflict, err.Error(), "immutable")
	default:
		s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		writeErr(w, http.StatusInternalServerError, "internal_error", "internal_error")
	}
}

// decodeJSON enforces a JSON body without unknown fields. It writes the error
// response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !requireJSON(w, r) {
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
