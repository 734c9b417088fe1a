package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"vnjp-connect/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 64 << 10

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, payload interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, ErrorResponse{Error: message}, statusCode)
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{services.ErrNotFound, http.StatusNotFound, "not_found"},
	{services.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{services.ErrSelfMatch, http.StatusConflict, "self_match"},
	{services.ErrNationalityConflict, http.StatusConflict, "nationality_conflict"},
	{services.ErrDuplicateEvaluation, http.StatusConflict, "duplicate_evaluation"},
	{services.ErrNotAuthorized, http.StatusForbidden, "not_authorized"},
	{services.ErrAccessDenied, http.StatusForbidden, "access_denied"},
	{services.ErrEmptyContent, http.StatusUnprocessableEntity, "empty_content"},
	{services.ErrInvalidScore, http.StatusUnprocessableEntity, "invalid_score"},
	{services.ErrValidation, http.StatusUnprocessableEntity, "validation_failed"},
}

// respondServiceError maps a service error to its HTTP status. Unknown
// errors are logged and reported as 500 without detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			respondJSON(w, ErrorResponse{Error: err.Error(), Code: m.code}, m.status)
			return
		}
	}

	log.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(action)
	respondError(w, action, http.StatusInternalServerError)
}

func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func pathID(r *http.Request) string {
	return chi.URLParam(r, "id")
}
