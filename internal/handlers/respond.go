package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"masterok/internal/models"
)

// Logger is what handlers need to report unexpected failures.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return false
	}
	return true
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNoRecord):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeError renders err. Unexpected errors are logged and hidden from the caller.
func writeError(w http.ResponseWriter, log Logger, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Errorf("handler: %v", err)
		writeJSON(w, status, errorBody{Error: "Internal server error"})
		return
	}
	body := errorBody{Error: err.Error()}
	var fields models.ValidationErrors
	if errors.As(err, &fields) {
		body.Error = "Validation failed"
		body.Fields = fields
	}
	writeJSON(w, status, body)
}
