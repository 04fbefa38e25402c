package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors surfaced by handlers behind the gate.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps sentinel errors onto HTTP statuses with the shared
// error body shape.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Error(w, http.StatusNotFound, "Not found.")
	case errors.Is(err, ErrValidation):
		Error(w, http.StatusBadRequest, "Validation failed.")
	case errors.Is(err, ErrForbidden):
		Error(w, http.StatusForbidden, "Insufficient permissions.")
	case errors.Is(err, ErrUnauthorized):
		Error(w, http.StatusUnauthorized, "Authentication required.")
	default:
		Error(w, http.StatusInternalServerError, "Internal error.")
	}
}
