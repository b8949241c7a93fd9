package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/smartprint/printstage/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps pipeline errors onto the boundary status codes.
func writeError(w http.ResponseWriter, err error) {
	var storageErr *apperr.StorageError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, "Missing required fields")
	case errors.Is(err, apperr.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, apperr.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "User not found")
	case errors.As(err, &storageErr):
		writeJSONError(w, http.StatusInternalServerError, "Database error occurred")
	default:
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
	}
}
