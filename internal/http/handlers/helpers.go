package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"zoneadmin/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the orchestrator's error taxonomy onto HTTP codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var valErr *service.ValidationError
	switch {
	case errors.As(err, &valErr):
		writeError(w, http.StatusBadRequest, valErr.Msg)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "pending transaction not found")
	case errors.Is(err, service.ErrReferenceMismatch):
		writeError(w, http.StatusBadRequest, "reference id does not match")
	default:
		writeError(w, http.StatusInternalServerError, "payment operation failed")
	}
}
