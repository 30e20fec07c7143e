package controller

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	appErrors "github.com/mailcast/mailcast-backend/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps the service error taxonomy onto HTTP statuses. Validation
// messages are safe verbatim; anything unexpected is hidden behind a 500.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case appErrors.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case appErrors.IsNoCredentials(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no SMTP settings configured"})
	case appErrors.IsForbidden(err):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case appErrors.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
