package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cipherpoll/server/internal/cipherpoll/service"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeServiceError maps the protocol error taxonomy onto HTTP statuses.
// Returns false when err was nil.
func writeServiceError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, service.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access_denied", err.Error())

	case errors.Is(err, service.ErrBatchNotFound):
		writeError(w, http.StatusNotFound, "batch_not_found", err.Error())
	case errors.Is(err, service.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())

	case errors.Is(err, service.ErrPaused):
		writeError(w, http.StatusConflict, "ledger_paused", err.Error())
	case errors.Is(err, service.ErrCooldownActive):
		writeError(w, http.StatusConflict, "cooldown_active", err.Error())
	case errors.Is(err, service.ErrBatchNotOpen):
		writeError(w, http.StatusConflict, "batch_not_open", err.Error())
	case errors.Is(err, service.ErrBatchStillOpen):
		writeError(w, http.StatusConflict, "batch_still_open", err.Error())

	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())

	case errors.Is(err, service.ErrReplayDetected):
		writeError(w, http.StatusConflict, "replay_detected", err.Error())
	case errors.Is(err, service.ErrStateMismatch):
		writeError(w, http.StatusConflict, "state_mismatch", err.Error())
	case errors.Is(err, service.ErrRequestExists):
		writeError(w, http.StatusConflict, "request_exists", err.Error())
	case errors.Is(err, service.ErrDecryptionFailed):
		writeError(w, http.StatusUnauthorized, "decryption_failed", err.Error())

	case errors.Is(err, service.ErrOracleUnavailable):
		writeError(w, http.StatusServiceUnavailable, "oracle_unavailable", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
	return true
}
