package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"washpos/core/auth"
	"washpos/core/store"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// respondServiceError translates the precise internal error kinds into the
// deliberately blurred client surface.
func respondServiceError(w http.ResponseWriter, err error) {
	var locked *auth.LockedError
	switch {
	case errors.As(err, &locked):
		writeJSON(w, http.StatusLocked, map[string]interface{}{
			"error":             "account temporarily locked",
			"minutes_remaining": locked.RemainingMinutes(time.Now().UTC()),
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrSetupComplete):
		writeError(w, http.StatusBadRequest, "setup already completed")
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusBadRequest, "username or email already in use")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, "server error")
	}
}
