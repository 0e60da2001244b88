package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"washpos/core/auth"
	"washpos/core/utils"

	"github.com/go-chi/chi/v5"
)

type AuthHandler struct {
	svc    *auth.Service
	logger *utils.Logger
	meta   func(*http.Request) auth.RequestMeta

	// Metric hooks, wired by the server. Nil-safe.
	onLoginOutcome func(outcome string)
	onLockout      func()
}

func NewAuthHandler(svc *auth.Service, logger *utils.Logger, meta func(*http.Request) auth.RequestMeta, onLoginOutcome func(string), onLockout func()) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger, meta: meta, onLoginOutcome: onLoginOutcome, onLockout: onLockout}
}

func (h *AuthHandler) recordOutcome(outcome string) {
	if h.onLoginOutcome != nil {
		h.onLoginOutcome(outcome)
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (h *AuthHandler) SetupRequired(w http.ResponseWriter, r *http.Request) {
	required, n, err := h.svc.SetupRequired(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"setupRequired": required,
		"userCount":     n,
	})
}

func (h *AuthHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	meta := h.meta(r)
	if meta.Fingerprint == "" {
		writeError(w, http.StatusBadRequest, "missing device fingerprint")
		return
	}
	res, err := h.svc.Setup(r.Context(), req.Username, req.Password, req.Email, meta)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	meta := h.meta(r)
	if meta.Fingerprint == "" {
		writeError(w, http.StatusBadRequest, "missing device fingerprint")
		return
	}
	res, err := h.svc.Login(r.Context(), req.Username, req.Password, meta)
	if err != nil {
		var locked *auth.LockedError
		switch {
		case errors.As(err, &locked):
			h.recordOutcome("locked")
			if h.onLockout != nil {
				h.onLockout()
			}
		case errors.Is(err, auth.ErrInvalidCredentials):
			h.recordOutcome("failure")
		default:
			h.recordOutcome("error")
		}
		respondServiceError(w, err)
		return
	}
	h.recordOutcome("success")
	writeJSON(w, http.StatusOK, res)
}

// Logout is deliberately lenient: an invalid or already-revoked token is
// still a successful logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := h.svc.Logout(r.Context(), token, h.meta(r)); err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": map[string]interface{}{
			"id":       id.Account.ID,
			"username": id.Account.Username,
			"email":    id.Account.Email,
			"role":     id.Account.Role,
		},
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if err := h.svc.ChangePassword(r.Context(), id.Account.ID, req.CurrentPassword, req.NewPassword, id.Meta); err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	profile, err := h.svc.Profile(r.Context(), id.Account.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	sessions, err := h.svc.Sessions(r.Context(), id.Account.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, map[string]interface{}{
			"id":            sess.ID,
			"ip":            sess.IP,
			"user_agent":    sess.UserAgent,
			"created_at":    sess.CreatedAt,
			"last_activity": sess.LastActivity,
			"current":       sess.ID == id.Claims.SessionID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	sessionID, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || sessionID == "" {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if err := h.svc.RevokeSession(r.Context(), id.Account.ID, sessionID, id.Meta); err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AuthHandler) Devices(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	devices, err := h.svc.Devices(r.Context(), id.Account.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": devices})
}

func (h *AuthHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	entries, err := h.svc.AuditTrail(r.Context(), id.Account.ID, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}
