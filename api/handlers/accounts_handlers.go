package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"washpos/core/auth"
	"washpos/core/rbac"
	"washpos/core/utils"

	"github.com/go-chi/chi/v5"
)

// AccountsHandler is the admin-only staff management surface.
type AccountsHandler struct {
	svc    *auth.Service
	policy *rbac.Policy
	logger *utils.Logger
}

func NewAccountsHandler(svc *auth.Service, policy *rbac.Policy, logger *utils.Logger) *AccountsHandler {
	return &AccountsHandler{svc: svc, policy: policy, logger: logger}
}

// Roles lists the fixed role catalogue and the permissions each role grants.
func (h *AccountsHandler) Roles(w http.ResponseWriter, r *http.Request) {
	roles := make([]map[string]interface{}, 0, 3)
	for _, name := range []string{rbac.RoleAdmin, rbac.RoleManager, rbac.RoleOperator} {
		roles = append(roles, map[string]interface{}{
			"name":        name,
			"permissions": h.policy.PermissionsForRole(name),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"roles":       roles,
		"permissions": rbac.AllPermissions(),
	})
}

func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

type createAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	user, err := h.svc.CreateAccount(r.Context(), id.Account.ID, req.Username, req.Password, req.Email, req.Role, id.Meta)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *AccountsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *AccountsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *AccountsHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || accountID <= 0 {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if !active && accountID == id.Account.ID {
		writeError(w, http.StatusBadRequest, "cannot deactivate your own account")
		return
	}
	if err := h.svc.SetAccountActive(r.Context(), id.Account.ID, accountID, active, id.Meta); err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
