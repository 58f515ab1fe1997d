package httpapi

import (
	"net/http"
	"strings"
	"time"

	"promptdeck.org/internal/access"
	"promptdeck.org/internal/accounts"
	"promptdeck.org/internal/audit"
	"promptdeck.org/internal/auth"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	AccountID string    `json:"account_id"`
}

type accountUpdateRequest struct {
	Name      *string         `json:"name"`
	Email     *string         `json:"email"`
	Password  *string         `json:"password"`
	Role      *string         `json:"role"`
	Status    *string         `json:"status"`
	Overrides map[string]bool `json:"overrides"`
}

// caller loads the authenticated caller's account record.
func (a *API) caller(r *http.Request) (accounts.Account, error) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return accounts.Account{}, auth.ErrUnauthorized
	}
	acct, err := a.accounts.Get(r.Context(), identity.AccountID)
	if err != nil {
		// Valid token for an account that no longer exists.
		return accounts.Account{}, auth.ErrUnauthorized
	}
	return acct, nil
}

func sanitize(acct accounts.Account) accounts.Account {
	acct.PasswordHash = ""
	return acct
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := a.accounts.Register(r.Context(), req.Name, req.Email, req.Password, access.RoleUser)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.register", map[string]any{"account_id": acct.ID})
	w.Header().Set("Location", "/v1/accounts/"+acct.ID)
	writeJSON(w, http.StatusCreated, sanitize(acct))
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	acct, err := a.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		// One response for every failure mode so the endpoint does not
		// leak which accounts exist.
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, expiresAt, err := a.tokens.Issue(acct.ID, string(acct.Role))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"account":    acct.ID,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		AccountID: acct.ID,
	})
}

func (a *API) handleAccountsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caller, err := a.caller(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !caller.Can(access.CategoryAccounts, access.ActionManage) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	all, err := a.accounts.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	out := make([]accounts.Account, 0, len(all))
	for _, acct := range all {
		out = append(out, sanitize(acct))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	caller, err := a.caller(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	self := caller.ID == id
	manage := caller.Can(access.CategoryAccounts, access.ActionManage)

	switch r.Method {
	case http.MethodGet:
		if !self && !manage {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		acct, err := a.accounts.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sanitize(acct))
	case http.MethodPatch:
		a.updateAccount(w, r, id, caller, self, manage)
	case http.MethodDelete:
		if !self && !manage {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		if err := a.accounts.Delete(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "account.delete", map[string]any{"target": id})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) updateAccount(w http.ResponseWriter, r *http.Request, id string, caller accounts.Account, self, manage bool) {
	var req accountUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	privileged := req.Role != nil || req.Status != nil || req.Overrides != nil
	if privileged && !manage {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if !self && !manage {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}

	upd := accounts.Update{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Overrides: req.Overrides,
		Status:    req.Status,
	}
	if req.Role != nil {
		role := access.Role(*req.Role)
		upd.Role = &role
	}

	acct, err := a.accounts.Update(r.Context(), id, upd)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.update", map[string]any{"target": id})
	writeJSON(w, http.StatusOK, sanitize(acct))
}
