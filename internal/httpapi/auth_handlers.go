package httpapi

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"ekklesia.org/internal/audit"
	"ekklesia.org/internal/auth"
	"ekklesia.org/internal/obs"
)

type registerRequest struct {
	Name                 string  `json:"name"`
	Email                string  `json:"email"`
	Password             string  `json:"password"`
	PasswordConfirmation string  `json:"password_confirmation"`
	TenantID             *string `json:"tenant_id,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fields := map[string][]string{}
	if strings.TrimSpace(req.Name) == "" {
		fields["name"] = append(fields["name"], "The name field is required.")
	}
	if strings.TrimSpace(req.Email) == "" {
		fields["email"] = append(fields["email"], "The email field is required.")
	}
	if req.Password == "" {
		fields["password"] = append(fields["password"], "The password field is required.")
	}
	if req.Password != req.PasswordConfirmation {
		fields["password"] = append(fields["password"], "The password confirmation does not match.")
	}
	if len(fields) > 0 {
		writeFieldErrors(w, http.StatusUnprocessableEntity, fields)
		return
	}

	user, pair, err := a.auth.Register(r.Context(), req.Name, req.Email, req.Password, req.TenantID)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword):
			writeFieldErrors(w, http.StatusUnprocessableEntity, map[string][]string{
				"password": {"The password does not meet the minimum requirements."},
			})
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeFieldErrors(w, http.StatusUnprocessableEntity, map[string][]string{
				"email": {"The email has already been taken."},
			})
		case errors.Is(err, auth.ErrUnknownTenant):
			writeFieldErrors(w, http.StatusUnprocessableEntity, map[string][]string{
				"tenant_id": {"The selected tenant is invalid."},
			})
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	audit.LogEvent(r.Context(), "user.registered", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":  user,
		"token": pair,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin authenticates by email and password. Unknown email, wrong
// password and inactive account all produce the same response body so the
// endpoint cannot be used as an account oracle.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	principal, pair, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		reason := "invalid_credentials"
		if errors.Is(err, auth.ErrAccountInactive) {
			reason = "inactive"
		}
		obs.ObserveLogin("failure")
		audit.LogEvent(r.Context(), "auth.login_failed", map[string]any{"reason": reason})
		writeFieldErrors(w, http.StatusUnprocessableEntity, map[string][]string{
			"email": {"The provided credentials are incorrect."},
		})
		return
	}

	obs.ObserveLogin("success")
	audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": principal.User.ID})
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  principal.User,
		"token": pair,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleRefresh exchanges an unused refresh token for a fresh pair. Every
// failure is the same 401 regardless of whether the token was unknown,
// expired or already spent.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeFieldErrors(w, http.StatusUnprocessableEntity, map[string][]string{
			"refresh_token": {"The refresh_token field is required."},
		})
		return
	}

	principal, pair, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		obs.ObserveRefresh("failure")
		audit.LogEvent(r.Context(), "auth.refresh_failed", map[string]any{"reason": rejectionReason(err)})
		writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	obs.ObserveRefresh("success")
	audit.LogEvent(r.Context(), "auth.refreshed", map[string]any{"user_id": principal.User.ID})
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  principal.User,
		"token": pair,
	})
}

// handleLogout revokes every outstanding token for the caller.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := a.auth.RevokeAll(r.Context(), p.User.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	audit.LogEvent(r.Context(), "auth.logout", map[string]any{"user_id": p.User.ID})
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

// handleCurrentUser returns the authenticated user with its resolved role
// and effective permission names.
func (a *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	perms := make([]string, 0, len(p.Permissions))
	for name := range p.Permissions {
		perms = append(perms, name)
	}
	sort.Strings(perms)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        p.User,
		"role":        p.Role,
		"permissions": perms,
	})
}
