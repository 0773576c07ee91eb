package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"ekklesia.org/internal/audit"
	"ekklesia.org/internal/auth"
	"ekklesia.org/internal/obs"
)

// publicPaths bypass bearer authentication entirely.
var publicPaths = map[string]bool{
	"/healthz":          true,
	"/readyz":           true,
	"/metrics":          true,
	"/v1/info":          true,
	"/v1/auth/register": true,
	"/v1/auth/login":    true,
	"/v1/auth/refresh":  true,
}

// withAuth runs the bearer pipeline for protected routes: token extraction,
// signature and revocation verification, user load, then principal
// attachment. Any failure short-circuits with a uniform 401 so callers
// cannot distinguish why a token was rejected; the audit log records the
// actual reason.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		principal, tokenID, err := a.auth.Authenticate(r.Context(), raw)
		if err != nil {
			if errors.Is(err, auth.ErrAccountInactive) {
				audit.LogEvent(r.Context(), "auth.rejected", map[string]any{"reason": "inactive"})
				writeError(w, http.StatusForbidden, "account is inactive")
				return
			}
			audit.LogEvent(r.Context(), "auth.rejected", map[string]any{"reason": rejectionReason(err)})
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, tokenID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMalformedToken):
		return "malformed"
	case errors.Is(err, auth.ErrSignatureInvalid):
		return "signature"
	case errors.Is(err, auth.ErrExpiredToken):
		return "expired"
	case errors.Is(err, auth.ErrInvalidOrRevokedToken):
		return "revoked"
	default:
		return "unknown"
	}
}

// requirePrincipal fetches the principal placed by withAuth. A miss means
// the route was registered as public by mistake.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	return p, true
}

// ensurePermission enforces the permission gate and logs denials.
func ensurePermission(w http.ResponseWriter, r *http.Request, p auth.Principal, perm string) bool {
	if p.HasPermission(perm) {
		return true
	}
	audit.LogEvent(r.Context(), "authz.denied", map[string]any{"permission": perm})
	writeError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

// ensureTenant runs the tenant isolation gate against the tenant id taken
// from the route and returns the resolved tenant scope.
func (a *API) ensureTenant(w http.ResponseWriter, r *http.Request, p auth.Principal, tenantID string) (string, bool) {
	if err := a.guard.Authorize(p.User, tenantID); err != nil {
		reason := "cross_tenant"
		if errors.Is(err, auth.ErrNoTenantMembership) {
			reason = "no_membership"
		}
		obs.ObserveTenantDenial(reason)
		audit.LogEvent(r.Context(), "tenant.denied", map[string]any{
			"reason":    reason,
			"requested": tenantID,
		})
		writeError(w, http.StatusForbidden, "forbidden")
		return "", false
	}
	scope, ok := a.guard.ResolveTenant(p.User, tenantID)
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return "", false
	}
	return scope, true
}
