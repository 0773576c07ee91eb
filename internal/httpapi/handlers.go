package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"ekklesia.org/internal/auth"
	"ekklesia.org/internal/obs"
)

// ReadyProbe checks readiness (DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the authorization core.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	registry   *auth.Registry
	guard      auth.Guard
	readyProbe ReadyProbe
	version    string
}

// New wires routes. Login and refresh get their own rate limit bucket since
// they are the brute-force surface.
func New(authSvc *auth.Service, registry *auth.Registry, guard auth.Guard, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       authSvc,
		registry:   registry,
		guard:      guard,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), 10, 5))
	a.mux.Handle("/v1/auth/refresh", RateLimit(http.HandlerFunc(a.handleRefresh), 10, 5))
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/user", a.handleCurrentUser)

	a.mux.HandleFunc("/v1/tenants/", a.handleTenantScoped)
	a.mux.HandleFunc("/v1/audit/stream", a.handleAuditStream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain: metrics and request logging
// outermost, then hardening, then bearer authentication.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "ekklesia-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "ekklesia-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"error": message})
}

// writeFieldErrors emits the structured validation shape:
// {"errors": {"field": ["message", ...]}}.
func writeFieldErrors(w http.ResponseWriter, code int, fields map[string][]string) {
	writeJSON(w, code, map[string]any{"errors": fields})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// mapBusinessError translates registry failures into the HTTP surface:
// validation problems become field-level 422s, business-rule violations
// 409s, the rest passes through as-is.
func mapBusinessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrLevelOutOfRange):
		writeFieldErrors(w, http.StatusUnprocessableEntity, map[string][]string{
			"level": {"The role level is outside the allowed custom range."},
		})
	case errors.Is(err, auth.ErrQuotaExceeded):
		writeFieldErrors(w, http.StatusUnprocessableEntity, map[string][]string{
			"name": {"The tenant has reached its custom role quota."},
		})
	case errors.Is(err, auth.ErrConflict):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, auth.ErrProtectedRole):
		writeError(w, http.StatusConflict, "system roles cannot be deleted")
	case errors.Is(err, auth.ErrRoleInUse):
		writeError(w, http.StatusConflict, "role still has assigned users")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrCrossTenantAccess):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		writeError(w, http.StatusInternalServerError, "operation failed")
	}
}
