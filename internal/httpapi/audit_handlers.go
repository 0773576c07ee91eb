package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ekklesia.org/internal/audit"
)

// handleAuditStream serves the live audit trail over SSE. Only global
// super-admins may attach; tenant admins read their slice from the log
// pipeline instead.
func (a *API) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if !p.User.IsSuperAdmin() {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := audit.Events().Subscribe(r.Context())
	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: audit\ndata: %s\n\n", data)
		flusher.Flush()
	}
}
