// Package audit emits append-only security event lines to the shared
// structured log. Persistence and formatting of the trail beyond the log
// stream belong to an external consumer.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"ekklesia.org/internal/auth"
	"ekklesia.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id, acting user
// and tenant scope from context. Every rejection the authorization core
// produces should be attributable through one of these events.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok && principal.User != nil {
		entry["user_id"] = principal.User.ID
	}
	if tenantID, ok := auth.TenantFromContext(ctx); ok {
		entry["tenant_id"] = tenantID
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))

	evt := Event{Time: time.Now().UTC(), Name: event, Fields: fields}
	if rid, ok := entry["request_id"].(string); ok {
		evt.RequestID = rid
	}
	if uid, ok := entry["user_id"].(string); ok {
		evt.UserID = uid
	}
	if tid, ok := entry["tenant_id"].(string); ok {
		evt.TenantID = tid
	}
	defaultStream.Publish(evt)
	return nil
}
