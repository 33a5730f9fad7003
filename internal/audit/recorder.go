package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"pitchvault.io/internal/authz"
	"pitchvault.io/internal/ids"
	"pitchvault.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context so audit
// rows can be correlated with HTTP access logs.
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

// Recorder is the engine's audit sink: every record is appended to the
// store and mirrored as a JSON line for the observability pipeline to tail.
type Recorder struct {
	store authz.AuditStore
}

// NewRecorder constructs a Recorder over the append-only store.
func NewRecorder(store authz.AuditStore) *Recorder {
	return &Recorder{store: store}
}

var _ authz.Auditor = (*Recorder)(nil)

// Record assigns the row identity and persists it. The JSON mirror is
// best-effort; the store append decides success.
func (r *Recorder) Record(ctx context.Context, rec authz.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}

	entry := map[string]any{
		"ts":      rec.At.Format(time.RFC3339Nano),
		"type":    "audit",
		"action":  rec.Action,
		"granted": rec.Granted,
	}
	if rec.ActorID != "" {
		entry["actor_id"] = rec.ActorID
	}
	if rec.Permission != "" {
		entry["permission"] = rec.Permission
	}
	if rec.ResourceType != "" {
		entry["resource_type"] = rec.ResourceType
		entry["resource_id"] = rec.ResourceID
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if data, err := json.Marshal(entry); err == nil {
		obs.Logger().Println(string(data))
	}

	return r.store.Append(ctx, rec)
}

// Tail returns the most recent audit rows, newest first.
func (r *Recorder) Tail(ctx context.Context, limit int) ([]authz.AuditRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return r.store.Tail(ctx, limit)
}
