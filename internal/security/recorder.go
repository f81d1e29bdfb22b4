package security

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"showoff/internal/domain"
)

// AuditRecorder writes an audit entry for every agent-visible action seen on
// the event bus: tool calls, surface attach and detach, state resets and
// canvas captures.
type AuditRecorder struct {
	audit  domain.AuditLogger
	logger *slog.Logger
}

// NewAuditRecorder creates a recorder writing to audit.
func NewAuditRecorder(audit domain.AuditLogger, logger *slog.Logger) *AuditRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecorder{audit: audit, logger: logger}
}

var auditedEvents = []domain.EventType{
	domain.EventToolCallCompleted,
	domain.EventToolCallFailed,
	domain.EventSurfaceAttached,
	domain.EventSurfaceDetached,
	domain.EventSurfaceReset,
	domain.EventCanvasCaptureComplete,
	domain.EventCanvasCaptureTimeout,
}

// Subscribe attaches the recorder to bus and returns a function that
// detaches it.
func (r *AuditRecorder) Subscribe(bus domain.EventBus) func() {
	unsubs := make([]func(), 0, len(auditedEvents))
	for _, t := range auditedEvents {
		unsubs = append(unsubs, bus.Subscribe(t, r.Handle))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handle converts one bus event into an audit entry. Unknown event types are
// ignored.
func (r *AuditRecorder) Handle(ctx context.Context, ev domain.Event) {
	entry, ok := toAuditEvent(ev)
	if !ok {
		return
	}
	if err := r.audit.Log(ctx, entry); err != nil {
		r.logger.Warn("audit write failed", "type", entry.Type, "error", err)
	}
}

func toAuditEvent(ev domain.Event) (domain.AuditEvent, bool) {
	detail := payloadStrings(ev.Payload)
	entry := domain.AuditEvent{
		Timestamp: ev.Timestamp.UTC(),
		Actor:     ev.Caller,
	}

	switch ev.Type {
	case domain.EventToolCallCompleted, domain.EventToolCallFailed:
		entry.Type = domain.AuditToolCall
		entry.Resource = take(detail, "tool")
		entry.Action = "execute"
		entry.Outcome = "success"
		if ev.Type == domain.EventToolCallFailed {
			entry.Outcome = "failure"
		}
	case domain.EventSurfaceAttached, domain.EventSurfaceDetached:
		entry.Type = domain.AuditSurfaceAttach
		entry.Action = "attach"
		if ev.Type == domain.EventSurfaceDetached {
			entry.Type = domain.AuditSurfaceDetach
			entry.Action = "detach"
		}
		entry.Resource = take(detail, "surface")
		entry.Outcome = "success"
	case domain.EventSurfaceReset:
		entry.Type = domain.AuditStateReset
		entry.Resource = "surfaces"
		entry.Action = "reset"
		entry.Outcome = "success"
		if client := take(detail, "client"); entry.Actor == "" {
			entry.Actor = client
		}
	case domain.EventCanvasCaptureComplete, domain.EventCanvasCaptureTimeout:
		entry.Type = domain.AuditCapture
		entry.Resource = string(domain.SurfaceCanvas)
		entry.Action = "capture"
		entry.Outcome = "success"
		if ev.Type == domain.EventCanvasCaptureTimeout {
			entry.Outcome = "timeout"
		}
	default:
		return domain.AuditEvent{}, false
	}

	if len(detail) > 0 {
		entry.Detail = detail
	}
	return entry, true
}

// payloadStrings flattens a JSON object payload to strings. Non-object
// payloads yield nil.
func payloadStrings(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func take(m map[string]string, key string) string {
	v := m[key]
	delete(m, key)
	return v
}
