package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventToolCallStarted   EventType = "tool.call.started"
	EventToolCallCompleted EventType = "tool.call.completed"
	EventToolCallFailed    EventType = "tool.call.failed"

	// Surface attach lifecycle.
	EventSurfaceAttached EventType = "surface.attached"
	EventSurfaceDetached EventType = "surface.detached"
	EventSurfaceReady    EventType = "surface.ready"
	EventSurfaceReset    EventType = "surface.reset"

	// Canvas events.
	EventCanvasExecuted        EventType = "canvas.executed"
	EventCanvasCaptureRequest  EventType = "canvas.capture.requested"
	EventCanvasCaptureComplete EventType = "canvas.capture.completed"
	EventCanvasCaptureTimeout  EventType = "canvas.capture.timeout"

	// Virtual screen events.
	EventScreenUpdated EventType = "screen.updated"
	EventScreenCleared EventType = "screen.cleared"
	EventScreensSynced EventType = "screen.synced"

	// Window layout events.
	EventLayoutUpdated EventType = "layout.updated"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Caller    string          `json:"caller,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event stamped with the current time and the caller found
// in ctx. Payload marshal failures leave Payload empty.
func NewEvent(ctx context.Context, eventType EventType, payload any) Event {
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Caller:    CallerFromContext(ctx),
		Payload:   raw,
	}
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
