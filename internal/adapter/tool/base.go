package tool

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/trace"

	"showoff/internal/domain"
	"showoff/internal/infra/tracer"
)

// ActionHandler is a function that handles a single action for a tool.
type ActionHandler[P any] func(ctx context.Context, p P) (any, error)

// ActionMap maps action names to their handlers for an action-based tool.
type ActionMap[P any] map[string]ActionHandler[P]

// Dispatch creates a handler for Execute[P] that routes by action name.
//
//	func (t *ScreensTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
//	    return Execute(ctx, "tool.screens", t.logger, params,
//	        Dispatch(func(p screensParams) string { return p.Action }, ActionMap[screensParams]{
//	            "create": t.create,
//	            "list":   t.list,
//	        }),
//	    )
//	}
func Dispatch[P any](
	getAction func(P) string,
	actions ActionMap[P],
) func(ctx context.Context, span trace.Span, p P) (any, error) {
	validActions := make([]string, 0, len(actions))
	for name := range actions {
		validActions = append(validActions, name)
	}
	sort.Strings(validActions)

	return func(ctx context.Context, span trace.Span, p P) (any, error) {
		action := getAction(p)
		span.SetAttributes(tracer.StringAttr("tool.action", action))

		handler, ok := actions[action]
		if !ok {
			return nil, BadAction(action, validActions...)
		}
		return handler(ctx, p)
	}
}

// PublishToolEvent publishes a domain event on the event bus from a tool.
// A nil bus is a no-op.
func PublishToolEvent(ctx context.Context, bus domain.EventBus, eventType domain.EventType, payload any) {
	if bus == nil {
		return
	}
	bus.Publish(ctx, domain.NewEvent(ctx, eventType, payload))
}
