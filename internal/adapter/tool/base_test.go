package tool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"showoff/internal/domain"
	"showoff/internal/usecase/eventbus"
)

// nopLogger returns a logger that discards output.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testParams struct {
	Action string `json:"action"`
	Value  string `json:"value"`
}

func noSpan() trace.Span { return trace.SpanFromContext(context.Background()) }

func TestDispatch_RoutesToCorrectHandler(t *testing.T) {
	handler := Dispatch(
		func(p testParams) string { return p.Action },
		ActionMap[testParams]{
			"create": func(_ context.Context, p testParams) (any, error) {
				return "created:" + p.Value, nil
			},
			"delete": func(_ context.Context, p testParams) (any, error) {
				return "deleted:" + p.Value, nil
			},
		},
	)

	result, err := handler(context.Background(), noSpan(), testParams{Action: "create", Value: "foo"})
	require.NoError(t, err)
	assert.Equal(t, "created:foo", result)

	result, err = handler(context.Background(), noSpan(), testParams{Action: "delete", Value: "bar"})
	require.NoError(t, err)
	assert.Equal(t, "deleted:bar", result)
}

func TestDispatch_UnknownActionListsSortedActions(t *testing.T) {
	handler := Dispatch(
		func(p testParams) string { return p.Action },
		ActionMap[testParams]{
			"zeta":  func(context.Context, testParams) (any, error) { return nil, nil },
			"alpha": func(context.Context, testParams) (any, error) { return nil, nil },
		},
	)

	_, err := handler(context.Background(), noSpan(), testParams{Action: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown action "bogus" (want: alpha, zeta)`)
	assert.True(t, domain.IsValidationError(err))
}

func TestDispatch_HandlerErrorPropagated(t *testing.T) {
	boom := errors.New("boom")
	handler := Dispatch(
		func(p testParams) string { return p.Action },
		ActionMap[testParams]{
			"fail": func(context.Context, testParams) (any, error) { return nil, boom },
		},
	)
	_, err := handler(context.Background(), noSpan(), testParams{Action: "fail"})
	assert.ErrorIs(t, err, boom)
}

func TestPublishToolEvent(t *testing.T) {
	bus := eventbus.New(nopLogger())
	got := make(chan domain.Event, 1)
	bus.SubscribeAll(func(_ context.Context, e domain.Event) { got <- e })

	ctx := domain.ContextWithCaller(context.Background(), "agent-1")
	PublishToolEvent(ctx, bus, domain.EventToolCallCompleted, map[string]string{"tool": "canvas"})
	bus.Close()

	e := <-got
	assert.Equal(t, domain.EventToolCallCompleted, e.Type)
	assert.Equal(t, "agent-1", e.Caller)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	assert.Equal(t, "canvas", payload["tool"])
}

func TestPublishToolEvent_NilBus(t *testing.T) {
	assert.NotPanics(t, func() {
		PublishToolEvent(context.Background(), nil, domain.EventToolCallCompleted, nil)
	})
}
