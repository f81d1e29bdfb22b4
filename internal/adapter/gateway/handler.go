package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"showoff/internal/adapter/tool"
	"showoff/internal/domain"
	"showoff/internal/usecase/surface"
)

// HandlerDeps holds dependencies needed by RPC and REST handlers.
type HandlerDeps struct {
	Tools    domain.ToolExecutor
	Host     *surface.Host  // can be nil
	Surfaces []SurfaceProbe // can be empty
	Bus      domain.EventBus
	Metrics  *Metrics // can be nil
	Logger   *slog.Logger
	Name     string
	Version  string
}

// RegisterDefaultHandlers registers all built-in RPC handlers on the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	s.RegisterHandler("tools.list", toolListHandler(deps))
	s.RegisterHandler("tools.execute", toolExecuteHandler(deps))
	s.RegisterHandler("surfaces.status", surfaceStatusHandler(deps))
	if deps.Host != nil {
		s.RegisterHandler("surfaces.sync", surfaceSyncHandler(deps))
		s.RegisterHandler("surfaces.reset", surfaceResetHandler(deps))
	}
}

// RegisterRESTHandlers registers /api/v1/status and, when deps.Metrics is
// set, /metrics. Both require a gateway token.
func RegisterRESTHandlers(s *Server, deps HandlerDeps) {
	startTime := time.Now()
	s.RegisterHTTPRoute("/api/v1/status", requireAuth(s.auth, statusHandler(deps, startTime)))
	if deps.Metrics != nil {
		s.RegisterHTTPRoute("/metrics", requireAuth(s.auth, deps.Metrics.Handler()))
	}
}

// --- tools ---

func toolListHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(deps.Tools.Schemas())
	}
}

type toolExecuteRequest struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
}

func toolExecuteHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req toolExecuteRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.Name == "" {
			return nil, domain.ErrRPCInvalidPayload
		}

		t, err := deps.Tools.Get(req.Name)
		if err != nil {
			return nil, err
		}

		started := map[string]string{"tool": req.Name, "client": client.Name}
		tool.PublishToolEvent(ctx, deps.Bus, domain.EventToolCallStarted, started)

		res, err := t.Execute(ctx, req.Params)
		if err != nil {
			tool.PublishToolEvent(ctx, deps.Bus, domain.EventToolCallFailed, map[string]string{"tool": req.Name, "error": err.Error()})
			return nil, err
		}
		if res.IsError {
			tool.PublishToolEvent(ctx, deps.Bus, domain.EventToolCallFailed, map[string]string{"tool": req.Name, "error": res.Content})
		} else {
			tool.PublishToolEvent(ctx, deps.Bus, domain.EventToolCallCompleted, map[string]string{"tool": req.Name})
		}
		return json.Marshal(res)
	}
}

// --- surfaces ---

// SurfaceStatus describes one surface endpoint.
type SurfaceStatus struct {
	Kind     domain.SurfaceKind `json:"kind"`
	Attached bool               `json:"attached"`
	ConnID   string             `json:"conn_id,omitempty"`
	Attaches uint64             `json:"attaches"`
	Dropped  uint64             `json:"overflows"`
}

func surfaceStatuses(probes []SurfaceProbe) []SurfaceStatus {
	out := make([]SurfaceStatus, 0, len(probes))
	for _, p := range probes {
		out = append(out, SurfaceStatus{
			Kind:     p.Kind(),
			Attached: p.Attached(),
			ConnID:   p.ConnID(),
			Attaches: p.Attaches(),
			Dropped:  p.Dropped(),
		})
	}
	return out
}

func surfaceStatusHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(surfaceStatuses(deps.Surfaces))
	}
}

func surfaceSyncHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		deps.Host.Screens.Sync(ctx)
		deps.Host.Windows.Sync(ctx)
		return json.Marshal(map[string]bool{"synced": true})
	}
}

func surfaceResetHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		deps.Host.Reset()
		// Push the now-empty state so attached surfaces drop stale content.
		deps.Host.Screens.Sync(ctx)
		deps.Host.Windows.Sync(ctx)
		deps.Logger.Info("surface state reset over rpc", "client", client.Name)
		if deps.Bus != nil {
			deps.Bus.Publish(ctx, domain.NewEvent(ctx, domain.EventSurfaceReset, map[string]string{"client": client.Name}))
		}
		return json.Marshal(map[string]bool{"reset": true})
	}
}
