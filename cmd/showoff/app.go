package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"showoff/internal/adapter/gateway"
	"showoff/internal/adapter/mcpserver"
	"showoff/internal/adapter/surfacews"
	"showoff/internal/adapter/tool"
	"showoff/internal/infra/config"
	"showoff/internal/infra/middleware"
	"showoff/internal/security"
	"showoff/internal/usecase/eventbus"
	"showoff/internal/usecase/surface"
)

// app is the fully wired process: surfaces, their state, tools and the
// gateway that serves them.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	bus      *eventbus.Bus
	surfaces *surfacews.Surfaces
	host     *surface.Host
	tools    *tool.Registry
	metrics  *gateway.Metrics
	gateway  *gateway.Server

	audit        *security.FileAuditLogger
	unsubMetrics func()
	unsubAudit   func()
}

// newApp wires every component from cfg. ctx bounds background helpers
// such as the rate limiter sweeper.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.bus = eventbus.New(logger.With("component", "eventbus"))

	a.surfaces = surfacews.New(surfacews.Options{
		Token:          cfg.Surface.Token,
		QueueSize:      cfg.Surface.QueueSize,
		ReadLimit:      cfg.Surface.ReadLimit,
		WriteTimeout:   cfg.Surface.WriteTimeout,
		OriginPatterns: cfg.Surface.AllowedOrigins,
	}, a.bus, logger)

	a.host = surface.NewHost(a.surfaces.Transports(), surface.HostConfig{
		CaptureTimeout: cfg.Surface.CaptureTimeout,
		CaptureOverlap: surface.OverlapPolicy(cfg.Surface.CaptureOverlap),
	}, a.bus, logger)

	a.tools = tool.NewRegistry(logger.With("component", "tools"),
		tool.WithCallRate(cfg.Tools.CallsPerSecond, cfg.Tools.CallBurst))
	if err := a.registerTools(); err != nil {
		a.surfaces.Close()
		a.bus.Close()
		return nil, err
	}

	probes := make([]gateway.SurfaceProbe, 0, 3)
	for _, e := range a.surfaces.All() {
		probes = append(probes, e)
	}
	a.metrics = gateway.NewMetrics(probes...)
	a.unsubMetrics = a.metrics.Subscribe(a.bus)

	if cfg.Audit.Enabled {
		if err := a.openAudit(); err != nil {
			a.close()
			return nil, err
		}
	}

	mw := []func(http.Handler) http.Handler{
		middleware.RequestLog(logger.With("component", "http")),
		middleware.SecurityHeaders,
	}
	if rl := cfg.Gateway.RateLimit; rl.RequestsPerMin > 0 {
		mw = append(mw, middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: rl.RequestsPerMin,
			Burst:          rl.Burst,
			TrustedProxies: rl.TrustedProxies,
			Exempt:         []string{surfacews.RoutePrefix},
		}))
	}

	a.gateway = gateway.NewServer(a.bus, authenticator(cfg.Gateway.Auth), cfg.Gateway.Addr,
		logger.With("component", "gateway"),
		gateway.WithMetrics(a.metrics),
		gateway.WithMiddleware(mw...),
		gateway.WithOriginPatterns(cfg.Gateway.AllowedOrigins...),
		gateway.WithSendQueue(cfg.Gateway.SendQueue),
		gateway.WithPingInterval(cfg.Gateway.PingInterval),
	)

	deps := gateway.HandlerDeps{
		Tools:    a.tools,
		Host:     a.host,
		Surfaces: probes,
		Bus:      a.bus,
		Metrics:  a.metrics,
		Logger:   logger.With("component", "rpc"),
		Name:     cfg.MCP.Name,
		Version:  version,
	}
	gateway.RegisterDefaultHandlers(a.gateway, deps)
	gateway.RegisterRESTHandlers(a.gateway, deps)
	for pattern, h := range a.surfaces.Routes() {
		a.gateway.RegisterHTTPRoute(pattern, h)
	}
	return a, nil
}

func (a *app) registerTools() error {
	if err := a.tools.Register(tool.NewCanvasTool(a.host.Canvas, a.surfaces.Canvas, a.cfg.Tools.MaxDrawingSize, a.logger)); err != nil {
		return fmt.Errorf("register canvas tool: %w", err)
	}
	if err := a.tools.Register(tool.NewScreensTool(a.host.Screens, a.surfaces.Screens, a.logger)); err != nil {
		return fmt.Errorf("register screens tool: %w", err)
	}
	if err := a.tools.Register(tool.NewWindowsTool(a.host.Windows, a.surfaces.Windows, a.logger)); err != nil {
		return fmt.Errorf("register windows tool: %w", err)
	}
	return nil
}

// openAudit opens the audit trail, applies retention once and starts
// recording bus events.
func (a *app) openAudit() error {
	maxSize, err := config.ParseSize(a.cfg.Audit.MaxSize)
	if err != nil {
		return fmt.Errorf("audit max_size: %w", err)
	}
	a.audit, err = security.NewFileAuditLogger(a.cfg.Audit.Path, security.RetentionPolicy{
		MaxAge:  a.cfg.Audit.MaxAge,
		MaxSize: maxSize,
	})
	if err != nil {
		return err
	}
	removed, err := a.audit.EnforceRetention(time.Now())
	if err != nil {
		a.logger.Warn("audit retention failed", "error", err)
	} else if removed > 0 {
		a.logger.Info("audit retention applied", "removed", removed)
	}
	a.unsubAudit = security.NewAuditRecorder(a.audit, a.logger.With("component", "audit")).Subscribe(a.bus)
	return nil
}

// mcpServer builds the stdio MCP server over the registered tools.
func (a *app) mcpServer() *mcpserver.Server {
	return mcpserver.New(a.tools, a.cfg.MCP.Name, version, a.cfg.MCP.Instructions, a.bus,
		a.logger.With("component", "mcp"))
}

// close disconnects surfaces and stops event delivery. The gateway is
// stopped by cancelling the context passed to Start.
func (a *app) close() {
	a.surfaces.Close()
	if a.unsubMetrics != nil {
		a.unsubMetrics()
	}
	a.bus.Close()
	if a.unsubAudit != nil {
		a.unsubAudit()
	}
	if a.audit != nil {
		a.audit.Close()
	}
}

func authenticator(cfg config.AuthConfig) gateway.Authenticator {
	if len(cfg.Tokens) == 0 {
		return nil
	}
	entries := make([]gateway.TokenEntry, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		entries = append(entries, gateway.TokenEntry{Token: t.Token, Name: t.Name})
	}
	return gateway.NewStaticTokenAuth(entries)
}
