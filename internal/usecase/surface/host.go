package surface

import (
	"log/slog"
	"time"

	"showoff/internal/domain"
)

// Transports bundles the endpoint for each surface kind.
type Transports struct {
	Canvas  domain.SurfaceTransport
	Screens domain.SurfaceTransport
	Windows domain.SurfaceTransport
}

// HostConfig tunes the components built by NewHost.
type HostConfig struct {
	CaptureTimeout time.Duration
	CaptureOverlap OverlapPolicy
}

// Status reports whether one surface is attached.
type Status struct {
	Kind     domain.SurfaceKind `json:"kind"`
	Attached bool               `json:"attached"`
}

// Host owns the three state components for one session.
type Host struct {
	Canvas  *CanvasChannel
	Screens *ScreenRegistry
	Windows *LayoutManager

	transports Transports
	logger     *slog.Logger
}

// NewHost builds the components and wires their inbound routing onto the
// given transports.
func NewHost(t Transports, cfg HostConfig, bus domain.EventBus, logger *slog.Logger) *Host {
	return &Host{
		Canvas: NewCanvasChannel(t.Canvas, logger.With("surface", string(domain.SurfaceCanvas)),
			WithCaptureTimeout(cfg.CaptureTimeout),
			WithOverlapPolicy(cfg.CaptureOverlap),
			WithCanvasEvents(bus),
		),
		Screens:    NewScreenRegistry(t.Screens, logger.With("surface", string(domain.SurfaceScreens)), bus),
		Windows:    NewLayoutManager(t.Windows, logger.With("surface", string(domain.SurfaceWindows)), bus),
		transports: t,
		logger:     logger,
	}
}

// Status lists the attach state of every surface.
func (h *Host) Status() []Status {
	return []Status{
		{Kind: domain.SurfaceCanvas, Attached: h.transports.Canvas.Attached()},
		{Kind: domain.SurfaceScreens, Attached: h.transports.Screens.Attached()},
		{Kind: domain.SurfaceWindows, Attached: h.transports.Windows.Attached()},
	}
}

// Reset returns every component to its initial state. Attached surfaces are
// not notified until their next ready.
func (h *Host) Reset() {
	h.Canvas.Reset()
	h.Screens.Reset()
	h.Windows.Reset()
	h.logger.Info("surface state reset")
}
