package surfacews

import (
	"log/slog"
	"net/http"

	"showoff/internal/domain"
	"showoff/internal/usecase/surface"
)

// RoutePrefix is where the endpoints are mounted, followed by the surface kind.
const RoutePrefix = "/surface/"

// Surfaces groups the three attach points.
type Surfaces struct {
	Canvas  *Endpoint
	Screens *Endpoint
	Windows *Endpoint
}

// New builds one endpoint per surface kind sharing opts.
func New(opts Options, bus domain.EventBus, logger *slog.Logger) *Surfaces {
	return &Surfaces{
		Canvas:  NewEndpoint(domain.SurfaceCanvas, opts, bus, logger),
		Screens: NewEndpoint(domain.SurfaceScreens, opts, bus, logger),
		Windows: NewEndpoint(domain.SurfaceWindows, opts, bus, logger),
	}
}

// Transports exposes the endpoints to the surface host.
func (s *Surfaces) Transports() surface.Transports {
	return surface.Transports{
		Canvas:  s.Canvas,
		Screens: s.Screens,
		Windows: s.Windows,
	}
}

// All returns the endpoints in canvas, screens, windows order.
func (s *Surfaces) All() []*Endpoint {
	return []*Endpoint{s.Canvas, s.Screens, s.Windows}
}

// Routes maps each endpoint's mount path to its handler.
func (s *Surfaces) Routes() map[string]http.Handler {
	routes := make(map[string]http.Handler, 3)
	for _, e := range s.All() {
		routes[RoutePrefix+string(e.Kind())] = e
	}
	return routes
}

// Close disconnects every attached surface.
func (s *Surfaces) Close() {
	for _, e := range s.All() {
		e.Close()
	}
}
