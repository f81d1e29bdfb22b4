package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"showoff/internal/domain"
)

const metricsNamespace = "showoff"

// SurfaceProbe is the read-only view of a surface endpoint used for metrics
// and status reporting.
type SurfaceProbe interface {
	Kind() domain.SurfaceKind
	Attached() bool
	ConnID() string
	Attaches() uint64
	Dropped() uint64
}

// Metrics holds the gateway's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls     *prometheus.CounterVec
	rpcRequests   *prometheus.CounterVec
	captures      *prometheus.CounterVec
	eventsDropped prometheus.Counter
	clients       prometheus.Gauge
}

// NewMetrics registers the gateway collectors plus per-surface gauges.
func NewMetrics(surfaces ...SurfaceProbe) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		rpcRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rpc_requests_total",
			Help:      "Gateway RPC requests by method and result code.",
		}, []string{"method", "code"}),
		captures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "canvas_captures_total",
			Help:      "Canvas screenshot requests by outcome.",
		}, []string{"outcome"}),
		eventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "gateway_events_dropped_total",
			Help:      "Events not forwarded because a client queue was full.",
		}),
		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "gateway_clients",
			Help:      "Connected agent clients.",
		}),
	}

	for _, sp := range surfaces {
		labels := prometheus.Labels{"surface": string(sp.Kind())}
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "surface_attached",
			Help:        "1 when a front-end is attached to the surface.",
			ConstLabels: labels,
		}, func() float64 {
			if sp.Attached() {
				return 1
			}
			return 0
		})
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "surface_attaches_total",
			Help:        "Front-end connections accepted by the surface.",
			ConstLabels: labels,
		}, func() float64 { return float64(sp.Attaches()) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "surface_overflows_total",
			Help:        "Front-ends disconnected because their outbound queue filled.",
			ConstLabels: labels,
		}, func() float64 { return float64(sp.Dropped()) })
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Subscribe counts tool-call and capture events from bus. Returns an
// unsubscribe function.
func (m *Metrics) Subscribe(bus domain.EventBus) func() {
	if m == nil || bus == nil {
		return func() {}
	}
	unsubs := []func(){
		bus.Subscribe(domain.EventToolCallCompleted, m.toolEvent("ok")),
		bus.Subscribe(domain.EventToolCallFailed, m.toolEvent("error")),
		bus.Subscribe(domain.EventCanvasCaptureComplete, m.captureEvent("complete")),
		bus.Subscribe(domain.EventCanvasCaptureTimeout, m.captureEvent("timeout")),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (m *Metrics) toolEvent(outcome string) domain.EventHandler {
	return func(_ context.Context, e domain.Event) {
		var p struct {
			Tool string `json:"tool"`
		}
		_ = json.Unmarshal(e.Payload, &p)
		if p.Tool == "" {
			p.Tool = "unknown"
		}
		m.toolCalls.WithLabelValues(p.Tool, outcome).Inc()
	}
}

func (m *Metrics) captureEvent(outcome string) domain.EventHandler {
	return func(context.Context, domain.Event) {
		m.captures.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) rpcObserved(method string, err error) {
	if m == nil {
		return
	}
	code := "OK"
	if err != nil {
		code = string(domain.ErrorCodeOf(err))
	}
	m.rpcRequests.WithLabelValues(method, code).Inc()
}

func (m *Metrics) eventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}

func (m *Metrics) clientConnected() {
	if m != nil {
		m.clients.Inc()
	}
}

func (m *Metrics) clientDisconnected() {
	if m != nil {
		m.clients.Dec()
	}
}
