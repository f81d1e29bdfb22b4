package surfacews

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"showoff/internal/domain"
)

// Defaults applied by NewEndpoint when an Options field is zero.
const (
	DefaultQueueSize    = 256
	DefaultReadLimit    = 16 << 20
	DefaultWriteTimeout = 5 * time.Second
)

// StatusQueueOverflow is the close code sent to a surface that stopped draining.
const StatusQueueOverflow websocket.StatusCode = 4008

var defaultOrigins = []string{
	"localhost",
	"localhost:*",
	"127.0.0.1",
	"127.0.0.1:*",
	"[::1]",
	"[::1]:*",
}

// Options configures an Endpoint.
type Options struct {
	// Token, when set, must be presented as ?token= or a Bearer header.
	Token          string
	QueueSize      int
	ReadLimit      int64
	WriteTimeout   time.Duration
	OriginPatterns []string
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultReadLimit
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if len(o.OriginPatterns) == 0 {
		o.OriginPatterns = defaultOrigins
	}
	return o
}

// inboundFrame is the wire shape of a surface message before normalization.
type inboundFrame struct {
	Command string  `json:"command"`
	Data    *string `json:"data"`
}

// surfaceConn tracks the single attached websocket.
type surfaceConn struct {
	id        string
	ws        *websocket.Conn
	sendCh    chan domain.OutboundMessage
	done      chan struct{}
	closeOnce sync.Once
	readyOnce sync.Once
}

func (c *surfaceConn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.Close(code, reason)
		}
	})
}

// Endpoint is the websocket attach point for one surface kind. It implements
// domain.SurfaceTransport; at most one connection is attached at a time and a
// new connection supersedes the previous one.
type Endpoint struct {
	kind   domain.SurfaceKind
	opts   Options
	bus    domain.EventBus
	logger *slog.Logger

	handlersMu sync.RWMutex
	handlers   map[domain.MessageKind][]domain.InboundHandler

	mu      sync.Mutex
	conn    *surfaceConn
	entropy *ulid.MonotonicEntropy

	dropped  atomic.Uint64
	attaches atomic.Uint64
}

var _ domain.SurfaceTransport = (*Endpoint)(nil)

// NewEndpoint creates an endpoint for kind. bus may be nil.
func NewEndpoint(kind domain.SurfaceKind, opts Options, bus domain.EventBus, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoint{
		kind:     kind,
		opts:     opts.withDefaults(),
		bus:      bus,
		logger:   logger.With("surface", string(kind)),
		handlers: make(map[domain.MessageKind][]domain.InboundHandler),
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// Kind returns the surface kind served by this endpoint.
func (e *Endpoint) Kind() domain.SurfaceKind { return e.kind }

// Handle routes inbound messages of kind to handler. Handlers run on the
// connection's read goroutine in arrival order.
func (e *Endpoint) Handle(kind domain.MessageKind, handler domain.InboundHandler) {
	e.handlersMu.Lock()
	e.handlers[kind] = append(e.handlers[kind], handler)
	e.handlersMu.Unlock()
}

// Attached reports whether a surface is connected.
func (e *Endpoint) Attached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil
}

// ConnID returns the id of the attached connection, or "" when detached.
func (e *Endpoint) ConnID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return ""
	}
	return e.conn.id
}

// Dropped returns how many connections were cut for queue overflow.
func (e *Endpoint) Dropped() uint64 { return e.dropped.Load() }

// Attaches returns how many connections have attached since start.
func (e *Endpoint) Attaches() uint64 { return e.attaches.Load() }

// Send enqueues msg for the attached surface without touching the network.
// A full queue disconnects the surface so it resyncs on its next ready.
func (e *Endpoint) Send(msg domain.OutboundMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.conn
	if c == nil {
		return domain.ErrSurfaceUnavailable
	}
	select {
	case c.sendCh <- msg:
		return nil
	default:
	}

	e.dropped.Add(1)
	e.conn = nil
	e.logger.Warn("surface queue overflow, disconnecting", "conn_id", c.id, "command", msg.Kind())
	go c.close(StatusQueueOverflow, "outbound queue overflow")
	return domain.NewSubSystemError("surface", "Endpoint.Send", domain.ErrLimitReached, "outbound queue full")
}

// Close disconnects the attached surface, if any.
func (e *Endpoint) Close() {
	e.mu.Lock()
	c := e.conn
	e.conn = nil
	e.mu.Unlock()
	if c != nil {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (e *Endpoint) authorized(r *http.Request) bool {
	if e.opts.Token == "" {
		return true
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(e.opts.Token)) == 1
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !e.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: e.opts.OriginPatterns,
	})
	if err != nil {
		e.logger.Warn("surface accept failed", "error", err)
		return
	}
	ws.SetReadLimit(e.opts.ReadLimit)

	c := e.attach(ws)
	ctx := r.Context()

	go e.writeLoop(c)
	e.readLoop(ctx, c)

	e.detach(ctx, c)
}

func (e *Endpoint) attach(ws *websocket.Conn) *surfaceConn {
	e.mu.Lock()
	c := &surfaceConn{
		id:     ulid.MustNew(ulid.Timestamp(time.Now()), e.entropy).String(),
		ws:     ws,
		sendCh: make(chan domain.OutboundMessage, e.opts.QueueSize),
		done:   make(chan struct{}),
	}
	old := e.conn
	e.conn = c
	e.mu.Unlock()

	e.attaches.Add(1)
	if old != nil {
		e.logger.Info("surface superseded", "conn_id", old.id, "by", c.id)
		old.close(websocket.StatusGoingAway, "superseded by a new connection")
	}
	e.logger.Info("surface attached", "conn_id", c.id)
	e.publish(context.Background(), domain.EventSurfaceAttached, c.id)
	return c
}

func (e *Endpoint) detach(ctx context.Context, c *surfaceConn) {
	e.mu.Lock()
	current := e.conn == c
	if current {
		e.conn = nil
	}
	e.mu.Unlock()

	c.close(websocket.StatusNormalClosure, "")
	e.logger.Info("surface detached", "conn_id", c.id)
	if current {
		e.publish(ctx, domain.EventSurfaceDetached, c.id)
	}
}

func (e *Endpoint) readLoop(ctx context.Context, c *surfaceConn) {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		var frame inboundFrame
		if err := wsjson.Read(ctx, c.ws, &frame); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				e.logger.Debug("surface read ended", "conn_id", c.id, "error", err)
			}
			return
		}

		msg := domain.InboundMessage{
			Command: domain.NormalizeInboundKind(frame.Command),
			Data:    frame.Data,
		}
		switch msg.Command {
		case domain.MsgReady:
			fired := false
			c.readyOnce.Do(func() {
				fired = true
				e.logger.Info("surface ready", "conn_id", c.id)
				e.publish(ctx, domain.EventSurfaceReady, c.id)
				e.dispatch(ctx, msg)
			})
			if !fired {
				e.logger.Debug("duplicate ready ignored", "conn_id", c.id)
			}
		case domain.MsgCaptureResult:
			e.dispatch(ctx, msg)
		default:
			e.logger.Debug("unknown surface command", "conn_id", c.id, "command", frame.Command)
		}
	}
}

func (e *Endpoint) dispatch(ctx context.Context, msg domain.InboundMessage) {
	e.handlersMu.RLock()
	hs := append([]domain.InboundHandler(nil), e.handlers[msg.Command]...)
	e.handlersMu.RUnlock()
	for _, h := range hs {
		h(ctx, msg)
	}
}

func (e *Endpoint) writeLoop(c *surfaceConn) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), e.opts.WriteTimeout)
			err := wsjson.Write(ctx, c.ws, msg)
			cancel()
			if err != nil {
				e.logger.Warn("surface write failed", "conn_id", c.id, "command", msg.Kind(), "error", err)
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

type connPayload struct {
	Surface domain.SurfaceKind `json:"surface"`
	ConnID  string             `json:"conn_id"`
}

func (e *Endpoint) publish(ctx context.Context, t domain.EventType, connID string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, domain.NewEvent(ctx, t, connPayload{Surface: e.kind, ConnID: connID}))
}
