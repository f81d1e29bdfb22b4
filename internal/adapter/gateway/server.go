package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"showoff/internal/domain"
)

const (
	defaultSendQueue = 64
	writeTimeout     = 5 * time.Second

	// methodSubscribe narrows the events forwarded to the calling client.
	methodSubscribe = "events.subscribe"
)

var loopbackOrigins = []string{
	"localhost", "localhost:*",
	"127.0.0.1", "127.0.0.1:*",
	"[::1]", "[::1]:*",
}

// RPCHandler handles a single RPC method call.
type RPCHandler func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error)

// Server is the agent-facing gateway. It answers RPC frames on /ws,
// forwards bus events to connected agents and hosts extra HTTP routes such
// as the surface endpoints.
type Server struct {
	bus    domain.EventBus
	auth   Authenticator
	addr   string
	logger *slog.Logger

	metrics      *Metrics
	middleware   []func(http.Handler) http.Handler
	origins      []string
	sendQueue    int
	pingInterval time.Duration

	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler
	routes     []httpRoute

	clients   sync.Map // uint64 -> *clientConn
	nextID    atomic.Uint64
	httpSrv   *http.Server
	boundAddr atomic.Value // string
	ready     chan struct{}
	unsubAll  func()
	stopOnce  sync.Once
}

type httpRoute struct {
	pattern string
	handler http.Handler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMetrics records RPC, client and event-drop metrics on m.
func WithMetrics(m *Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithMiddleware wraps the whole mux; the first middleware is outermost.
func WithMiddleware(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.middleware = append(s.middleware, mw...) }
}

// WithOriginPatterns adds browser origins allowed to open /ws. Loopback
// origins are always allowed.
func WithOriginPatterns(patterns ...string) ServerOption {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

// WithSendQueue sets the per-client outbound frame queue depth.
func WithSendQueue(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.sendQueue = n
		}
	}
}

// WithPingInterval pings idle agents so dead connections are noticed.
// Zero disables pings.
func WithPingInterval(d time.Duration) ServerOption {
	return func(s *Server) { s.pingInterval = d }
}

// NewServer creates a gateway server. A nil auth leaves the gateway open.
func NewServer(bus domain.EventBus, auth Authenticator, addr string, logger *slog.Logger, opts ...ServerOption) *Server {
	if auth == nil {
		auth = OpenAuth{}
	}
	s := &Server{
		bus:       bus,
		auth:      auth,
		addr:      addr,
		logger:    logger,
		origins:   append([]string(nil), loopbackOrigins...),
		sendQueue: defaultSendQueue,
		handlers:  make(map[string]RPCHandler),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHandler adds an RPC handler for method. Safe to call while
// clients are connected.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// RegisterHTTPRoute adds an HTTP route. Must be called before Start or
// Handler.
func (s *Server) RegisterHTTPRoute(pattern string, handler http.Handler) {
	s.routes = append(s.routes, httpRoute{pattern: pattern, handler: handler})
}

// Handler builds the HTTP handler serving /ws and every registered route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	for _, r := range s.routes {
		mux.Handle(r.pattern, r.handler)
	}
	var h http.Handler = mux
	for i := len(s.middleware) - 1; i >= 0; i-- {
		h = s.middleware[i](h)
	}
	return h
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr.Store(ln.Addr().String())
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.bus != nil {
		s.unsubAll = s.bus.SubscribeAll(s.forwardEvent)
	}

	s.logger.Info("gateway started", "addr", s.BoundAddr())
	close(s.ready)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// BoundAddr returns the listening address, or "" before Start.
func (s *Server) BoundAddr() string {
	addr, _ := s.boundAddr.Load().(string)
	return addr
}

// Stop disconnects every agent and shuts the listener down. Safe to call
// more than once.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if s.unsubAll != nil {
			s.unsubAll()
		}
		s.clients.Range(func(key, value any) bool {
			cc := value.(*clientConn)
			cc.shutdown()
			cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
			s.clients.Delete(key)
			return true
		})
		if s.httpSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err = s.httpSrv.Shutdown(shutdownCtx)
		}
	})
	return err
}

func (s *Server) forwardEvent(_ context.Context, event domain.Event) {
	var frame *Frame
	s.clients.Range(func(_, value any) bool {
		cc := value.(*clientConn)
		if !cc.wants(event.Type) {
			return true
		}
		if frame == nil {
			payload, err := json.Marshal(event)
			if err != nil {
				return false
			}
			frame = &Frame{Type: FrameTypeEvent, Method: string(event.Type), Payload: payload}
		}
		if !cc.enqueue(*frame) {
			s.metrics.eventDropped()
			s.logger.Warn("gateway: dropped event for slow client", "conn_id", cc.id, "event", event.Type)
		}
		return true
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	info, err := s.auth.Authenticate(tokenFromRequest(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	cc := newClientConn(s.nextID.Add(1), info, ws, s.sendQueue)
	if raw := r.URL.Query().Get("events"); raw != "" {
		cc.setEventFilter(strings.Split(raw, ","))
	}
	s.clients.Store(cc.id, cc)
	s.metrics.clientConnected()
	s.logger.Info("gateway client connected", "conn_id", cc.id, "client", info.Name)

	go s.writeLoop(cc)
	s.readLoop(r.Context(), cc)

	cc.shutdown()
	s.clients.Delete(cc.id)
	s.metrics.clientDisconnected()
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", cc.id)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		go s.dispatchRPC(ctx, cc, frame)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	var ping <-chan time.Time
	if s.pingInterval > 0 {
		t := time.NewTicker(s.pingInterval)
		defer t.Stop()
		ping = t.C
	}

	for {
		var err error
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err = wsjson.Write(ctx, cc.ws, frame)
			cancel()
		case <-ping:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err = cc.ws.Ping(ctx)
			cancel()
		}
		if err != nil {
			// Unblocks readLoop, which runs the disconnect path.
			cc.ws.Close(websocket.StatusGoingAway, "write failed")
			return
		}
	}
}

type subscribeRequest struct {
	Prefixes []string `json:"prefixes"`
}

func (s *Server) dispatchRPC(ctx context.Context, cc *clientConn, req Frame) {
	ctx = domain.ContextWithCaller(ctx, cc.info.Name)

	var (
		result json.RawMessage
		err    error
	)
	if req.Method == methodSubscribe {
		result, err = s.subscribe(cc, req.Payload)
	} else {
		s.handlersMu.RLock()
		handler, ok := s.handlers[req.Method]
		s.handlersMu.RUnlock()
		if !ok {
			err = domain.ErrRPCMethodNotFound
		} else {
			result, err = handler(ctx, cc.info, req.Payload)
		}
	}

	s.metrics.rpcObserved(req.Method, err)
	if err != nil {
		s.logger.Debug("rpc failed", "method", req.Method, "conn_id", cc.id, "error", err)
	}
	s.sendResponse(cc, req.ID, result, err)
}

func (s *Server) subscribe(cc *clientConn, payload json.RawMessage) (json.RawMessage, error) {
	var req subscribeRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrRPCInvalidPayload, err)
		}
	}
	return json.Marshal(subscribeRequest{Prefixes: cc.setEventFilter(req.Prefixes)})
}

func (s *Server) sendResponse(cc *clientConn, id uint64, result json.RawMessage, err error) {
	resp := Frame{Type: FrameTypeResponse, ID: id, Payload: result}
	if err != nil {
		resp.Error = err.Error()
		resp.Code = string(domain.ErrorCodeOf(err))
	}
	if !cc.enqueue(resp) {
		s.logger.Warn("gateway: dropped RPC response for slow client", "conn_id", cc.id, "frame_id", id)
	}
}
