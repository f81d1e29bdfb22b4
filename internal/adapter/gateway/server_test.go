package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"showoff/internal/domain"
)

// --- test doubles ---

type testBus struct {
	mu       sync.Mutex
	handlers []domain.EventHandler
}

func (b *testBus) Publish(ctx context.Context, event domain.Event) {
	b.mu.Lock()
	hs := make([]domain.EventHandler, len(b.handlers))
	copy(hs, b.handlers)
	b.mu.Unlock()
	for _, h := range hs {
		h(ctx, event)
	}
}

func (b *testBus) Subscribe(_ domain.EventType, _ domain.EventHandler) func() { return func() {} }

func (b *testBus) SubscribeAll(handler domain.EventHandler) func() {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.handlers = nil
		b.mu.Unlock()
	}
}

func (b *testBus) Close() {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuth() Authenticator {
	return NewStaticTokenAuth([]TokenEntry{{Token: "test-token", Name: "tester"}})
}

func startTestServer(t *testing.T, bus domain.EventBus, opts ...ServerOption) *Server {
	t.Helper()
	return startServer(t, NewServer(bus, newTestAuth(), "127.0.0.1:0", discardLogger(), opts...))
}

func startServer(t *testing.T, srv *Server) *Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not start in time")
	}

	t.Cleanup(func() {
		cancel()
		srv.Stop(context.Background())
		<-errCh
	})
	return srv
}

func dialWS(t *testing.T, addr, token string) *websocket.Conn {
	t.Helper()
	return dialWSQuery(t, addr, "token="+token)
}

func dialWSQuery(t *testing.T, addr, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws?"+query, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func call(t *testing.T, ws *websocket.Conn, id uint64, method string, payload any) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req := Frame{Type: FrameTypeRequest, ID: id, Method: method}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		req.Payload = raw
	}
	if err := wsjson.Write(ctx, ws, req); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		var resp Frame
		if err := wsjson.Read(ctx, ws, &resp); err != nil {
			t.Fatalf("read: %v", err)
		}
		if resp.Type == FrameTypeResponse && resp.ID == id {
			return resp
		}
	}
}

// --- tests ---

func TestServerLifecycle(t *testing.T) {
	srv := startTestServer(t, &testBus{})
	if srv.BoundAddr() == "" {
		t.Fatal("BoundAddr is empty")
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestServerAuthReject(t *testing.T) {
	srv := startTestServer(t, &testBus{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=bad-token", nil)
	if err == nil {
		t.Fatal("expected auth rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %v, want 401", resp)
	}
}

func TestServerRPCRoundtrip(t *testing.T) {
	srv := startTestServer(t, &testBus{})

	var gotCaller string
	srv.RegisterHandler("echo", func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		gotCaller = domain.CallerFromContext(ctx)
		return payload, nil
	})

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	resp := call(t, ws, 1, "echo", map[string]string{"msg": "hello"})

	if resp.Error != "" {
		t.Errorf("error = %q", resp.Error)
	}
	if string(resp.Payload) != `{"msg":"hello"}` {
		t.Errorf("payload = %s", resp.Payload)
	}
	if gotCaller != "tester" {
		t.Errorf("caller = %q, want tester", gotCaller)
	}
}

func TestServerUnknownMethod(t *testing.T) {
	srv := startTestServer(t, &testBus{})
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := call(t, ws, 2, "nonexistent", nil)
	if resp.Error == "" {
		t.Fatal("expected error for unknown method")
	}
	if resp.Code != string(domain.CodeRPCMethodNotFound) {
		t.Errorf("code = %q, want %q", resp.Code, domain.CodeRPCMethodNotFound)
	}
}

func TestServerForwardsEvents(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus)
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	// Round-trip once so the client is registered before publishing.
	srv.RegisterHandler("ping", func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"pong"`), nil
	})
	call(t, ws, 1, "ping", nil)

	bus.Publish(context.Background(), domain.NewEvent(context.Background(), domain.EventLayoutUpdated, map[string]int{"gridColumns": 2}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var frame Frame
	if err := wsjson.Read(ctx, ws, &frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != FrameTypeEvent {
		t.Fatalf("type = %q, want event", frame.Type)
	}
	if frame.Method != string(domain.EventLayoutUpdated) {
		t.Errorf("method = %q", frame.Method)
	}
	var ev domain.Event
	if err := json.Unmarshal(frame.Payload, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != domain.EventLayoutUpdated {
		t.Errorf("event type = %q", ev.Type)
	}
}

func TestServerHTTPRouteAndMiddleware(t *testing.T) {
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Test", "wrapped")
			next.ServeHTTP(w, r)
		})
	}
	srv := NewServer(&testBus{}, newTestAuth(), "127.0.0.1:0", discardLogger(), WithMiddleware(mw))
	srv.RegisterHTTPRoute("/hello", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	startServer(t, srv)

	resp, err := http.Get("http://" + srv.BoundAddr() + "/hello")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Test") != "wrapped" {
		t.Error("middleware not applied")
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var frame Frame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		if frame.Type == FrameTypeEvent {
			return frame
		}
	}
}

func TestServerEventFilterFromQuery(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus)
	ws := dialWSQuery(t, srv.BoundAddr(), "token=test-token&events=screen.,%20canvas.")

	srv.RegisterHandler("ping", func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"pong"`), nil
	})
	call(t, ws, 1, "ping", nil)

	ctx := context.Background()
	bus.Publish(ctx, domain.NewEvent(ctx, domain.EventLayoutUpdated, nil))
	bus.Publish(ctx, domain.NewEvent(ctx, domain.EventScreenUpdated, nil))

	if got := readEvent(t, ws); got.Method != string(domain.EventScreenUpdated) {
		t.Errorf("first event = %q, want screen.updated", got.Method)
	}
}

func TestServerSubscribeRPC(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus)
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := call(t, ws, 1, "events.subscribe", map[string]any{"prefixes": []string{" layout.", ""}})
	if resp.Error != "" {
		t.Fatalf("subscribe: %s", resp.Error)
	}
	var got subscribeRequest
	if err := json.Unmarshal(resp.Payload, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Prefixes) != 1 || got.Prefixes[0] != "layout." {
		t.Errorf("prefixes = %v", got.Prefixes)
	}

	ctx := context.Background()
	bus.Publish(ctx, domain.NewEvent(ctx, domain.EventCanvasExecuted, nil))
	bus.Publish(ctx, domain.NewEvent(ctx, domain.EventLayoutUpdated, nil))
	if ev := readEvent(t, ws); ev.Method != string(domain.EventLayoutUpdated) {
		t.Errorf("event = %q, want layout.updated", ev.Method)
	}

	// An empty list restores every event.
	call(t, ws, 2, "events.subscribe", map[string]any{"prefixes": []string{}})
	bus.Publish(ctx, domain.NewEvent(ctx, domain.EventCanvasExecuted, nil))
	if ev := readEvent(t, ws); ev.Method != string(domain.EventCanvasExecuted) {
		t.Errorf("event = %q, want canvas.executed", ev.Method)
	}
}

func TestServerSubscribeBadPayload(t *testing.T) {
	srv := startTestServer(t, &testBus{})
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := call(t, ws, 1, "events.subscribe", "not an object")
	if resp.Code != string(domain.CodeRPCInvalidPayload) {
		t.Errorf("code = %q, want %q", resp.Code, domain.CodeRPCInvalidPayload)
	}
}

func TestServerOriginPatterns(t *testing.T) {
	srv := startTestServer(t, &testBus{}, WithOriginPatterns("stage.example.com"))

	dial := func(origin string) int {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ws, resp, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=test-token", &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{origin}},
		})
		if err == nil {
			ws.Close(websocket.StatusNormalClosure, "")
			return http.StatusSwitchingProtocols
		}
		if resp == nil {
			t.Fatalf("dial %s: %v", origin, err)
		}
		return resp.StatusCode
	}

	if code := dial("https://stage.example.com"); code != http.StatusSwitchingProtocols {
		t.Errorf("allowed origin = %d", code)
	}
	if code := dial("http://localhost:3000"); code != http.StatusSwitchingProtocols {
		t.Errorf("loopback origin = %d", code)
	}
	if code := dial("https://evil.example.com"); code != http.StatusForbidden {
		t.Errorf("foreign origin = %d, want 403", code)
	}
}

func TestClientConnWants(t *testing.T) {
	cc := newClientConn(1, &ClientInfo{Name: "x"}, nil, 1)
	if !cc.wants(domain.EventLayoutUpdated) {
		t.Error("no filter should forward everything")
	}
	cc.setEventFilter([]string{"screen."})
	if cc.wants(domain.EventLayoutUpdated) || !cc.wants(domain.EventScreenCleared) {
		t.Error("filter not applied")
	}
}

func TestClientConnEnqueue(t *testing.T) {
	cc := newClientConn(1, &ClientInfo{Name: "x"}, nil, 1)
	if !cc.enqueue(Frame{ID: 1}) {
		t.Fatal("first enqueue should fit")
	}
	if cc.enqueue(Frame{ID: 2}) {
		t.Error("full queue should reject")
	}
	<-cc.sendCh
	cc.shutdown()
	if cc.enqueue(Frame{ID: 3}) {
		t.Error("closed client should reject")
	}
}
