package gateway

import (
	"strings"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"

	"showoff/internal/domain"
)

// clientConn is one agent WebSocket connection.
type clientConn struct {
	id     uint64
	info   *ClientInfo
	ws     *websocket.Conn
	sendCh chan Frame
	done   chan struct{}
	once   sync.Once

	// Event type prefixes forwarded to this client. Empty forwards all.
	events atomic.Pointer[[]string]
}

func newClientConn(id uint64, info *ClientInfo, ws *websocket.Conn, queue int) *clientConn {
	return &clientConn{
		id:     id,
		info:   info,
		ws:     ws,
		sendCh: make(chan Frame, queue),
		done:   make(chan struct{}),
	}
}

func (c *clientConn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// setEventFilter replaces the forwarded event prefixes and returns the
// cleaned list.
func (c *clientConn) setEventFilter(prefixes []string) []string {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	c.events.Store(&cleaned)
	return cleaned
}

func (c *clientConn) wants(t domain.EventType) bool {
	p := c.events.Load()
	if p == nil || len(*p) == 0 {
		return true
	}
	for _, prefix := range *p {
		if strings.HasPrefix(string(t), prefix) {
			return true
		}
	}
	return false
}

// enqueue hands f to the write loop without blocking. It reports false when
// the queue is full or the connection is closing.
func (c *clientConn) enqueue(f Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.sendCh <- f:
		return true
	default:
		return false
	}
}
