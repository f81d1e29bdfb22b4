package surface

import (
	"context"
	"encoding/base64"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"showoff/internal/domain"
	"showoff/internal/infra/tracer"
)

// DefaultCaptureTimeout bounds how long CaptureScreenshot waits for the surface.
const DefaultCaptureTimeout = 5 * time.Second

// OverlapPolicy decides what happens when a capture is requested while one is
// still pending.
type OverlapPolicy string

const (
	// OverlapReject fails the second caller with domain.ErrCaptureInFlight.
	OverlapReject OverlapPolicy = "reject"
	// OverlapReplace installs the new request in the slot; the first caller
	// only returns when its own timer fires.
	OverlapReplace OverlapPolicy = "replace"
)

// CanvasOption configures a CanvasChannel.
type CanvasOption func(*CanvasChannel)

// WithCaptureTimeout overrides DefaultCaptureTimeout.
func WithCaptureTimeout(d time.Duration) CanvasOption {
	return func(c *CanvasChannel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithOverlapPolicy sets the policy for overlapping capture requests.
func WithOverlapPolicy(p OverlapPolicy) CanvasOption {
	return func(c *CanvasChannel) {
		if p == OverlapReplace {
			c.overlap = OverlapReplace
		}
	}
}

// WithCanvasEvents publishes canvas lifecycle events on bus.
func WithCanvasEvents(bus domain.EventBus) CanvasOption {
	return func(c *CanvasChannel) { c.bus = bus }
}

// pendingCapture is the single in-flight capture slot.
type pendingCapture struct {
	id     string
	result chan []byte
	once   sync.Once
	timer  *time.Timer
}

// resolve delivers data to the waiting caller. Only the first call wins.
func (p *pendingCapture) resolve(data []byte) bool {
	won := false
	p.once.Do(func() {
		p.result <- data
		won = true
	})
	return won
}

// CanvasChannel owns the last drawing payload and the screenshot handshake
// for the single canvas surface.
type CanvasChannel struct {
	mu        sync.Mutex
	transport domain.SurfaceTransport
	logger    *slog.Logger
	bus       domain.EventBus
	timeout   time.Duration
	overlap   OverlapPolicy
	entropy   *ulid.MonotonicEntropy

	lastCode string
	hasCode  bool
	pending  *pendingCapture
}

// NewCanvasChannel creates a canvas channel sending through transport and
// registers its inbound handlers.
func NewCanvasChannel(transport domain.SurfaceTransport, logger *slog.Logger, opts ...CanvasOption) *CanvasChannel {
	c := &CanvasChannel{
		transport: transport,
		logger:    logger,
		timeout:   DefaultCaptureTimeout,
		overlap:   OverlapReject,
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	transport.Handle(domain.MsgReady, c.handleReady)
	transport.Handle(domain.MsgCaptureResult, c.handleCaptureResult)
	return c
}

// SendDrawingCode stores code as the last executed payload and forwards it to
// the surface. The payload is stored even when no surface is attached.
func (c *CanvasChannel) SendDrawingCode(ctx context.Context, code string) {
	c.mu.Lock()
	c.lastCode = code
	c.hasCode = true
	err := c.transport.Send(domain.NewExecuteDrawing(code))
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("canvas surface not attached, drawing stored only", "error", err)
	} else {
		c.logger.Debug("drawing code sent", "bytes", len(code))
	}
	publish(ctx, c.bus, domain.EventCanvasExecuted, map[string]any{"bytes": len(code), "delivered": err == nil})
}

// LastExecutedCode returns the most recent drawing payload.
func (c *CanvasChannel) LastExecutedCode() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCode, c.hasCode
}

// CaptureScreenshot asks the surface for a PNG snapshot and waits for it.
// A nil slice with a nil error means no image was obtained: no surface,
// timeout, or the surface reported a failure.
func (c *CanvasChannel) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	ctx, span := tracer.StartSpan(ctx, "canvas.capture")
	defer span.End()

	c.mu.Lock()
	if !c.transport.Attached() {
		c.mu.Unlock()
		c.logger.Error("capture requested with no canvas surface attached")
		return nil, nil
	}
	if c.pending != nil && c.overlap == OverlapReject {
		id := c.pending.id
		c.mu.Unlock()
		err := domain.NewSubSystemError("canvas", "CanvasChannel.CaptureScreenshot", domain.ErrCaptureInFlight, id)
		tracer.RecordError(span, err)
		return nil, err
	}
	if c.pending != nil {
		c.logger.Warn("replacing in-flight capture", "orphaned", c.pending.id)
	}

	p := &pendingCapture{
		id:     ulid.MustNew(ulid.Timestamp(time.Now()), c.entropy).String(),
		result: make(chan []byte, 1),
	}
	c.pending = p
	p.timer = time.AfterFunc(c.timeout, func() { c.expire(p) })

	if err := c.transport.Send(domain.NewRequestCapture()); err != nil {
		c.pending = nil
		p.timer.Stop()
		c.mu.Unlock()
		c.logger.Error("capture request not delivered", "capture_id", p.id, "error", err)
		return nil, nil
	}
	c.mu.Unlock()

	span.SetAttributes(tracer.StringAttr("capture.id", p.id))
	publish(ctx, c.bus, domain.EventCanvasCaptureRequest, map[string]string{"capture_id": p.id})

	select {
	case data := <-p.result:
		recordCapture(span, data)
		return data, nil
	case <-ctx.Done():
		c.clear(p)
		p.timer.Stop()
		// A result may have been delivered concurrently; prefer it.
		select {
		case data := <-p.result:
			recordCapture(span, data)
			return data, nil
		default:
		}
		tracer.RecordError(span, ctx.Err())
		return nil, ctx.Err()
	}
}

func recordCapture(span trace.Span, data []byte) {
	span.SetAttributes(tracer.IntAttr("capture.bytes", len(data)))
	tracer.SetOK(span)
}

// expire resolves p with no image once its timer fires.
func (c *CanvasChannel) expire(p *pendingCapture) {
	c.clear(p)
	if p.resolve(nil) {
		c.logger.Error("screenshot capture timed out", "capture_id", p.id, "timeout", c.timeout)
		publish(context.Background(), c.bus, domain.EventCanvasCaptureTimeout, map[string]string{"capture_id": p.id})
	}
}

// clear empties the slot if it still holds p.
func (c *CanvasChannel) clear(p *pendingCapture) {
	c.mu.Lock()
	if c.pending == p {
		c.pending = nil
	}
	c.mu.Unlock()
}

func (c *CanvasChannel) handleCaptureResult(ctx context.Context, msg domain.InboundMessage) {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()

	if p == nil {
		c.logger.Debug("capture result with no pending request")
		return
	}
	p.timer.Stop()

	var data []byte
	if msg.Data == nil {
		c.logger.Warn("canvas surface reported capture failure", "capture_id", p.id)
	} else {
		decoded, err := DecodeCapture(*msg.Data)
		if err != nil {
			c.logger.Error("decode capture payload", "capture_id", p.id, "error", err)
		} else {
			data = decoded
		}
	}
	if p.resolve(data) {
		publish(ctx, c.bus, domain.EventCanvasCaptureComplete, map[string]any{"capture_id": p.id, "bytes": len(data)})
	}
}

// handleReady replays the last drawing onto a freshly attached canvas.
func (c *CanvasChannel) handleReady(ctx context.Context, _ domain.InboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasCode {
		return
	}
	if err := c.transport.Send(domain.NewExecuteDrawing(c.lastCode)); err != nil {
		c.logger.Warn("canvas resync failed", "error", err)
		return
	}
	c.logger.Debug("canvas resynced", "bytes", len(c.lastCode))
}

// Reset forgets the last payload and abandons any pending capture.
func (c *CanvasChannel) Reset() {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.lastCode = ""
	c.hasCode = false
	c.mu.Unlock()

	if p != nil {
		p.timer.Stop()
		p.resolve(nil)
	}
}

// DecodeCapture turns a capture payload into raw image bytes. A leading
// "data:<mime>;base64," prefix is stripped.
func DecodeCapture(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		if _, rest, ok := strings.Cut(payload, ";base64,"); ok {
			payload = rest
		}
	}
	out, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, domain.NewSubSystemError("canvas", "DecodeCapture", domain.ErrInvalidInput, err.Error())
	}
	return out, nil
}

func publish(ctx context.Context, bus domain.EventBus, t domain.EventType, payload any) {
	if bus == nil {
		return
	}
	bus.Publish(ctx, domain.NewEvent(ctx, t, payload))
}
