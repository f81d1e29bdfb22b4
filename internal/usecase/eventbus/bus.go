package eventbus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"showoff/internal/domain"
)

// DefaultBuffer is the per-subscriber queue depth.
const DefaultBuffer = 256

type delivery struct {
	ctx   context.Context
	event domain.Event
}

type subscription struct {
	id      uint64
	match   func(domain.EventType) bool
	handler domain.EventHandler
	queue   chan delivery
}

// Bus is an in-process, goroutine-safe event bus. Each subscriber has its own
// queue drained by one goroutine, so a subscriber sees events in publish order.
// A full queue drops the event for that subscriber only.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  atomic.Uint64
	dropped atomic.Uint64
	buffer  int
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscriber queue depth.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// New creates an event bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[uint64]*subscription),
		buffer: DefaultBuffer,
		logger: logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish enqueues event for every matching subscriber. It never blocks.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}
	// Handlers outlive the publishing call.
	ctx = context.WithoutCancel(ctx)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.match(event.Type) {
			continue
		}
		select {
		case sub.queue <- delivery{ctx: ctx, event: event}:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event subscriber queue full, dropping event",
				"event", string(event.Type),
				"subscriber", sub.id,
			)
		}
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(func(t domain.EventType) bool { return t == eventType }, handler)
}

// SubscribePrefix registers a handler for every event type starting with
// prefix, e.g. "screen.".
func (b *Bus) SubscribePrefix(prefix string, handler domain.EventHandler) func() {
	return b.add(func(t domain.EventType) bool { return strings.HasPrefix(string(t), prefix) }, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(func(domain.EventType) bool { return true }, handler)
}

func (b *Bus) add(match func(domain.EventType) bool, handler domain.EventHandler) func() {
	sub := &subscription{
		id:      b.nextID.Add(1),
		match:   match,
		handler: handler,
		queue:   make(chan delivery, b.buffer),
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return func() {}
	}
	b.subs[sub.id] = sub
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub.id]; ok {
			delete(b.subs, sub.id)
			close(sub.queue)
		}
	}
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for d := range sub.queue {
		b.call(sub, d)
	}
}

func (b *Bus) call(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

// Dropped returns how many deliveries were discarded because a subscriber
// queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close prevents new publishes, lets every subscriber drain its queue and
// waits for them. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed.Swap(true) {
		b.mu.Unlock()
		return
	}
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.queue)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
