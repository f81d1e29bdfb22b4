package surface

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"showoff/internal/domain"
)

// ScreenRegistry owns the bank of virtual screens and mirrors every change to
// the screens surface.
type ScreenRegistry struct {
	mu        sync.Mutex
	screens   map[int]domain.Screen
	transport domain.SurfaceTransport
	logger    *slog.Logger
	bus       domain.EventBus
}

// NewScreenRegistry creates an empty registry and registers its ready handler.
func NewScreenRegistry(transport domain.SurfaceTransport, logger *slog.Logger, bus domain.EventBus) *ScreenRegistry {
	r := &ScreenRegistry{
		screens:   make(map[int]domain.Screen),
		transport: transport,
		logger:    logger,
		bus:       bus,
	}
	transport.Handle(domain.MsgReady, r.handleReady)
	return r
}

// Apply executes one create, update or clear command. For create and update
// the returned screen is the stored result; for clear it is the removed
// screen (zero if there was none).
func (r *ScreenRegistry) Apply(ctx context.Context, cmd domain.ScreenCommand) (domain.Screen, error) {
	switch cmd.Action {
	case domain.ScreenCreate, domain.ScreenUpdate:
		return r.upsert(ctx, cmd)
	case domain.ScreenClear:
		return r.clear(ctx, cmd.ID), nil
	default:
		return domain.Screen{}, domain.NewSubSystemError("screen", "ScreenRegistry.Apply",
			domain.ErrInvalidInput, fmt.Sprintf("unknown action %q", cmd.Action))
	}
}

func (r *ScreenRegistry) upsert(ctx context.Context, cmd domain.ScreenCommand) (domain.Screen, error) {
	if cmd.Type != nil && !cmd.Type.Valid() {
		return domain.Screen{}, domain.NewSubSystemError("screen", "ScreenRegistry.Apply",
			domain.ErrInvalidInput, fmt.Sprintf("screen %d: unknown type %q", cmd.ID, *cmd.Type))
	}

	r.mu.Lock()
	existing, found := r.screens[cmd.ID]
	if !found && cmd.Type == nil {
		r.mu.Unlock()
		return domain.Screen{}, domain.NewSubSystemError("screen", "ScreenRegistry.Apply",
			domain.ErrInvalidInput, fmt.Sprintf("screen %d does not exist; type is required to create it", cmd.ID))
	}

	s := domain.Screen{ID: cmd.ID, Type: domain.ScreenText}
	if found {
		s = existing
	}
	if cmd.Type != nil {
		s.Type = *cmd.Type
	}
	if cmd.Title != nil {
		s.Title = *cmd.Title
	}
	if s.Title == "" {
		s.Title = domain.DefaultScreenTitle(s.Type, s.ID)
	}
	if cmd.Content != nil {
		s.Content = *cmd.Content
	}
	r.screens[s.ID] = s
	err := r.transport.Send(domain.ScreenMessage(s))
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("screens surface not attached, change stored only", "screen_id", s.ID, "error", err)
	} else {
		r.logger.Debug("screen updated", "screen_id", s.ID, "type", s.Type)
	}
	publish(ctx, r.bus, domain.EventScreenUpdated, s)
	return s, nil
}

func (r *ScreenRegistry) clear(ctx context.Context, id int) domain.Screen {
	r.mu.Lock()
	removed := r.screens[id]
	delete(r.screens, id)
	err := r.transport.Send(domain.NewRemoveScreen(id))
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("screens surface not attached, removal stored only", "screen_id", id, "error", err)
	}
	publish(ctx, r.bus, domain.EventScreenCleared, map[string]int{"screen_id": id})
	return removed
}

// Read returns the screen with the given id.
func (r *ScreenRegistry) Read(id int) (domain.Screen, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.screens[id]
	return s, ok
}

// List returns all screens sorted by ascending id.
func (r *ScreenRegistry) List() []domain.Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked()
}

func (r *ScreenRegistry) sortedLocked() []domain.Screen {
	out := make([]domain.Screen, 0, len(r.screens))
	for _, s := range r.screens {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sync pushes the full screen list to the surface.
func (r *ScreenRegistry) Sync(ctx context.Context) {
	r.mu.Lock()
	screens := r.sortedLocked()
	err := r.transport.Send(domain.NewSyncScreens(screens))
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("screens sync not delivered", "error", err)
		return
	}
	r.logger.Debug("screens synced", "count", len(screens))
	publish(ctx, r.bus, domain.EventScreensSynced, map[string]int{"count": len(screens)})
}

func (r *ScreenRegistry) handleReady(ctx context.Context, _ domain.InboundMessage) {
	r.Sync(ctx)
}

// Reset removes every screen without notifying the surface.
func (r *ScreenRegistry) Reset() {
	r.mu.Lock()
	r.screens = make(map[int]domain.Screen)
	r.mu.Unlock()
}
