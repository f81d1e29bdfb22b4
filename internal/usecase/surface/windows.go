package surface

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"showoff/internal/domain"
)

// DefaultLayout is the layout a fresh manager starts with.
func DefaultLayout() domain.WindowLayout {
	return domain.WindowLayout{GridColumns: 1, GridRows: 1, Windows: []domain.Window{}}
}

// LayoutManager owns the window grid. Every mutation is followed by a full
// layout sync to the windows surface.
type LayoutManager struct {
	mu        sync.Mutex
	layout    domain.WindowLayout
	transport domain.SurfaceTransport
	logger    *slog.Logger
	bus       domain.EventBus
}

// NewLayoutManager creates a manager holding DefaultLayout and registers its
// ready handler.
func NewLayoutManager(transport domain.SurfaceTransport, logger *slog.Logger, bus domain.EventBus) *LayoutManager {
	m := &LayoutManager{
		layout:    DefaultLayout(),
		transport: transport,
		logger:    logger,
		bus:       bus,
	}
	transport.Handle(domain.MsgReady, m.handleReady)
	return m
}

// ValidateWindow checks the fields every stored window must carry.
func ValidateWindow(w domain.Window) error {
	switch {
	case w.ID == "":
		return domain.NewSubSystemError("window", "ValidateWindow", domain.ErrInvalidInput, "id is required")
	case w.Title == "":
		return domain.NewSubSystemError("window", "ValidateWindow", domain.ErrInvalidInput,
			fmt.Sprintf("window %q: title is required", w.ID))
	case !w.Type.Valid():
		return domain.NewSubSystemError("window", "ValidateWindow", domain.ErrInvalidInput,
			fmt.Sprintf("window %q: unknown type %q", w.ID, w.Type))
	}
	return nil
}

// ReplaceLayout swaps in a whole new grid.
func (m *LayoutManager) ReplaceLayout(ctx context.Context, columns, rows int, windows []domain.Window) error {
	if columns < 1 || rows < 1 {
		return domain.NewSubSystemError("window", "LayoutManager.ReplaceLayout", domain.ErrInvalidInput,
			fmt.Sprintf("grid must be at least 1x1, got %dx%d", columns, rows))
	}
	next := domain.WindowLayout{GridColumns: columns, GridRows: rows, Windows: make([]domain.Window, 0, len(windows))}
	seen := make(map[string]struct{}, len(windows))
	for _, w := range windows {
		if err := ValidateWindow(w); err != nil {
			return err
		}
		if _, dup := seen[w.ID]; dup {
			return domain.NewSubSystemError("window", "LayoutManager.ReplaceLayout", domain.ErrInvalidInput,
				fmt.Sprintf("duplicate window id %q", w.ID))
		}
		seen[w.ID] = struct{}{}
		w = w.Clone()
		w.GridPosition = w.GridPosition.Normalized()
		next.Windows = append(next.Windows, w)
	}

	m.mu.Lock()
	m.layout = next
	m.syncLocked(ctx)
	m.mu.Unlock()
	return nil
}

// UpsertWindow inserts w, replacing any window with the same id. The
// replacement is appended, so it moves to the end of the insertion order.
func (m *LayoutManager) UpsertWindow(ctx context.Context, w domain.Window) error {
	if err := ValidateWindow(w); err != nil {
		return err
	}
	w = w.Clone()
	w.GridPosition = w.GridPosition.Normalized()

	m.mu.Lock()
	m.layout.Windows = append(without(m.layout.Windows, w.ID), w)
	m.syncLocked(ctx)
	m.mu.Unlock()
	return nil
}

// RemoveWindow deletes the window with id. Unknown ids still trigger a sync
// and report false.
func (m *LayoutManager) RemoveWindow(ctx context.Context, id string) bool {
	m.mu.Lock()
	before := len(m.layout.Windows)
	m.layout.Windows = without(m.layout.Windows, id)
	removed := len(m.layout.Windows) != before
	m.syncLocked(ctx)
	m.mu.Unlock()
	return removed
}

// Layout returns a deep copy of the current layout.
func (m *LayoutManager) Layout() domain.WindowLayout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.layout.Clone()
}

// Window returns a copy of the window with id.
func (m *LayoutManager) Window(id string) (domain.Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.layout.Find(id)
}

// Sync pushes the full layout to the surface.
func (m *LayoutManager) Sync(ctx context.Context) {
	m.mu.Lock()
	m.syncLocked(ctx)
	m.mu.Unlock()
}

func (m *LayoutManager) syncLocked(ctx context.Context) {
	msg := domain.NewUpdateLayout(m.layout)
	if err := m.transport.Send(msg); err != nil {
		m.logger.Warn("windows surface not attached, layout stored only", "error", err)
	} else {
		m.logger.Debug("layout synced", "windows", len(msg.Layout.Windows),
			"grid", fmt.Sprintf("%dx%d", msg.Layout.GridColumns, msg.Layout.GridRows))
	}
	publish(ctx, m.bus, domain.EventLayoutUpdated, msg.Layout)
}

func (m *LayoutManager) handleReady(ctx context.Context, _ domain.InboundMessage) {
	m.Sync(ctx)
}

// Reset restores DefaultLayout without notifying the surface.
func (m *LayoutManager) Reset() {
	m.mu.Lock()
	m.layout = DefaultLayout()
	m.mu.Unlock()
}

func without(windows []domain.Window, id string) []domain.Window {
	out := make([]domain.Window, 0, len(windows))
	for _, w := range windows {
		if w.ID != id {
			out = append(out, w)
		}
	}
	return out
}
