package tool

import (
	"context"

	"showoff/internal/domain"
)

// CanvasBackend is the canvas state owner driven by CanvasTool.
type CanvasBackend interface {
	// SendDrawingCode stores code as the last payload and forwards it.
	SendDrawingCode(ctx context.Context, code string)
	// LastExecutedCode returns the last payload, if any.
	LastExecutedCode() (string, bool)
	// CaptureScreenshot returns PNG bytes, or nil when none was obtained.
	CaptureScreenshot(ctx context.Context) ([]byte, error)
}

// ScreenBackend is the virtual screen bank driven by ScreensTool.
type ScreenBackend interface {
	Apply(ctx context.Context, cmd domain.ScreenCommand) (domain.Screen, error)
	Read(id int) (domain.Screen, bool)
	List() []domain.Screen
}

// WindowBackend is the window grid driven by WindowsTool.
type WindowBackend interface {
	ReplaceLayout(ctx context.Context, columns, rows int, windows []domain.Window) error
	UpsertWindow(ctx context.Context, w domain.Window) error
	RemoveWindow(ctx context.Context, id string) bool
	Layout() domain.WindowLayout
	Window(id string) (domain.Window, bool)
}

// AttachChecker reports whether a surface is connected. Tools use it to
// tell the agent that a change was stored but not displayed.
type AttachChecker interface {
	Attached() bool
}

func deliveryNote(surface AttachChecker) string {
	if surface == nil || surface.Attached() {
		return ""
	}
	return " (no surface attached; the change will appear when one connects)"
}
