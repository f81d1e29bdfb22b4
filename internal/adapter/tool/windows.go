package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"showoff/internal/domain"
)

// WindowsTool manages the window grid.
type WindowsTool struct {
	backend WindowBackend
	surface AttachChecker
	logger  *slog.Logger
}

// NewWindowsTool creates a windows tool. surface may be nil.
func NewWindowsTool(backend WindowBackend, surface AttachChecker, logger *slog.Logger) *WindowsTool {
	return &WindowsTool{backend: backend, surface: surface, logger: logger}
}

func (t *WindowsTool) Name() string { return "windows" }
func (t *WindowsTool) Description() string {
	return "Manage a grid of windows. create places or fully replaces a window, update " +
		"changes only the given fields (an empty string clears content or controllerCode), " +
		"destroy removes one, layout replaces the whole grid, get returns the layout."
}

const gridPositionSchema = `{
	"type": "object",
	"properties": {
		"row": {"type": "integer", "minimum": 0},
		"col": {"type": "integer", "minimum": 0},
		"rowSpan": {"type": "integer", "minimum": 1},
		"colSpan": {"type": "integer", "minimum": 1}
	},
	"required": ["row", "col"]
}`

const windowSchema = `{
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"title": {"type": "string"},
		"type": {"type": "string", "enum": ["canvas", "markup", "html", "custom"]},
		"content": {"type": "string"},
		"controllerCode": {"type": "string"},
		"gridPosition": ` + gridPositionSchema + `
	},
	"required": ["id", "title", "type", "gridPosition"]
}`

func (t *WindowsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {
					"type": "string",
					"enum": ["create", "update", "destroy", "layout", "get"],
					"description": "The window action to perform"
				},
				"id": {"type": "string", "description": "Window id"},
				"title": {"type": "string"},
				"type": {"type": "string", "enum": ["canvas", "markup", "html", "custom"]},
				"content": {"type": "string", "description": "Window body; meaning depends on type"},
				"controllerCode": {"type": "string", "description": "Script run by the surface for this window"},
				"gridPosition": ` + gridPositionSchema + `,
				"gridColumns": {"type": "integer", "minimum": 1},
				"gridRows": {"type": "integer", "minimum": 1},
				"windows": {"type": "array", "items": ` + windowSchema + `}
			},
			"required": ["action"]
		}`),
	}
}

type windowsParams struct {
	Action         string               `json:"action"`
	ID             string               `json:"id,omitempty"`
	Title          *string              `json:"title,omitempty"`
	Type           *domain.WindowType   `json:"type,omitempty"`
	Content        *string              `json:"content,omitempty"`
	ControllerCode *string              `json:"controllerCode,omitempty"`
	GridPosition   *domain.GridPosition `json:"gridPosition,omitempty"`
	GridColumns    int                  `json:"gridColumns,omitempty"`
	GridRows       int                  `json:"gridRows,omitempty"`
	Windows        []domain.Window      `json:"windows,omitempty"`
}

func (p windowsParams) patch() domain.WindowPatch {
	return domain.WindowPatch{
		Title:          p.Title,
		Type:           p.Type,
		Content:        p.Content,
		ControllerCode: p.ControllerCode,
		GridPosition:   p.GridPosition,
	}
}

func (t *WindowsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.windows", t.logger, params,
		Dispatch(func(p windowsParams) string { return p.Action }, ActionMap[windowsParams]{
			"create":  t.create,
			"update":  t.update,
			"destroy": t.destroy,
			"layout":  t.layout,
			"get":     t.get,
		}),
	)
}

func (t *WindowsTool) create(ctx context.Context, p windowsParams) (any, error) {
	if err := ValidateAll(
		RequireField("id", p.ID),
		RequirePresent("title", p.Title),
		RequirePresent("type", p.Type),
		RequirePresent("gridPosition", p.GridPosition),
	); err != nil {
		return nil, err
	}
	w := p.patch().Apply(domain.Window{ID: p.ID})
	if err := t.backend.UpsertWindow(ctx, w); err != nil {
		return nil, err
	}
	pos := w.GridPosition
	return TextResult(fmt.Sprintf("Window %q created at row %d, col %d%s", w.ID, pos.Row, pos.Col, deliveryNote(t.surface))), nil
}

func (t *WindowsTool) update(ctx context.Context, p windowsParams) (any, error) {
	if err := RequireField("id", p.ID); err != nil {
		return nil, err
	}
	current, ok := t.backend.Window(p.ID)
	if !ok {
		return nil, domain.NewSubSystemError("window", "WindowsTool.update", domain.ErrNotFound, fmt.Sprintf("window %q", p.ID))
	}
	if err := t.backend.UpsertWindow(ctx, p.patch().Apply(current)); err != nil {
		return nil, err
	}
	return TextResult(fmt.Sprintf("Window %q updated%s", p.ID, deliveryNote(t.surface))), nil
}

func (t *WindowsTool) destroy(ctx context.Context, p windowsParams) (any, error) {
	if err := RequireField("id", p.ID); err != nil {
		return nil, err
	}
	if !t.backend.RemoveWindow(ctx, p.ID) {
		return TextResult(fmt.Sprintf("Window %q did not exist; nothing to destroy", p.ID)), nil
	}
	return TextResult(fmt.Sprintf("Window %q destroyed", p.ID)), nil
}

func (t *WindowsTool) layout(ctx context.Context, p windowsParams) (any, error) {
	if err := ValidateAll(
		ValidatePositive("gridColumns", p.GridColumns),
		ValidatePositive("gridRows", p.GridRows),
	); err != nil {
		return nil, err
	}
	if err := t.backend.ReplaceLayout(ctx, p.GridColumns, p.GridRows, p.Windows); err != nil {
		return nil, err
	}
	return TextResult(fmt.Sprintf("Layout set to %dx%d with %d windows%s",
		p.GridColumns, p.GridRows, len(p.Windows), deliveryNote(t.surface))), nil
}

func (t *WindowsTool) get(_ context.Context, _ windowsParams) (any, error) {
	return t.backend.Layout(), nil
}
