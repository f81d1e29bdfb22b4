package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"showoff/internal/domain"
)

// ScreensTool manages the bank of numbered virtual screens.
type ScreensTool struct {
	backend ScreenBackend
	surface AttachChecker
	logger  *slog.Logger
}

// NewScreensTool creates a screens tool. surface may be nil.
func NewScreensTool(backend ScreenBackend, surface AttachChecker, logger *slog.Logger) *ScreensTool {
	return &ScreensTool{backend: backend, surface: surface, logger: logger}
}

func (t *ScreensTool) Name() string { return "screens" }
func (t *ScreensTool) Description() string {
	return "Manage numbered virtual screens. A text screen shows literal text; a canvas " +
		"screen runs a JavaScript drawing function. create/update merge with the stored " +
		"screen, clear removes it, read and list inspect the bank."
}

func (t *ScreensTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {
					"type": "string",
					"enum": ["create", "update", "clear", "read", "list"],
					"description": "The screen action to perform"
				},
				"id": {
					"type": "integer",
					"description": "Screen number"
				},
				"type": {
					"type": "string",
					"enum": ["text", "canvas"],
					"description": "Screen type; required when the screen does not exist yet"
				},
				"content": {
					"type": "string",
					"description": "Text for text screens, drawing code for canvas screens"
				},
				"title": {
					"type": "string",
					"description": "Screen title"
				}
			},
			"required": ["action"]
		}`),
	}
}

type screensParams struct {
	Action  string  `json:"action"`
	ID      *int    `json:"id,omitempty"`
	Type    *string `json:"type,omitempty"`
	Content *string `json:"content,omitempty"`
	Title   *string `json:"title,omitempty"`
}

func (t *ScreensTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.screens", t.logger, params,
		Dispatch(func(p screensParams) string { return p.Action }, ActionMap[screensParams]{
			"create": t.apply(domain.ScreenCreate),
			"update": t.apply(domain.ScreenUpdate),
			"clear":  t.clear,
			"read":   t.read,
			"list":   t.list,
		}),
	)
}

func (t *ScreensTool) apply(action domain.ScreenAction) ActionHandler[screensParams] {
	return func(ctx context.Context, p screensParams) (any, error) {
		if err := RequirePresent("id", p.ID); err != nil {
			return nil, err
		}
		cmd := domain.ScreenCommand{Action: action, ID: *p.ID, Content: p.Content, Title: p.Title}
		if p.Type != nil {
			if err := ValidateEnum("type", *p.Type, string(domain.ScreenText), string(domain.ScreenCanvas)); err != nil {
				return nil, err
			}
			st := domain.ScreenType(*p.Type)
			cmd.Type = &st
		}

		s, err := t.backend.Apply(ctx, cmd)
		if err != nil {
			return nil, err
		}
		verb := "created"
		if action == domain.ScreenUpdate {
			verb = "updated"
		}
		t.logger.Debug("screen applied", "action", action, "screen_id", s.ID)
		return TextResult(fmt.Sprintf("%s screen #%d %q %s%s", s.Type, s.ID, s.Title, verb, deliveryNote(t.surface))), nil
	}
}

func (t *ScreensTool) clear(ctx context.Context, p screensParams) (any, error) {
	if err := RequirePresent("id", p.ID); err != nil {
		return nil, err
	}
	removed, err := t.backend.Apply(ctx, domain.ScreenCommand{Action: domain.ScreenClear, ID: *p.ID})
	if err != nil {
		return nil, err
	}
	if removed.Type == "" {
		return TextResult(fmt.Sprintf("Screen #%d did not exist; nothing to clear", *p.ID)), nil
	}
	return TextResult(fmt.Sprintf("Screen #%d cleared", *p.ID)), nil
}

func (t *ScreensTool) read(_ context.Context, p screensParams) (any, error) {
	if err := RequirePresent("id", p.ID); err != nil {
		return nil, err
	}
	s, ok := t.backend.Read(*p.ID)
	if !ok {
		return nil, domain.NewSubSystemError("screen", "ScreensTool.read", domain.ErrNotFound, fmt.Sprintf("screen #%d", *p.ID))
	}
	return s, nil
}

func (t *ScreensTool) list(_ context.Context, _ screensParams) (any, error) {
	screens := t.backend.List()
	if len(screens) == 0 {
		return TextResult("No screens."), nil
	}
	return screens, nil
}
