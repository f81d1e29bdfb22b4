package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"showoff/internal/domain"
	"showoff/internal/infra/tracer"
)

const defaultMaxDrawingSize = 512 * 1024

// CanvasTool lets an agent draw on the shared canvas and capture it.
type CanvasTool struct {
	backend CanvasBackend
	surface AttachChecker
	logger  *slog.Logger
	maxSize int
}

// NewCanvasTool creates a canvas tool. surface may be nil.
func NewCanvasTool(backend CanvasBackend, surface AttachChecker, maxSize int, logger *slog.Logger) *CanvasTool {
	if maxSize <= 0 {
		maxSize = defaultMaxDrawingSize
	}
	return &CanvasTool{
		backend: backend,
		surface: surface,
		logger:  logger,
		maxSize: maxSize,
	}
}

func (t *CanvasTool) Name() string { return "canvas" }
func (t *CanvasTool) Description() string {
	return "Draw on the shared canvas. action=draw runs a JavaScript drawing function " +
		"against the canvas 2D context; action=last_code returns the last drawing; " +
		"action=capture returns a PNG screenshot of the canvas."
}

func (t *CanvasTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {
					"type": "string",
					"enum": ["draw", "last_code", "capture"],
					"description": "The canvas action to perform"
				},
				"code": {
					"type": "string",
					"description": "JavaScript drawing code for the draw action"
				}
			},
			"required": ["action"]
		}`),
	}
}

type canvasParams struct {
	Action string `json:"action"`
	Code   string `json:"code,omitempty"`
}

func (t *CanvasTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.canvas", t.logger, params,
		Dispatch(func(p canvasParams) string { return p.Action }, ActionMap[canvasParams]{
			"draw":      t.draw,
			"last_code": t.lastCode,
			"capture":   t.capture,
		}),
	)
}

func (t *CanvasTool) draw(ctx context.Context, p canvasParams) (any, error) {
	if strings.TrimSpace(p.Code) == "" {
		return nil, fmt.Errorf("'code' is required for draw action")
	}
	if err := ValidateMaxLength("code", p.Code, t.maxSize); err != nil {
		return nil, err
	}

	t.backend.SendDrawingCode(ctx, p.Code)
	return TextResult(fmt.Sprintf("Drawing sent to canvas (%d bytes)%s", len(p.Code), deliveryNote(t.surface))), nil
}

func (t *CanvasTool) lastCode(_ context.Context, _ canvasParams) (any, error) {
	code, ok := t.backend.LastExecutedCode()
	if !ok {
		return TextResult("Nothing has been drawn yet."), nil
	}
	return TextResult(code), nil
}

func (t *CanvasTool) capture(ctx context.Context, _ canvasParams) (any, error) {
	data, err := t.backend.CaptureScreenshot(ctx)
	if err != nil {
		return nil, err
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(tracer.IntAttr("capture.bytes", len(data)))

	if len(data) == 0 {
		return &domain.ToolResult{
			IsError: true,
			Content: "No screenshot available: the canvas is not attached, reported a failure, or did not answer in time.",
		}, nil
	}
	return &domain.ToolResult{
		Content:     fmt.Sprintf("Captured canvas screenshot (%d bytes, image/png).", len(data)),
		Attachments: []domain.ToolAttachment{{MIMEType: "image/png", Data: data}},
	}, nil
}
