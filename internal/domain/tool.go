package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for agent function-calling protocols.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolAttachment is binary output attached to a tool result, e.g. a screenshot.
type ToolAttachment struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	Content     string           `json:"content"`
	IsError     bool             `json:"is_error"`
	IsRetryable bool             `json:"is_retryable,omitempty"`
	Attachments []ToolAttachment `json:"attachments,omitempty"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool lookup and execution.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}
