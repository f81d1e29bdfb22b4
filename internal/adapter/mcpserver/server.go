// Package mcpserver exposes the tool registry to agents over the Model
// Context Protocol.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"showoff/internal/domain"
)

// CallerName tags tool calls arriving over MCP.
const CallerName = "mcp"

// ToolLister is the registry view the server needs.
type ToolLister interface {
	List() []domain.Tool
}

// Server adapts domain tools to an MCP server.
type Server struct {
	mcp    *server.MCPServer
	bus    domain.EventBus
	logger *slog.Logger
}

// DefaultInstructions is sent to clients when none are configured.
const DefaultInstructions = "Use canvas, screens and windows to show visual output to the user."

// New builds an MCP server advertising every tool in tools. An empty
// instructions string selects DefaultInstructions.
func New(tools ToolLister, name, version, instructions string, bus domain.EventBus, logger *slog.Logger) *Server {
	if instructions == "" {
		instructions = DefaultInstructions
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
		bus:    bus,
		logger: logger,
	}
	for _, t := range tools.List() {
		schema := t.Schema()
		s.mcp.AddTool(mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.Parameters), s.handler(t))
	}
	return s
}

// MCP returns the underlying mcp-go server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves MCP over the given streams until ctx is done or in
// reaches EOF.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp server listening on stdio")
	return stdio.Listen(ctx, in, out)
}

func (s *Server) handler(t domain.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := json.RawMessage(`{}`)
		if args := req.GetRawArguments(); args != nil {
			data, err := json.Marshal(args)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
			raw = data
		}

		ctx = domain.ContextWithCaller(ctx, CallerName)
		s.publish(ctx, domain.EventToolCallStarted, t.Name(), "")

		res, err := t.Execute(ctx, raw)
		if err != nil {
			s.logger.Error("tool execution failed", "tool", t.Name(), "error", err)
			s.publish(ctx, domain.EventToolCallFailed, t.Name(), err.Error())
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res.IsError {
			s.publish(ctx, domain.EventToolCallFailed, t.Name(), res.Content)
		} else {
			s.publish(ctx, domain.EventToolCallCompleted, t.Name(), "")
		}
		return toCallToolResult(res), nil
	}
}

func (s *Server) publish(ctx context.Context, t domain.EventType, tool, detail string) {
	if s.bus == nil {
		return
	}
	payload := map[string]string{"tool": tool}
	if detail != "" {
		payload["error"] = detail
	}
	s.bus.Publish(ctx, domain.NewEvent(ctx, t, payload))
}

// toCallToolResult converts a tool result to MCP content. Image attachments
// become image content blocks after the text.
func toCallToolResult(res *domain.ToolResult) *mcp.CallToolResult {
	out := &mcp.CallToolResult{IsError: res.IsError}
	if res.Content != "" {
		out.Content = append(out.Content, mcp.NewTextContent(res.Content))
	}
	for _, a := range res.Attachments {
		out.Content = append(out.Content, mcp.NewImageContent(base64.StdEncoding.EncodeToString(a.Data), a.MIMEType))
	}
	if len(out.Content) == 0 {
		out.Content = []mcp.Content{mcp.NewTextContent("")}
	}
	return out
}
