package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showoff/internal/domain"
)

type echoTool struct {
	name   string
	result *domain.ToolResult
	gotCtx context.Context
	got    json.RawMessage
}

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "echo" }
func (e *echoTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        e.name,
		Description: "echo",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"action":{"type":"string"}}}`),
	}
}
func (e *echoTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	e.gotCtx, e.got = ctx, params
	return e.result, nil
}

type toolList []domain.Tool

func (l toolList) List() []domain.Tool { return l }

func newTestServer(tools ...domain.Tool) *Server {
	return New(toolList(tools), "showoff", "test", "", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func call(t *testing.T, s *Server, name string, args any) *mcp.CallToolResult {
	t.Helper()
	st := s.MCP().GetTool(name)
	require.NotNil(t, st, "tool %q not registered", name)

	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := st.Handler(context.Background(), req)
	require.NoError(t, err)
	return res
}

func TestToolsAreAdvertised(t *testing.T) {
	s := newTestServer(&echoTool{name: "canvas"}, &echoTool{name: "windows"})

	tools := s.MCP().ListTools()
	require.Len(t, tools, 2)
	assert.Contains(t, tools, "canvas")
	assert.Contains(t, tools, "windows")
	assert.JSONEq(t,
		`{"type":"object","properties":{"action":{"type":"string"}}}`,
		string(tools["canvas"].Tool.RawInputSchema))
}

func TestCallForwardsArgumentsAndCaller(t *testing.T) {
	tool := &echoTool{name: "screens", result: &domain.ToolResult{Content: "done"}}
	s := newTestServer(tool)

	res := call(t, s, "screens", map[string]any{"action": "list"})
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	assert.Equal(t, "done", text.Text)

	assert.JSONEq(t, `{"action":"list"}`, string(tool.got))
	assert.Equal(t, CallerName, domain.CallerFromContext(tool.gotCtx))
}

func TestCallWithoutArguments(t *testing.T) {
	tool := &echoTool{name: "canvas", result: &domain.ToolResult{Content: "ok"}}
	s := newTestServer(tool)

	call(t, s, "canvas", nil)
	assert.JSONEq(t, `{}`, string(tool.got))
}

func TestCallErrorResult(t *testing.T) {
	tool := &echoTool{name: "windows", result: &domain.ToolResult{IsError: true, Content: "window \"x\" not found"}}
	s := newTestServer(tool)

	res := call(t, s, "windows", map[string]any{"action": "update"})
	assert.True(t, res.IsError)
}

func TestCallImageAttachment(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	tool := &echoTool{name: "canvas", result: &domain.ToolResult{
		Content:     "Captured",
		Attachments: []domain.ToolAttachment{{MIMEType: "image/png", Data: png}},
	}}
	s := newTestServer(tool)

	res := call(t, s, "canvas", map[string]any{"action": "capture"})
	require.Len(t, res.Content, 2)
	img, ok := mcp.AsImageContent(res.Content[1])
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)

	decoded, err := base64.StdEncoding.DecodeString(img.Data)
	require.NoError(t, err)
	assert.Equal(t, png, decoded)
}

func TestHandleMessageToolsList(t *testing.T) {
	s := newTestServer(&echoTool{name: "canvas"})

	initMsg := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`
	require.NotNil(t, s.MCP().HandleMessage(context.Background(), json.RawMessage(initMsg)))

	resp := s.MCP().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"canvas"`)
}
