package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showoff/internal/domain"
)

func TestScreensTool_CreateUpdateRead(t *testing.T) {
	reg := newTestScreens()
	st := NewScreensTool(reg, nil, nopLogger())

	res := execTool(t, st, map[string]any{"action": "create", "id": 1, "type": "text", "title": "Log", "content": "hello"})
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, `text screen #1 "Log" created`)

	res = execTool(t, st, map[string]any{"action": "update", "id": 1, "content": "world"})
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "updated")

	res = execTool(t, st, map[string]any{"action": "read", "id": 1})
	require.False(t, res.IsError, res.Content)
	var s domain.Screen
	require.NoError(t, json.Unmarshal([]byte(res.Content), &s))
	assert.Equal(t, domain.Screen{ID: 1, Type: domain.ScreenText, Title: "Log", Content: "world"}, s)
}

func TestScreensTool_ExplicitEmptyContent(t *testing.T) {
	reg := newTestScreens()
	st := NewScreensTool(reg, nil, nopLogger())

	execTool(t, st, map[string]any{"action": "create", "id": 2, "type": "text", "content": "x"})
	execTool(t, st, map[string]any{"action": "update", "id": 2, "content": ""})

	s, ok := reg.Read(2)
	require.True(t, ok)
	assert.Equal(t, "", s.Content)
	assert.Equal(t, "Text Screen #2", s.Title)
}

func TestScreensTool_Errors(t *testing.T) {
	st := NewScreensTool(newTestScreens(), nil, nopLogger())

	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"missing id", map[string]any{"action": "create", "type": "text"}, "'id' is required"},
		{"unseen without type", map[string]any{"action": "update", "id": 5}, "type is required"},
		{"read missing", map[string]any{"action": "read", "id": 5}, "not found"},
		{"unknown action", map[string]any{"action": "explode"}, "unknown action"},
		{"bad type", map[string]any{"action": "create", "id": 1, "type": "video"}, "want: text, canvas"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execTool(t, st, tt.params)
			assert.True(t, res.IsError)
			assert.Contains(t, res.Content, tt.want)
		})
	}
}

func TestScreensTool_SchemaRejectsBadType(t *testing.T) {
	wrapped, err := WithSchemaValidation(NewScreensTool(newTestScreens(), nil, nopLogger()))
	require.NoError(t, err)

	res := execTool(t, wrapped, map[string]any{"action": "create", "id": 1, "type": "video"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "schema validation failed")
}

func TestScreensTool_ClearAndList(t *testing.T) {
	reg := newTestScreens()
	st := NewScreensTool(reg, nil, nopLogger())

	res := execTool(t, st, map[string]any{"action": "list"})
	assert.Equal(t, "No screens.", res.Content)

	execTool(t, st, map[string]any{"action": "create", "id": 3, "type": "canvas"})
	execTool(t, st, map[string]any{"action": "create", "id": 1, "type": "text"})

	res = execTool(t, st, map[string]any{"action": "list"})
	var screens []domain.Screen
	require.NoError(t, json.Unmarshal([]byte(res.Content), &screens))
	require.Len(t, screens, 2)
	assert.Equal(t, 1, screens[0].ID)
	assert.Equal(t, "Canvas Screen #3", screens[1].Title)

	res = execTool(t, st, map[string]any{"action": "clear", "id": 3})
	assert.Equal(t, "Screen #3 cleared", res.Content)
	res = execTool(t, st, map[string]any{"action": "clear", "id": 3})
	assert.Contains(t, res.Content, "did not exist")
	assert.Len(t, reg.List(), 1)
}
