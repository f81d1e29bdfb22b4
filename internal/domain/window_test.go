package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestWindowTypeValid(t *testing.T) {
	for _, wt := range []WindowType{WindowCanvas, WindowMarkup, WindowHTML, WindowCustom} {
		assert.True(t, wt.Valid(), wt)
	}
	assert.False(t, WindowType("iframe").Valid())
}

func TestGridPositionNormalized(t *testing.T) {
	p := GridPosition{Row: 2, Col: 3}.Normalized()
	assert.Equal(t, GridPosition{Row: 2, Col: 3, RowSpan: 1, ColSpan: 1}, p)

	p = GridPosition{Row: 0, Col: 0, RowSpan: 2, ColSpan: -1}.Normalized()
	assert.Equal(t, 2, p.RowSpan)
	assert.Equal(t, 1, p.ColSpan)
}

func TestWindowCloneIsDeep(t *testing.T) {
	w := Window{ID: "a", Title: "A", Type: WindowMarkup, Content: strPtr("hello")}
	c := w.Clone()
	*c.Content = "changed"
	assert.Equal(t, "hello", *w.Content)
	assert.Nil(t, c.ControllerCode)
}

func TestWindowLayoutCloneNeverNil(t *testing.T) {
	l := WindowLayout{GridColumns: 1, GridRows: 1}
	c := l.Clone()
	require.NotNil(t, c.Windows)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"gridColumns":1,"gridRows":1,"windows":[]}`, string(data))
}

func TestWindowLayoutCloneIsolation(t *testing.T) {
	l := WindowLayout{GridColumns: 2, GridRows: 1, Windows: []Window{
		{ID: "a", Title: "A", Type: WindowHTML, Content: strPtr("<p>x</p>")},
	}}
	c := l.Clone()
	c.Windows[0].Title = "mutated"
	*c.Windows[0].Content = "mutated"
	c.Windows = append(c.Windows, Window{ID: "b"})

	assert.Len(t, l.Windows, 1)
	assert.Equal(t, "A", l.Windows[0].Title)
	assert.Equal(t, "<p>x</p>", *l.Windows[0].Content)
}

func TestWindowLayoutFind(t *testing.T) {
	l := WindowLayout{Windows: []Window{{ID: "a"}, {ID: "b", Title: "B"}}}
	w, ok := l.Find("b")
	require.True(t, ok)
	assert.Equal(t, "B", w.Title)

	_, ok = l.Find("zzz")
	assert.False(t, ok)
}

func TestWindowPatchApply(t *testing.T) {
	base := Window{
		ID:             "w1",
		Title:          "Old",
		Type:           WindowMarkup,
		Content:        strPtr("body"),
		ControllerCode: strPtr("ctl()"),
		GridPosition:   GridPosition{Row: 0, Col: 0},
	}

	t.Run("absent fields keep values", func(t *testing.T) {
		got := WindowPatch{Title: strPtr("New")}.Apply(base)
		assert.Equal(t, "New", got.Title)
		assert.Equal(t, "body", *got.Content)
		assert.Equal(t, "ctl()", *got.ControllerCode)
		assert.Equal(t, WindowMarkup, got.Type)
	})

	t.Run("explicit empty overwrites", func(t *testing.T) {
		got := WindowPatch{Content: strPtr(""), ControllerCode: strPtr("")}.Apply(base)
		require.NotNil(t, got.Content)
		assert.Equal(t, "", *got.Content)
		require.NotNil(t, got.ControllerCode)
		assert.Equal(t, "", *got.ControllerCode)
	})

	t.Run("position and type replaced", func(t *testing.T) {
		typ := WindowCanvas
		pos := GridPosition{Row: 1, Col: 2, ColSpan: 2}
		got := WindowPatch{Type: &typ, GridPosition: &pos}.Apply(base)
		assert.Equal(t, WindowCanvas, got.Type)
		assert.Equal(t, pos, got.GridPosition)
	})

	t.Run("base untouched", func(t *testing.T) {
		_ = WindowPatch{Content: strPtr("x")}.Apply(base)
		assert.Equal(t, "body", *base.Content)
	})
}
