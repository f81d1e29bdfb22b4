package domain

import "fmt"

// ScreenType selects how a virtual screen renders its content.
type ScreenType string

const (
	ScreenText   ScreenType = "text"
	ScreenCanvas ScreenType = "canvas"
)

// Valid reports whether t is a known screen type.
func (t ScreenType) Valid() bool {
	return t == ScreenText || t == ScreenCanvas
}

// Screen is one entry in the virtual screen bank. For text screens Content is
// literal display text; for canvas screens it is a drawing payload.
type Screen struct {
	ID      int        `json:"id"`
	Type    ScreenType `json:"type"`
	Title   string     `json:"title"`
	Content string     `json:"content"`
}

// ScreenAction is the mutation requested by a ScreenCommand.
type ScreenAction string

const (
	ScreenCreate ScreenAction = "create"
	ScreenUpdate ScreenAction = "update"
	ScreenClear  ScreenAction = "clear"
)

// ScreenCommand is a single create/update/clear request. Nil fields fall back
// to the stored value, then to defaults.
type ScreenCommand struct {
	Action  ScreenAction
	ID      int
	Type    *ScreenType
	Content *string
	Title   *string
}

// DefaultScreenTitle is the label given to a screen that never had a title.
func DefaultScreenTitle(t ScreenType, id int) string {
	if t == ScreenCanvas {
		return fmt.Sprintf("Canvas Screen #%d", id)
	}
	return fmt.Sprintf("Text Screen #%d", id)
}
