package domain

// WindowType selects how a window's Content is interpreted by the surface.
type WindowType string

const (
	WindowCanvas WindowType = "canvas"
	WindowMarkup WindowType = "markup"
	WindowHTML   WindowType = "html"
	WindowCustom WindowType = "custom"
)

// Valid reports whether t is a known window type.
func (t WindowType) Valid() bool {
	switch t {
	case WindowCanvas, WindowMarkup, WindowHTML, WindowCustom:
		return true
	}
	return false
}

// GridPosition places a window in the shared grid. Zero spans mean 1.
type GridPosition struct {
	Row     int `json:"row"`
	Col     int `json:"col"`
	RowSpan int `json:"rowSpan,omitempty"`
	ColSpan int `json:"colSpan,omitempty"`
}

// Normalized returns p with unset spans set to 1.
func (p GridPosition) Normalized() GridPosition {
	if p.RowSpan <= 0 {
		p.RowSpan = 1
	}
	if p.ColSpan <= 0 {
		p.ColSpan = 1
	}
	return p
}

// Window is a positioned surface in the window grid. ControllerCode is opaque
// behaviour forwarded verbatim to the surface.
type Window struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Type           WindowType   `json:"type"`
	Content        *string      `json:"content,omitempty"`
	ControllerCode *string      `json:"controllerCode,omitempty"`
	GridPosition   GridPosition `json:"gridPosition"`
}

// Clone returns a deep copy of w.
func (w Window) Clone() Window {
	w.Content = cloneString(w.Content)
	w.ControllerCode = cloneString(w.ControllerCode)
	return w
}

// WindowLayout is the full grid state mirrored to the window surface.
// Windows are kept in insertion order.
type WindowLayout struct {
	GridColumns int      `json:"gridColumns"`
	GridRows    int      `json:"gridRows"`
	Windows     []Window `json:"windows"`
}

// Clone returns a deep copy of l. Windows is never nil.
func (l WindowLayout) Clone() WindowLayout {
	out := WindowLayout{
		GridColumns: l.GridColumns,
		GridRows:    l.GridRows,
		Windows:     make([]Window, len(l.Windows)),
	}
	for i, w := range l.Windows {
		out.Windows[i] = w.Clone()
	}
	return out
}

// Find returns the window with the given id.
func (l WindowLayout) Find(id string) (Window, bool) {
	for _, w := range l.Windows {
		if w.ID == id {
			return w.Clone(), true
		}
	}
	return Window{}, false
}

// WindowPatch is a partial window update. A nil field leaves the current
// value unchanged; a non-nil pointer to "" explicitly sets an empty value.
type WindowPatch struct {
	Title          *string
	Type           *WindowType
	Content        *string
	ControllerCode *string
	GridPosition   *GridPosition
}

// Apply merges p onto w and returns the result. w is not modified.
func (p WindowPatch) Apply(w Window) Window {
	out := w.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Content != nil {
		out.Content = cloneString(p.Content)
	}
	if p.ControllerCode != nil {
		out.ControllerCode = cloneString(p.ControllerCode)
	}
	if p.GridPosition != nil {
		out.GridPosition = *p.GridPosition
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
