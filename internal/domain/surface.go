package domain

import "context"

// SurfaceKind names one of the front-end attach points.
type SurfaceKind string

const (
	SurfaceCanvas  SurfaceKind = "canvas"
	SurfaceScreens SurfaceKind = "screens"
	SurfaceWindows SurfaceKind = "windows"
)

// MessageKind is the "command" discriminator carried by every surface message.
type MessageKind string

// Outbound (core → surface).
const (
	MsgExecuteDrawing     MessageKind = "executeDrawing"
	MsgRequestCapture     MessageKind = "requestCapture"
	MsgUpdateTextScreen   MessageKind = "updateTextScreen"
	MsgUpdateCanvasScreen MessageKind = "updateCanvasScreen"
	MsgRemoveScreen       MessageKind = "removeScreen"
	MsgSyncScreens        MessageKind = "syncScreens"
	MsgUpdateLayout       MessageKind = "updateLayout"
)

// Inbound (surface → core).
const (
	MsgReady         MessageKind = "ready"
	MsgCaptureResult MessageKind = "captureResult"
)

// OutboundMessage is anything the core sends to a surface.
type OutboundMessage interface {
	Kind() MessageKind
}

// ExecuteDrawing asks the canvas surface to run a drawing payload.
type ExecuteDrawing struct {
	Command MessageKind `json:"command"`
	Code    string      `json:"code"`
}

func (ExecuteDrawing) Kind() MessageKind { return MsgExecuteDrawing }

// RequestCapture asks the canvas surface to render and return a snapshot.
type RequestCapture struct {
	Command MessageKind `json:"command"`
}

func (RequestCapture) Kind() MessageKind { return MsgRequestCapture }

// UpdateTextScreen upserts one text screen.
type UpdateTextScreen struct {
	Command  MessageKind `json:"command"`
	ScreenID int         `json:"screenId"`
	Content  string      `json:"content"`
	Title    string      `json:"title"`
}

func (UpdateTextScreen) Kind() MessageKind { return MsgUpdateTextScreen }

// UpdateCanvasScreen upserts one canvas screen.
type UpdateCanvasScreen struct {
	Command  MessageKind `json:"command"`
	ScreenID int         `json:"screenId"`
	Code     string      `json:"code"`
	Title    string      `json:"title"`
}

func (UpdateCanvasScreen) Kind() MessageKind { return MsgUpdateCanvasScreen }

// RemoveScreen deletes one screen.
type RemoveScreen struct {
	Command  MessageKind `json:"command"`
	ScreenID int         `json:"screenId"`
}

func (RemoveScreen) Kind() MessageKind { return MsgRemoveScreen }

// SyncScreens carries the full sorted screen list.
type SyncScreens struct {
	Command MessageKind `json:"command"`
	Screens []Screen    `json:"screens"`
}

func (SyncScreens) Kind() MessageKind { return MsgSyncScreens }

// UpdateLayout carries the full window layout.
type UpdateLayout struct {
	Command MessageKind  `json:"command"`
	Layout  WindowLayout `json:"layout"`
}

func (UpdateLayout) Kind() MessageKind { return MsgUpdateLayout }

// NewExecuteDrawing builds an executeDrawing message.
func NewExecuteDrawing(code string) ExecuteDrawing {
	return ExecuteDrawing{Command: MsgExecuteDrawing, Code: code}
}

// NewRequestCapture builds a requestCapture message.
func NewRequestCapture() RequestCapture {
	return RequestCapture{Command: MsgRequestCapture}
}

// NewUpdateTextScreen builds an updateTextScreen message for s.
func NewUpdateTextScreen(s Screen) UpdateTextScreen {
	return UpdateTextScreen{Command: MsgUpdateTextScreen, ScreenID: s.ID, Content: s.Content, Title: s.Title}
}

// NewUpdateCanvasScreen builds an updateCanvasScreen message for s.
func NewUpdateCanvasScreen(s Screen) UpdateCanvasScreen {
	return UpdateCanvasScreen{Command: MsgUpdateCanvasScreen, ScreenID: s.ID, Code: s.Content, Title: s.Title}
}

// ScreenMessage returns the single-screen delta matching the screen's type.
func ScreenMessage(s Screen) OutboundMessage {
	if s.Type == ScreenCanvas {
		return NewUpdateCanvasScreen(s)
	}
	return NewUpdateTextScreen(s)
}

// NewRemoveScreen builds a removeScreen message.
func NewRemoveScreen(id int) RemoveScreen {
	return RemoveScreen{Command: MsgRemoveScreen, ScreenID: id}
}

// NewSyncScreens builds a syncScreens message. A nil list is sent as [].
func NewSyncScreens(screens []Screen) SyncScreens {
	if screens == nil {
		screens = []Screen{}
	}
	return SyncScreens{Command: MsgSyncScreens, Screens: screens}
}

// NewUpdateLayout builds an updateLayout message carrying a copy of l.
func NewUpdateLayout(l WindowLayout) UpdateLayout {
	return UpdateLayout{Command: MsgUpdateLayout, Layout: l.Clone()}
}

// NormalizeInboundKind maps legacy command names onto their current kind.
func NormalizeInboundKind(command string) MessageKind {
	if command == "webview-ready" {
		return MsgReady
	}
	return MessageKind(command)
}

// InboundMessage is a message received from a surface. Data is only set for
// captureResult and is nil when the surface reported a failed capture.
type InboundMessage struct {
	Command MessageKind `json:"command"`
	Data    *string     `json:"data,omitempty"`
}

// InboundHandler consumes one routed inbound message.
type InboundHandler func(ctx context.Context, msg InboundMessage)

// SurfaceTransport is the one-way outbound channel to a single surface plus
// its inbound routing table.
type SurfaceTransport interface {
	// Send queues msg for the attached surface. It never blocks on the
	// network and returns ErrSurfaceUnavailable when nothing is attached.
	Send(msg OutboundMessage) error
	// Attached reports whether a surface is currently connected.
	Attached() bool
	// Handle routes inbound messages of the given kind to handler.
	Handle(kind MessageKind, handler InboundHandler)
}
