package surface

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showoff/internal/domain"
)

func newTestHost() (*Host, Transports) {
	t := Transports{
		Canvas:  newFakeTransport(true),
		Screens: newFakeTransport(false),
		Windows: newFakeTransport(true),
	}
	return NewHost(t, HostConfig{}, nil, discardLogger()), t
}

func TestHostStatus(t *testing.T) {
	h, _ := newTestHost()
	assert.Equal(t, []Status{
		{Kind: domain.SurfaceCanvas, Attached: true},
		{Kind: domain.SurfaceScreens, Attached: false},
		{Kind: domain.SurfaceWindows, Attached: true},
	}, h.Status())
}

func TestHostRoutesReadyPerSurface(t *testing.T) {
	h, tr := newTestHost()
	ctx := context.Background()
	h.Canvas.SendDrawingCode(ctx, "a()")
	require.NoError(t, h.Windows.UpsertWindow(ctx, win("A", 0, 0)))

	canvas := tr.Canvas.(*fakeTransport)
	windows := tr.Windows.(*fakeTransport)
	canvas.reset()
	windows.reset()

	windows.deliver(domain.InboundMessage{Command: domain.MsgReady})
	assert.Len(t, windows.messages(), 1)
	assert.Empty(t, canvas.messages(), "ready on one surface must not resync another")
}

func TestHostReset(t *testing.T) {
	h, _ := newTestHost()
	ctx := context.Background()
	h.Canvas.SendDrawingCode(ctx, "a()")
	_, err := h.Screens.Apply(ctx, domain.ScreenCommand{Action: domain.ScreenCreate, ID: 1, Type: screenType(domain.ScreenText)})
	require.NoError(t, err)
	require.NoError(t, h.Windows.UpsertWindow(ctx, win("A", 0, 0)))

	h.Reset()

	_, ok := h.Canvas.LastExecutedCode()
	assert.False(t, ok)
	assert.Empty(t, h.Screens.List())
	assert.Equal(t, DefaultLayout(), h.Windows.Layout())
}
