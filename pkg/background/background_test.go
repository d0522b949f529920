package background

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/snapcrop/pkg/capture"
	"github.com/entrhq/snapcrop/pkg/messaging"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n-rest-of-image")

type stubTab struct {
	data []byte
	err  error
}

func (s stubTab) CaptureVisible(context.Context) ([]byte, error) {
	return s.data, s.err
}

type stubTabs struct {
	tab capture.Capturer
}

func (s stubTabs) ActiveTab() (capture.Capturer, bool) {
	return s.tab, s.tab != nil
}

func attach(t *testing.T, bus *messaging.Bus, id messaging.ContextID) *messaging.Endpoint {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	loop := messaging.NewLoop(string(id), nil)
	loop.Start(ctx)
	e, err := bus.Attach(id, loop)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func start(t *testing.T, bus *messaging.Bus, tabs capture.TabLocator) *Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c, err := Start(ctx, bus, Options{Tabs: tabs})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCaptureTab(t *testing.T) {
	bus := messaging.NewBus(nil)
	start(t, bus, stubTabs{tab: stubTab{data: pngBytes}})
	page := attach(t, bus, messaging.PageContext("7"))

	reply, payload, err := page.Send(context.Background(), messaging.Background, messaging.CaptureTab{})
	require.NoError(t, err)
	assert.Equal(t, messaging.KindRawFrame, reply.Kind)

	frame, ok := payload.(*messaging.RawFrame)
	require.True(t, ok)
	assert.Equal(t, capture.FormatPNG, frame.Format)
	assert.Equal(t, pngBytes, frame.Data)
}

func TestCaptureTab_Denied(t *testing.T) {
	tests := []struct {
		name string
		tabs capture.TabLocator
	}{
		{"no tab", stubTabs{}},
		{"restricted page", stubTabs{tab: stubTab{err: errors.New("cannot access a chrome:// URL")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := messaging.NewBus(nil)
			start(t, bus, tt.tabs)
			page := attach(t, bus, messaging.PageContext("7"))

			_, _, err := page.Send(context.Background(), messaging.Background, messaging.CaptureTab{})
			require.Error(t, err)
			assert.True(t, messaging.HasCode(err, messaging.CodeCaptureDenied))
		})
	}
}

func TestCaptureTab_OnlyFromPages(t *testing.T) {
	bus := messaging.NewBus(nil)
	start(t, bus, stubTabs{tab: stubTab{data: pngBytes}})
	control := attach(t, bus, messaging.ControlSurface)

	_, _, err := control.Send(context.Background(), messaging.Background, messaging.CaptureTab{})
	assert.True(t, messaging.HasCode(err, messaging.CodeRejected))
}

func selectionComplete() messaging.SelectionComplete {
	return messaging.SelectionComplete{
		GestureID: "gesture-1",
		Image: messaging.Image{
			Width:      1,
			Height:     1,
			Format:     capture.FormatPNG,
			Data:       pngBytes,
			PixelRatio: 1,
			Rect:       messaging.Rect{Left: 1, Top: 2, Width: 1, Height: 1},
		},
	}
}

func TestSelectionComplete_Relay(t *testing.T) {
	bus := messaging.NewBus(nil)
	start(t, bus, stubTabs{})
	page := attach(t, bus, messaging.PageContext("7"))
	control := attach(t, bus, messaging.ControlSurface)

	got := make(chan messaging.Message, 1)
	control.Handle(messaging.KindSelectionComplete, func(_ context.Context, msg messaging.Message, p messaging.Payload) (messaging.Payload, error) {
		got <- msg
		assert.Equal(t, "gesture-1", p.(*messaging.SelectionComplete).GestureID)
		return nil, nil
	})

	reply, _, err := page.Send(context.Background(), messaging.Background, selectionComplete())
	require.NoError(t, err)
	assert.Equal(t, messaging.KindAck, reply.Kind)

	relayed := <-got
	assert.Equal(t, messaging.Background, relayed.From)
}

func TestSelectionComplete_ControlSurfaceClosed(t *testing.T) {
	bus := messaging.NewBus(nil)
	start(t, bus, stubTabs{})
	page := attach(t, bus, messaging.PageContext("7"))

	_, _, err := page.Send(context.Background(), messaging.Background, selectionComplete())
	require.Error(t, err)
	assert.ErrorIs(t, err, messaging.ErrNoReceiver)
}

func TestSelectionComplete_ControlSurfaceError(t *testing.T) {
	bus := messaging.NewBus(nil)
	start(t, bus, stubTabs{})
	page := attach(t, bus, messaging.PageContext("7"))
	control := attach(t, bus, messaging.ControlSurface)
	control.Handle(messaging.KindSelectionComplete, func(context.Context, messaging.Message, messaging.Payload) (messaging.Payload, error) {
		return nil, messaging.Reject(messaging.CodeRejected, "display busy")
	})

	_, _, err := page.Send(context.Background(), messaging.Background, selectionComplete())
	assert.True(t, messaging.HasCode(err, messaging.CodeRejected))
}
