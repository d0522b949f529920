package controller_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/snapcrop/pkg/background"
	"github.com/entrhq/snapcrop/pkg/capture"
	"github.com/entrhq/snapcrop/pkg/config"
	"github.com/entrhq/snapcrop/pkg/content"
	"github.com/entrhq/snapcrop/pkg/controller"
	"github.com/entrhq/snapcrop/pkg/messaging"
	"github.com/entrhq/snapcrop/pkg/selection"
	"github.com/entrhq/snapcrop/pkg/selection/selectiontest"
)

type fakeTab struct {
	id        string
	url       string
	bus       *messaging.Bus
	surface   *selectiontest.Surface
	injectErr error

	mu      sync.Mutex
	runtime *content.Runtime
	injects int
}

func (f *fakeTab) ID() string  { return f.id }
func (f *fakeTab) URL() string { return f.url }

func (f *fakeTab) Inject(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injects++
	if f.injectErr != nil {
		return f.injectErr
	}
	if f.runtime != nil {
		return nil
	}
	rt, err := content.Inject(f.bus, content.Options{
		TabID:   f.id,
		Surface: f.surface,
		Ratio:   ratio(1),
	})
	if err != nil {
		return err
	}
	f.runtime = rt
	return nil
}

func (f *fakeTab) teardown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runtime != nil {
		f.runtime.Teardown()
	}
}

type ratio float64

func (r ratio) PixelRatio(context.Context) (float64, error) { return float64(r), nil }

type frameTab struct{ data []byte }

func (f frameTab) CaptureVisible(context.Context) ([]byte, error) { return f.data, nil }

type activeTab struct{ tab capture.Capturer }

func (a activeTab) ActiveTab() (capture.Capturer, bool) { return a.tab, true }

type harness struct {
	bus           *messaging.Bus
	ctrl          *controller.Controller
	tab           *fakeTab
	notifications chan controller.Notification
}

func newHarness(t *testing.T, url string) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := messaging.NewBus(nil)

	frame, err := capture.EncodePNG(image.NewRGBA(image.Rect(0, 0, 800, 600)))
	require.NoError(t, err)
	bg, err := background.Start(ctx, bus, background.Options{Tabs: activeTab{tab: frameTab{data: frame}}})
	require.NoError(t, err)
	t.Cleanup(bg.Close)

	guard, err := controller.NewGuard(config.DefaultRestrictedPatterns)
	require.NoError(t, err)

	h := &harness{
		bus:           bus,
		tab:           &fakeTab{id: "42", url: url, bus: bus, surface: selectiontest.New()},
		notifications: make(chan controller.Notification, 4),
	}
	t.Cleanup(h.tab.teardown)

	h.ctrl, err = controller.Open(ctx, bus, controller.Options{
		Guard:    guard,
		Notifier: controller.NotifierFunc(func(n controller.Notification) { h.notifications <- n }),
	})
	require.NoError(t, err)
	t.Cleanup(h.ctrl.Close)
	return h
}

func TestEnsureInjected_Idempotent(t *testing.T) {
	h := newHarness(t, "https://example.com/")

	require.NoError(t, h.ctrl.EnsureInjected(context.Background(), h.tab))
	require.NoError(t, h.ctrl.EnsureInjected(context.Background(), h.tab))

	assert.Equal(t, 1, h.tab.injects)
	assert.True(t, h.bus.Attached(messaging.PageContext("42")))
}

func TestEnsureInjected_RestrictedPage(t *testing.T) {
	for _, url := range []string{"chrome://extensions", "about:blank", "https://chrome.google.com/webstore/detail/x"} {
		t.Run(url, func(t *testing.T) {
			h := newHarness(t, url)

			err := h.ctrl.EnsureInjected(context.Background(), h.tab)
			assert.ErrorIs(t, err, controller.ErrInjectionDenied)
			assert.Zero(t, h.tab.injects)

			n := <-h.notifications
			assert.Equal(t, controller.InjectionErrorTitle, n.Title)
			assert.Equal(t, controller.InjectionErrorMessage, n.Message)
		})
	}
}

func TestEnsureInjected_InjectFailure(t *testing.T) {
	h := newHarness(t, "https://example.com/")
	h.tab.injectErr = errors.New("frame detached")

	err := h.ctrl.EnsureInjected(context.Background(), h.tab)
	assert.ErrorIs(t, err, controller.ErrInjectionDenied)
	assert.ErrorContains(t, err, "frame detached")
	assert.Len(t, h.notifications, 1)
}

func TestStartCapture_EndToEnd(t *testing.T) {
	h := newHarness(t, "https://example.com/")
	updates, unsubscribe := h.ctrl.Display().Subscribe()
	defer unsubscribe()

	require.NoError(t, h.ctrl.StartCapture(context.Background(), h.tab))

	rt := h.tab.runtime
	require.NoError(t, rt.PointerDown(selection.Point{X: 100, Y: 100}))
	require.NoError(t, rt.PointerUp(selection.Point{X: 300, Y: 250}))

	select {
	case shot := <-updates:
		require.NotNil(t, shot)
		assert.Equal(t, 200, shot.Image.Width)
		assert.Equal(t, 150, shot.Image.Height)
		assert.NotEmpty(t, shot.GestureID)
	case <-time.After(2 * time.Second):
		t.Fatal("capture was not displayed")
	}

	current, ok := h.ctrl.Display().Current()
	require.True(t, ok)
	assert.Equal(t, 200, current.Image.Width)
}

func TestStartCapture_SecondCaptureReplacesFirst(t *testing.T) {
	h := newHarness(t, "https://example.com/")
	updates, unsubscribe := h.ctrl.Display().Subscribe()
	defer unsubscribe()

	for _, end := range []selection.Point{{X: 50, Y: 50}, {X: 20, Y: 30}} {
		require.NoError(t, h.ctrl.StartCapture(context.Background(), h.tab))
		require.NoError(t, h.tab.runtime.PointerDown(selection.Point{X: 10, Y: 10}))
		require.NoError(t, h.tab.runtime.PointerUp(end))
		select {
		case <-updates:
		case <-time.After(2 * time.Second):
			t.Fatal("capture was not displayed")
		}
		require.Eventually(t, func() bool { return !h.tab.runtime.Busy() }, time.Second, 5*time.Millisecond)
	}

	current, ok := h.ctrl.Display().Current()
	require.True(t, ok)
	assert.Equal(t, 10, current.Image.Width)
	assert.Equal(t, 20, current.Image.Height)
}

func TestStartCapture_InFlight(t *testing.T) {
	h := newHarness(t, "https://example.com/")

	require.NoError(t, h.ctrl.StartCapture(context.Background(), h.tab))
	err := h.ctrl.StartCapture(context.Background(), h.tab)
	assert.ErrorIs(t, err, content.ErrGestureInFlight)
	assert.Equal(t, 1, h.tab.surface.Mounts())
}

func TestStartCapture_RestrictedPage(t *testing.T) {
	h := newHarness(t, "chrome://settings")

	err := h.ctrl.StartCapture(context.Background(), h.tab)
	assert.ErrorIs(t, err, controller.ErrInjectionDenied)
	assert.Len(t, h.notifications, 1)
}

func TestCancelCapture(t *testing.T) {
	h := newHarness(t, "https://example.com/")

	assert.ErrorIs(t, h.ctrl.CancelCapture(context.Background(), h.tab), content.ErrNotInjected)

	require.NoError(t, h.ctrl.StartCapture(context.Background(), h.tab))
	require.NoError(t, h.ctrl.CancelCapture(context.Background(), h.tab))
	assert.False(t, h.tab.runtime.Busy())

	overlays, _ := h.tab.surface.Nodes()
	assert.Zero(t, overlays)
	require.NoError(t, h.ctrl.StartCapture(context.Background(), h.tab))
}

func TestClose_StopsDelivery(t *testing.T) {
	h := newHarness(t, "https://example.com/")
	require.NoError(t, h.ctrl.StartCapture(context.Background(), h.tab))

	h.ctrl.Close()
	assert.False(t, h.bus.Attached(messaging.ControlSurface))

	rt := h.tab.runtime
	require.NoError(t, rt.PointerDown(selection.Point{X: 1, Y: 1}))
	require.NoError(t, rt.PointerUp(selection.Point{X: 9, Y: 9}))
	require.Eventually(t, func() bool { return !rt.Busy() }, 2*time.Second, 5*time.Millisecond)

	_, ok := h.ctrl.Display().Current()
	assert.False(t, ok)
}
