package browser

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/snapcrop/pkg/content"
	"github.com/entrhq/snapcrop/pkg/logging"
	"github.com/entrhq/snapcrop/pkg/selection"
)

// Tab is one browser page. It serves the page runtime as its DOM surface
// and pixel ratio source, and the background context as its capturer.
type Tab struct {
	id       string
	page     playwright.Page
	opts     TabOptions
	logger   *logging.Logger
	openedAt time.Time

	// injectMu serializes Inject; mu guards runtime only and is never
	// held across a call into the page.
	injectMu sync.Mutex
	exposed  bool

	mu      sync.Mutex
	runtime *content.Runtime
}

func newTab(id string, page playwright.Page, opts TabOptions) *Tab {
	t := &Tab{
		id:       id,
		page:     page,
		opts:     opts,
		logger:   opts.Logger.With("tab/" + id),
		openedAt: time.Now(),
	}
	page.OnFrameNavigated(func(frame playwright.Frame) {
		if frame == page.MainFrame() {
			t.detach("navigation")
		}
	})
	return t
}

// ID returns the tab ID.
func (t *Tab) ID() string {
	return t.id
}

// URL returns the URL of the main frame.
func (t *Tab) URL() string {
	return t.page.URL()
}

// Injected reports whether a page runtime is attached.
func (t *Tab) Injected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runtime != nil
}

// Runtime returns the attached page runtime.
func (t *Tab) Runtime() (*content.Runtime, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runtime, t.runtime != nil
}

// Navigate navigates the tab. The page runtime does not survive it.
func (t *Tab) Navigate(url string, opts NavigateOptions) error {
	playwrightOpts := playwright.PageGotoOptions{}

	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		playwrightOpts.WaitUntil = &waitUntil
	}

	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	if _, err := t.page.Goto(url, playwrightOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Inject installs the DOM shim and starts the page runtime. Injecting an
// already injected tab is a no-op.
func (t *Tab) Inject(ctx context.Context) error {
	t.injectMu.Lock()
	defer t.injectMu.Unlock()

	if t.Injected() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !t.exposed {
		// Bindings survive navigation, so they are exposed once per page.
		if err := t.page.ExposeFunction(pointerBinding, t.onPointer); err != nil {
			return fmt.Errorf("failed to expose pointer binding: %w", err)
		}
		t.exposed = true
	}
	if _, err := t.page.Evaluate(shimScript); err != nil {
		return fmt.Errorf("failed to install page shim: %w", err)
	}

	rt, err := content.Inject(t.opts.Bus, content.Options{
		TabID:    t.id,
		Surface:  t,
		Ratio:    t,
		Settings: t.opts.Settings,
		Logger:   t.logger.With("content"),
	})
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.runtime = rt
	t.mu.Unlock()
	return nil
}

// detach tears the page runtime down. The page has to be injected again.
func (t *Tab) detach(reason string) {
	t.mu.Lock()
	rt := t.runtime
	t.runtime = nil
	t.mu.Unlock()

	if rt != nil {
		t.logger.Infof("page runtime discarded: %s", reason)
		rt.Teardown()
	}
}

// onPointer receives events from the shim. It runs on the Playwright
// dispatch goroutine, so it only posts to the page loop and never calls
// back into the page.
func (t *Tab) onPointer(args ...interface{}) interface{} {
	rt, ok := t.Runtime()
	if !ok {
		return nil
	}

	event, p, err := parsePointerEvent(args)
	if err != nil {
		t.logger.Warnf("bad pointer event: %v", err)
		return nil
	}

	switch event {
	case "down":
		err = rt.PointerDown(p)
	case "move":
		err = rt.PointerMove(p)
	case "up":
		err = rt.PointerUp(p)
	case "escape":
		err = rt.Escape()
	}
	if err != nil {
		t.logger.Debugf("pointer %s dropped: %v", event, err)
	}
	return nil
}

// CaptureVisible screenshots the viewport at device resolution.
func (t *Tab) CaptureVisible(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := t.page.Screenshot(playwright.PageScreenshotOptions{
		Type:  playwright.ScreenshotTypePng,
		Scale: playwright.ScreenshotScaleDevice,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// PixelRatio reads window.devicePixelRatio.
func (t *Tab) PixelRatio(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	result, err := t.page.Evaluate("() => window.devicePixelRatio")
	if err != nil {
		return 0, fmt.Errorf("failed to read device pixel ratio: %w", err)
	}
	ratio, err := toFloat(result)
	if err != nil {
		return 0, fmt.Errorf("device pixel ratio: %w", err)
	}
	return ratio, nil
}

// Mount implements selection.Surface.
func (t *Tab) Mount() error {
	return t.shimCall("mount", nil)
}

// Highlight implements selection.Surface.
func (t *Tab) Highlight(r selection.Rect) error {
	return t.shimCall("highlight", map[string]float64{
		"left":   r.Left,
		"top":    r.Top,
		"width":  r.Width,
		"height": r.Height,
	})
}

// Track implements selection.Surface.
func (t *Tab) Track(enabled bool) error {
	return t.shimCall("track", enabled)
}

// Unmount implements selection.Surface.
func (t *Tab) Unmount() error {
	return t.shimCall("unmount", nil)
}

func (t *Tab) shimCall(method string, arg interface{}) error {
	expr := fmt.Sprintf("arg => window.%s.%s(arg)", shimGlobal, method)
	if _, err := t.page.Evaluate(expr, arg); err != nil {
		return fmt.Errorf("page %s failed: %w", method, err)
	}
	return nil
}

// Drag performs a pointer drag with the real mouse, moving in steps.
func (t *Tab) Drag(ctx context.Context, from, to selection.Point, steps int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if steps < 1 {
		steps = 1
	}
	mouse := t.page.Mouse()
	if err := mouse.Move(from.X, from.Y); err != nil {
		return fmt.Errorf("mouse move failed: %w", err)
	}
	if err := mouse.Down(); err != nil {
		return fmt.Errorf("mouse down failed: %w", err)
	}
	// Move and up listeners are attached asynchronously after the down
	// event reaches the runtime.
	if err := t.waitForState(ctx, selection.StateDragging); err != nil {
		return err
	}
	if err := mouse.Move(to.X, to.Y, playwright.MouseMoveOptions{Steps: playwright.Int(steps)}); err != nil {
		return fmt.Errorf("mouse move failed: %w", err)
	}
	if err := mouse.Up(); err != nil {
		return fmt.Errorf("mouse up failed: %w", err)
	}
	return nil
}

func (t *Tab) waitForState(ctx context.Context, want selection.State) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		rt, ok := t.Runtime()
		if !ok {
			return content.ErrNotInjected
		}
		if rt.State() == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for overlay to be %s: %w", want, ctx.Err())
		case <-ticker.C:
		}
	}
}

func toFloat(v interface{}) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, fmt.Errorf("unexpected value %v (%T)", v, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}

// parsePointerEvent decodes the shim's (type, x, y) call.
func parsePointerEvent(args []interface{}) (string, selection.Point, error) {
	if len(args) != 3 {
		return "", selection.Point{}, fmt.Errorf("expected 3 arguments, got %d", len(args))
	}
	event, ok := args[0].(string)
	if !ok {
		return "", selection.Point{}, fmt.Errorf("event type must be a string, got %T", args[0])
	}
	switch event {
	case "down", "move", "up", "escape":
	default:
		return "", selection.Point{}, fmt.Errorf("unknown event %q", event)
	}
	x, err := toFloat(args[1])
	if err != nil {
		return "", selection.Point{}, fmt.Errorf("x: %w", err)
	}
	y, err := toFloat(args[2])
	if err != nil {
		return "", selection.Point{}, fmt.Errorf("y: %w", err)
	}
	return event, selection.Point{X: x, Y: y}, nil
}
