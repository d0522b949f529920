// Package content is the runtime injected into a page. It owns the
// selection overlay and the capture requester of one tab, and talks to the
// rest of the system only through messages.
package content

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/snapcrop/pkg/capture"
	"github.com/entrhq/snapcrop/pkg/config"
	"github.com/entrhq/snapcrop/pkg/logging"
	"github.com/entrhq/snapcrop/pkg/messaging"
	"github.com/entrhq/snapcrop/pkg/selection"
)

var (
	// ErrGestureInFlight is reported for an invoke-selection that arrives
	// while an earlier gesture has not finished.
	ErrGestureInFlight = errors.New("selection already in progress")
	// ErrNotInjected is returned once the runtime has been torn down.
	ErrNotInjected = errors.New("content runtime not injected")
)

// Settings tune the capture pipeline of a page.
type Settings struct {
	CancelEmptySelection bool
	CaptureTimeout       time.Duration
	DeliveryTimeout      time.Duration
}

// SettingsFromConfig reads the capture section.
func SettingsFromConfig(section *config.CaptureSection) Settings {
	captureTimeout, deliveryTimeout := section.Timeouts()
	return Settings{
		CancelEmptySelection: section.CancelsEmptySelection(),
		CaptureTimeout:       captureTimeout,
		DeliveryTimeout:      deliveryTimeout,
	}
}

// Options configure a Runtime.
type Options struct {
	TabID    string
	Surface  selection.Surface
	Ratio    capture.RatioSource
	Settings Settings
	Logger   *logging.Logger
}

// session is the page-local state. It lives exactly as long as the page.
type session struct {
	mu      sync.Mutex
	gesture string
}

func (s *session) begin() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gesture != "" {
		return "", false
	}
	s.gesture = uuid.New().String()
	return s.gesture, true
}

func (s *session) current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gesture
}

// end clears the token if it still belongs to gesture.
func (s *session) end(gesture string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gesture == gesture {
		s.gesture = ""
	}
}

// Runtime is the page context of one tab.
type Runtime struct {
	tabID     string
	loop      *messaging.Loop
	endpoint  *messaging.Endpoint
	overlay   *selection.Overlay
	requester *capture.Requester
	settings  Settings
	logger    *logging.Logger

	session session

	ctx      context.Context
	cancel   context.CancelFunc
	pipeline sync.WaitGroup
	once     sync.Once
}

// Inject starts a runtime for a tab and attaches it to the bus.
func Inject(bus *messaging.Bus, opts Options) (*Runtime, error) {
	if opts.TabID == "" {
		return nil, fmt.Errorf("tab id is required")
	}
	if opts.Surface == nil || opts.Ratio == nil {
		return nil, fmt.Errorf("surface and ratio source are required")
	}
	settings := opts.Settings
	if settings.CaptureTimeout <= 0 || settings.DeliveryTimeout <= 0 {
		defaults := SettingsFromConfig(config.NewCaptureSection())
		settings.CaptureTimeout = defaults.CaptureTimeout
		settings.DeliveryTimeout = defaults.DeliveryTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard("content")
	}

	id := messaging.PageContext(opts.TabID)
	ctx, cancel := context.WithCancel(context.Background())
	loop := messaging.NewLoop(string(id), logger)
	endpoint, err := bus.Attach(id, loop)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach page runtime: %w", err)
	}

	// A runtime torn down without a page reload leaves its overlay behind.
	if err := clearSurface(opts.Surface); err != nil {
		endpoint.Close()
		cancel()
		return nil, err
	}

	r := &Runtime{
		tabID:    opts.TabID,
		loop:     loop,
		endpoint: endpoint,
		settings: settings,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	r.overlay = selection.NewOverlay(opts.Surface, r.onSelection, logger.With("overlay"))
	r.requester = capture.NewRequester(frameSource{endpoint: endpoint}, opts.Ratio, logger.With("requester"))

	endpoint.Handle(messaging.KindInvokeSelection, r.handleInvoke)
	endpoint.Handle(messaging.KindCancelSelection, r.handleCancel)

	loop.Start(ctx)
	logger.Infof("content runtime injected into tab %s", opts.TabID)
	return r, nil
}

// TabID returns the tab the runtime lives in.
func (r *Runtime) TabID() string {
	return r.tabID
}

// Busy reports whether a gesture is armed, dragging or being captured.
func (r *Runtime) Busy() bool {
	return r.session.current() != ""
}

// State returns the overlay state, read on the page loop.
func (r *Runtime) State() selection.State {
	ch := make(chan selection.State, 1)
	if !r.loop.Post(func() { ch <- r.overlay.State() }) {
		return selection.StateIdle
	}
	select {
	case s := <-ch:
		return s
	case <-r.loop.Done():
		return selection.StateIdle
	}
}

// Done is closed once the runtime has been torn down.
func (r *Runtime) Done() <-chan struct{} {
	return r.loop.Done()
}

func (r *Runtime) handleInvoke(_ context.Context, _ messaging.Message, _ messaging.Payload) (messaging.Payload, error) {
	gesture, ok := r.session.begin()
	if !ok {
		r.logger.Warnf("invoke-selection rejected: %v", ErrGestureInFlight)
		return messaging.InvokeResult{Success: false, Error: ErrGestureInFlight.Error()}, nil
	}

	armed, err := r.overlay.Arm()
	if err != nil {
		r.session.end(gesture)
		r.logger.Errorf("failed to arm overlay: %v", err)
		return messaging.InvokeResult{Success: false, Error: err.Error()}, nil
	}
	if !armed {
		r.session.end(gesture)
		return messaging.InvokeResult{Success: false, Error: ErrGestureInFlight.Error()}, nil
	}

	r.logger.Debugf("gesture %s armed", gesture)
	return messaging.InvokeResult{Success: true}, nil
}

func (r *Runtime) handleCancel(_ context.Context, _ messaging.Message, _ messaging.Payload) (messaging.Payload, error) {
	r.cancelGesture("cancel-selection")
	return nil, nil
}

// cancelGesture runs on the loop.
func (r *Runtime) cancelGesture(reason string) {
	if r.overlay.State() == selection.StateIdle {
		return
	}
	gesture := r.session.current()
	if err := r.overlay.Cancel(); err != nil {
		r.logger.Warnf("overlay cleanup on %s: %v", reason, err)
	}
	r.session.end(gesture)
	r.logger.Infof("gesture %s canceled by %s", gesture, reason)
}

// PointerDown forwards a pointer-down event from the page.
func (r *Runtime) PointerDown(p selection.Point) error {
	return r.post(func() {
		if err := r.overlay.PointerDown(p); err != nil {
			r.abandon(err)
		}
	})
}

// PointerMove forwards a pointer-move event from the page.
func (r *Runtime) PointerMove(p selection.Point) error {
	return r.post(func() {
		if err := r.overlay.PointerMove(p); err != nil {
			r.logger.Warnf("failed to update highlight: %v", err)
		}
	})
}

// PointerUp forwards a pointer-up event from the page.
func (r *Runtime) PointerUp(p selection.Point) error {
	return r.post(func() {
		if err := r.overlay.PointerUp(p); err != nil {
			r.abandon(err)
		}
	})
}

// Escape cancels an armed or dragging overlay.
func (r *Runtime) Escape() error {
	return r.post(func() { r.cancelGesture("escape") })
}

func (r *Runtime) post(task func()) error {
	if !r.loop.Post(task) {
		return ErrNotInjected
	}
	return nil
}

// abandon resets the page after a failed gesture. Runs on the loop.
func (r *Runtime) abandon(err error) {
	r.logger.Errorf("gesture abandoned: %v", err)
	if cerr := r.overlay.Cancel(); cerr != nil {
		r.logger.Warnf("overlay cleanup: %v", cerr)
	}
	r.session.end(r.session.current())
}

// onSelection is the overlay completion callback. The page is clean by the
// time it runs; the capture itself runs off the loop.
func (r *Runtime) onSelection(rect selection.Rect) {
	gesture := r.session.current()
	if gesture == "" {
		r.logger.Warnf("selection %s completed without an armed gesture", rect)
		return
	}
	if rect.Empty() && r.settings.CancelEmptySelection {
		r.logger.Infof("empty selection %s dropped", rect)
		r.session.end(gesture)
		return
	}

	r.pipeline.Add(1)
	go r.captureAndDeliver(gesture, rect)
}

func (r *Runtime) captureAndDeliver(gesture string, rect selection.Rect) {
	defer r.pipeline.Done()
	defer r.session.end(gesture)

	captureCtx, cancel := context.WithTimeout(r.ctx, r.settings.CaptureTimeout)
	img, err := r.requester.Capture(captureCtx, rect)
	cancel()
	if err != nil {
		r.logger.Errorf("gesture %s: capture failed: %v", gesture, err)
		return
	}

	deliverCtx, cancel := context.WithTimeout(r.ctx, r.settings.DeliveryTimeout)
	defer cancel()
	_, _, err = r.endpoint.Send(deliverCtx, messaging.Background, messaging.SelectionComplete{
		GestureID: gesture,
		Image:     img.Payload(),
	})
	switch {
	case errors.Is(err, messaging.ErrNoReceiver):
		r.logger.Warnf("gesture %s: no control surface to receive the capture", gesture)
	case err != nil:
		r.logger.Errorf("gesture %s: delivery failed: %v", gesture, err)
	default:
		r.logger.Infof("gesture %s delivered (%dx%d)", gesture, img.Width, img.Height)
	}
}

// Teardown discards the runtime when its page goes away. It does not touch
// the page; the next Inject removes any overlay left in a surviving DOM.
// It does not wait for an in-flight capture; use Wait for that.
func (r *Runtime) Teardown() {
	r.once.Do(func() {
		r.logger.Infof("content runtime of tab %s torn down", r.tabID)
		r.endpoint.Close()
		r.cancel()
		r.loop.Stop()
		if gesture := r.session.current(); gesture != "" {
			r.session.end(gesture)
		}
	})
}

func clearSurface(surface selection.Surface) error {
	if err := surface.Track(false); err != nil {
		return fmt.Errorf("failed to detach stale pointer tracking: %w", err)
	}
	if err := surface.Unmount(); err != nil {
		return fmt.Errorf("failed to remove stale overlay: %w", err)
	}
	return nil
}

// Wait blocks until in-flight captures have finished.
func (r *Runtime) Wait() {
	r.pipeline.Wait()
}

// frameSource asks the background context for one frame.
type frameSource struct {
	endpoint *messaging.Endpoint
}

func (f frameSource) RequestFrame(ctx context.Context) (capture.RawFrame, error) {
	_, payload, err := f.endpoint.Send(ctx, messaging.Background, messaging.CaptureTab{})
	if err != nil {
		return capture.RawFrame{}, fmt.Errorf("%w: %w", capture.ErrCaptureDenied, err)
	}
	frame, ok := payload.(*messaging.RawFrame)
	if !ok {
		return capture.RawFrame{}, fmt.Errorf("%w: unexpected %s reply", capture.ErrCaptureDenied, payload.Kind())
	}
	return capture.RawFrameFromPayload(*frame), nil
}
