// Package controller is the control-surface side of a capture: it makes
// sure the page runtime is present in a tab, starts and cancels selections,
// and receives the finished image.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/snapcrop/pkg/capture"
	"github.com/entrhq/snapcrop/pkg/content"
	"github.com/entrhq/snapcrop/pkg/logging"
	"github.com/entrhq/snapcrop/pkg/messaging"
)

// ErrInjectionDenied is returned when the page runtime cannot be injected
// into a tab.
var ErrInjectionDenied = errors.New("cannot inject script here")

// Texts of the notification raised when injection fails.
const (
	InjectionErrorTitle   = "Injecting content script error"
	InjectionErrorMessage = "You cannot inject script here!"
)

// Tab is a browser tab the page runtime can be injected into.
type Tab interface {
	ID() string
	URL() string
	// Inject installs the page runtime. Injecting an already injected tab
	// is a no-op.
	Inject(ctx context.Context) error
}

// Notification is a user-visible message.
type Notification struct {
	Title   string
	Message string
}

// Notifier shows notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Options configure a Controller.
type Options struct {
	Guard    *Guard
	Notifier Notifier
	Display  *Display
	Logger   *logging.Logger
}

// Controller is the control-surface context. It is attached to the bus
// only while the control surface is open.
type Controller struct {
	bus      *messaging.Bus
	loop     *messaging.Loop
	endpoint *messaging.Endpoint
	guard    *Guard
	notifier Notifier
	display  *Display
	logger   *logging.Logger
}

// Open attaches the control surface to the bus.
func Open(ctx context.Context, bus *messaging.Bus, opts Options) (*Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard("controller")
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(n Notification) {
			logger.Warnf("%s: %s", n.Title, n.Message)
		})
	}
	display := opts.Display
	if display == nil {
		display = NewDisplay()
	}

	loop := messaging.NewLoop(string(messaging.ControlSurface), logger)
	endpoint, err := bus.Attach(messaging.ControlSurface, loop)
	if err != nil {
		return nil, fmt.Errorf("failed to attach control surface: %w", err)
	}

	c := &Controller{
		bus:      bus,
		loop:     loop,
		endpoint: endpoint,
		guard:    opts.Guard,
		notifier: notifier,
		display:  display,
		logger:   logger,
	}
	endpoint.Handle(messaging.KindSelectionComplete, c.handleSelectionComplete)

	loop.Start(ctx)
	return c, nil
}

// Display returns the display surface.
func (c *Controller) Display() *Display {
	return c.display
}

// Close detaches the control surface. Selections finished afterwards are
// not delivered.
func (c *Controller) Close() {
	c.endpoint.Close()
	c.loop.Stop()
}

// EnsureInjected installs the page runtime into tab unless it is already
// running there. Restricted pages and failed injections raise a
// notification and return ErrInjectionDenied.
func (c *Controller) EnsureInjected(ctx context.Context, tab Tab) error {
	if c.bus.Attached(messaging.PageContext(tab.ID())) {
		return nil
	}

	if pattern, ok := c.guard.Restricted(tab.URL()); ok {
		c.logger.Warnf("tab %s (%s) matches restricted pattern %q", tab.ID(), tab.URL(), pattern)
		c.notifyInjectionError()
		return fmt.Errorf("%w: %s", ErrInjectionDenied, tab.URL())
	}

	if err := tab.Inject(ctx); err != nil {
		c.logger.Errorf("failed to inject into tab %s: %v", tab.ID(), err)
		c.notifyInjectionError()
		return fmt.Errorf("%w: %w", ErrInjectionDenied, err)
	}

	c.logger.Infof("page runtime injected into tab %s", tab.ID())
	return nil
}

func (c *Controller) notifyInjectionError() {
	c.notifier.Notify(Notification{Title: InjectionErrorTitle, Message: InjectionErrorMessage})
}

// StartCapture arms the selection overlay in tab.
func (c *Controller) StartCapture(ctx context.Context, tab Tab) error {
	if err := c.EnsureInjected(ctx, tab); err != nil {
		return err
	}

	_, payload, err := c.endpoint.Send(ctx, messaging.PageContext(tab.ID()), messaging.InvokeSelection{})
	if err != nil {
		return fmt.Errorf("failed to start selection: %w", err)
	}
	result, ok := payload.(*messaging.InvokeResult)
	if !ok {
		return fmt.Errorf("failed to start selection: unexpected %s reply", payload.Kind())
	}
	if !result.Success {
		if result.Error == content.ErrGestureInFlight.Error() {
			return content.ErrGestureInFlight
		}
		return fmt.Errorf("failed to start selection: %s", result.Error)
	}

	c.logger.Infof("selection started in tab %s", tab.ID())
	return nil
}

// CancelCapture abandons an armed selection in tab.
func (c *Controller) CancelCapture(ctx context.Context, tab Tab) error {
	id := messaging.PageContext(tab.ID())
	if !c.bus.Attached(id) {
		return content.ErrNotInjected
	}
	if _, _, err := c.endpoint.Send(ctx, id, messaging.CancelSelection{}); err != nil {
		return fmt.Errorf("failed to cancel selection: %w", err)
	}
	return nil
}

func (c *Controller) handleSelectionComplete(_ context.Context, _ messaging.Message, payload messaging.Payload) (messaging.Payload, error) {
	complete, ok := payload.(*messaging.SelectionComplete)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T", payload)
	}

	img := capture.CroppedImageFromPayload(complete.Image)
	c.display.Show(Shot{GestureID: complete.GestureID, Image: img, At: time.Now()})
	c.logger.Infof("received capture %s: %dx%d", complete.GestureID, img.Width, img.Height)
	return nil, nil
}
