// Package background is the privileged context. It is the only holder of
// tab capture and relays finished selections to the control surface.
package background

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/snapcrop/pkg/capture"
	"github.com/entrhq/snapcrop/pkg/logging"
	"github.com/entrhq/snapcrop/pkg/messaging"
)

const defaultRelayTimeout = 5 * time.Second

// Options configure the background context.
type Options struct {
	Tabs capture.TabLocator
	// RelayTimeout bounds the wait for the control surface to acknowledge
	// a relayed selection.
	RelayTimeout time.Duration
	Logger       *logging.Logger
}

// Context is the background context.
type Context struct {
	service      *capture.TabCaptureService
	loop         *messaging.Loop
	endpoint     *messaging.Endpoint
	relayTimeout time.Duration
	logger       *logging.Logger
}

// Start attaches the background context to the bus and runs its loop
// until ctx is canceled or Close is called.
func Start(ctx context.Context, bus *messaging.Bus, opts Options) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard("background")
	}
	relayTimeout := opts.RelayTimeout
	if relayTimeout <= 0 {
		relayTimeout = defaultRelayTimeout
	}

	loop := messaging.NewLoop(string(messaging.Background), logger)
	endpoint, err := bus.Attach(messaging.Background, loop)
	if err != nil {
		return nil, fmt.Errorf("failed to attach background context: %w", err)
	}

	c := &Context{
		service:      capture.NewTabCaptureService(opts.Tabs, logger.With("tab-capture")),
		loop:         loop,
		endpoint:     endpoint,
		relayTimeout: relayTimeout,
		logger:       logger,
	}
	endpoint.Handle(messaging.KindCaptureTab, c.handleCaptureTab)
	endpoint.Handle(messaging.KindSelectionComplete, c.handleSelectionComplete)

	loop.Start(ctx)
	return c, nil
}

// Close detaches the context and stops its loop.
func (c *Context) Close() {
	c.endpoint.Close()
	c.loop.Stop()
}

func (c *Context) handleCaptureTab(ctx context.Context, msg messaging.Message, _ messaging.Payload) (messaging.Payload, error) {
	if !msg.From.IsPage() {
		return nil, messaging.Reject(messaging.CodeRejected, "capture-tab is only accepted from a page context, not %s", msg.From)
	}

	frame, err := c.service.Capture(ctx)
	if err != nil {
		c.logger.Warnf("capture for %s denied: %v", msg.From, err)
		if errors.Is(err, capture.ErrCaptureDenied) {
			return nil, messaging.Reject(messaging.CodeCaptureDenied, "%v", err)
		}
		return nil, err
	}
	return frame.Payload(), nil
}

// handleSelectionComplete forwards the image and answers with the control
// surface's own reply.
func (c *Context) handleSelectionComplete(ctx context.Context, msg messaging.Message, payload messaging.Payload) (messaging.Payload, error) {
	if !msg.From.IsPage() {
		return nil, messaging.Reject(messaging.CodeRejected, "selection-complete is only accepted from a page context, not %s", msg.From)
	}
	complete, ok := payload.(*messaging.SelectionComplete)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T", payload)
	}

	relayCtx, cancel := context.WithTimeout(ctx, c.relayTimeout)
	defer cancel()
	_, reply, err := c.endpoint.Send(relayCtx, messaging.ControlSurface, *complete)
	if err != nil {
		if errors.Is(err, messaging.ErrNoReceiver) {
			c.logger.Warnf("selection %s from %s dropped: control surface closed", complete.GestureID, msg.From)
			return nil, messaging.Reject(messaging.CodeNoReceiver, "control surface is not open")
		}
		return nil, err
	}
	c.logger.Infof("selection %s relayed from %s", complete.GestureID, msg.From)
	return reply, nil
}
