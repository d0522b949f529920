package selection

import (
	"errors"
	"fmt"

	"github.com/entrhq/snapcrop/pkg/logging"
)

// State is the overlay lifecycle state.
type State int

const (
	StateIdle      State = iota // StateIdle means nothing is mounted in the page.
	StateArmed                  // StateArmed means the capture surface is mounted and waiting for pointer-down.
	StateDragging               // StateDragging means a drag is in progress and move/up listeners are attached.
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateDragging:
		return "dragging"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Surface is the part of the page DOM the overlay manipulates.
type Surface interface {
	// Mount inserts the full-viewport, topmost capture surface with a
	// crosshair cursor, and an empty highlight box above it.
	Mount() error

	// Highlight moves and resizes the highlight box.
	Highlight(r Rect) error

	// Track attaches or detaches the pointer-move and pointer-up listeners.
	Track(enabled bool) error

	// Unmount removes the capture surface and the highlight box.
	Unmount() error
}

// CompleteFunc receives the final rectangle of a gesture. It runs after
// every overlay node and listener has been removed.
type CompleteFunc func(Rect)

// Overlay is the selection state machine of one page. It is not safe for
// concurrent use; the page runtime drives it from its event loop.
type Overlay struct {
	surface    Surface
	onComplete CompleteFunc
	logger     *logging.Logger

	state State
	start Point
}

// NewOverlay creates an idle overlay.
func NewOverlay(surface Surface, onComplete CompleteFunc, logger *logging.Logger) *Overlay {
	if logger == nil {
		logger = logging.Discard("overlay")
	}
	return &Overlay{
		surface:    surface,
		onComplete: onComplete,
		logger:     logger,
		state:      StateIdle,
	}
}

// State returns the current state.
func (o *Overlay) State() State {
	return o.state
}

// Arm mounts the capture surface. Arming an overlay that is not idle is a
// no-op and reports false.
func (o *Overlay) Arm() (bool, error) {
	if o.state != StateIdle {
		o.logger.Debugf("arm ignored in state %s", o.state)
		return false, nil
	}

	if err := o.surface.Mount(); err != nil {
		if uerr := o.surface.Unmount(); uerr != nil {
			o.logger.Warnf("cleanup after failed mount: %v", uerr)
		}
		return false, fmt.Errorf("failed to mount overlay: %w", err)
	}
	o.state = StateArmed
	o.logger.Debugf("overlay armed")
	return true, nil
}

// PointerDown starts a drag at p.
func (o *Overlay) PointerDown(p Point) error {
	if o.state != StateArmed {
		return nil
	}
	if err := o.surface.Track(true); err != nil {
		return fmt.Errorf("failed to track pointer: %w", err)
	}
	o.start = p
	o.state = StateDragging
	return nil
}

// PointerMove updates the highlight box. It has no capture side effects.
func (o *Overlay) PointerMove(p Point) error {
	if o.state != StateDragging {
		return nil
	}
	return o.surface.Highlight(Normalize(o.start, p))
}

// PointerUp ends the drag at p, removes every overlay node and listener,
// and hands the normalized rectangle to the completion callback. A
// zero-area rectangle completes like any other.
func (o *Overlay) PointerUp(p Point) error {
	if o.state != StateDragging {
		return nil
	}
	rect := Normalize(o.start, p)

	if err := o.teardown(true); err != nil {
		o.state = StateIdle
		return fmt.Errorf("selection %s abandoned: %w", rect, err)
	}

	o.state = StateIdle
	o.logger.Debugf("selection completed: %s", rect)
	if o.onComplete != nil {
		o.onComplete(rect)
	}
	return nil
}

// Cancel abandons an armed or dragging overlay and cleans up the page.
func (o *Overlay) Cancel() error {
	if o.state == StateIdle {
		return nil
	}
	err := o.teardown(o.state == StateDragging)
	o.state = StateIdle
	o.logger.Debugf("selection canceled")
	return err
}

// teardown detaches listeners when tracking, then unmounts. Both steps run
// even if the first fails.
func (o *Overlay) teardown(tracking bool) error {
	var errs []error
	if tracking {
		if err := o.surface.Track(false); err != nil {
			errs = append(errs, fmt.Errorf("untrack: %w", err))
		}
	}
	if err := o.surface.Unmount(); err != nil {
		errs = append(errs, fmt.Errorf("unmount: %w", err))
	}
	return errors.Join(errs...)
}
