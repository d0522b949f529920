package controller

import (
	"sync"
	"time"

	"github.com/entrhq/snapcrop/pkg/capture"
)

// Shot is a capture shown on the control surface.
type Shot struct {
	GestureID string
	Image     capture.CroppedImage
	At        time.Time
}

// Display holds the single image shown by the control surface. A new shot
// replaces the previous one.
type Display struct {
	mu      sync.Mutex
	current *Shot
	subs    map[int]chan *Shot
	nextSub int
}

// NewDisplay creates an empty display.
func NewDisplay() *Display {
	return &Display{subs: make(map[int]chan *Shot)}
}

// Current returns the displayed shot, if any.
func (d *Display) Current() (Shot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return Shot{}, false
	}
	return *d.current, true
}

// Show replaces the displayed shot.
func (d *Display) Show(s Shot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = &s
	d.publish(&s)
}

// Dismiss clears the display.
func (d *Display) Dismiss() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return
	}
	d.current = nil
	d.publish(nil)
}

// Subscribe returns a channel that receives the display contents after
// every change, nil meaning dismissed. Only the latest change is kept for
// a slow reader. The returned func unsubscribes.
func (d *Display) Subscribe() (<-chan *Shot, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextSub
	d.nextSub++
	ch := make(chan *Shot, 1)
	d.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs, id)
		})
	}
}

// publish must be called with d.mu held.
func (d *Display) publish(s *Shot) {
	for _, ch := range d.subs {
		select {
		case <-ch:
		default:
		}
		var out *Shot
		if s != nil {
			cp := *s
			out = &cp
		}
		ch <- out
	}
}
