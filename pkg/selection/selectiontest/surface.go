// Package selectiontest provides an in-memory page Surface for tests.
package selectiontest

import (
	"errors"
	"sync"

	"github.com/entrhq/snapcrop/pkg/selection"
)

// Surface records overlay DOM mutations in memory.
type Surface struct {
	mu sync.Mutex

	overlays   int
	highlights int
	listeners  int
	mounts     int
	highlight  selection.Rect
	moves      int

	// Fail* make the next matching call return an error.
	FailMount   bool
	FailUnmount bool
	FailTrack   bool
}

// ErrInjected is returned by calls configured to fail.
var ErrInjected = errors.New("injected surface failure")

// New returns an empty surface.
func New() *Surface {
	return &Surface{}
}

func (s *Surface) Mount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailMount {
		s.FailMount = false
		s.overlays++
		return ErrInjected
	}
	s.overlays++
	s.highlights++
	s.mounts++
	return nil
}

func (s *Surface) Highlight(r selection.Rect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlight = r
	s.moves++
	return nil
}

func (s *Surface) Track(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTrack {
		s.FailTrack = false
		return ErrInjected
	}
	if enabled {
		// mousemove and mouseup
		s.listeners += 2
	} else if s.listeners >= 2 {
		s.listeners -= 2
	}
	return nil
}

func (s *Surface) Unmount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUnmount {
		s.FailUnmount = false
		return ErrInjected
	}
	s.overlays = 0
	s.highlights = 0
	return nil
}

// Nodes returns the number of overlay and highlight nodes in the page.
func (s *Surface) Nodes() (overlays, highlights int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlays, s.highlights
}

// Listeners returns the number of attached move/up listeners.
func (s *Surface) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listeners
}

// Mounts counts successful Mount calls.
func (s *Surface) Mounts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounts
}

// LastHighlight returns the most recent highlight box and the number of
// highlight updates.
func (s *Surface) LastHighlight() (selection.Rect, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highlight, s.moves
}
