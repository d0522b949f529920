package capture

import (
	"bytes"
	"context"
	"fmt"

	"github.com/entrhq/snapcrop/pkg/logging"
)

// Capturer reads the pixels currently visible in one tab, as PNG at the
// device's physical resolution.
type Capturer interface {
	CaptureVisible(ctx context.Context) ([]byte, error)
}

// TabLocator finds the active tab of the active window.
type TabLocator interface {
	ActiveTab() (Capturer, bool)
}

// TabCaptureService is the only holder of screen-reading privilege. It
// keeps no state between requests.
type TabCaptureService struct {
	tabs   TabLocator
	logger *logging.Logger
}

// NewTabCaptureService creates the service.
func NewTabCaptureService(tabs TabLocator, logger *logging.Logger) *TabCaptureService {
	if logger == nil {
		logger = logging.Discard("tab-capture")
	}
	return &TabCaptureService{tabs: tabs, logger: logger}
}

// Capture produces exactly one frame of the active tab, or an error
// wrapping ErrCaptureDenied.
func (s *TabCaptureService) Capture(ctx context.Context) (RawFrame, error) {
	tab, ok := s.tabs.ActiveTab()
	if !ok {
		s.logger.Warnf("capture requested with no active tab")
		return RawFrame{}, fmt.Errorf("%w: no active tab", ErrCaptureDenied)
	}

	data, err := tab.CaptureVisible(ctx)
	if err != nil {
		s.logger.Warnf("browser refused capture: %v", err)
		return RawFrame{}, fmt.Errorf("%w: %v", ErrCaptureDenied, err)
	}
	if len(data) == 0 {
		return RawFrame{}, fmt.Errorf("%w: browser returned no image", ErrCaptureDenied)
	}
	if !bytes.HasPrefix(data, pngSignature) {
		return RawFrame{}, fmt.Errorf("%w: browser returned a non-PNG image", ErrCaptureDenied)
	}

	s.logger.Debugf("captured visible tab (%d bytes)", len(data))
	return RawFrame{Format: FormatPNG, Data: data}, nil
}
