package browser

import (
	"time"

	"github.com/entrhq/snapcrop/pkg/config"
	"github.com/entrhq/snapcrop/pkg/content"
	"github.com/entrhq/snapcrop/pkg/logging"
	"github.com/entrhq/snapcrop/pkg/messaging"
)

// LaunchOptions configures the browser instance.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the CSS-pixel size of every tab
	Viewport Viewport

	// DeviceScaleFactor is the device pixel ratio reported to pages
	DeviceScaleFactor float64

	// Timeout is the default timeout of page operations
	Timeout time.Duration
}

// LaunchOptionsFromSettings converts the browser config section.
func LaunchOptionsFromSettings(s config.BrowserSettings) LaunchOptions {
	return LaunchOptions{
		Headless:          s.Headless,
		Viewport:          Viewport{Width: s.ViewportWidth, Height: s.ViewportHeight},
		DeviceScaleFactor: s.DeviceScaleFactor,
		Timeout:           s.Timeout,
	}
}

func (o LaunchOptions) withDefaults() LaunchOptions {
	if o.Viewport.Width <= 0 || o.Viewport.Height <= 0 {
		o.Viewport = Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if o.DeviceScaleFactor <= 0 {
		o.DeviceScaleFactor = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle"
	WaitUntil string

	// Timeout in milliseconds (0 means default)
	Timeout float64
}

// TabOptions are shared by every tab of a Manager.
type TabOptions struct {
	// Bus is where injected page runtimes attach
	Bus *messaging.Bus

	// Settings tune the capture pipeline of injected runtimes
	Settings content.Settings

	Logger *logging.Logger
}

// TabInfo contains metadata about a tab.
type TabInfo struct {
	ID       string
	URL      string
	Injected bool
	OpenedAt time.Time
}

// Default values for various operations
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxTabs        = 8
)
