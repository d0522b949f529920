package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDBrowser is the identifier for the browser settings section
	SectionIDBrowser = "browser"

	defaultHeadless          = false
	defaultViewportWidth     = 1280
	defaultViewportHeight    = 720
	defaultDeviceScaleFactor = 1.0
	defaultBrowserTimeout    = 30 * time.Second
)

// BrowserSection configures the Chromium instance that hosts the tab.
type BrowserSection struct {
	Headless          bool          `json:"headless"`
	ViewportWidth     int           `json:"viewport_width"`
	ViewportHeight    int           `json:"viewport_height"`
	DeviceScaleFactor float64       `json:"device_scale_factor"`
	Timeout           time.Duration `json:"timeout"`
	mu                sync.RWMutex
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	s := &BrowserSection{}
	s.Reset()
	return s
}

func (s *BrowserSection) ID() string { return SectionIDBrowser }

func (s *BrowserSection) Title() string { return "Browser" }

func (s *BrowserSection) Description() string {
	return "Browser launch options: headless mode, viewport size and device scale factor."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"headless":            s.Headless,
		"viewport_width":      s.ViewportWidth,
		"viewport_height":     s.ViewportHeight,
		"device_scale_factor": s.DeviceScaleFactor,
		"timeout":             s.Timeout.String(),
	}
}

// SetData updates the configuration from the provided data.
func (s *BrowserSection) SetData(data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		var err error
		switch key {
		case "headless":
			s.Headless, err = boolValue(key, value)
		case "viewport_width":
			s.ViewportWidth, err = intValue(key, value)
		case "viewport_height":
			s.ViewportHeight, err = intValue(key, value)
		case "device_scale_factor":
			s.DeviceScaleFactor, err = floatValue(key, value)
		case "timeout":
			s.Timeout, err = durationValue(key, value)
		default:
			// Ignore unknown keys for forward compatibility
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ViewportWidth <= 0 || s.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", s.ViewportWidth, s.ViewportHeight)
	}
	if s.DeviceScaleFactor <= 0 {
		return fmt.Errorf("device_scale_factor must be positive, got %v", s.DeviceScaleFactor)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// Reset restores defaults.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Headless = defaultHeadless
	s.ViewportWidth = defaultViewportWidth
	s.ViewportHeight = defaultViewportHeight
	s.DeviceScaleFactor = defaultDeviceScaleFactor
	s.Timeout = defaultBrowserTimeout
}

// Snapshot returns a copy safe to read without locking.
func (s *BrowserSection) Snapshot() BrowserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return BrowserSettings{
		Headless:          s.Headless,
		ViewportWidth:     s.ViewportWidth,
		ViewportHeight:    s.ViewportHeight,
		DeviceScaleFactor: s.DeviceScaleFactor,
		Timeout:           s.Timeout,
	}
}

// BrowserSettings is a lock-free copy of BrowserSection.
type BrowserSettings struct {
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	DeviceScaleFactor float64
	Timeout           time.Duration
}
