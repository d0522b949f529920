package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile describes a non-interactive capture run.
type Profile struct {
	// URL of the page to open in the tab
	URL string `yaml:"url" json:"url"`

	// Drag is the scripted gesture in CSS pixels
	Drag DragConfig `yaml:"drag" json:"drag"`

	// Output is the PNG path for the cropped image
	Output string `yaml:"output" json:"output"`

	// Browser overrides the persisted browser settings when set
	Browser *BrowserOverrides `yaml:"browser" json:"browser"`

	// Steps is the number of intermediate pointer-move events (default: 10)
	Steps int `yaml:"steps" json:"steps"`

	// Timeout bounds the whole run
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DragConfig holds the pointer-down and pointer-up positions.
type DragConfig struct {
	StartX float64 `yaml:"start_x" json:"start_x"`
	StartY float64 `yaml:"start_y" json:"start_y"`
	EndX   float64 `yaml:"end_x" json:"end_x"`
	EndY   float64 `yaml:"end_y" json:"end_y"`
}

// BrowserOverrides replaces individual browser settings for one run.
type BrowserOverrides struct {
	Headless          *bool    `yaml:"headless" json:"headless"`
	ViewportWidth     *int     `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight    *int     `yaml:"viewport_height" json:"viewport_height"`
	DeviceScaleFactor *float64 `yaml:"device_scale_factor" json:"device_scale_factor"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

const (
	defaultProfileSteps   = 10
	defaultProfileTimeout = time.Minute
)

// LoadProfile reads and validates a YAML profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a YAML profile, applies defaults and validates it.
func ParseProfile(data []byte) (*Profile, error) {
	profile := &Profile{}
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if profile.Steps == 0 {
		profile.Steps = defaultProfileSteps
	}
	if profile.Timeout == 0 {
		profile.Timeout = defaultProfileTimeout
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

// Validate validates the profile.
func (p *Profile) Validate() error {
	if p.URL == "" {
		return fmt.Errorf("url is required")
	}
	if p.Output == "" {
		return fmt.Errorf("output path is required")
	}
	if p.Steps < 0 {
		return fmt.Errorf("steps cannot be negative")
	}
	if p.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	d := p.Drag
	if d.StartX < 0 || d.StartY < 0 || d.EndX < 0 || d.EndY < 0 {
		return fmt.Errorf("drag coordinates must be inside the viewport")
	}
	return nil
}

// Apply returns settings with the profile overrides applied.
func (o *BrowserOverrides) Apply(settings BrowserSettings) BrowserSettings {
	if o == nil {
		return settings
	}
	if o.Headless != nil {
		settings.Headless = *o.Headless
	}
	if o.ViewportWidth != nil {
		settings.ViewportWidth = *o.ViewportWidth
	}
	if o.ViewportHeight != nil {
		settings.ViewportHeight = *o.ViewportHeight
	}
	if o.DeviceScaleFactor != nil {
		settings.DeviceScaleFactor = *o.DeviceScaleFactor
	}
	return settings
}
