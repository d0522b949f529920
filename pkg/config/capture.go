package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDCapture is the identifier for the capture settings section
	SectionIDCapture = "capture"

	// ZeroAreaCapture runs the pipeline on an empty selection and yields
	// a degenerate image
	ZeroAreaCapture = "capture"
	// ZeroAreaCancel treats an empty selection as an abandoned gesture
	ZeroAreaCancel = "cancel"

	defaultZeroAreaPolicy  = ZeroAreaCapture
	defaultCaptureTimeout  = 10 * time.Second
	defaultDeliveryTimeout = 5 * time.Second
)

// CaptureSection configures the capture pipeline.
type CaptureSection struct {
	ZeroAreaPolicy  string        `json:"zero_area_policy"`
	CaptureTimeout  time.Duration `json:"capture_timeout"`
	DeliveryTimeout time.Duration `json:"delivery_timeout"`
	mu              sync.RWMutex
}

// NewCaptureSection creates a capture section with default settings.
func NewCaptureSection() *CaptureSection {
	s := &CaptureSection{}
	s.Reset()
	return s
}

func (s *CaptureSection) ID() string { return SectionIDCapture }

func (s *CaptureSection) Title() string { return "Capture" }

func (s *CaptureSection) Description() string {
	return "Capture pipeline behavior: empty selection policy and round-trip timeouts."
}

// Data returns the current configuration data.
func (s *CaptureSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"zero_area_policy": s.ZeroAreaPolicy,
		"capture_timeout":  s.CaptureTimeout.String(),
		"delivery_timeout": s.DeliveryTimeout.String(),
	}
}

// SetData updates the configuration from the provided data.
func (s *CaptureSection) SetData(data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		var err error
		switch key {
		case "zero_area_policy":
			policy, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid value type for zero_area_policy: expected string, got %T", value)
			}
			s.ZeroAreaPolicy = policy
		case "capture_timeout":
			s.CaptureTimeout, err = durationValue(key, value)
		case "delivery_timeout":
			s.DeliveryTimeout, err = durationValue(key, value)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the current configuration.
func (s *CaptureSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ZeroAreaPolicy != ZeroAreaCapture && s.ZeroAreaPolicy != ZeroAreaCancel {
		return fmt.Errorf("invalid zero_area_policy %q (must be %q or %q)", s.ZeroAreaPolicy, ZeroAreaCapture, ZeroAreaCancel)
	}
	if s.CaptureTimeout <= 0 || s.DeliveryTimeout <= 0 {
		return fmt.Errorf("capture and delivery timeouts must be positive")
	}
	return nil
}

// Reset restores defaults.
func (s *CaptureSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ZeroAreaPolicy = defaultZeroAreaPolicy
	s.CaptureTimeout = defaultCaptureTimeout
	s.DeliveryTimeout = defaultDeliveryTimeout
}

// CancelsEmptySelection reports whether zero-area selections are dropped.
func (s *CaptureSection) CancelsEmptySelection() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ZeroAreaPolicy == ZeroAreaCancel
}

// Timeouts returns the capture and delivery timeouts.
func (s *CaptureSection) Timeouts() (capture, delivery time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CaptureTimeout, s.DeliveryTimeout
}
