package config

import (
	"fmt"
	"sync"

	"github.com/gobwas/glob"
)

// SectionIDInjection is the identifier for the injection settings section
const SectionIDInjection = "injection"

// DefaultRestrictedPatterns are URL globs where the host browser refuses
// script injection.
var DefaultRestrictedPatterns = []string{
	"chrome://*",
	"chrome-extension://*",
	"chrome-search://*",
	"devtools://*",
	"edge://*",
	"about:*",
	"view-source:*",
	"https://chrome.google.com/webstore*",
	"https://chromewebstore.google.com/*",
}

// InjectionSection holds the restricted page patterns.
type InjectionSection struct {
	RestrictedPatterns []string `json:"restricted_patterns"`
	mu                 sync.RWMutex
}

// NewInjectionSection creates an injection section with default patterns.
func NewInjectionSection() *InjectionSection {
	s := &InjectionSection{}
	s.Reset()
	return s
}

func (s *InjectionSection) ID() string { return SectionIDInjection }

func (s *InjectionSection) Title() string { return "Injection" }

func (s *InjectionSection) Description() string {
	return "URL patterns of pages where the selection overlay cannot be injected."
}

// Data returns the current configuration data.
func (s *InjectionSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	patterns := make([]interface{}, len(s.RestrictedPatterns))
	for i, p := range s.RestrictedPatterns {
		patterns[i] = p
	}
	return map[string]interface{}{"restricted_patterns": patterns}
}

// SetData updates the configuration from the provided data.
func (s *InjectionSection) SetData(data map[string]interface{}) error {
	value, ok := data["restricted_patterns"]
	if !ok {
		return nil
	}
	patterns, err := stringsValue("restricted_patterns", value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.RestrictedPatterns = patterns
	return nil
}

// Validate checks that every pattern compiles.
func (s *InjectionSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.RestrictedPatterns {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("invalid restricted pattern %q: %w", p, err)
		}
	}
	return nil
}

// Reset restores the default patterns.
func (s *InjectionSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RestrictedPatterns = append([]string(nil), DefaultRestrictedPatterns...)
}

// Patterns returns a copy of the restricted patterns.
func (s *InjectionSection) Patterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.RestrictedPatterns...)
}
