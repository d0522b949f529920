package config

import (
	"sync"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// Initialize creates the global configuration manager with the browser,
// capture and injection sections, and loads persisted settings from
// configPath (default ~/.snapcrop/settings.json).
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager := NewManager(store)
	for _, section := range []Section{
		NewBrowserSection(),
		NewCaptureSection(),
		NewInjectionSection(),
	} {
		if err := manager.RegisterSection(section); err != nil {
			return err
		}
	}

	if err := manager.LoadAll(); err != nil {
		return err
	}

	globalManager = manager
	return nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}
	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// GetBrowser returns the browser section, or a default section when the
// global config is not initialized.
func GetBrowser() *BrowserSection {
	if s, ok := lookup[*BrowserSection](SectionIDBrowser); ok {
		return s
	}
	return NewBrowserSection()
}

// GetCapture returns the capture section, or defaults.
func GetCapture() *CaptureSection {
	if s, ok := lookup[*CaptureSection](SectionIDCapture); ok {
		return s
	}
	return NewCaptureSection()
}

// GetInjection returns the injection section, or defaults.
func GetInjection() *InjectionSection {
	if s, ok := lookup[*InjectionSection](SectionIDInjection); ok {
		return s
	}
	return NewInjectionSection()
}

func lookup[T Section](id string) (T, bool) {
	var zero T
	if !IsInitialized() {
		return zero, false
	}
	section, ok := Global().GetSection(id)
	if !ok {
		return zero, false
	}
	typed, ok := section.(T)
	return typed, ok
}
