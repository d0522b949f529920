package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobal(t *testing.T) {
	t.Helper()
	globalMu.Lock()
	orig := globalManager
	globalManager = nil
	globalMu.Unlock()
	t.Cleanup(func() {
		globalMu.Lock()
		globalManager = orig
		globalMu.Unlock()
	})
}

func TestInitialize_LoadsPersistedSections(t *testing.T) {
	resetGlobal(t)

	path := filepath.Join(t.TempDir(), "settings.json")
	doc := map[string]interface{}{
		"version": "1",
		"sections": map[string]interface{}{
			"browser": map[string]interface{}{"headless": true, "device_scale_factor": 2},
			"capture": map[string]interface{}{"zero_area_policy": "cancel", "capture_timeout": "3s"},
			"injection": map[string]interface{}{
				"restricted_patterns": []string{"chrome://*", "https://intranet.example/*"},
			},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	require.NoError(t, Initialize(path))
	assert.True(t, IsInitialized())

	browser := GetBrowser().Snapshot()
	assert.True(t, browser.Headless)
	assert.Equal(t, 2.0, browser.DeviceScaleFactor)
	assert.Equal(t, defaultViewportWidth, browser.ViewportWidth)

	assert.True(t, GetCapture().CancelsEmptySelection())
	captureTimeout, deliveryTimeout := GetCapture().Timeouts()
	assert.Equal(t, 3*time.Second, captureTimeout)
	assert.Equal(t, defaultDeliveryTimeout, deliveryTimeout)

	assert.Equal(t, []string{"chrome://*", "https://intranet.example/*"}, GetInjection().Patterns())
}

func TestGetters_DefaultWithoutInitialize(t *testing.T) {
	resetGlobal(t)

	assert.False(t, IsInitialized())
	assert.Equal(t, defaultViewportHeight, GetBrowser().Snapshot().ViewportHeight)
	assert.False(t, GetCapture().CancelsEmptySelection())
	assert.Equal(t, DefaultRestrictedPatterns, GetInjection().Patterns())
	assert.Panics(t, func() { Global() })
}

func TestInitialize_SaveRoundTrip(t *testing.T) {
	resetGlobal(t)
	path := filepath.Join(t.TempDir(), "settings.json")

	require.NoError(t, Initialize(path))
	require.NoError(t, GetCapture().SetData(map[string]interface{}{"zero_area_policy": "cancel"}))
	require.NoError(t, Global().SaveAll())

	resetGlobal(t)
	require.NoError(t, Initialize(path))
	assert.True(t, GetCapture().CancelsEmptySelection())
}

func TestSections_Validate(t *testing.T) {
	browser := NewBrowserSection()
	require.NoError(t, browser.Validate())
	require.NoError(t, browser.SetData(map[string]interface{}{"viewport_width": float64(0)}))
	assert.Error(t, browser.Validate())
	assert.Error(t, browser.SetData(map[string]interface{}{"headless": "yes"}))
	browser.Reset()
	assert.NoError(t, browser.Validate())

	capture := NewCaptureSection()
	require.NoError(t, capture.SetData(map[string]interface{}{"zero_area_policy": "ignore"}))
	assert.Error(t, capture.Validate())
	assert.Error(t, capture.SetData(map[string]interface{}{"delivery_timeout": "soon"}))

	injection := NewInjectionSection()
	require.NoError(t, injection.SetData(map[string]interface{}{"restricted_patterns": []interface{}{"chrome://[*"}}))
	assert.Error(t, injection.Validate())
	assert.Error(t, injection.SetData(map[string]interface{}{"restricted_patterns": []interface{}{42}}))
}

func TestSections_DataRoundTrip(t *testing.T) {
	original := NewBrowserSection()
	require.NoError(t, original.SetData(map[string]interface{}{
		"headless":        true,
		"viewport_width":  float64(800),
		"viewport_height": float64(600),
		"timeout":         "12s",
	}))

	raw, err := json.Marshal(original.Data())
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored := NewBrowserSection()
	require.NoError(t, restored.SetData(decoded))
	assert.Equal(t, original.Snapshot(), restored.Snapshot())
}
