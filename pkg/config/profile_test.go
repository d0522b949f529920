package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	profile, err := ParseProfile([]byte(`
url: https://example.com
output: out/region.png
drag:
  start_x: 100
  start_y: 100
  end_x: 300
  end_y: 250
browser:
  headless: true
  device_scale_factor: 2
timeout: 20s
logging:
  verbosity: verbose
`))
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", profile.URL)
	assert.Equal(t, DragConfig{StartX: 100, StartY: 100, EndX: 300, EndY: 250}, profile.Drag)
	assert.Equal(t, 20*time.Second, profile.Timeout)
	assert.Equal(t, defaultProfileSteps, profile.Steps)
	assert.Equal(t, "verbose", profile.Logging.Verbosity)

	settings := profile.Browser.Apply(NewBrowserSection().Snapshot())
	assert.True(t, settings.Headless)
	assert.Equal(t, 2.0, settings.DeviceScaleFactor)
	assert.Equal(t, defaultViewportWidth, settings.ViewportWidth)
}

func TestParseProfile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing url", "output: a.png\n"},
		{"missing output", "url: https://example.com\n"},
		{"negative coordinate", "url: https://example.com\noutput: a.png\ndrag:\n  start_x: -1\n"},
		{"bad yaml", "url: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfile([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: https://example.com\noutput: a.png\n"), 0600))

	profile, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, defaultProfileTimeout, profile.Timeout)
	assert.Nil(t, profile.Browser)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
