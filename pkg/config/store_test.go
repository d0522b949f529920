package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileStore_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	assert.Equal(t, path, store.Path())
	assert.False(t, store.IsModified())

	section, err := store.GetSection("browser")
	require.NoError(t, err)
	assert.Empty(t, section)
}

func TestNewFileStore_DefaultPath(t *testing.T) {
	store, err := NewFileStore("")
	require.NoError(t, err)

	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, ".snapcrop", "settings.json"), store.Path())
}

func TestNewFileStore_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestFileStore_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.SetSection("capture", map[string]interface{}{
		"zero_area_policy": "cancel",
	}))
	assert.True(t, store.IsModified())

	require.NoError(t, store.Save())
	assert.False(t, store.IsModified())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	section, err := reloaded.GetSection("capture")
	require.NoError(t, err)
	assert.Equal(t, "cancel", section["zero_area_policy"])
}

func TestFileStore_SectionsAreCopied(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	input := map[string]interface{}{"headless": true}
	require.NoError(t, store.SetSection("browser", input))
	input["headless"] = false

	got, err := store.GetSection("browser")
	require.NoError(t, err)
	assert.Equal(t, true, got["headless"])

	got["headless"] = false
	again, err := store.GetSection("browser")
	require.NoError(t, err)
	assert.Equal(t, true, again["headless"])
}
