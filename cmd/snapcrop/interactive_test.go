package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/snapcrop/pkg/logging"
)

func TestOpenLogger_FallsBackWhenLogFileUnavailable(t *testing.T) {
	var stderr bytes.Buffer
	orig := newFileLogger
	newFileLogger = func(component string) (*logging.Logger, error) {
		return logging.NewWriterLogger(component, &stderr), errors.New("permission denied")
	}
	t.Cleanup(func() { newFileLogger = orig })

	logger := openLogger()
	require.NotNil(t, logger)
	assert.Contains(t, stderr.String(), "file logging unavailable, logging to stderr: permission denied")

	logger.Infof("still logging")
	assert.Contains(t, stderr.String(), "still logging")
	assert.NoError(t, logger.Close())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "interactive", config: Config{SaveDir: "."}},
		{name: "headless without profile", config: Config{Headless: true}, wantErr: "requires a profile"},
		{name: "bad verbosity", config: Config{SaveDir: ".", Verbosity: "loud"}, wantErr: "unknown verbosity"},
		{name: "missing save dir", config: Config{SaveDir: "does-not-exist"}, wantErr: "save directory error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
