package main

import (
	"context"

	"github.com/entrhq/snapcrop/pkg/logging"
	"github.com/entrhq/snapcrop/pkg/popup"
)

// runInteractive opens a headed tab and the popup. Quitting the popup
// ends the run.
func runInteractive(ctx context.Context, config *Config) error {
	logger := openLogger()
	defer logger.Close()
	if err := setVerbosity(logger, config.Verbosity); err != nil {
		return err
	}

	a, err := newApp(ctx, launchOptions(nil, false), logger)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.browser.OpenTab(config.URL); err != nil {
		return err
	}

	notes := popup.NewNotifications()
	ctrl, err := a.openController(ctx, notes)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	model := popup.New(ctrl, popup.Options{
		ActiveTab:     a.activeTab,
		Notifications: notes,
		SaveDir:       config.SaveDir,
		ActionTimeout: a.settings.CaptureTimeout,
		Logger:        logger.With("popup"),
	})

	logger.Infof("interactive session started")
	return popup.Run(ctx, model)
}

// newFileLogger is replaced in tests.
var newFileLogger = logging.NewLogger

// openLogger returns the session file logger, or the stderr logger that
// NewLogger falls back to when the log file cannot be opened.
func openLogger() *logging.Logger {
	logger, err := newFileLogger("snapcrop")
	if err != nil {
		logger.Warnf("file logging unavailable, logging to stderr: %v", err)
	}
	return logger
}
