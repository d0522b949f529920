package main

import (
	"context"
	"fmt"
	"os"

	appconfig "github.com/entrhq/snapcrop/pkg/config"
	"github.com/entrhq/snapcrop/pkg/controller"
	"github.com/entrhq/snapcrop/pkg/logging"
	"github.com/entrhq/snapcrop/pkg/selection"
)

// runHeadless performs the profile's drag in a headless tab and writes the
// cropped PNG.
func runHeadless(ctx context.Context, config *Config) error {
	profile, err := appconfig.LoadProfile(config.ProfilePath)
	if err != nil {
		return err
	}

	logger := logging.NewWriterLogger("snapcrop", os.Stderr)
	logger.SetVerbosity(logging.VerbosityNormal)
	if err := setVerbosity(logger, profile.Logging.Verbosity); err != nil {
		return err
	}
	if err := setVerbosity(logger, config.Verbosity); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, profile.Timeout)
	defer cancel()

	a, err := newApp(ctx, launchOptions(profile.Browser, true), logger)
	if err != nil {
		return err
	}
	defer a.close()

	tab, err := a.browser.OpenTab(profile.URL)
	if err != nil {
		return err
	}

	ctrl, err := a.openController(ctx, controller.NotifierFunc(func(n controller.Notification) {
		logger.Errorf("%s: %s", n.Title, n.Message)
	}))
	if err != nil {
		return err
	}
	defer ctrl.Close()

	updates, unsubscribe := ctrl.Display().Subscribe()
	defer unsubscribe()

	if err := ctrl.StartCapture(ctx, tab); err != nil {
		return err
	}

	drag := profile.Drag
	from := selection.Point{X: drag.StartX, Y: drag.StartY}
	to := selection.Point{X: drag.EndX, Y: drag.EndY}
	if err := tab.Drag(ctx, from, to, profile.Steps); err != nil {
		return err
	}

	var shot *controller.Shot
	for shot == nil {
		select {
		case shot = <-updates:
		case <-ctx.Done():
			return fmt.Errorf("no capture received: %w", ctx.Err())
		}
	}

	img := shot.Image
	if img.Empty() {
		return fmt.Errorf("selection %s is empty, nothing written", img.Rect)
	}
	if err := os.WriteFile(profile.Output, img.Data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", profile.Output, err)
	}

	fmt.Printf("Wrote %s (%dx%d px, pixel ratio %g, selection %s)\n",
		profile.Output, img.Width, img.Height, img.PixelRatio, img.Rect)
	return nil
}
