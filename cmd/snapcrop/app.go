package main

import (
	"context"
	"fmt"

	"github.com/entrhq/snapcrop/pkg/background"
	"github.com/entrhq/snapcrop/pkg/browser"
	appconfig "github.com/entrhq/snapcrop/pkg/config"
	"github.com/entrhq/snapcrop/pkg/content"
	"github.com/entrhq/snapcrop/pkg/controller"
	"github.com/entrhq/snapcrop/pkg/logging"
	"github.com/entrhq/snapcrop/pkg/messaging"
)

// app wires the contexts of one run: the browser, the background context
// and the bus they share.
type app struct {
	bus        *messaging.Bus
	browser    *browser.Manager
	background *background.Context
	guard      *controller.Guard
	settings   content.Settings
	logger     *logging.Logger
}

func newApp(ctx context.Context, launch browser.LaunchOptions, logger *logging.Logger) (*app, error) {
	settings := content.SettingsFromConfig(appconfig.GetCapture())

	guard, err := controller.NewGuard(appconfig.GetInjection().Patterns())
	if err != nil {
		return nil, err
	}

	bus := messaging.NewBus(logger.With("bus"))
	manager := browser.NewManager(browser.TabOptions{
		Bus:      bus,
		Settings: settings,
		Logger:   logger.With("browser"),
	})
	if err := manager.Initialize(launch); err != nil {
		return nil, err
	}

	bg, err := background.Start(ctx, bus, background.Options{
		Tabs:         manager,
		RelayTimeout: settings.DeliveryTimeout,
		Logger:       logger.With("background"),
	})
	if err != nil {
		_ = manager.Shutdown()
		return nil, err
	}

	return &app{
		bus:        bus,
		browser:    manager,
		background: bg,
		guard:      guard,
		settings:   settings,
		logger:     logger,
	}, nil
}

func (a *app) openController(ctx context.Context, notifier controller.Notifier) (*controller.Controller, error) {
	return controller.Open(ctx, a.bus, controller.Options{
		Guard:    a.guard,
		Notifier: notifier,
		Logger:   a.logger.With("controller"),
	})
}

// activeTab adapts the browser's active tab to the controller.
func (a *app) activeTab() (controller.Tab, bool) {
	tab, ok := a.browser.Active()
	if !ok {
		return nil, false
	}
	return tab, true
}

func (a *app) close() {
	a.background.Close()
	if err := a.browser.Shutdown(); err != nil {
		a.logger.Warnf("browser shutdown: %v", err)
	}
}

func launchOptions(overrides *appconfig.BrowserOverrides, forceHeadless bool) browser.LaunchOptions {
	settings := overrides.Apply(appconfig.GetBrowser().Snapshot())
	if forceHeadless && (overrides == nil || overrides.Headless == nil) {
		settings.Headless = true
	}
	return browser.LaunchOptionsFromSettings(settings)
}

func setVerbosity(logger *logging.Logger, value string) error {
	if value == "" {
		return nil
	}
	v, err := logging.ParseVerbosity(value)
	if err != nil {
		return fmt.Errorf("invalid verbosity: %w", err)
	}
	logger.SetVerbosity(v)
	return nil
}
