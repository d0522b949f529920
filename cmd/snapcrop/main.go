// Package main provides snapcrop, a screen-region capture tool: it opens a
// browser tab, lets the user drag a rectangle over the page, and keeps the
// cropped pixels as a PNG.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	appconfig "github.com/entrhq/snapcrop/pkg/config"
	"github.com/entrhq/snapcrop/pkg/logging"
)

const (
	version    = "0.1.0"               // Version of snapcrop
	defaultURL = "https://example.com" // Page opened when -url is not given
)

// Config holds the application configuration
type Config struct {
	ConfigPath  string
	URL         string
	SaveDir     string
	Verbosity   string
	ShowVersion bool
	Headless    bool
	ProfilePath string
}

func main() {
	// Parse command line flags
	config := parseFlags()

	// Show version if requested
	if config.ShowVersion {
		fmt.Printf("snapcrop v%s\n", version)
		return
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Create context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	if runErr := run(ctx, config); runErr != nil {
		cancel()
		log.Fatalf("Application error: %v", runErr)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.ConfigPath, "config", "", "Settings file (default: ~/.snapcrop/settings.json)")
	flag.StringVar(&config.URL, "url", defaultURL, "Page to open in the tab")
	flag.StringVar(&config.SaveDir, "save-dir", ".", "Directory for saved captures")
	flag.StringVar(&config.Verbosity, "verbosity", "", "Log level: quiet, normal, verbose, debug")
	flag.BoolVar(&config.ShowVersion, "version", false, "Show version and exit")
	flag.BoolVar(&config.Headless, "headless", false, "Run a scripted capture from a profile (non-interactive)")
	flag.StringVar(&config.ProfilePath, "profile", "", "Path to headless capture profile (YAML)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "snapcrop - capture a region of a web page\n\n")
		fmt.Fprintf(os.Stderr, "Usage: snapcrop [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Interactive (default)\n")
		fmt.Fprintf(os.Stderr, "  snapcrop -url https://go.dev\n")
		fmt.Fprintf(os.Stderr, "\n  # Headless\n")
		fmt.Fprintf(os.Stderr, "  snapcrop -headless -profile capture.yaml\n")
	}

	flag.Parse()
	return config
}

// validate checks that the configuration is valid
func (c *Config) validate() error {
	if c.Headless && c.ProfilePath == "" {
		return fmt.Errorf("headless mode requires a profile (use -profile flag)")
	}
	if _, err := logging.ParseVerbosity(c.Verbosity); err != nil {
		return err
	}
	if !c.Headless {
		info, err := os.Stat(c.SaveDir)
		if err != nil {
			return fmt.Errorf("save directory error: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("save path '%s' is not a directory", c.SaveDir)
		}
	}
	return nil
}

// run executes the main application logic
func run(ctx context.Context, config *Config) error {
	if err := appconfig.Initialize(config.ConfigPath); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if config.Headless {
		return runHeadless(ctx, config)
	}
	return runInteractive(ctx, config)
}
