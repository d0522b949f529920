package browser

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/snapcrop/pkg/capture"
	"github.com/entrhq/snapcrop/pkg/logging"
)

// Manager owns the browser instance and its tabs, and tracks which tab is
// active. mu is never held across a call into Playwright: page close
// events are delivered on the driver's dispatch goroutine and take mu.
type Manager struct {
	mu          sync.RWMutex
	stopDriver  func() error
	browser     playwright.Browser
	context     playwright.BrowserContext
	tabs        map[string]*Tab
	order       []string
	active      string
	nextID      int
	opening     int
	maxTabs     int
	launch      LaunchOptions
	tabOpts     TabOptions
	logger      *logging.Logger
	initialized bool
}

// NewManager creates a manager. Initialize must be called before opening
// tabs.
func NewManager(opts TabOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = logging.Discard("browser")
	}
	return &Manager{
		tabs:    make(map[string]*Tab),
		maxTabs: DefaultMaxTabs,
		tabOpts: opts,
		logger:  opts.Logger,
	}
}

// Initialize installs and starts Playwright and launches Chromium.
func (m *Manager) Initialize(launch LaunchOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}
	launch = launch.withDefaults()

	// Install and run Playwright with verbose=false and discard output to avoid interfering with TUI
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(launch.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  launch.Viewport.Width,
			Height: launch.Viewport.Height,
		},
		DeviceScaleFactor: playwright.Float(launch.DeviceScaleFactor),
	})
	if err != nil {
		browser.Close()
		_ = pw.Stop()
		return fmt.Errorf("failed to create context: %w", err)
	}

	m.stopDriver = pw.Stop
	m.browser = browser
	m.context = browserContext
	m.launch = launch
	m.initialized = true
	m.logger.Infof("browser launched (headless=%t, viewport=%dx%d, scale=%g)",
		launch.Headless, launch.Viewport.Width, launch.Viewport.Height, launch.DeviceScaleFactor)
	return nil
}

// OpenTab opens a new tab, navigates it to url and makes it active.
func (m *Manager) OpenTab(url string) (*Tab, error) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser manager not initialized")
	}
	if len(m.tabs)+m.opening >= m.maxTabs {
		m.mu.Unlock()
		return nil, fmt.Errorf("maximum number of tabs (%d) reached", m.maxTabs)
	}
	m.opening++
	m.nextID++
	id := strconv.Itoa(m.nextID)
	browserContext := m.context
	timeout := m.launch.Timeout
	m.mu.Unlock()

	tab, err := m.openPage(browserContext, id, timeout, url)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.opening--
	if err != nil {
		return nil, err
	}
	if !m.initialized {
		return nil, fmt.Errorf("browser shut down while opening tab %s", id)
	}

	m.tabs[id] = tab
	m.order = append(m.order, id)
	m.active = id
	return tab, nil
}

func (m *Manager) openPage(browserContext playwright.BrowserContext, id string, timeout time.Duration, url string) (*Tab, error) {
	page, err := browserContext.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(timeout.Milliseconds()))

	tab := newTab(id, page, m.tabOpts)
	page.OnClose(func(playwright.Page) { m.forget(id) })

	if url != "" {
		if err := tab.Navigate(url, NavigateOptions{}); err != nil {
			_ = page.Close()
			return nil, err
		}
	}
	return tab, nil
}

// Activate brings a tab to the front.
func (m *Manager) Activate(id string) error {
	m.mu.RLock()
	tab, ok := m.tabs[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tab %q not found", id)
	}
	if err := tab.page.BringToFront(); err != nil {
		return fmt.Errorf("failed to activate tab %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[id]; !ok {
		return fmt.Errorf("tab %q closed", id)
	}
	m.active = id
	return nil
}

// Active returns the active tab.
func (m *Manager) Active() (*Tab, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tab, ok := m.tabs[m.active]
	return tab, ok
}

// ActiveTab returns the active tab as a frame source for tab capture.
func (m *Manager) ActiveTab() (capture.Capturer, bool) {
	tab, ok := m.Active()
	if !ok {
		return nil, false
	}
	return tab, true
}

// Tab retrieves a tab by ID.
func (m *Manager) Tab(id string) (*Tab, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tab, ok := m.tabs[id]
	if !ok {
		return nil, fmt.Errorf("tab %q not found", id)
	}
	return tab, nil
}

// ListTabs returns information about all open tabs in opening order.
func (m *Manager) ListTabs() []TabInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]TabInfo, 0, len(m.order))
	for _, id := range m.order {
		tab := m.tabs[id]
		infos = append(infos, TabInfo{
			ID:       tab.ID(),
			URL:      tab.URL(),
			Injected: tab.Injected(),
			OpenedAt: tab.openedAt,
		})
	}
	return infos
}

// CloseTab closes a tab and discards its page runtime.
func (m *Manager) CloseTab(id string) error {
	m.mu.RLock()
	tab, ok := m.tabs[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tab %q not found", id)
	}

	tab.detach("tab closed")
	if err := tab.page.Close(); err != nil {
		return fmt.Errorf("failed to close tab %s: %w", id, err)
	}
	m.forget(id)
	return nil
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tab, ok := m.tabs[id]
	if !ok {
		return
	}
	tab.detach("page closed")
	delete(m.tabs, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.active == id {
		m.active = ""
		if n := len(m.order); n > 0 {
			m.active = m.order[n-1]
		}
	}
}

// WaitForClose blocks until every tab has been closed by the user or ctx
// is done.
func (m *Manager) WaitForClose(ctx context.Context) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		m.mu.RLock()
		open := len(m.tabs)
		m.mu.RUnlock()
		if open == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown closes all tabs, the browser and Playwright.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	tabs := make([]*Tab, 0, len(m.tabs))
	for _, tab := range m.tabs {
		tabs = append(tabs, tab)
	}
	m.tabs = make(map[string]*Tab)
	m.order = nil
	m.active = ""

	initialized := m.initialized
	browserContext, browser, stop := m.context, m.browser, m.stopDriver
	m.context, m.browser, m.stopDriver = nil, nil, nil
	m.initialized = false
	m.mu.Unlock()

	for _, tab := range tabs {
		tab.detach("shutdown")
	}
	if !initialized {
		return nil
	}

	_ = browserContext.Close() // Ignore errors, continue cleanup
	_ = browser.Close()        // Ignore errors, continue cleanup

	if err := stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}
