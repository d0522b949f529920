package browser

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage implements the Page methods the manager uses. Calling any other
// method panics on the nil embedded interface.
type fakePage struct {
	playwright.Page

	mu       sync.Mutex
	url      string
	gotoErr  error
	onClose  []func(playwright.Page)
	closed   bool
	dispatch func(func())
}

func (p *fakePage) SetDefaultTimeout(float64)               {}
func (p *fakePage) OnFrameNavigated(func(playwright.Frame)) {}
func (p *fakePage) BringToFront() error                     { return nil }

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) OnClose(fn func(playwright.Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = append(p.onClose, fn)
}

func (p *fakePage) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	if p.gotoErr != nil {
		return nil, p.gotoErr
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil, nil
}

func (p *fakePage) Close(...playwright.PageCloseOptions) error {
	p.emitClose()
	return nil
}

// emitClose runs the close handlers on the dispatch goroutine and waits
// for them, the way a Close call waits for the driver's reply.
func (p *fakePage) emitClose() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	handlers := append([]func(playwright.Page){}, p.onClose...)
	p.mu.Unlock()

	p.dispatch(func() {
		for _, fn := range handlers {
			fn(p)
		}
	})
}

type fakeContext struct {
	playwright.BrowserContext

	mu       sync.Mutex
	pages    []*fakePage
	gotoErr  error
	dispatch func(func())
}

func (c *fakeContext) NewPage() (playwright.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page := &fakePage{url: "about:blank", gotoErr: c.gotoErr, dispatch: c.dispatch}
	c.pages = append(c.pages, page)
	return page, nil
}

func (c *fakeContext) Close(...playwright.BrowserContextCloseOptions) error {
	c.mu.Lock()
	pages := append([]*fakePage{}, c.pages...)
	c.mu.Unlock()
	for _, page := range pages {
		page.emitClose()
	}
	return nil
}

type fakeBrowser struct {
	playwright.Browser
	closed bool
}

func (b *fakeBrowser) Close(...playwright.BrowserCloseOptions) error {
	b.closed = true
	return nil
}

// dispatcher runs event handlers one at a time on its own goroutine.
func dispatcher(t *testing.T) func(func()) {
	t.Helper()
	events := make(chan func())
	done := make(chan struct{})
	go func() {
		for {
			select {
			case fn := <-events:
				fn()
			case <-done:
				return
			}
		}
	}()
	t.Cleanup(func() { close(done) })

	return func(fn func()) {
		finished := make(chan struct{})
		events <- func() {
			fn()
			close(finished)
		}
		<-finished
	}
}

func newFakeManager(t *testing.T) (*Manager, *fakeContext, *fakeBrowser, *bool) {
	t.Helper()
	browserContext := &fakeContext{dispatch: dispatcher(t)}
	browser := &fakeBrowser{}
	stopped := false

	m := NewManager(TabOptions{})
	m.context = browserContext
	m.browser = browser
	m.stopDriver = func() error { stopped = true; return nil }
	m.launch = LaunchOptions{}.withDefaults()
	m.initialized = true
	return m, browserContext, browser, &stopped
}

// within fails the test if fn does not return in time.
func within(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("call did not return; page close handlers are blocked")
	}
}

func TestManager_ShutdownWithOpenTabs(t *testing.T) {
	m, _, browser, stopped := newFakeManager(t)

	_, err := m.OpenTab("")
	require.NoError(t, err)
	_, err = m.OpenTab("https://example.com/")
	require.NoError(t, err)
	require.Len(t, m.ListTabs(), 2)

	var shutdownErr error
	within(t, 2*time.Second, func() { shutdownErr = m.Shutdown() })
	require.NoError(t, shutdownErr)

	assert.True(t, browser.closed)
	assert.True(t, *stopped)
	assert.Empty(t, m.ListTabs())
	_, ok := m.Active()
	assert.False(t, ok)

	_, err = m.OpenTab("")
	assert.ErrorContains(t, err, "not initialized")
	assert.NoError(t, m.Shutdown())
}

func TestManager_OpenTabNavigationFailure(t *testing.T) {
	m, browserContext, _, _ := newFakeManager(t)
	browserContext.gotoErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	var err error
	within(t, 2*time.Second, func() { _, err = m.OpenTab("https://unreachable.invalid/") })
	assert.ErrorContains(t, err, "ERR_NAME_NOT_RESOLVED")
	assert.Empty(t, m.ListTabs())

	browserContext.gotoErr = nil
	within(t, 2*time.Second, func() { _, err = m.OpenTab("") })
	require.NoError(t, err)
	assert.Len(t, m.ListTabs(), 1)
}

func TestManager_PageClosedByUser(t *testing.T) {
	m, browserContext, _, _ := newFakeManager(t)

	first, err := m.OpenTab("")
	require.NoError(t, err)
	second, err := m.OpenTab("")
	require.NoError(t, err)

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, second.ID(), active.ID())

	within(t, 2*time.Second, func() { browserContext.pages[1].emitClose() })

	active, ok = m.Active()
	require.True(t, ok)
	assert.Equal(t, first.ID(), active.ID())
	assert.Len(t, m.ListTabs(), 1)

	require.NoError(t, m.Activate(first.ID()))
	assert.Error(t, m.Activate(second.ID()))
}

func TestManager_MaxTabs(t *testing.T) {
	m, _, _, _ := newFakeManager(t)
	m.maxTabs = 1

	_, err := m.OpenTab("")
	require.NoError(t, err)
	_, err = m.OpenTab("")
	assert.ErrorContains(t, err, "maximum number of tabs")
}
