// Package popup is the terminal control surface: it triggers injection and
// capture in the active tab and shows the last captured image.
package popup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/snapcrop/pkg/content"
	"github.com/entrhq/snapcrop/pkg/controller"
	"github.com/entrhq/snapcrop/pkg/logging"
)

// Controller is the part of controller.Controller the popup drives.
type Controller interface {
	EnsureInjected(ctx context.Context, tab controller.Tab) error
	StartCapture(ctx context.Context, tab controller.Tab) error
	CancelCapture(ctx context.Context, tab controller.Tab) error
	Display() *controller.Display
}

// Options configure the popup.
type Options struct {
	// ActiveTab returns the tab actions apply to
	ActiveTab func() (controller.Tab, bool)

	// Notifications is the queue the controller notifies into
	Notifications *Notifications

	// SaveDir is where saved captures are written (default: working directory)
	SaveDir string

	// ActionTimeout bounds inject, capture and cancel requests
	ActionTimeout time.Duration

	// Copy writes text to the clipboard (default: system clipboard)
	Copy func(string) error

	Logger *logging.Logger
}

// shotMsg carries a display change; nil means dismissed.
type shotMsg struct{ shot *controller.Shot }

type notificationMsg struct{ note controller.Notification }

// actionDoneMsg reports the end of an inject, capture or cancel request.
type actionDoneMsg struct {
	action string
	err    error
}

// Model is the popup's Bubble Tea model.
type Model struct {
	ctrl   Controller
	opts   Options
	logger *logging.Logger

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	updates     <-chan *controller.Shot
	unsubscribe func()

	busy      bool
	busyLabel string

	shot    *controller.Shot
	preview string

	status       string
	statusErr    bool
	notification *controller.Notification

	width  int
	height int
}

// New creates the popup model and subscribes it to the display.
func New(ctrl Controller, opts Options) *Model {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 10 * time.Second
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	if opts.Notifications == nil {
		opts.Notifications = NewNotifications()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard("popup")
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(salmonPink)

	updates, unsubscribe := ctrl.Display().Subscribe()
	m := &Model{
		ctrl:        ctrl,
		opts:        opts,
		logger:      logger,
		keys:        defaultKeyMap(),
		help:        help.New(),
		spinner:     s,
		updates:     updates,
		unsubscribe: unsubscribe,
	}
	if shot, ok := ctrl.Display().Current(); ok {
		m.setShot(&shot)
	}
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForShot(m.updates),
		waitForNotification(m.opts.Notifications.ch),
	)
}

func waitForShot(ch <-chan *controller.Shot) tea.Cmd {
	return func() tea.Msg {
		shot, ok := <-ch
		if !ok {
			return nil
		}
		return shotMsg{shot: shot}
	}
}

func waitForNotification(ch <-chan controller.Notification) tea.Cmd {
	return func() tea.Msg {
		note, ok := <-ch
		if !ok {
			return nil
		}
		return notificationMsg{note: note}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case shotMsg:
		m.setShot(msg.shot)
		if msg.shot != nil {
			m.setStatus(fmt.Sprintf("Captured %dx%d", msg.shot.Image.Width, msg.shot.Image.Height), false)
		}
		return m, waitForShot(m.updates)

	case notificationMsg:
		note := msg.note
		m.notification = &note
		return m, waitForNotification(m.opts.Notifications.ch)

	case actionDoneMsg:
		m.busy = false
		m.busyLabel = ""
		if msg.err != nil {
			m.logger.Warnf("%s failed: %v", msg.action, msg.err)
			m.setStatus(describeError(msg.action, msg.err), true)
			return m, nil
		}
		m.setStatus(actionSuccess(msg.action), false)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Any key acknowledges a notification.
	m.notification = nil

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.unsubscribe()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Inject):
		return m, m.run("inject", "Injecting...", m.ctrl.EnsureInjected)
	case key.Matches(msg, m.keys.Capture):
		return m, m.run("capture", "Waiting for selection...", m.ctrl.StartCapture)
	case key.Matches(msg, m.keys.Cancel):
		return m, m.run("cancel", "Canceling...", m.ctrl.CancelCapture)
	case key.Matches(msg, m.keys.Close):
		m.ctrl.Display().Dismiss()
		m.setShot(nil)
		m.setStatus("", false)
		return m, nil
	case key.Matches(msg, m.keys.Copy):
		m.copyDataURL()
		return m, nil
	case key.Matches(msg, m.keys.Save):
		m.save()
		return m, nil
	}
	return m, nil
}

// run starts an action against the active tab off the update loop.
func (m *Model) run(action, label string, fn func(context.Context, controller.Tab) error) tea.Cmd {
	if m.busy {
		return nil
	}
	tab, ok := m.opts.ActiveTab()
	if !ok {
		m.setStatus("No active tab", true)
		return nil
	}

	m.busy = true
	m.busyLabel = label
	timeout := m.opts.ActionTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return actionDoneMsg{action: action, err: fn(ctx, tab)}
	}
}

func (m *Model) setShot(shot *controller.Shot) {
	m.shot = shot
	m.preview = ""
	if shot == nil || shot.Image.Empty() {
		return
	}
	img, err := shot.Image.Decode()
	if err != nil {
		m.logger.Warnf("failed to decode capture for preview: %v", err)
		return
	}
	m.preview = renderPreview(img, previewCols, previewRows)
}

func (m *Model) setStatus(status string, isErr bool) {
	m.status = status
	m.statusErr = isErr
}

func (m *Model) copyDataURL() {
	if m.shot == nil {
		m.setStatus("Nothing to copy", true)
		return
	}
	if err := m.opts.Copy(m.shot.Image.DataURL()); err != nil {
		m.setStatus(fmt.Sprintf("Copy failed: %v", err), true)
		return
	}
	m.setStatus("Data URL copied to clipboard", false)
}

func (m *Model) save() {
	if m.shot == nil {
		m.setStatus("Nothing to save", true)
		return
	}
	path, err := SavePNG(m.opts.SaveDir, *m.shot)
	if err != nil {
		m.setStatus(fmt.Sprintf("Save failed: %v", err), true)
		return
	}
	m.setStatus("Saved "+path, false)
}

// SavePNG writes the shot into dir and returns the file path.
func SavePNG(dir string, shot controller.Shot) (string, error) {
	if shot.Image.Empty() || len(shot.Image.Data) == 0 {
		return "", fmt.Errorf("empty selection has no image")
	}
	name := fmt.Sprintf("snapcrop-%s.png", shot.At.Format("20060102-150405.000"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, shot.Image.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func actionSuccess(action string) string {
	switch action {
	case "inject":
		return "Content script injected"
	case "capture":
		return "Drag over the page to select a region"
	case "cancel":
		return "Selection canceled"
	default:
		return ""
	}
}

func describeError(action string, err error) string {
	switch {
	case errors.Is(err, controller.ErrInjectionDenied):
		return controller.InjectionErrorMessage
	case errors.Is(err, content.ErrGestureInFlight):
		return "A selection is already in progress"
	case errors.Is(err, content.ErrNotInjected):
		return "Content script is not injected"
	default:
		return fmt.Sprintf("%s failed: %v", action, err)
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render("snapcrop"))
	sections = append(sections, subtitleStyle.Render(m.tabLine()))

	if m.notification != nil {
		sections = append(sections, notificationStyle.Render(
			errorStyle.Bold(true).Render(m.notification.Title)+"\n"+infoStyle.Render(m.notification.Message)))
	}

	if m.busy {
		sections = append(sections, fmt.Sprintf("%s %s", m.spinner.View(), m.busyLabel))
	} else if m.status != "" {
		style := statusStyle
		if m.statusErr {
			style = errorStyle
		}
		sections = append(sections, style.Render(m.status))
	}

	if m.shot != nil {
		sections = append(sections, m.shotView())
	}

	sections = append(sections, m.help.View(m.keys))
	return strings.Join(sections, "\n\n") + "\n"
}

func (m *Model) tabLine() string {
	tab, ok := m.opts.ActiveTab()
	if !ok {
		return "no active tab"
	}
	return fmt.Sprintf("tab %s · %s", tab.ID(), tab.URL())
}

func (m *Model) shotView() string {
	img := m.shot.Image
	header := infoStyle.Render(fmt.Sprintf("%dx%d px @ %gx  selection %s", img.Width, img.Height, img.PixelRatio, img.Rect))
	body := m.preview
	if body == "" {
		body = subtitleStyle.Render(img.DataURL())
	}
	return previewBoxStyle.Render(header + "\n" + body)
}

// Close releases the display subscription.
func (m *Model) Close() {
	m.unsubscribe()
}

// Run runs the popup until the user quits or ctx is canceled.
func Run(ctx context.Context, m *Model) error {
	defer m.Close()
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("popup failed: %w", err)
	}
	return nil
}
