package popup

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Inject  key.Binding
	Capture key.Binding
	Cancel  key.Binding
	Close   key.Binding
	Copy    key.Binding
	Save    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Inject: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "inject"),
		),
		Capture: key.NewBinding(
			key.WithKeys("c", "enter"),
			key.WithHelp("c/enter", "capture"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("x", "esc"),
			key.WithHelp("x/esc", "cancel selection"),
		),
		Close: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "close screenshot"),
		),
		Copy: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy data url"),
		),
		Save: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "save png"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Inject, k.Capture, k.Close, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Inject, k.Capture, k.Cancel},
		{k.Close, k.Copy, k.Save},
		{k.Help, k.Quit},
	}
}
