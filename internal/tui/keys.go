package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Submit    key.Binding
	Toggle    key.Binding
	Delete    key.Binding
	Clear     key.Binding
	ClearAny  key.Binding
	Focus     key.Binding
	Quit      key.Binding
	ForceQuit key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Submit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "add")),
		Toggle:    key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("space", "toggle")),
		Delete:    key.NewBinding(key.WithKeys("x", "delete", "backspace"), key.WithHelp("x", "delete")),
		Clear:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear done")),
		ClearAny:  key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "clear done")),
		Focus:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch focus")),
		Quit:      key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q", "quit")),
		ForceQuit: key.NewBinding(key.WithKeys("ctrl+c")),
	}
}

// inputHelp is shown while typing a new todo.
type inputHelp struct{ k keyMap }

func (h inputHelp) ShortHelp() []key.Binding {
	return []key.Binding{h.k.Submit, h.k.Focus, h.k.ClearAny}
}

func (h inputHelp) FullHelp() [][]key.Binding { return [][]key.Binding{h.ShortHelp()} }

// listHelp is shown while the list has focus.
type listHelp struct{ k keyMap }

func (h listHelp) ShortHelp() []key.Binding {
	return []key.Binding{h.k.Up, h.k.Down, h.k.Toggle, h.k.Delete, h.k.Clear, h.k.Focus, h.k.Quit}
}

func (h listHelp) FullHelp() [][]key.Binding { return [][]key.Binding{h.ShortHelp()} }
