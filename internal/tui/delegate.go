package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/ui"
)

// todoItem adapts model.Todo to bubbles/list.Item.
type todoItem struct{ model.Todo }

func (i todoItem) FilterValue() string { return i.Text }

// itemDelegate renders one todo per line: "<icon> <text> ❌".
// The cursor is only drawn while the list has focus.
type itemDelegate struct {
	focused bool
}

func (d itemDelegate) Height() int                             { return 1 }
func (d itemDelegate) Spacing() int                            { return 0 }
func (d itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(todoItem)
	if !ok {
		return
	}
	t := ui.Current()

	text := it.Text
	if it.Done {
		text = t.Done.Render(text)
	}
	prefix := "  "
	if index == m.Index() && d.focused {
		prefix = t.Selected.Render(">") + " "
	}
	fmt.Fprintf(w, "%s%s %s %s", prefix, it.Icon(), text, t.Muted.Render(model.DeleteIcon))
}
