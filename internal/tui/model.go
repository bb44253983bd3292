// Package tui is the interactive todo view: an input for new todos, the
// list of todos, and the clear-completed footer.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/state"
	"github.com/Makepad-fr/tada/internal/ui"
)

const (
	// Placeholder is shown in the empty input.
	Placeholder = "What do you want to do today?"
	// ClearLabel is the clear-completed footer.
	ClearLabel = "Clear completed todos (c)"
	// EmptyLabel replaces the list when there is nothing to show.
	EmptyLabel = "Nothing to do yet."

	defaultWidth  = 80
	defaultHeight = 24
	// heading, input, blank, blank, footer, help, status and the border
	chromeHeight = 9
)

type focus int

const (
	focusInput focus = iota
	focusList
)

// snapshotMsg carries a new value of the observable collection.
type snapshotMsg []model.Todo

// opResultMsg reports how a mutation went.
type opResultMsg struct {
	op  string
	err error
}

// Model is the Bubble Tea model for the todo screen.
type Model struct {
	ctx    context.Context
	todos  *state.Todos
	logger *slog.Logger
	title  string

	sub         <-chan []model.Todo
	unsubscribe func()

	items []model.Todo
	input textinput.Model
	list  list.Model
	help  help.Model
	keys  keyMap
	focus focus

	status string
	width  int
	height int
}

// New builds the view over todos. Call Close when done to release the
// subscription.
func New(ctx context.Context, todos *state.Todos, title string, logger *slog.Logger) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = Placeholder
	ti.CharLimit = model.MaxTextLength
	ti.Focus()

	l := list.New(nil, itemDelegate{}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowPagination(true)
	l.DisableQuitKeybindings()
	l.Styles.PaginationStyle = ui.Current().Help

	sub, unsubscribe := todos.Observable().Subscribe()

	m := Model{
		ctx:         ctx,
		todos:       todos,
		logger:      logger,
		title:       title,
		sub:         sub,
		unsubscribe: unsubscribe,
		input:       ti,
		list:        l,
		help:        help.New(),
		keys:        defaultKeyMap(),
		focus:       focusInput,
		width:       defaultWidth,
		height:      defaultHeight,
	}
	m.resize()
	return m
}

// Close releases the collection subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Todos returns what the view currently shows.
func (m Model) Todos() []model.Todo { return m.items }

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listen())
}

// listen waits for the next collection value.
func (m Model) listen() tea.Cmd {
	sub := m.sub
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		v, ok := <-sub
		if !ok {
			return nil
		}
		return snapshotMsg(v)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case snapshotMsg:
		m.setItems(msg)
		return m, m.listen()

	case opResultMsg:
		m.status = ""
		if msg.err != nil && !errors.Is(msg.err, apperr.ErrSync) {
			m.status = fmt.Sprintf("%s: %v", msg.op, msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.focus == focusInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ForceQuit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.ClearAny):
		return m, m.clearCompleted()
	case key.Matches(msg, m.keys.Focus):
		return m.toggleFocus()
	}

	if m.focus == focusInput {
		switch msg.Type {
		case tea.KeyEnter:
			text := m.input.Value()
			m.input.Reset()
			if model.NormalizeText(text) == "" {
				return m, nil
			}
			return m, m.add(text)
		case tea.KeyEsc:
			return m.toggleFocus()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Toggle):
		if t, ok := m.selected(); ok {
			return m, m.toggle(t.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.Delete):
		if t, ok := m.selected(); ok {
			return m, m.remove(t.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.Clear):
		return m, m.clearCompleted()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) toggleFocus() (tea.Model, tea.Cmd) {
	if m.focus == focusInput {
		m.focus = focusList
		m.input.Blur()
		m.list.SetDelegate(itemDelegate{focused: true})
		return m, nil
	}
	m.focus = focusInput
	m.list.SetDelegate(itemDelegate{})
	return m, m.input.Focus()
}

func (m Model) selected() (model.Todo, bool) {
	it, ok := m.list.SelectedItem().(todoItem)
	if !ok {
		return model.Todo{}, false
	}
	return it.Todo, true
}

func (m *Model) setItems(todos []model.Todo) {
	m.items = todos
	items := make([]list.Item, 0, len(todos))
	for _, t := range todos {
		items = append(items, todoItem{t})
	}
	idx := m.list.Index()
	m.list.SetItems(items)
	if n := len(items); n > 0 && idx >= n {
		m.list.Select(n - 1)
	}
}

func (m *Model) resize() {
	h := m.height - chromeHeight
	if h < 1 {
		h = 1
	}
	m.list.SetSize(m.width-4, h)
	m.input.Width = m.width - 8
	m.help.Width = m.width - 4
}

func (m Model) add(text string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.todos.AddTodo(m.ctx, text)
		return opResultMsg{op: "add", err: err}
	}
}

func (m Model) toggle(id string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.todos.ToggleDone(m.ctx, id)
		return opResultMsg{op: "toggle", err: err}
	}
}

func (m Model) remove(id string) tea.Cmd {
	return func() tea.Msg {
		return opResultMsg{op: "delete", err: m.todos.DeleteTodo(m.ctx, id)}
	}
}

func (m Model) clearCompleted() tea.Cmd {
	if len(m.items) == 0 {
		return nil
	}
	return func() tea.Msg {
		n, err := m.todos.ClearCompletedTodos(m.ctx)
		m.logger.Debug("cleared completed todos", slog.Int("count", n))
		return opResultMsg{op: "clear", err: err}
	}
}

func (m Model) View() string {
	t := ui.Current()
	done, pending := model.Stats(m.items)

	var b strings.Builder
	b.WriteString(ui.Header(m.title, done, pending))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if len(m.items) == 0 {
		b.WriteString(t.Muted.Render(EmptyLabel))
	} else {
		b.WriteString(m.list.View())
		b.WriteString("\n\n")
		b.WriteString(t.Accent.Render(ClearLabel))
	}
	b.WriteString("\n")

	if m.focus == focusInput {
		b.WriteString(m.help.View(inputHelp{m.keys}))
	} else {
		b.WriteString(m.help.View(listHelp{m.keys}))
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(t.Error.Render(m.status))
	}
	return ui.Panel([]string{b.String()})
}

// Run shows the view until the user quits or ctx is done.
func Run(ctx context.Context, todos *state.Todos, title string, logger *slog.Logger) error {
	m := New(ctx, todos, title, logger)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
