package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/state"
	"github.com/Makepad-fr/tada/internal/ui"
)

// oneShot runs fn against a freshly loaded collection with the CLI logger.
func (a *app) oneShot(ctx context.Context, fn func(*state.Todos) error) error {
	logger, closeLog, err := a.logger(logging.ModeCLI)
	if err != nil {
		return err
	}
	defer closeLog()

	todos, closeStore, err := a.openTodos(ctx, logger, nil)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(todos)
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "add <text...>",
		Short:   "Add a new todo (text can be multiple words)",
		Example: `  todo add "Buy milk"`,
		Args:    usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if model.NormalizeText(text) == "" {
				return usagef("add: %v", apperr.ErrEmptyText)
			}
			return a.oneShot(cmd.Context(), func(todos *state.Todos) error {
				if _, err := todos.AddTodo(cmd.Context(), text); err != nil {
					if errors.Is(err, apperr.ErrInvalid) {
						return usagef("add: %v", err)
					}
					return fmt.Errorf("add: %w", err)
				}
				ui.OK(a.stdout, "added")
				return nil
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var group, asJSON bool
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List todos",
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.oneShot(cmd.Context(), func(todos *state.Todos) error {
				items := todos.Snapshot()
				if asJSON {
					return printJSON(a.stdout, items)
				}
				fmt.Fprintln(a.stdout, ui.Panel(listLines(a.cfg.App.Title, items, group)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "group output by pending/done")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	return cmd
}

func newDoneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "done <ref>",
		Short:   "Toggle done for a todo (1-based index or id prefix)",
		Example: "  todo done 2",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.oneShot(cmd.Context(), func(todos *state.Todos) error {
				t, err := resolveRef(todos.Snapshot(), args[0])
				if err != nil {
					return a.refError(err)
				}
				if _, err := todos.ToggleDone(cmd.Context(), t.ID); err != nil {
					return fmt.Errorf("done: %w", err)
				}
				ui.OK(a.stdout, "toggled")
				return nil
			})
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <ref>",
		Short:   "Remove a todo (1-based index or id prefix)",
		Example: "  todo rm 3",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.oneShot(cmd.Context(), func(todos *state.Todos) error {
				t, err := resolveRef(todos.Snapshot(), args[0])
				if err != nil {
					return a.refError(err)
				}
				if err := todos.DeleteTodo(cmd.Context(), t.ID); err != nil {
					return fmt.Errorf("rm: %w", err)
				}
				ui.OK(a.stdout, "removed")
				return nil
			})
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every completed todo",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.oneShot(cmd.Context(), func(todos *state.Todos) error {
				n, err := todos.ClearCompletedTodos(cmd.Context())
				if err != nil {
					return fmt.Errorf("clear: %w", err)
				}
				ui.OK(a.stdout, fmt.Sprintf("cleared %d", n))
				return nil
			})
		},
	}
}

// refError prints the listing hint and marks the failure as usage.
func (a *app) refError(err error) error {
	ui.Hint(a.stderr, "Hint: run `todo ls` to see valid indexes")
	return usageError{err}
}

// resolveRef finds a todo by 1-based index, full id or unique id prefix.
// All-digit refs are always indexes.
func resolveRef(todos []model.Todo, ref string) (model.Todo, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(todos) {
			return model.Todo{}, fmt.Errorf("index out of range: have %d, got %d: %w", len(todos), n, apperr.ErrNotFound)
		}
		return todos[n-1], nil
	}
	if ref == "" {
		return model.Todo{}, fmt.Errorf("empty reference: %w", apperr.ErrNotFound)
	}

	var matches []model.Todo
	for _, t := range todos {
		if t.ID == ref {
			return t, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return model.Todo{}, fmt.Errorf("no todo with id %q: %w", ref, apperr.ErrNotFound)
	case 1:
		return matches[0], nil
	}
	return model.Todo{}, fmt.Errorf("%q matches %d todos: %w", ref, len(matches), apperr.ErrAmbiguousRef)
}

// -------------- rendering helpers --------------

func listLines(title string, items []model.Todo, group bool) []string {
	t := ui.Current()
	d, p := model.Stats(items)

	lines := []string{
		ui.Header(title, d, p),
		t.Muted.Render(ui.ProgressBar(d, d+p, 28)),
		"",
	}
	if group {
		lines = append(lines, groupLines(items)...)
	} else {
		lines = append(lines, flatLines(items, 1)...)
	}
	lines = append(lines, "", t.Muted.Render("Tip: add with `todo add \"Buy milk\"`"))
	return lines
}

func flatLines(items []model.Todo, first int) []string {
	t := ui.Current()
	if len(items) == 0 {
		return []string{t.Muted.Render("no todos")}
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		idx := t.Muted.Render(fmt.Sprintf("%2d.", first+i))
		text := truncate(it.Text, 80)
		if it.Done {
			text = t.Done.Render(text)
		}
		out = append(out, fmt.Sprintf("%s %s %s %s", idx, it.Icon(), text, t.Muted.Render(shortID(it.ID))))
	}
	return out
}

// groupLines keeps each todo's ls index so done/rm still apply.
func groupLines(items []model.Todo) []string {
	t := ui.Current()
	var pend, done []string
	for i, it := range items {
		line := flatLines([]model.Todo{it}, i+1)[0]
		if it.Done {
			done = append(done, line)
		} else {
			pend = append(pend, line)
		}
	}
	section := func(name string, lines []string) []string {
		out := []string{t.Accent.Render(name)}
		if len(lines) == 0 {
			return append(out, t.Muted.Render("(none)"))
		}
		return append(out, lines...)
	}
	lines := section("Pending", pend)
	lines = append(lines, "")
	return append(lines, section("Done", done)...)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// printJSON is shared by commands printing machine-readable output.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

