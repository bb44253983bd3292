// Package cli wires the todo subcommands with cobra.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/metrics"
	"github.com/Makepad-fr/tada/internal/state"
	"github.com/Makepad-fr/tada/internal/store/backend"
	"github.com/Makepad-fr/tada/internal/ui"
)

// EnvConfig points at the config file when --config is not given.
const EnvConfig = "TADA_CONFIG"

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Version is set at build time.
var Version = "dev"

// usageError marks errors caused by how the command was invoked.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// usageArgs tags argument validation failures as usage errors.
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	backend    string
	cfg        *config.Config
}

// loadConfig reads the config file once. A missing default file means
// defaults; a missing explicit file is an error.
func (a *app) loadConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg := config.NewDefaultConfig()
	path := a.configPath
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	var err error
	if path == "" {
		err = config.LoadOptional(config.DefaultPath(), cfg)
	} else {
		err = config.Load(path, cfg)
	}
	if err != nil {
		return nil, err
	}
	if a.backend != "" {
		cfg.Store.Backend = a.backend
		if err := cfg.Validate(); err != nil {
			return nil, usageError{fmt.Errorf("--backend: %w", err)}
		}
	}
	ui.SetTheme(cfg.App.Theme)
	a.cfg = cfg
	return cfg, nil
}

// logger builds the logger for mode, honoring the configured level.
func (a *app) logger(mode logging.Mode) (*slog.Logger, func() error, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return logging.New(mode, cfg.App.LogLevel, cfg.App.LogFile)
}

// openTodos opens the configured table and loads the collection.
func (a *app) openTodos(ctx context.Context, logger *slog.Logger, m *metrics.Metrics) (*state.Todos, func(), error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	table, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	todos := state.New(table,
		state.WithLogger(logger),
		state.WithMetrics(m),
		state.WithRetryInterval(cfg.Sync.RetryInterval),
	)
	if err := todos.Load(ctx); err != nil {
		table.Close()
		return nil, nil, err
	}
	return todos, func() {
		if err := table.Close(); err != nil {
			logger.Warn("close store", slog.String("error", err.Error()))
		}
	}, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "todo",
		Short: "A tiny synced to-do list",
		Long: `todo keeps a list of things to do in a terminal UI, from one-shot
commands, over HTTP or through MCP. Running it with no subcommand opens
the interactive list.`,
		Version:       Version,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), a)
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"config file (default $"+EnvConfig+" or ~/.tada/config.yaml)")
	root.PersistentFlags().StringVar(&a.backend, "backend", "",
		"override store.backend: memory, json, sqlite, postgres or remote")

	root.AddCommand(
		newTUICmd(a),
		newAddCmd(a),
		newListCmd(a),
		newDoneCmd(a),
		newRemoveCmd(a),
		newClearCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
		newAuthCmd(a),
	)
	return root
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	ui.Fail(stderr, err.Error())

	var ue usageError
	if errors.As(err, &ue) {
		return ExitUsage
	}
	return ExitError
}
