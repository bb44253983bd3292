package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/tui"
)

const flushTimeout = 10 * time.Second

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive list (same as running todo alone)",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), a)
		},
	}
}

// runTUI shows the interactive list while the collection keeps syncing in
// the background. Pending writes get one last try on exit.
func runTUI(ctx context.Context, a *app) error {
	logger, closeLog, err := a.logger(logging.ModeTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	todos, closeStore, err := a.openTodos(ctx, logger, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return todos.Run(gCtx)
	})
	g.Go(func() error {
		defer cancel()
		return tui.Run(gCtx, todos, a.cfg.App.Title, logger)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	flushCtx, cancelFlush := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancelFlush()
	if err := todos.Flush(flushCtx); err != nil {
		logger.Warn("unsynced writes at exit", slog.String("error", err.Error()))
		return err
	}
	return nil
}
