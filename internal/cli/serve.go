package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/mcpserver"
	"github.com/Makepad-fr/tada/internal/metrics"
	"github.com/Makepad-fr/tada/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the list over HTTP with an event stream and /metrics",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, closeLog, err := a.logger(logging.ModeServer)
			if err != nil {
				return err
			}
			defer closeLog()

			cfg := a.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
				if err := cfg.Server.Validate(); err != nil {
					return usageError{fmt.Errorf("--port: %w", err)}
				}
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			todos, closeStore, err := a.openTodos(cmd.Context(), logger, metrics.New(reg))
			if err != nil {
				return err
			}
			defer closeStore()

			logger.Info("Configuration loaded",
				slog.String("backend", cfg.Store.Backend),
				slog.Int("port", cfg.Server.Port),
				slog.String("auth", cfg.Server.Auth.Mode),
				slog.Bool("redis", cfg.Redis.Enabled()),
			)
			return server.New(cfg.Server, todos, reg, logger).Run(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config, 8080)")
	return cmd
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the list as MCP tools over stdio",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, closeLog, err := a.logger(logging.ModeStdio)
			if err != nil {
				return err
			}
			defer closeLog()

			todos, closeStore, err := a.openTodos(cmd.Context(), logger, nil)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, gCtx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return todos.Run(gCtx)
			})

			logger.Info("Starting MCP server on stdio")
			serveErr := mcpserver.New(todos, Version, logger).ServeStdio()
			if serveErr != nil {
				logger.Error("MCP server error", slog.String("error", serveErr.Error()))
			}
			cancel()
			_ = g.Wait()

			flushCtx, cancelFlush := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancelFlush()
			if err := todos.Flush(flushCtx); err != nil {
				logger.Warn("unsynced writes at exit", slog.String("error", err.Error()))
			}
			return serveErr
		},
	}
}
