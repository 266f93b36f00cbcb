package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/livepad/internal/config"
	"github.com/conneroisu/livepad/internal/monitoring"
	"github.com/conneroisu/livepad/internal/server"
	"github.com/conneroisu/livepad/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the editor with live preview",
	Long: `Start the browser editor. Every edit is debounced for preview.refresh_delay
milliseconds, then the preview frame is replaced with the assembled document.

With --dir the initial bundle is read from index.html, style.css and script.js
in that directory; with --watch changes to those files on disk update the
preview too.

Examples:
  livepad serve                     # Start with the default content
  livepad serve --dir ./pad --watch # Preview files edited in another editor
  livepad serve -p 3000 --open      # Custom port, open the browser`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("open", false, "Open the editor in the default browser")
	serveCmd.Flags().StringP("dir", "d", "", "Workspace directory holding the fragment files")
	serveCmd.Flags().BoolP("watch", "w", false, "Re-render when workspace files change on disk")
	AddFlagValidation(serveCmd, "port", ValidatePort)

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.open", serveCmd.Flags().Lookup("open"))
	_ = viper.BindPFlag("workspace.dir", serveCmd.Flags().Lookup("dir"))
	_ = viper.BindPFlag("workspace.watch", serveCmd.Flags().Lookup("watch"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if result := config.ValidateConfigWithDetails(cfg); result.HasWarnings() {
		for _, w := range result.Warnings {
			logger.Warn(context.Background(), nil, w.Message, "field", w.Field, "value", w.Value)
		}
	}

	opts := server.Options{
		Config:  cfg,
		Logger:  logger,
		Metrics: monitoring.NewMetrics(),
	}
	if cfg.Workspace.Enabled() {
		ws, err := watcher.NewWorkspace(cfg.Workspace.Files())
		if err != nil {
			return err
		}
		opts.Workspace = ws
	}

	srv, err := server.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Starting livepad at http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	if opts.Workspace != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Workspace: %s\n", opts.Workspace.Dir())
	}

	return srv.Start(ctx)
}
