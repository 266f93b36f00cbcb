// Package server exposes the preview pipeline to a browser editor: the
// editor page, the sandboxed preview frame, a JSON API for the bundle and
// commands, and a websocket pushing render state and diagnostics.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/browser"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/config"
	"github.com/conneroisu/livepad/internal/diagnostics"
	"github.com/conneroisu/livepad/internal/errors"
	"github.com/conneroisu/livepad/internal/logging"
	"github.com/conneroisu/livepad/internal/monitoring"
	"github.com/conneroisu/livepad/internal/preview"
	"github.com/conneroisu/livepad/internal/surface"
	"github.com/conneroisu/livepad/internal/validation"
	"github.com/conneroisu/livepad/internal/version"
	"github.com/conneroisu/livepad/internal/watcher"
)

// maxBodyBytes bounds request bodies; bundles are plain text.
const maxBodyBytes = 5 << 20

// Options configures a Server. Config is required.
type Options struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *monitoring.Metrics
	// Workspace, when set, provides the initial bundle and is watched if
	// Config.Workspace.Watch is set.
	Workspace *watcher.Workspace
	// OpenBrowser overrides how the editor URL is opened.
	OpenBrowser func(url string) error
}

// Server serves the editor with live preview.
type Server struct {
	config      *config.Config
	logger      logging.Logger
	errHandler  *errors.ErrorHandler
	metrics     *monitoring.Metrics
	frame       *surface.Frame
	pipeline    *preview.Pipeline
	diagnostics *diagnostics.Collector
	templates   *bundle.Templates
	hub         *Hub
	health      *monitoring.HealthMonitor
	limiter     *RateLimiter
	workspace   *watcher.Workspace
	fileWatcher *watcher.FileWatcher
	openBrowser func(string) error
	handler     http.Handler

	serverMutex  sync.RWMutex
	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
}

// New wires the preview pipeline to a browser frame surface. Nothing is
// rendered until Start mounts the frame.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "server requires a configuration", nil)
	}
	cfg := opts.Config
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = browser.OpenURL
	}
	logger := opts.Logger.WithComponent("server")

	initial := cfg.Editor.DefaultContent.Bundle()
	if opts.Workspace != nil {
		b, err := opts.Workspace.Load()
		if err != nil {
			return nil, err
		}
		initial = b
	}

	frame := surface.NewFrame()
	collector := diagnostics.NewCollector(cfg.Preview.MaxDiagnostics)

	pipeline, err := preview.New(preview.Options{
		RefreshDelay:             cfg.Preview.RefreshDelayDuration(),
		Surface:                  frame,
		Logger:                   opts.Logger,
		Metrics:                  opts.Metrics,
		Diagnostics:              collector,
		ClearDiagnosticsOnRender: cfg.Preview.ClearDiagnosticsOnRender,
		Initial:                  initial,
	})
	if err != nil {
		return nil, err
	}

	security := SecurityConfigFromAppConfig(cfg, logger)

	s := &Server{
		config:      cfg,
		logger:      logger,
		errHandler:  errors.NewErrorHandler(logger),
		metrics:     opts.Metrics,
		frame:       frame,
		pipeline:    pipeline,
		diagnostics: collector,
		templates:   bundle.NewTemplates(cfg.Editor.DefaultContent.Bundle()),
		hub:         NewHub(security.AllowedOrigins, opts.Logger, opts.Metrics),
		health:      monitoring.NewHealthMonitor(opts.Logger, version.Short(), cfg.Server.Environment),
		limiter:     NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger),
		workspace:   opts.Workspace,
		openBrowser: opts.OpenBrowser,
	}

	s.wireEvents()
	s.registerHealthChecks()
	s.handler = s.routes(security)

	return s, nil
}

// wireEvents forwards pipeline activity to websocket clients.
func (s *Server) wireEvents() {
	s.pipeline.Reporter().Subscribe(func(state preview.RenderState) {
		s.hub.Broadcast(Event{Type: EventState, State: &state})
	})
	s.frame.OnSwap(func(revision uint64) {
		s.hub.Broadcast(Event{Type: EventReload, Revision: revision})
	})
	s.diagnostics.Subscribe(func(d diagnostics.Diagnostic) {
		s.metrics.RecordDiagnostic(string(d.Kind))
		s.hub.Broadcast(Event{Type: EventDiagnostic, Diagnostic: &d})
	})
}

func (s *Server) registerHealthChecks() {
	s.health.RegisterCheck(monitoring.GoroutineHealthChecker())
	s.health.RegisterCheck(monitoring.HealthChecker{
		Name:     "preview",
		Critical: true,
		Check: func(ctx context.Context) (monitoring.HealthStatus, string, map[string]interface{}) {
			_, rev := s.frame.Current()
			state := s.pipeline.State()
			meta := map[string]interface{}{"revision": rev, "renders": state.Renders, "status": state.Status}
			switch {
			case !s.frame.Mounted():
				return monitoring.HealthStatusUnhealthy, "Preview surface is not mounted", meta
			case state.Status == preview.StatusError:
				return monitoring.HealthStatusDegraded, state.Message, meta
			}
			return monitoring.HealthStatusHealthy, "Preview pipeline operational", meta
		},
	})
	if s.workspace != nil {
		s.health.RegisterCheck(monitoring.WorkspaceHealthChecker(s.workspace.Dir()))
	}
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Pipeline exposes the preview pipeline.
func (s *Server) Pipeline() *preview.Pipeline {
	return s.pipeline
}

// Diagnostics exposes the diagnostics collector.
func (s *Server) Diagnostics() *diagnostics.Collector {
	return s.diagnostics
}

// Mount makes the preview frame available and renders the current bundle.
func (s *Server) Mount() error {
	s.frame.Mount()
	return s.pipeline.RequestImmediate()
}

// Start mounts the preview, starts the workspace watcher if configured and
// serves HTTP until ctx is cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Mount(); err != nil {
		return err
	}

	if s.workspace != nil && s.config.Workspace.Watch {
		fw, err := watcher.NewFileWatcher(watcher.DefaultSettleDelay, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := s.workspace.Watch(ctx, fw, s.pipeline.NotifyChanged); err != nil {
			fw.Stop()
			return err
		}
		s.fileWatcher = fw
		s.logger.Info(ctx, "Watching workspace", "dir", s.workspace.Dir())
	}

	addr := net.JoinHostPort(s.config.Server.Host, fmt.Sprint(s.config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeIOFailed, "failed to listen on "+addr, err)
	}

	s.serverMutex.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	url := "http://" + ln.Addr().String()
	s.logger.Info(ctx, "Serving editor", "url", url)
	if s.config.Server.Open {
		go func() {
			if err := validation.ValidateURL(url); err != nil {
				s.logger.Warn(ctx, err, "Refusing to open browser", "url", url)
				return
			}
			if err := s.openBrowser(url); err != nil {
				s.logger.Warn(ctx, err, "Failed to open browser", "url", url)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Addr returns the listening address once Start is serving.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the server and cleans up resources
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		if s.fileWatcher != nil {
			if err := s.fileWatcher.Stop(); err != nil {
				s.logger.Warn(ctx, err, "Failed to stop file watcher")
			}
		}

		s.pipeline.Close()
		s.frame.Unmount()
		s.hub.Close()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}
