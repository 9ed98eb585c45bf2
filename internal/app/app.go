package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/broadcaster/internal/api"
	"github.com/foxzi/broadcaster/internal/config"
	"github.com/foxzi/broadcaster/internal/list"
	"github.com/foxzi/broadcaster/internal/metrics"
	"github.com/foxzi/broadcaster/internal/sender"
	"github.com/foxzi/broadcaster/internal/session"
	"github.com/foxzi/broadcaster/internal/session/gateway"
	"github.com/foxzi/broadcaster/internal/session/sandbox"
	"github.com/foxzi/broadcaster/internal/state"
	"github.com/foxzi/broadcaster/internal/storage"
	"github.com/foxzi/broadcaster/internal/template"
)

// App is the main application
type App struct {
	config        *config.Config
	db            *bolt.DB
	state         *state.State
	apiServer     *api.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)
	return newApp(cfg, logger)
}

func newApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	app, err := build(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return app, nil
}

func build(cfg *config.Config, db *bolt.DB, logger *slog.Logger) (*App, error) {
	ctx := context.Background()

	listStore, err := list.NewBoltStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create list store: %w", err)
	}
	lists := list.Open(ctx, listStore, logger.With("component", "lists"))

	templates, err := template.NewStorage(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create template storage: %w", err)
	}

	var (
		sess     session.Session
		captures *sandbox.Storage
	)
	if cfg.IsSandbox() {
		fixture, err := sandbox.LoadFixture(cfg.Session.Sandbox.FixtureFile)
		if err != nil {
			return nil, err
		}
		captures, err = sandbox.NewStorage(db)
		if err != nil {
			return nil, fmt.Errorf("failed to create sandbox storage: %w", err)
		}
		sb := sandbox.New(fixture, captures, logger.With("component", "sandbox"))
		sb.SetErrorSimulation(cfg.Session.Sandbox.ErrorProbability, time.Now().UnixNano())
		sess = sb
		logger.Info("sandbox session enabled",
			"contacts", len(fixture.Contacts),
			"groups", len(fixture.Groups),
			"error_probability", cfg.Session.Sandbox.ErrorProbability,
		)
	} else {
		sess = gateway.NewClient(gateway.Options{
			BaseURL:     cfg.Session.GatewayURL,
			APIKey:      cfg.Session.APIKey,
			CallbackURL: cfg.Session.CallbackURL,
			Timeout:     cfg.Session.Timeout,
			Logger:      logger.With("component", "gateway"),
		})
	}

	snd := sender.New(sess, sender.Config{
		AddressSuffix: cfg.Session.AddressSuffix,
		RatePerSec:    cfg.Send.RatePerSec,
	}, logger.With("component", "sender"))

	st := state.NewState(state.StateOptions{
		Session:      sess,
		Lists:        lists,
		Sender:       snd,
		Templates:    templates,
		EventsBuffer: cfg.Session.EventsBuffer,
		Logger:       logger.With("component", "state"),
	})

	app := &App{
		config: cfg,
		db:     db,
		state:  st,
		apiServer: api.NewServerWithOptions(api.ServerOptions{
			State:           st,
			Config:          &cfg.API,
			Logger:          logger.With("component", "api"),
			TemplateStorage: templates,
			SandboxStorage:  captures,
		}),
		logger: logger,
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)

		collector, err := metrics.NewCollector(db, m, st, cfg.Metrics.FlushInterval)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create metrics collector: %w", err)
		}
		app.collector = collector
		app.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		app.metricsServer.SetReadiness(func() bool { return st.Status().Ready })
	}

	return app, nil
}

// State returns the application state
func (a *App) State() *state.State {
	return a.state
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting broadcaster",
		"version", api.Version,
		"session_mode", a.config.Session.Mode,
		"api_addr", a.config.API.ListenAddr,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go a.state.RunEvents(ctx)

	if a.collector != nil {
		a.collector.Start(ctx)
	}

	// Channel to collect errors
	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	if err := a.state.StartSession(ctx); err != nil {
		a.logger.Error("failed to start session", "error", err)
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Stop the running broadcast before storage goes away
	a.state.Close()

	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			a.logger.Error("metrics collector stop error", "error", err)
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
