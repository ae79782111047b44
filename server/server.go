// Package server provides the HTTP server for the adlift launch service.
//
// The server exposes a small REST API for driving campaign launches,
// publishing them, and inspecting their provisioning state.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /session?id= - Launch state of a session (resources, lease, active)
//   - GET /config - Returns current configuration as YAML
//   - GET /metrics - Prometheus metrics (scrape mode only)
//   - POST /launch - Runs the provisioning pipeline for a session
//   - POST /activate - Publishes a fully provisioned session
//   - POST /reload - Reloads configuration from disk
//
// # Architecture
//
// The session store and metrics registry are built once at startup; their
// configuration requires a restart to change. The provider client is
// config-derived and swapped atomically on reload, so credentials and
// endpoint changes take effect on the next launch without interrupting any
// run already holding a lease.
//
// # Example
//
//	srv, err := server.New("/etc/adlift/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/nomis52/adlift/config"
	"github.com/nomis52/adlift/logging"
	"github.com/nomis52/adlift/metrics"
	"github.com/nomis52/adlift/pipeline"
	"github.com/nomis52/adlift/provider"
	"github.com/nomis52/adlift/reconcile"
	"github.com/nomis52/adlift/server/handlers"
	"github.com/nomis52/adlift/server/launch"
	"github.com/nomis52/adlift/store"
)

const (
	defaultReadTimeout = 10 * time.Second
	// Launches make up to six remote calls; give writes room to finish.
	defaultWriteTimeout    = 3 * time.Minute
	defaultShutdownTimeout = 5 * time.Second
)

// serverDeps holds config-derived dependencies that are swapped atomically on reload.
type serverDeps struct {
	config *config.Config
	client *provider.Client
}

// Server is the HTTP server for the adlift launch service.
type Server struct {
	addr       string
	configPath string
	logger     *slog.Logger
	deps       atomic.Pointer[serverDeps]
	httpServer *http.Server

	store    store.Store
	registry metrics.Registry
	scrape   *metrics.ScrapeRegistry
	launcher *launch.Launcher
	trigger  *reconcile.Trigger
}

// Option configures a Server.
type Option func(*Server) error

// WithListenAddr overrides the listen address from the config file.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// New creates a new Server from the config at the given path.
// It loads the configuration and initializes all dependencies.
func New(configPath string, opts ...Option) (*Server, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	s := &Server{
		addr:       cfg.Server.Listen,
		configPath: configPath,
		logger:     logger,
	}
	s.deps.Store(&serverDeps{
		config: &cfg,
		client: newProviderClient(&cfg, logger),
	})

	s.store, err = newStore(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}

	s.registry, s.scrape, err = newRegistry(cfg.Monitoring)
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}

	pipelineMetrics, err := pipeline.NewMetrics(s.registry)
	if err != nil {
		return nil, fmt.Errorf("registering pipeline metrics: %w", err)
	}

	s.launcher = launch.New(s.store, s, logger,
		pipeline.WithMetrics(pipelineMetrics),
		pipeline.WithLeaseTTL(cfg.Reconcile.LeaseTTL),
	)

	if cfg.Reconcile.Schedule != "" {
		reconciler := reconcile.New(s.store, logger, cfg.Reconcile.LeaseTTL,
			reconcile.WithMetrics(s.registry),
		)
		s.trigger, err = reconcile.NewTrigger(cfg.Reconcile.Schedule, reconciler, logger)
		if err != nil {
			return nil, fmt.Errorf("creating reconcile trigger: %w", err)
		}
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Reload reads the config from disk and swaps the config-derived
// dependencies. The session store and metrics registry are fixed at
// startup; changing them requires a restart.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return err
	}

	if cfg.Store != s.Config().Store {
		s.logger.Warn("store configuration changed; restart required for it to take effect")
	}

	s.deps.Store(&serverDeps{
		config: &cfg,
		client: newProviderClient(&cfg, s.logger),
	})

	s.logger.Info("configuration loaded", "config_path", s.configPath)

	return nil
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.deps.Load().config
}

// ProviderClient returns the current provider client.
func (s *Server) ProviderClient() *provider.Client {
	return s.deps.Load().client
}

// NextSweep returns the next scheduled reconcile sweep, or nil if the sweep
// is disabled.
func (s *Server) NextSweep() *time.Time {
	if s.trigger == nil {
		return nil
	}
	next := s.trigger.NextRun()
	return &next
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done.
// If a reconcile trigger is configured, it will be started automatically.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	if s.trigger != nil {
		s.logger.Info("starting reconcile trigger",
			"next_run", s.trigger.NextRun(),
		)
		s.trigger.Start(ctx)
	}

	cfg := s.Config()
	tlsEnabled := cfg.Server.TLSCert != "" && cfg.Server.TLSKey != ""

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.addr,
			"config_path", s.configPath,
			"tls", tlsEnabled,
		)
		var err error
		if tlsEnabled {
			err = s.serveTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	launchHandler := handlers.NewLaunchHandler(s.logger, s.launcher)
	activateHandler := handlers.NewActivateHandler(s.logger, s.launcher)
	sessionHandler := handlers.NewSessionHandler(s.launcher)
	configHandler := handlers.NewConfigHandler(s)
	reloadHandler := handlers.NewReloadHandler(s.logger, s)

	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /session", sessionHandler)
	mux.Handle("GET /config", configHandler)

	// Mutating endpoints require the API key when one is configured.
	mux.Handle("POST /launch", s.requireAPIKey(launchHandler))
	mux.Handle("POST /activate", s.requireAPIKey(activateHandler))
	mux.Handle("POST /reload", s.requireAPIKey(reloadHandler))

	if s.scrape != nil {
		mux.Handle("GET /metrics", s.scrape.Handler())
	}
}

func newProviderClient(cfg *config.Config, logger *slog.Logger) *provider.Client {
	return provider.New(cfg.Provider.BaseURL, cfg.Provider.APIVersion,
		provider.WithTimeout(cfg.Provider.Timeout),
		provider.WithLogger(logger),
	)
}

func newStore(cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "disk":
		return store.NewDiskStore(cfg.Dir, logger)
	case "postgres":
		return store.NewPostgresStore(cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newRegistry(cfg config.MonitoringConfig) (metrics.Registry, *metrics.ScrapeRegistry, error) {
	switch cfg.Mode {
	case "push":
		instance, err := os.Hostname()
		if err != nil {
			instance = "unknown"
		}
		reg := metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.RemoteWriteURL,
			Prefix:   cfg.MetricsPrefix,
			Job:      cfg.JobName,
			Instance: instance,
		})
		return reg, nil, nil
	default:
		scrape, err := metrics.NewScrapeRegistry()
		if err != nil {
			return nil, nil, err
		}
		return scrape, scrape, nil
	}
}
