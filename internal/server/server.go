package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/jackzampolin/larder/internal/api"
	"github.com/jackzampolin/larder/internal/config"
	"github.com/jackzampolin/larder/internal/home"
	"github.com/jackzampolin/larder/internal/pipeline"
	"github.com/jackzampolin/larder/internal/providers"
	"github.com/jackzampolin/larder/internal/server/endpoints"
	"github.com/jackzampolin/larder/internal/store"
	"github.com/jackzampolin/larder/internal/svcctx"
)

// Server is the main Larder HTTP server.
// It owns the recipe store and the home-directory lock for its lifetime.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	registry   *providers.Registry
	configMgr  *config.Manager
	home       *home.Dir
	runner     providers.Runner
	logger     *slog.Logger

	store    store.Store
	pipeline *pipeline.Pipeline
	lock     *flock.Flock

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080, "0" picks a free port)
	Port string
	// Home is the larder home directory; it holds the lock file and the default store
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Store overrides the configured recipe store
	Store store.Store
	// Runner executes tesseract and pdftotext; nil uses os/exec
	Runner providers.Runner
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Create provider registry
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)

	s := &Server{
		registry:  registry,
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		runner:    cfg.Runner,
		store:     cfg.Store,
		logger:    cfg.Logger,
	}
	if cfg.Home != nil {
		s.lock = flock.New(cfg.Home.LockPath())
	}

	rc := s.currentConfig().ToProviderRegistryConfig()
	rc.Runner = cfg.Runner
	registry.Reload(rc)

	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(s.applyConfig)
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           s.withServices(mux),
		ReadHeaderTimeout: 30 * time.Second,
		// PDF extraction may run for its full timeout before recovery starts.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func (s *Server) currentConfig() *config.Config {
	if s.configMgr != nil {
		return s.configMgr.Get()
	}
	return config.DefaultConfig()
}

// applyConfig is the hot-reload callback.
func (s *Server) applyConfig(c *config.Config) {
	rc := c.ToProviderRegistryConfig()
	rc.Runner = s.runner
	s.registry.Reload(rc)

	s.mu.RLock()
	p := s.pipeline
	s.mu.RUnlock()
	if p != nil {
		p.ApplyConfig(c)
	}
	s.logger.Info("provider registry reloaded from config")
}

// Init takes the home lock, opens the recipe store and builds the pipeline.
// Start calls it; tests may call it directly and serve Handler themselves.
func (s *Server) Init(ctx context.Context) error {
	if s.lock != nil {
		if err := s.home.EnsureExists(); err != nil {
			return err
		}
		ok, err := s.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another larder server is already using %s", s.home.Path())
		}
	}

	cfg := s.currentConfig()
	if s.store == nil {
		st, err := s.openStore(cfg)
		if err != nil {
			s.unlock()
			return err
		}
		s.store = st
	}

	p := pipeline.FromConfig(cfg, pipeline.Options{
		Registry: s.registry,
		Store:    s.store,
		Runner:   s.runner,
		Logger:   s.logger,
	})

	s.mu.Lock()
	s.pipeline = p
	s.services = &svcctx.Services{
		Pipeline:      p,
		Registry:      s.registry,
		ConfigManager: s.configMgr,
		Logger:        s.logger,
		Home:          s.home,
	}
	s.mu.Unlock()

	s.logger.Info("pipeline ready",
		"backends", p.Orchestrator().Backends(),
		"ocr", s.registry.ListOCR(),
		"llm", s.registry.ListLLM(),
		"semantic_recovery", p.Recovery().HasLLM())
	return nil
}

func (s *Server) openStore(cfg *config.Config) (store.Store, error) {
	driver, path := cfg.Storage.Driver, cfg.Storage.Path
	if path == "" && s.home != nil {
		path = s.home.StorePath()
	}
	if path == "" && (driver == "" || driver == "sqlite") {
		s.logger.Warn("no store path and no home directory, keeping recipes in memory")
		driver = "memory"
	}
	st, err := store.Open(driver, path, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipe store: %w", err)
	}
	s.logger.Info("recipe store opened", "driver", driver, "path", path)
	return st, nil
}

// Start initializes the server and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.Init(ctx); err != nil {
		s.setNotRunning()
		return err
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown stops HTTP, cancels running extractions, closes the store and
// releases the lock.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.mu.RLock()
	p := s.pipeline
	s.mu.RUnlock()
	if p != nil {
		p.Orchestrator().Tasks().CancelAll()
	}

	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Error("recipe store close error", "error", err)
		}
	}
	s.unlock()

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) unlock() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release lock", "path", s.lock.Path(), "error", err)
	}
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Pipeline returns the recipe pipeline.
// Returns nil if the server hasn't been initialized yet.
func (s *Server) Pipeline() *pipeline.Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pipeline
}

// Addr returns the server's listen address. After Start it is the bound
// address, which differs from the configured one when port 0 was used.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Handler returns the HTTP handler with services attached.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.mu.RLock()
		services := s.services
		s.mu.RUnlock()
		if services == nil {
			// Settings and health work before Init; the pipeline stays nil.
			services = &svcctx.Services{Registry: s.registry, ConfigManager: s.configMgr, Logger: s.logger, Home: s.home}
		}
		ctx = svcctx.WithServices(ctx, services)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the pipeline isn't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Pipeline() == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
