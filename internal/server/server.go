// Package server assembles the console service: container runtime,
// history store, session registry, and the HTTP surface over them.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Vova4kaua/UADIA/pkg/auth"
	"github.com/Vova4kaua/UADIA/pkg/config"
	"github.com/Vova4kaua/UADIA/pkg/console"
	"github.com/Vova4kaua/UADIA/pkg/history"
	"github.com/Vova4kaua/UADIA/pkg/middleware"
	"github.com/Vova4kaua/UADIA/pkg/router"
	"github.com/Vova4kaua/UADIA/pkg/runtime"
)

// Version is stamped at build time.
var Version = "dev"

// Deps are the injectable backends; zero fields get production
// defaults in New.
type Deps struct {
	Runtime    runtime.Runtime
	Store      history.Store
	Authorizer auth.Authorizer
}

// Server is the assembled console service.
type Server struct {
	router   *router.Router
	config   *config.Config
	registry *console.Registry
	rt       runtime.Runtime
	provider *runtime.HandleProvider
	store    history.Store
	auth     auth.Authorizer
}

// New creates a server with production backends: the Docker runtime
// and the configured history store.
func New(cfg *config.Config) (*Server, error) {
	rt, err := runtime.NewDockerRuntime()
	if err != nil {
		return nil, fmt.Errorf("init container runtime: %w", err)
	}
	rt.SetInputPath(cfg.Console.InputPath)

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	return NewWithDeps(cfg, Deps{Runtime: rt, Store: store})
}

// NewWithDeps creates a server over explicit backends. Used by tests
// and embedders.
func NewWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Runtime == nil {
		return nil, fmt.Errorf("runtime is required")
	}
	if deps.Store == nil {
		deps.Store = history.NewMemoryStore(cfg.History.MemoryLimit)
	}
	if deps.Authorizer == nil {
		deps.Authorizer = auth.AllowAll{}
	}
	if err := cfg.Console.SessionOptionsValid(); err != nil {
		return nil, err
	}

	provider := runtime.NewHandleProvider(deps.Runtime, cfg.Console.NameTemplate, cfg.Console.ResolveTimeout.Std())

	registry := console.NewRegistry(deps.Runtime, provider, deps.Store, console.Options{
		Policy:        console.TeardownPolicy(cfg.Console.TeardownPolicy),
		GracePeriod:   cfg.Console.GracePeriod.Std(),
		DrainTimeout:  cfg.Console.DrainTimeout.Std(),
		ReplayLimit:   cfg.Console.ReplayLimit,
		TailLines:     cfg.Console.TailLines,
		PersistQueue:  cfg.Console.PersistQueue,
		ObserverQueue: cfg.Console.ObserverQueue,
	})

	srv := &Server{
		router:   router.NewRouter(),
		config:   cfg,
		registry: registry,
		rt:       deps.Runtime,
		provider: provider,
		store:    deps.Store,
		auth:     deps.Authorizer,
	}
	srv.registerRoutes()

	slog.Info("server initialized",
		slog.String("addr", cfg.Addr),
		slog.String("teardown", cfg.Console.TeardownPolicy),
		slog.String("history", cfg.History.Backend))
	return srv, nil
}

func openStore(cfg *config.Config) (history.Store, error) {
	switch cfg.History.Backend {
	case "", "sqlite":
		store, err := history.OpenSQLite(cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		return store, nil
	case "memory":
		return history.NewMemoryStore(cfg.History.MemoryLimit), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Registry exposes the session registry, mainly for shutdown hooks.
func (s *Server) Registry() *console.Registry {
	return s.registry
}

// Cleanup closes every live session and the backends.
func (s *Server) Cleanup() error {
	slog.Info("shutting down console service")

	s.registry.CloseAll()

	if closer, ok := s.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("history store close failed", slog.String("error", err.Error()))
		}
	}
	if closer, ok := s.rt.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("runtime close failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// runtimeProbe adapts the runtime's Ping for readiness when it has
// one.
func (s *Server) runtimeProbe() func(ctx context.Context) error {
	if pinger, ok := s.rt.(interface{ Ping(ctx context.Context) error }); ok {
		return pinger.Ping
	}
	return func(context.Context) error { return nil }
}

func (s *Server) storeProbe() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.store.Recent(ctx, "readiness-probe", 1)
		return err
	}
}

func (s *Server) middlewareChain() middleware.Middleware {
	return middleware.Chain(
		middleware.Logger(),
		middleware.Recovery(),
		middleware.TokenAuth(s.config.Token, nil),
	)
}
