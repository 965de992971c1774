package server

import (
	"log/slog"
	"net/http"

	"github.com/Vova4kaua/UADIA/pkg/handlers"
	"github.com/Vova4kaua/UADIA/pkg/handlers/stream"
)

// routeConfig defines one route registration.
type routeConfig struct {
	Method   string
	Pattern  string
	Function http.HandlerFunc
}

func (s *Server) registerRoutes() {
	healthHandler := handlers.NewHealthHandler(Version, map[string]handlers.Probe{
		"runtime": s.runtimeProbe(),
		"history": s.storeProbe(),
	})

	streamHandler := stream.NewHandler(s.registry, s.store, s.auth, s.rt, s.provider, stream.Config{
		HistoryLimit:  s.config.Console.ReplayLimit,
		ObserverQueue: s.config.Console.ObserverQueue,
		StatsInterval: s.config.Console.StatsInterval.Std(),
	})

	chain := s.middlewareChain()

	routes := []routeConfig{
		// Health endpoints
		{"GET", "/health", healthHandler.HealthCheck},
		{"GET", "/health/ready", healthHandler.ReadinessCheck},

		// Log history
		{"GET", "/api/v1/servers/:server_id/logs", streamHandler.HandleLogs},

		// Live endpoints
		{"GET", "/ws/console/:server_id", streamHandler.HandleConsole},
		{"GET", "/ws/stats/:server_id", streamHandler.HandleStats},
	}

	for _, route := range routes {
		slog.Debug("registering route",
			slog.String("method", route.Method),
			slog.String("pattern", route.Pattern),
		)
		s.router.Handle(route.Method, route.Pattern, chain(route.Function).ServeHTTP)
	}
}
