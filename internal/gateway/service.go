package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/sharetimer/sharetimer/internal/timer"
)

// Service wires the connection manager, the timer state machine and the HTTP
// handlers into one unit with a single Start.
type Service struct {
	connectionManager *ConnectionManager
	timers            *timer.Service
	handler           *Handler
}

// Config holds configuration for the gateway service.
type Config struct {
	Connection ConnectionConfig
	Timer      timer.Config
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{
		Connection: DefaultConnectionConfig(),
	}
}

// NewService creates the gateway around a registry. The connection manager
// and the timer service reference each other: transitions broadcast through
// the manager, and client actions dispatch into the timer service.
func NewService(cfg Config, registry *timer.Registry, clock clockwork.Clock) *Service {
	cm := NewConnectionManager(cfg.Connection, clock)
	timers := timer.NewService(registry, cm, clock, cfg.Timer)
	cm.timers = timers

	return &Service{
		connectionManager: cm,
		timers:            timers,
		handler:           NewHandler(cm, timers),
	}
}

// Start runs the broadcast fan-out and the inactivity reaper until ctx is
// done.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting timer gateway service")

	go s.connectionManager.Start(ctx)
	go s.timers.Run(ctx)

	<-ctx.Done()
	log.Info().Msg("timer gateway service stopped")
}

// RegisterRoutes registers the gateway HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.handler.RegisterRoutes(mux)
	log.Info().Msg("timer gateway routes registered")
}

// ConnectionStats reports live connection totals.
func (s *Service) ConnectionStats() (total int, perRoom map[string]int) {
	return s.connectionManager.ConnectionStats()
}
