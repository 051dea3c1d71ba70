package timer

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Run starts the periodic inactivity sweep and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	log.Info().
		Dur("sweep_interval", s.cfg.SweepInterval).
		Dur("inactivity_timeout", s.cfg.InactivityTimeout).
		Msg("inactivity reaper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("inactivity reaper stopped")
			return
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}

// Sweep evicts rooms that sat idle too long: empty rooms past the inactivity
// timeout, and any room past four times the timeout regardless of connected
// users. The ceiling guards against rooms stuck running with phantom
// connections. Eviction cancels any pending completion watcher and emits no
// broadcast, since no one is listening.
func (s *Service) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	evicted := 0
	s.registry.Each(func(rec *Record) {
		inactive := now.Sub(rec.LastActivity)
		if (rec.ConnectedUsers == 0 && inactive > s.cfg.InactivityTimeout) ||
			inactive > 4*s.cfg.InactivityTimeout {
			s.cancelWatcher(rec.ID)
			s.registry.Delete(rec.ID)
			evicted++
			log.Info().
				Str("timer_id", rec.ID).
				Dur("inactive", inactive).
				Int("connected_users", rec.ConnectedUsers).
				Msg("evicted inactive timer")
		}
	})

	if evicted > 0 {
		log.Info().
			Int("evicted", evicted).
			Int("remaining_timers", s.registry.Len()).
			Msg("reaper sweep complete")
	}
}
