package timer

import (
	"github.com/rs/zerolog/log"
)

// The completion watcher is a per-running-room goroutine that rechecks the
// countdown on a short interval and fires the completion transition when it
// reaches zero. The deadline itself stays authoritative on the record; the
// watcher only observes it, so a cancelled or late tick can never corrupt
// state.

// watch begins the recheck loop for a room. The caller must hold s.mu; the
// Running guard in Start ensures no watcher already exists for the room.
func (s *Service) watch(timerID string) {
	cancel := make(chan struct{})
	s.watchers[timerID] = cancel
	go s.runWatcher(timerID, cancel)
}

// cancelWatcher clears any pending recheck for the room. The caller must
// hold s.mu.
func (s *Service) cancelWatcher(timerID string) {
	if cancel, ok := s.watchers[timerID]; ok {
		close(cancel)
		delete(s.watchers, timerID)
	}
}

func (s *Service) runWatcher(timerID string, cancel <-chan struct{}) {
	ticker := s.clock.NewTicker(s.cfg.WatchInterval)
	defer ticker.Stop()

	log.Debug().Str("timer_id", timerID).Msg("completion watcher started")

	for {
		select {
		case <-cancel:
			log.Debug().Str("timer_id", timerID).Msg("completion watcher cancelled")
			return
		case <-ticker.Chan():
			if !s.completeIfDue(timerID) {
				return
			}
		}
	}
}
