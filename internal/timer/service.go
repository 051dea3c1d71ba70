package timer

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Broadcaster delivers events to sessions. Broadcast fans out to every
// session currently joined to a room, including the session that triggered
// the transition; SendToSession targets one session in its current room.
// Both must share one ordered delivery path so a join snapshot cannot be
// overtaken by an older transition broadcast. The gateway implements it.
type Broadcaster interface {
	Broadcast(timerID string, ev Event)
	SendToSession(sessionID string, ev Event)
}

// Service applies every transition to the registry. A single mutex serializes
// client actions, watcher ticks and reaper sweeps, so no two mutations of the
// same record ever interleave.
type Service struct {
	mu        sync.Mutex
	registry  *Registry
	clock     clockwork.Clock
	broadcast Broadcaster
	cfg       Config

	// cancel channel per running room; at most one watcher per room
	watchers map[string]chan struct{}
}

func NewService(registry *Registry, broadcast Broadcaster, clock clockwork.Clock, cfg Config) *Service {
	return &Service{
		registry:  registry,
		clock:     clock,
		broadcast: broadcast,
		cfg:       cfg.withDefaults(),
		watchers:  make(map[string]chan struct{}),
	}
}

// Create makes a new empty room and returns its id.
func (s *Service) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.registry.Create(s.clock.Now())
	log.Info().Str("timer_id", rec.ID).Int("total_timers", s.registry.Len()).Msg("timer created")
	return rec.ID
}

// Join validates the room and accounts a new session. The state snapshot and
// the join acknowledgment are emitted to the joining session through the
// broadcaster while the mutex is held, so they take their place in the room's
// event order: the session is never left holding a snapshot older than a
// broadcast it missed. The caller must have the session in the room's
// delivery pool before calling. The record is untouched on failure.
func (s *Service) Join(timerID, sessionID string) error {
	if timerID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.registry.Get(timerID)
	if !ok {
		log.Debug().Str("timer_id", timerID).Msg("join attempt for unknown timer")
		return ErrNotFound
	}

	now := s.clock.Now()
	rec.ConnectedUsers++
	rec.LastActivity = now

	s.broadcast.SendToSession(sessionID, NewEvent(EventStateSnapshot, timerID, now, snapshotOf(rec, now)))
	s.broadcast.SendToSession(sessionID, NewEvent(EventJoinAck, timerID, now, JoinAckPayload{
		Message: "Successfully joined timer!",
	}))

	log.Info().
		Str("timer_id", timerID).
		Int("connected_users", rec.ConnectedUsers).
		Msg("session joined timer")

	return nil
}

// Leave accounts a session leaving its room, whether by switching rooms or
// by disconnecting. The record itself stays; eviction is the reaper's job.
func (s *Service) Leave(timerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.registry.Get(timerID)
	if !ok {
		return
	}
	if rec.ConnectedUsers > 0 {
		rec.ConnectedUsers--
	}
	if rec.ConnectedUsers == 0 {
		// restart the inactivity window once the room empties
		rec.LastActivity = s.clock.Now()
	}

	log.Info().
		Str("timer_id", timerID).
		Int("connected_users", rec.ConnectedUsers).
		Msg("session left timer")
}

// SetDuration configures the countdown length. Only valid while stopped;
// resets the remaining time to the new duration.
func (s *Service) SetDuration(timerID string, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.registry.Get(timerID)
	if !ok {
		return ErrNotFound
	}
	if rec.Running {
		return fmt.Errorf("%w: cannot set duration while running", ErrInvalidState)
	}
	if seconds < 0 {
		return fmt.Errorf("%w: duration must be non-negative", ErrInvalidState)
	}

	now := s.clock.Now()
	rec.Duration = seconds
	rec.Remaining = seconds
	rec.LastActivity = now

	s.broadcast.Broadcast(timerID, NewEvent(EventDurationSet, timerID, now, DurationSetPayload{
		Duration:  seconds,
		Remaining: seconds,
	}))
	log.Info().Str("timer_id", timerID).Int("duration", seconds).Msg("duration set")
	return nil
}

// Start begins the countdown from the current remaining time and schedules
// the completion watcher. Starting an already running timer is a no-op.
func (s *Service) Start(timerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.registry.Get(timerID)
	if !ok {
		return ErrNotFound
	}
	if rec.Running {
		return nil
	}
	if rec.Remaining <= 0 {
		return fmt.Errorf("%w: set a duration before starting", ErrNoDuration)
	}

	now := s.clock.Now()
	rec.EndTime = now.Add(time.Duration(rec.Remaining) * time.Second)
	rec.Running = true
	rec.LastActivity = now

	s.watch(timerID)

	s.broadcast.Broadcast(timerID, NewEvent(EventStarted, timerID, now, StartedPayload{
		EndTime:   rec.EndTime.UnixMilli(),
		Remaining: rec.Remaining,
	}))
	log.Info().
		Str("timer_id", timerID).
		Int("remaining", rec.Remaining).
		Time("end_time", rec.EndTime).
		Msg("timer started")
	return nil
}

// Stop pauses the countdown, folding the elapsed time into the remaining
// value. Stopping an already stopped timer is a no-op.
func (s *Service) Stop(timerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.registry.Get(timerID)
	if !ok {
		return ErrNotFound
	}
	if !rec.Running {
		return nil
	}

	now := s.clock.Now()
	rec.Remaining = rec.CurrentRemaining(now)
	rec.Running = false
	rec.EndTime = time.Time{}
	rec.LastActivity = now

	s.cancelWatcher(timerID)

	s.broadcast.Broadcast(timerID, NewEvent(EventStopped, timerID, now, StoppedPayload{
		Remaining: rec.Remaining,
	}))
	log.Info().Str("timer_id", timerID).Int("remaining", rec.Remaining).Msg("timer stopped")
	return nil
}

// Reset restores the remaining time to the configured duration and stops the
// countdown. Always valid.
func (s *Service) Reset(timerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.registry.Get(timerID)
	if !ok {
		return ErrNotFound
	}

	now := s.clock.Now()
	rec.Remaining = rec.Duration
	rec.Running = false
	rec.EndTime = time.Time{}
	rec.LastActivity = now

	s.cancelWatcher(timerID)

	s.broadcast.Broadcast(timerID, NewEvent(EventReset, timerID, now, ResetPayload{
		Duration:  rec.Duration,
		Remaining: rec.Remaining,
	}))
	log.Info().Str("timer_id", timerID).Msg("timer reset")
	return nil
}

// completeIfDue fires the completion transition once the countdown hits zero.
// It reports whether the watcher should keep checking. Already-stopped and
// already-deleted rooms end the watch without emitting anything, which makes
// completion idempotent against late ticks.
func (s *Service) completeIfDue(timerID string) (keepWatching bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.registry.Get(timerID)
	if !ok || !rec.Running {
		return false
	}

	now := s.clock.Now()
	if rec.CurrentRemaining(now) > 0 {
		return true
	}

	rec.Running = false
	rec.Remaining = 0
	rec.EndTime = time.Time{}
	rec.LastActivity = now
	delete(s.watchers, timerID)

	s.broadcast.Broadcast(timerID, NewEvent(EventCompleted, timerID, now, nil))
	log.Info().Str("timer_id", timerID).Msg("timer completed")
	return false
}

// Snapshot returns the current state of one room, or false if it is unknown.
func (s *Service) Snapshot(timerID string) (SnapshotPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.registry.Get(timerID)
	if !ok {
		return SnapshotPayload{}, false
	}
	return snapshotOf(rec, s.clock.Now()), true
}

func snapshotOf(rec *Record, now time.Time) SnapshotPayload {
	p := SnapshotPayload{
		Duration:  rec.Duration,
		Remaining: rec.CurrentRemaining(now),
		Running:   rec.Running,
	}
	if rec.Running {
		p.EndTime = rec.EndTime.UnixMilli()
	}
	return p
}

// Stats is the read-only monitoring snapshot served by the stats endpoint.
type Stats struct {
	TotalTimers         int        `json:"totalTimers"`
	ActiveTimers        int        `json:"activeTimers"`
	TotalConnectedUsers int        `json:"totalConnectedUsers"`
	Timers              []RoomStat `json:"timers"`
}

// RoomStat summarizes one room. ID is truncated so the stats endpoint cannot
// be used to harvest joinable room ids.
type RoomStat struct {
	ID             string `json:"id"`
	ConnectedUsers int    `json:"connectedUsers"`
	Running        bool   `json:"running"`
	Time           int    `json:"time"`
	InactiveMins   int    `json:"inactiveMins"`
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	st := Stats{Timers: []RoomStat{}}
	s.registry.Each(func(rec *Record) {
		st.TotalTimers++
		if rec.Running {
			st.ActiveTimers++
		}
		st.TotalConnectedUsers += rec.ConnectedUsers

		id := rec.ID
		if len(id) > 8 {
			id = id[:8] + "..."
		}
		st.Timers = append(st.Timers, RoomStat{
			ID:             id,
			ConnectedUsers: rec.ConnectedUsers,
			Running:        rec.Running,
			Time:           rec.CurrentRemaining(now),
			InactiveMins:   int(math.Round(now.Sub(rec.LastActivity).Minutes())),
		})
	})
	return st
}
