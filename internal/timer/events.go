package timer

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType identifies a server-to-client event.
type EventType string

const (
	EventStateSnapshot EventType = "stateSnapshot"
	EventJoinAck       EventType = "joinAck"
	EventDurationSet   EventType = "durationSet"
	EventStarted       EventType = "started"
	EventStopped       EventType = "stopped"
	EventReset         EventType = "reset"
	EventCompleted     EventType = "completed"
	EventError         EventType = "error"
)

// Event is the envelope every server-to-client message travels in.
type Event struct {
	Type      EventType       `json:"type"`
	TimerID   string          `json:"timerId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SnapshotPayload is the full current state sent to a session on join.
// EndTime is unix milliseconds and only set while the timer is running.
type SnapshotPayload struct {
	Duration  int   `json:"duration"`
	Remaining int   `json:"remainingTime"`
	EndTime   int64 `json:"endTime,omitempty"`
	Running   bool  `json:"running"`
}

type JoinAckPayload struct {
	Message string `json:"message"`
}

type DurationSetPayload struct {
	Duration  int `json:"duration"`
	Remaining int `json:"remainingTime"`
}

// StartedPayload carries the absolute deadline so clients compute remaining
// time locally instead of relying on broadcast ticks.
type StartedPayload struct {
	EndTime   int64 `json:"endTime"`
	Remaining int   `json:"remainingTime"`
}

type StoppedPayload struct {
	Remaining int `json:"remainingTime"`
}

type ResetPayload struct {
	Duration  int `json:"duration"`
	Remaining int `json:"remainingTime"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEvent wraps a payload in an event envelope. A nil payload produces an
// envelope with no data, as for completion events.
func NewEvent(t EventType, timerID string, now time.Time, payload any) Event {
	ev := Event{
		Type:      t,
		TimerID:   timerID,
		Timestamp: now,
	}
	if payload == nil {
		return ev
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to marshal event payload")
		return ev
	}
	ev.Data = data
	return ev
}
