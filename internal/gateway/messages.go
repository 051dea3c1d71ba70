package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sharetimer/sharetimer/internal/timer"
)

// Action identifies a client-to-server request.
type Action string

const (
	ActionJoin        Action = "join"
	ActionSetDuration Action = "setDuration"
	ActionStart       Action = "start"
	ActionStop        Action = "stop"
	ActionReset       Action = "reset"
)

// ClientMessage is the envelope for every client-to-server message.
type ClientMessage struct {
	Action  Action `json:"action"`
	TimerID string `json:"timerId,omitempty"`
	Seconds int    `json:"seconds,omitempty"`
}

func parseClientMessage(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("malformed message: %w", err)
	}
	if msg.Action == "" {
		return ClientMessage{}, errors.New("missing action")
	}
	return msg, nil
}

// handleClientMessage routes one client action. Control actions apply to
// whatever room the session currently occupies; actions from a session that
// never joined a room are dropped without a client-visible error.
func (c *Connection) handleClientMessage(raw []byte) {
	msg, err := parseClientMessage(raw)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("dropping unparseable client message")
		c.sendErrorMessage("Invalid message format")
		return
	}

	if msg.Action == ActionJoin {
		c.handleJoin(msg.TimerID)
		return
	}

	timerID := c.room()
	if timerID == "" {
		log.Debug().
			Str("connection_id", c.ID).
			Str("action", string(msg.Action)).
			Msg("ignoring action from session with no joined timer")
		return
	}

	switch msg.Action {
	case ActionSetDuration:
		err = c.Manager.timers.SetDuration(timerID, msg.Seconds)
	case ActionStart:
		err = c.Manager.timers.Start(timerID)
	case ActionStop:
		err = c.Manager.timers.Stop(timerID)
	case ActionReset:
		err = c.Manager.timers.Reset(timerID)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("action", string(msg.Action)).
			Msg("ignoring unknown action")
		return
	}

	if err != nil {
		c.sendError(err)
	}
}

// handleJoin moves the session into a room. The session enters the room's
// delivery pool before the join is applied, and the join emits the snapshot
// through the broadcast queue, so every transition after the snapshot is
// guaranteed to reach the joiner. A failed join restores the previous pool
// membership and leaves all records untouched.
func (c *Connection) handleJoin(timerID string) {
	if timerID == "" {
		c.sendError(timer.ErrInvalidID)
		return
	}

	prev := c.Manager.rehome(c, timerID)
	if err := c.Manager.timers.Join(timerID, c.ID); err != nil {
		c.Manager.rehomeBack(c, prev)
		c.sendError(err)
		return
	}
	if prev != "" {
		c.Manager.timers.Leave(prev)
	}
}

// sendEvent queues an event for this session only.
func (c *Connection) sendEvent(ev timer.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal event")
		return
	}
	select {
	case <-c.done:
	case c.Send <- data:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("event_type", string(ev.Type)).
			Msg("send buffer full, dropping event")
	}
}

// sendError reports an action failure to the originating session only.
func (c *Connection) sendError(err error) {
	var msg string
	switch {
	case errors.Is(err, timer.ErrInvalidID):
		msg = "Invalid timer ID format"
	case errors.Is(err, timer.ErrNotFound):
		msg = "Timer not found. Please check the timer ID and try again."
	default:
		msg = err.Error()
	}
	c.sendErrorMessage(msg)
}

func (c *Connection) sendErrorMessage(msg string) {
	c.sendEvent(timer.NewEvent(timer.EventError, c.room(), c.Manager.clock.Now(), timer.ErrorPayload{
		Message: msg,
	}))
}

// room returns the session's currently joined timer id, or "".
func (c *Connection) room() string {
	c.Manager.mu.RLock()
	defer c.Manager.mu.RUnlock()
	return c.timerID
}

// rehome moves a connection into a new room's pool, removing it from its
// previous one, and returns the previous room id. The timer-side user
// accounting for the previous room is the caller's responsibility.
func (cm *ConnectionManager) rehome(conn *Connection, timerID string) (prev string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	prev = conn.timerID
	if prev != "" {
		cm.removeFromRoomLocked(conn, prev)
	}
	if cm.roomConnections[timerID] == nil {
		cm.roomConnections[timerID] = make(map[*Connection]bool)
	}
	cm.roomConnections[timerID][conn] = true
	conn.timerID = timerID

	log.Info().
		Str("connection_id", conn.ID).
		Str("timer_id", timerID).
		Str("previous_timer_id", prev).
		Msg("session joined room")
	return prev
}

// rehomeBack undoes a rehome after a failed join, restoring the previous
// room membership (or none at all).
func (cm *ConnectionManager) rehomeBack(conn *Connection, prev string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.removeFromRoomLocked(conn, conn.timerID)
	conn.timerID = prev
	if prev == "" {
		return
	}
	if cm.roomConnections[prev] == nil {
		cm.roomConnections[prev] = make(map[*Connection]bool)
	}
	cm.roomConnections[prev][conn] = true
}
