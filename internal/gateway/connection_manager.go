package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/sharetimer/sharetimer/internal/timer"
)

// ConnectionManager owns every live websocket session and the per-room
// connection pools used for broadcast fan-out. It implements
// timer.Broadcaster: events enter a buffered channel and a single consumer
// goroutine fans them out, so events for a room are delivered in the order
// their transitions were applied.
type ConnectionManager struct {
	mu              sync.RWMutex
	roomConnections map[string]map[*Connection]bool
	connections     map[*Connection]bool

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock

	// timers is bound by the gateway service after construction; the timer
	// service in turn broadcasts through this manager.
	timers *timer.Service

	broadcastCh chan broadcastMessage
}

// Connection represents one client session. A session is joined to at most
// one timer room at a time; timerID is guarded by the manager's mutex.
type Connection struct {
	ID      string
	timerID string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// done is closed exactly once when the connection is unregistered. The
	// Send channel itself is never closed, so late broadcasts cannot panic.
	done      chan struct{}
	closeOnce sync.Once

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// broadcastMessage is one queued delivery. A non-empty SessionID narrows the
// fan-out to the one session in the room with that id.
type broadcastMessage struct {
	TimerID   string
	SessionID string
	Event     timer.Event
}

// DefaultConnectionConfig returns default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new websocket connection manager.
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		connections:     make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket session. The
// session joins rooms later through join messages; repeated joins re-home
// the same session.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		done:        make(chan struct{}),
		ConnectedAt: cm.clock.Now(),
		LastPing:    cm.clock.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("websocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection entirely, leaving its room and
// decrementing the room's user count.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	if _, exists := cm.connections[conn]; !exists {
		cm.mu.Unlock()
		return
	}
	delete(cm.connections, conn)
	timerID := conn.timerID
	if timerID != "" {
		cm.removeFromRoomLocked(conn, timerID)
	}
	cm.mu.Unlock()

	conn.closeOnce.Do(func() { close(conn.done) })

	if timerID != "" {
		cm.timers.Leave(timerID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("timer_id", timerID).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) removeFromRoomLocked(conn *Connection, timerID string) {
	if connections, exists := cm.roomConnections[timerID]; exists {
		delete(connections, conn)
		if len(connections) == 0 {
			delete(cm.roomConnections, timerID)
		}
	}
}

// Broadcast implements timer.Broadcaster.
func (cm *ConnectionManager) Broadcast(timerID string, ev timer.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{TimerID: timerID, Event: ev}:
	default:
		log.Warn().Str("timer_id", timerID).Msg("broadcast channel full, dropping event")
	}
}

// SendToSession implements timer.Broadcaster. The event travels the same
// queue as room broadcasts, so targeted sends keep their position in the
// room's event order.
func (cm *ConnectionManager) SendToSession(sessionID string, ev timer.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{TimerID: ev.TimerID, SessionID: sessionID, Event: ev}:
	default:
		log.Warn().Str("session_id", sessionID).Msg("broadcast channel full, dropping event")
	}
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.roomConnections[message.TimerID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		if message.SessionID != "" && conn.ID != message.SessionID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case <-conn.done:
		case conn.Send <- eventData:
		default:
			// slow or dead client; drop it rather than stall the room
			log.Warn().
				Str("connection_id", conn.ID).
				Str("timer_id", message.TimerID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("timer_id", message.TimerID).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// ConnectionStats reports live connection counts per room.
func (cm *ConnectionManager) ConnectionStats() (total int, perRoom map[string]int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	perRoom = make(map[string]int, len(cm.roomConnections))
	for timerID, connections := range cm.roomConnections {
		perRoom[timerID] = len(connections)
	}
	return len(cm.connections), perRoom
}

// writePump sends queued events and pings to the websocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads client actions from the websocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
