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
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// StateSource builds the clock snapshot a viewer receives on connect.
type StateSource interface {
	SyncEvent(ctx context.Context, draftID uuid.UUID) (models.TimerEvent, error)
}

// ConnectionManager manages WebSocket connections for draft events
type ConnectionManager struct {
	// Connection pools organized by draft ID
	pools map[uuid.UUID]*draftPool
	mu    sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	hub    *Hub
	source StateSource
}

// draftPool is the set of connections watching one draft, fed by one hub subscription.
type draftPool struct {
	conns map[*Connection]bool
	sub   *Subscription
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	UserID  string
	DraftID uuid.UUID
	Conn    *websocket.Conn
	Manager *ConnectionManager

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	SyncTimeout     time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// clientMessage is what a viewer may send; only sync requests are understood.
type clientMessage struct {
	Type string `json:"type"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		SyncTimeout:     3 * time.Second,
		MaxMessageSize:  1024, // 1KB max message size
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, hub *Hub, source StateSource) *ConnectionManager {
	return &ConnectionManager{
		pools: make(map[uuid.UUID]*draftPool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		hub:    hub,
		source: source,
	}
}

// Start blocks until ctx is done, then closes every connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	<-ctx.Done()
	log.Info().Msg("connection manager shutting down")

	cm.mu.RLock()
	var all []*Connection
	for _, pool := range cm.pools {
		for conn := range pool.conns {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()
	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. The first frame the
// client receives is a sync of the current clock; events that arrive meanwhile
// queue behind it.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string, draftID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		DraftID:     draftID,
		Conn:        conn,
		send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: now,
		LastPing:    now,
	}

	cm.registerConnection(connection)

	if frame, err := cm.syncFrame(r.Context(), draftID); err != nil {
		log.Warn().Err(err).Str("draft_id", draftID.String()).Msg("failed to build initial sync")
	} else {
		conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			cm.unregisterConnection(connection)
			return fmt.Errorf("write initial sync: %w", err)
		}
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("draft_id", draftID.String()).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) syncFrame(ctx context.Context, draftID uuid.UUID) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, cm.config.SyncTimeout)
	defer cancel()

	ev, err := cm.source.SyncEvent(ctx, draftID)
	if err != nil {
		return nil, err
	}
	frame, err := NewSyncFrame(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame)
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pool := cm.pools[conn.DraftID]
	if pool == nil {
		pool = &draftPool{
			conns: make(map[*Connection]bool),
			sub:   cm.hub.Subscribe(conn.DraftID, cm.config.SendBuffer),
		}
		cm.pools[conn.DraftID] = pool
		go cm.pump(conn.DraftID, pool.sub)
	}
	pool.conns[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("draft_id", conn.DraftID.String()).
		Int("total_connections", len(pool.conns)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pool, exists := cm.pools[conn.DraftID]
	if !exists || !pool.conns[conn] {
		return
	}
	delete(pool.conns, conn)
	conn.closeSend()

	// Clean up empty draft connection pools
	if len(pool.conns) == 0 {
		pool.sub.Close()
		delete(cm.pools, conn.DraftID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Str("draft_id", conn.DraftID.String()).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) pump(draftID uuid.UUID, sub *Subscription) {
	for ev := range sub.C {
		cm.handleBroadcast(draftID, ev)
	}
}

// handleBroadcast writes one event to every connection of the draft. Connections
// that cannot keep up are closed.
func (cm *ConnectionManager) handleBroadcast(draftID uuid.UUID, event *DraftEvent) {
	eventData, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	cm.mu.RLock()
	pool := cm.pools[draftID]
	n := 0
	if pool != nil {
		n = len(pool.conns)
		for conn := range pool.conns {
			if !conn.enqueue(eventData) {
				slow = append(slow, conn)
			}
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Str("draft_id", draftID.String()).
		Int("connections", n).
		Msg("event broadcasted")
}

// ConnectionStats is a point-in-time view of the gateway.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveDrafts     int            `json:"active_drafts"`
	DraftConnections map[string]int `json:"draft_connections"`
	Hub              HubStats       `json:"hub"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	stats := ConnectionStats{
		ActiveDrafts:     len(cm.pools),
		DraftConnections: make(map[string]int, len(cm.pools)),
	}
	for draftID, pool := range cm.pools {
		stats.TotalConnections += len(pool.conns)
		stats.DraftConnections[draftID.String()] = len(pool.conns)
	}
	cm.mu.RUnlock()

	stats.Hub = cm.hub.Stats()
	return stats
}

// enqueue queues a frame without blocking. It reports false when the buffer is full.
func (c *Connection) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage answers a viewer's sync request with a fresh snapshot.
func (c *Connection) handleClientMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.Type != "sync" {
		log.Debug().
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Bytes("message", message).
			Msg("ignoring client message")
		return
	}

	frame, err := c.Manager.syncFrame(context.Background(), c.DraftID)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("failed to answer sync request")
		return
	}
	c.enqueue(frame)
}
