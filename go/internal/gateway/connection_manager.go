package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/metrics"
	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/session"
)

// MessageHandler receives validated messages and connection teardown.
type MessageHandler interface {
	Handle(ctx context.Context, connID string, id session.Identity, msg protocol.Inbound)
	Disconnect(connID string)
}

type Metrics interface {
	Inc(name string)
	Dec(name string)
}

// ConnectionManager owns the websocket connections and implements
// session.Transport.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	closed      bool

	upgrader  websocket.Upgrader
	config    ConnectionConfig
	validator *protocol.Validator
	metrics   Metrics
	handler   MessageHandler
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID       string
	Identity session.Identity
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

type ConnectionStats struct {
	TotalConnections int `json:"total_connections"`
	Authenticated    int `json:"authenticated"`
	Anonymous        int `json:"anonymous"`
}

func NewConnectionManager(config ConnectionConfig, validator *protocol.Validator, m Metrics) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:    config,
		validator: validator,
		metrics:   m,
	}
}

// Bind sets the handler that receives inbound messages. Connections are
// refused until a handler is bound.
func (cm *ConnectionManager) Bind(h MessageHandler) {
	cm.mu.Lock()
	cm.handler = h
	cm.mu.Unlock()
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, id session.Identity) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := &Connection{
		ID:          uuid.New().String(),
		Identity:    id,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}

	if err := cm.registerConnection(connection); err != nil {
		cancel()
		cm.failSetup(conn, err)
		return nil
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", id.UserID).
		Msg("websocket connection established")
	return nil
}

// failSetup tells the client why its freshly upgraded connection is being
// closed. Other connections are unaffected.
func (cm *ConnectionManager) failSetup(conn *websocket.Conn, cause error) {
	log.Error().Err(cause).Msg("websocket connection setup failed")
	if payload, err := protocol.Encode(protocol.TypeError, protocol.ErrorMessage{Code: "internal_error"}); err == nil {
		conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
		conn.WriteMessage(websocket.TextMessage, payload)
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""))
	conn.Close()
}

func (cm *ConnectionManager) registerConnection(conn *Connection) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	switch {
	case cm.closed:
		return errors.New("connection manager closed")
	case cm.handler == nil:
		return errors.New("no message handler bound")
	}
	cm.connections[conn.ID] = conn
	cm.metrics.Inc(metrics.ConnectionsActive)

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
	return nil
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.connections[conn.ID]; !ok {
		return false
	}
	delete(cm.connections, conn.ID)
	close(conn.Send)
	cm.metrics.Dec(metrics.ConnectionsActive)
	return true
}

// Send queues one message for connID without blocking. A connection whose
// buffer is full is dropped.
func (cm *ConnectionManager) Send(connID string, t protocol.Type, data any) {
	payload, err := protocol.Encode(t, data)
	if err != nil {
		log.Error().Err(err).Str("connection_id", connID).Msg("failed to encode outbound message")
		return
	}

	var slow *Connection
	cm.mu.RLock()
	if c, ok := cm.connections[connID]; ok {
		select {
		case c.Send <- payload:
		default:
			slow = c
		}
	}
	cm.mu.RUnlock()

	if slow != nil {
		log.Warn().
			Str("connection_id", slow.ID).
			Str("type", string(t)).
			Msg("connection send buffer full, closing connection")
		// Send runs on session actors; teardown calls back into them.
		go slow.close()
	}
}

func (cm *ConnectionManager) IsConnected(connID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.connections[connID]
	return ok
}

func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{TotalConnections: len(cm.connections)}
	for _, c := range cm.connections {
		if c.Identity.UserID != "" {
			stats.Authenticated++
		} else {
			stats.Anonymous++
		}
	}
	return stats
}

// Close refuses new connections and tears down every open one.
func (cm *ConnectionManager) Close() {
	cm.mu.Lock()
	cm.closed = true
	open := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		open = append(open, c)
	}
	cm.mu.Unlock()

	for _, c := range open {
		c.close()
	}
	log.Info().Int("connections", len(open)).Msg("connection manager closed")
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		removed := c.Manager.unregisterConnection(c)
		c.Conn.Close()
		if !removed {
			return
		}

		c.Manager.mu.RLock()
		h := c.Manager.handler
		c.Manager.mu.RUnlock()
		if h != nil {
			h.Disconnect(c.ID)
		}

		log.Info().
			Str("connection_id", c.ID).
			Str("user_id", c.Identity.UserID).
			Dur("connected_for", time.Since(c.ConnectedAt)).
			Msg("connection closed")
	})
}

func (c *Connection) writePump() {
	cfg := c.Manager.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	cfg := c.Manager.config
	defer c.close()

	c.Conn.SetReadLimit(cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	}
}

func (c *Connection) handleClientMessage(message []byte) {
	cm := c.Manager
	msg, err := cm.validator.Decode(message)
	if err != nil {
		cm.metrics.Inc(metrics.InvalidMessages)
		cm.rejectInvalid(c.ID, err)
		return
	}

	cm.mu.RLock()
	h := cm.handler
	cm.mu.RUnlock()
	h.Handle(c.ctx, c.ID, c.Identity, msg)
}

// rejectInvalid answers a message that failed decoding in the shape the
// client expects for that message type.
func (cm *ConnectionManager) rejectInvalid(connID string, err error) {
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		perr = &protocol.Error{Message: err.Error()}
	}

	log.Debug().
		Str("connection_id", connID).
		Str("type", string(perr.Type)).
		Str("error", perr.Message).
		Msg("rejected invalid message")

	switch perr.Type {
	case "":
		cm.Send(connID, protocol.TypeError, protocol.ErrorMessage{Code: "invalid_message", Message: perr.Message})
	case protocol.TypeSubmitAnswer:
		cm.Send(connID, protocol.TypeAnswerAck, protocol.AnswerAck{
			Reason:  string(session.ReasonInvalidPayload),
			Message: perr.Message,
		})
	default:
		cm.Send(connID, protocol.RejectedType(perr.Type), protocol.Rejected{
			Code:    string(session.ReasonInvalidPayload),
			Message: perr.Message,
			Details: perr.Fields,
		})
	}
}
