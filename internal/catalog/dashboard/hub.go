// Package dashboard broadcasts catalog and sync events to websocket clients.
//
// The web server upgrades /ws requests and hands each connection to
// Hub.Serve. Sync runs report through Handler, which formats them as
// Messages and publishes them on the Hub.
package dashboard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/modelshelf/modelshelf/internal/metrics"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSyncStarted indicates a reconciliation run began
	MessageTypeSyncStarted MessageType = "sync_started"

	// MessageTypeSyncComplete indicates a reconciliation run finished
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeSyncFailed indicates a reconciliation run aborted
	MessageTypeSyncFailed MessageType = "sync_failed"

	// MessageTypeEntryUpdate indicates an entry was created, updated or deleted
	MessageTypeEntryUpdate MessageType = "entry_update"

	// MessageTypeStats carries catalog statistics
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Conn is the part of a websocket connection the hub uses.
// *websocket.Conn from gofiber/websocket satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Config holds hub configuration
type Config struct {
	// WriteTimeout bounds each message write (default: 5s)
	WriteTimeout time.Duration

	// Welcome, if set, produces the first message each client receives
	Welcome func() Message

	// Logger for hub activity (default: no-op)
	Logger *zap.Logger
}

// Hub manages websocket clients and fans messages out to them.
type Hub struct {
	clients   map[Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	writeTimeout time.Duration
	welcome      func() Message
	logger       *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub. Call Run to start delivering messages.
func NewHub(config *Config) *Hub {
	if config == nil {
		config = &Config{}
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Hub{
		clients:      make(map[Conn]bool),
		broadcast:    make(chan Message, 100),
		writeTimeout: config.WriteTimeout,
		welcome:      config.Welcome,
		logger:       config.Logger,
		done:         make(chan struct{}),
	}
}

// Run delivers broadcast messages until ctx is cancelled, then closes
// every client connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.clientsMu.Lock()
		for conn := range h.clients {
			_ = conn.Close()
			delete(h.clients, conn)
		}
		h.clientsMu.Unlock()
		metrics.SetDashboardClients(0)
	})
}

// Publish queues a message for all connected clients. It never blocks;
// when the queue is full the message is dropped.
func (h *Hub) Publish(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.logger.Warn("broadcast queue full, dropping message", zap.String("type", string(msg.Type)))
	}
}

func (h *Hub) deliver(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	clients := make([]Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.clientsMu.RUnlock()

	// Send outside the lock so a slow client cannot block registration.
	for _, conn := range clients {
		if err := h.write(conn, data); err != nil {
			h.logger.Debug("failed to send to client", zap.Error(err))
			h.removeClient(conn)
		}
	}
}

func (h *Hub) write(conn Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Serve registers conn and blocks until the client disconnects or the hub
// stops. Client messages are read and discarded.
func (h *Hub) Serve(conn Conn) {
	select {
	case <-h.done:
		_ = conn.Close()
		return
	default:
	}

	// The welcome goes out before registration so it never races the
	// broadcast loop for the connection.
	if h.welcome != nil {
		data, err := json.Marshal(h.welcome())
		if err == nil {
			if err := h.write(conn, data); err != nil {
				_ = conn.Close()
				return
			}
		}
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()
	metrics.SetDashboardClients(count)
	h.logger.Debug("client connected", zap.Int("clients", count))

	defer h.removeClient(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// removeClient safely removes a client connection
func (h *Hub) removeClient(conn Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; !exists {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	count := len(h.clients)
	h.clientsMu.Unlock()

	_ = conn.Close()
	metrics.SetDashboardClients(count)
	h.logger.Debug("client disconnected", zap.Int("clients", count))
}

// ClientCount returns the current number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
