// Package stream pushes promotion lifecycle events to websocket subscribers
// (dashboards and the execution layer's alerting sidecar).
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradeguard/internal/models"
)

const (
	writeTimeout     = 10 * time.Second
	clientBufferSize = 16
)

// Envelope wraps every event on the wire with its type
type Envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Broadcaster fans promotion events out to connected websocket clients.
// Slow clients are dropped rather than allowed to block the promotion path.
type Broadcaster struct {
	upgrader websocket.Upgrader
	logger   *logrus.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan Envelope
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(logger *logrus.Logger) *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// HandleWS upgrades an HTTP request to a websocket subscription
func (b *Broadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Envelope, clientBufferSize)}

	b.mu.Lock()
	b.clients[c] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.WithField("clients", count).Debug("Event stream client connected")

	go b.writeLoop(c)
	go b.readLoop(c)
}

// ClientCount returns the number of connected subscribers
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// PromotionChanged broadcasts a promotion lifecycle transition
func (b *Broadcaster) PromotionChanged(event models.PromotionStateChanged) {
	b.broadcast(Envelope{Type: "promotion_state_changed", Payload: event, Timestamp: time.Now()})
}

// ParameterApplied broadcasts a live parameter change
func (b *Broadcaster) ParameterApplied(event models.ParameterApplied) {
	b.broadcast(Envelope{Type: "parameter_applied", Payload: event, Timestamp: time.Now()})
}

// Halt broadcasts a catastrophic halt signal
func (b *Broadcaster) Halt(signal models.HaltSignal) {
	b.broadcast(Envelope{Type: "halt_signal", Payload: signal, Timestamp: time.Now()})
}

// Close disconnects all clients
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		close(c.send)
		delete(b.clients, c)
	}
}

func (b *Broadcaster) broadcast(env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for c := range b.clients {
		select {
		case c.send <- env:
		default:
			// Buffer full: the client is too slow to keep.
			close(c.send)
			delete(b.clients, c)
			b.logger.Warn("Dropped slow event stream client")
		}
	}
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		close(c.send)
		delete(b.clients, c)
	}
}

func (b *Broadcaster) writeLoop(c *client) {
	defer c.conn.Close()

	for env := range c.send {
		data, err := json.Marshal(env)
		if err != nil {
			b.logger.WithError(err).Error("Failed to encode stream event")
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			b.remove(c)
			return
		}
	}
}

// readLoop drains client frames so pings are answered and closes are seen
func (b *Broadcaster) readLoop(c *client) {
	defer b.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
