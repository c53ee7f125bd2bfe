package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"callaudit-server/pkg/fingerprint"
	"callaudit-server/pkg/pipeline"
)

// EventMessage is the wire form of a stage completion event
type EventMessage struct {
	Stage       string    `json:"stage"`
	Fingerprint string    `json:"fingerprint"`
	VersionID   string    `json:"version_id"`
	CacheHit    bool      `json:"cache_hit"`
	DurationMS  float64   `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// Client represents a connected WebSocket client
type Client struct {
	hub         *EventHub
	conn        *websocket.Conn
	send        chan []byte
	logger      *logrus.Logger
	fingerprint string // If client subscribes to a specific fingerprint
}

// EventHub manages WebSocket clients and broadcasts stage events
type EventHub struct {
	logger      *logrus.Logger
	clients     map[*Client]bool
	subscribers map[string]map[*Client]bool
	broadcast   chan *EventMessage
	register    chan *Client
	unregister  chan *Client
	mutex       sync.RWMutex
}

// WebSocketUpgrader configures the WebSocket connection
var WebSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all connections
		return true
	},
}

// NewEventHub creates a new stage event hub
func NewEventHub(logger *logrus.Logger) *EventHub {
	return &EventHub{
		logger:      logger,
		clients:     make(map[*Client]bool),
		subscribers: make(map[string]map[*Client]bool),
		broadcast:   make(chan *EventMessage, 64),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
	}
}

// NotifyStage implements pipeline.Notifier, forwarding the event to all
// relevant connected clients without blocking the pipeline
func (h *EventHub) NotifyStage(event pipeline.StageEvent) {
	message := &EventMessage{
		Stage:       event.Stage.String(),
		Fingerprint: string(event.Fingerprint),
		VersionID:   event.VersionID,
		CacheHit:    event.CacheHit,
		DurationMS:  float64(event.Duration) / float64(time.Millisecond),
		Timestamp:   event.Timestamp,
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Event hub broadcast channel full, dropping stage event")
	}
}

// Run starts the event hub loop
func (h *EventHub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket event hub")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Shutting down WebSocket event hub")
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true

			if client.fingerprint != "" {
				if _, exists := h.subscribers[client.fingerprint]; !exists {
					h.subscribers[client.fingerprint] = make(map[*Client]bool)
				}
				h.subscribers[client.fingerprint][client] = true
				h.logger.WithField("fingerprint", client.fingerprint).Info("Client subscribed to fingerprint")
			}

			h.mutex.Unlock()
			h.logger.Info("Client connected to WebSocket")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)

				if client.fingerprint != "" {
					if subscribers, exists := h.subscribers[client.fingerprint]; exists {
						delete(subscribers, client)
						if len(subscribers) == 0 {
							delete(h.subscribers, client.fingerprint)
						}
					}
				}

				h.logger.Info("Client disconnected from WebSocket")
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.WithError(err).Error("Failed to marshal stage event")
				continue
			}

			h.mutex.Lock()

			// Send to subscribers of this specific fingerprint
			if subscribers, exists := h.subscribers[message.Fingerprint]; exists {
				for client := range subscribers {
					select {
					case client.send <- data:
					default:
						close(client.send)
						delete(h.clients, client)
						delete(subscribers, client)
					}
				}
			}

			// Also broadcast to clients that want all events
			for client := range h.clients {
				if client.fingerprint != "" {
					continue
				}

				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}

			h.mutex.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWs handles WebSocket requests from clients
func (h *EventHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade connection to WebSocket")
		return
	}

	// Optional per-fingerprint subscription
	fp := fingerprint.Fingerprint(r.URL.Query().Get("fingerprint"))

	client := &Client{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, 256),
		logger:      h.logger,
		fingerprint: string(fp),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump discards client messages and detects disconnects
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(60 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
