package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Message is the envelope pushed to every subscriber of a version room.
type Message struct {
	Type      string      `json:"type"`
	VersionID int         `json:"version_id"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Client is one websocket subscriber. Subscribers join exactly one room,
// keyed by the schedule version they watch.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	VersionID int

	mu     sync.Mutex
	closed bool
}

// Hub fans schedule events out to websocket subscribers, one room per
// schedule version. Registration goes through channels serviced by Run;
// Publish delivers synchronously on the caller's goroutine.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	mu     sync.RWMutex
	rooms  map[int]map[*Client]bool
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[int]map[*Client]bool),
		logger:     logger,
	}
}

// Run services the register and unregister channels. Call it once, in its
// own goroutine, before accepting websocket connections.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			room, ok := h.rooms[client.VersionID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.VersionID] = room
			}
			room[client] = true
			h.logger.Info("subscriber joined",
				slog.Int("version_id", client.VersionID),
				slog.Int("room_size", len(room)))
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if room, ok := h.rooms[client.VersionID]; ok {
				if _, member := room[client]; member {
					client.closeSend()
					delete(room, client)
					if len(room) == 0 {
						delete(h.rooms, client.VersionID)
					}
					h.logger.Info("subscriber left",
						slog.Int("version_id", client.VersionID),
						slog.Int("room_size", len(room)))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish sends a typed event to every subscriber of the version's room.
// It satisfies the publisher interface the services depend on. Delivery is
// best effort: a subscriber whose send buffer is full misses the event
// rather than stalling the caller.
func (h *Hub) Publish(versionID int, eventType string, payload interface{}) {
	raw, err := json.Marshal(Message{Type: eventType, VersionID: versionID, Payload: payload})
	if err != nil {
		h.logger.Error("marshal event",
			slog.String("type", eventType),
			slog.Int("version_id", versionID),
			slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[versionID]
	if len(room) == 0 {
		return
	}
	for client := range room {
		client.mu.Lock()
		if client.closed {
			client.mu.Unlock()
			continue
		}
		select {
		case client.Send <- raw:
		default:
			h.logger.Warn("subscriber buffer full, dropping event",
				slog.String("type", eventType),
				slog.Int("version_id", versionID))
		}
		client.mu.Unlock()
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.Send)
		c.closed = true
	}
}

// ReadPump drains inbound frames until the connection drops, then
// unregisters the client. The board is read-only, so inbound payloads are
// discarded; the pump exists to notice disconnects and answer pings.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("subscriber read failed",
					slog.Int("version_id", c.VersionID),
					slog.Any("error", err))
			}
			return
		}
	}
}

// WritePump pushes queued events to the connection and keeps it alive with
// pings. It exits when the hub closes the send channel or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Fold any backlog into the same frame before closing it.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
