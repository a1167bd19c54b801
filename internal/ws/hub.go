// Package ws streams auction events to connected observers over websockets.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"adspot-auction/internal/events"
)

const (
	sendBuffer = 32
	writeWait  = 5 * time.Second
)

type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	slotID string
	once   sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans events out to websocket observers. A client that falls behind
// loses messages instead of stalling the auction.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*Client]bool
}

var _ events.Notifier = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  map[*Client]bool{},
	}
}

// HandleWS upgrades the request; ?slotId= limits the stream to one slot.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		slotID: strings.TrimSpace(r.URL.Query().Get("slotId")),
	}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	metricObservers.Inc()

	go h.writeLoop(client)
	h.readLoop(client)
}

// readLoop only watches for the peer going away.
func (h *Hub) readLoop(c *Client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *Client) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = c.conn.Close()
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		metricObservers.Dec()
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) Notify(_ context.Context, ev events.Event) {
	msg, err := json.Marshal(events.ToEnvelope(ev))
	if err != nil {
		log.Warn().Err(err).Str("type", string(ev.Kind())).Msg("ws encode event")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.slotID != "" && c.slotID != ev.Slot() {
			continue
		}
		select {
		case c.send <- msg:
		default:
			metricDropped.Inc()
		}
	}
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
