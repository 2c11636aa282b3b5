package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one message on the /api/events stream. The frontend uses it
// to update layer progress bars without polling /api/grid/status.
type Event struct {
	Type    string `json:"type"`
	Layer   string `json:"layer,omitempty"`
	Samples int    `json:"samples,omitempty"`
}

// EventHub fans events out to connected websocket clients.
type EventHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]*eventClient
}

// eventClient serializes writes to one connection. Broadcast runs on the
// grid store's notify path, so several prefetch workers can reach the
// same connection at once; gorilla/websocket allows only one writer.
type eventClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *eventClient) write(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(ev)
}

func NewEventHub() *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The UI is served from file:// or localhost; origin
			// checks add nothing here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*eventClient),
	}
}

// Handle upgrades the connection and keeps it registered until the peer
// goes away. Clients are write-only; inbound messages are discarded.
func (h *EventHub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = &eventClient{conn: conn}
	n := len(h.clients)
	h.mu.Unlock()
	slog.Debug("Event stream client connected", "clients", n)

	go h.readLoop(conn)
}

func (h *EventHub) readLoop(conn *websocket.Conn) {
	defer h.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends an event to every connected client. Slow or dead
// clients are dropped rather than allowed to stall the caller.
func (h *EventHub) Broadcast(ev Event) {
	h.mu.Lock()
	clients := make([]*eventClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.write(ev); err != nil {
			slog.Debug("Dropping event stream client", "error", err)
			h.drop(c.conn)
		}
	}
}

// ClientCount returns how many clients are connected.
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *EventHub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.clients = make(map[*websocket.Conn]*eventClient)
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (h *EventHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}
