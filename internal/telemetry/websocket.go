package telemetry

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fyt-labs/auto-aim/tracker"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is a single connected snapshot viewer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts target snapshots to every connected viewer. Clients
// whose send buffer is full are dropped rather than allowed to block
// the broadcast loop.
type Hub struct {
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	clients    map[*client]bool
}

// NewHub constructs an idle Hub; call Run to start its event loop.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 16),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
	}
}

// Run drives the hub's register/unregister/broadcast loop. It blocks
// and is meant to be started with `go hub.Run()`.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish broadcasts a target snapshot to every connected client.
// Fire-and-forget: a tick never blocks waiting for a slow viewer
// (spec §5).
func (h *Hub) Publish(snapshot tracker.TargetSnapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("telemetry: marshal target snapshot: %v", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		log.Printf("telemetry: broadcast channel full, dropping snapshot")
	}
}

// ServeWs upgrades an HTTP request to a websocket connection and
// registers it with the hub. Wire it up with
// mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) { hub.ServeWs(w, r) }).
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("telemetry: websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 8)}
	h.register <- c

	go c.writePump(h)
	go c.readPump(h)
}

// writePump drains send to the socket; it owns the only writer for
// conn, per gorilla/websocket's concurrency contract.
func (c *client) writePump(h *Hub) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards inbound frames; this hub is publish-only, but it
// still must read to observe the client closing the connection.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
