package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tilawa-app/tilawa/internal/events"
	"github.com/tilawa-app/tilawa/internal/utils"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server listens on loopback only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans event frames out to connected websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*websocket.Conn
	closed  bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*websocket.Conn)}
}

// Add registers ws and returns its client id.
func (h *Hub) Add(ws *websocket.Conn) (string, bool) {
	id := uuid.NewString()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", false
	}
	h.clients[id] = ws
	return id, true
}

// Remove drops a client and closes its connection.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	ws, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		_ = ws.Close()
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast encodes msg and writes it to every client. Clients that fail to
// accept the frame are dropped.
func (h *Hub) Broadcast(msg any) {
	frame, err := events.Encode(msg)
	if err != nil {
		utils.Debug("hub: encode %T: %v", msg, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ws := range h.clients {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			utils.Debug("hub: dropping client %s: %v", id, err)
			_ = ws.Close()
			delete(h.clients, id)
		}
	}
}

// Run broadcasts everything received on stream until it closes.
func (h *Hub) Run(stream <-chan any) {
	for msg := range stream {
		h.Broadcast(msg)
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ws := range h.clients {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		delete(h.clients, id)
	}
}

// WSHandler upgrades the request and keeps the client registered until it
// disconnects. Incoming messages are ignored.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		id, ok := hub.Add(ws)
		if !ok {
			_ = ws.Close()
			return
		}
		utils.Debug("hub: client %s connected", id)

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.Remove(id)
		utils.Debug("hub: client %s disconnected", id)
	}
}
