// Package broadcast implements spec.md §6's WebSocket broadcast contract:
// a gorilla/websocket hub keyed by project id (plus a "global" topic) that
// fans out memory:{created,updated,deleted} events and accepts a small set
// of client-issued operations (memory:reinforce, memory:deemphasize,
// memory:delete, subscribe:project, ping/pong). Grounded on
// ziadkadry99-auto-doc's internal/dashboard/chat.go for the upgrade +
// read-loop shape, generalized from its single unkeyed connection into a
// hub of subscriber sets since this contract is multi-client/multi-topic.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/JoeyEamigh/ccengram/internal/memory"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

// GlobalTopic is the subscription key for clients that want every
// project's events.
const GlobalTopic = "global"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is the outbound envelope for memory:{created,updated,deleted}.
type Event struct {
	Type      string        `json:"type"`
	Memory    *store.Memory `json:"memory,omitempty"`
	ProjectID string        `json:"projectId"`
	SessionID string        `json:"sessionId,omitempty"`
}

// ClientMessage is the inbound envelope clients may send.
type ClientMessage struct {
	Type      string  `json:"type"`
	ProjectID string  `json:"projectId,omitempty"`
	MemoryID  string  `json:"memoryId,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	topics map[string]bool
	mu     sync.Mutex
}

func (c *client) send(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		slog.Debug("broadcast write failed", slog.String("error", err.Error()))
	}
}

// Hub fans out events to subscribed clients and applies the small set of
// client-issued memory operations against the shared memory store.
type Hub struct {
	memories *memory.Store

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub builds a hub bound to the project's (or server-wide) memory
// store; client operations (reinforce/deemphasize/delete) execute against
// it directly.
func NewHub(memories *memory.Store) *Hub {
	return &Hub{memories: memories, clients: make(map[*client]struct{})}
}

// Broadcast publishes an event to every client subscribed to ev.ProjectID
// or to GlobalTopic.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.mu.Lock()
		subscribed := c.topics[ev.ProjectID] || c.topics[GlobalTopic]
		c.mu.Unlock()
		if subscribed {
			c.send(ev)
		}
	}
}

// ServeHTTP upgrades the request to a websocket connection and runs the
// client's read loop until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("broadcast: websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	c := &client{conn: conn, topics: make(map[string]bool)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()

	ctx := r.Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("broadcast: websocket read error", slog.String("error", err.Error()))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.send(map[string]string{"type": "error", "message": "invalid message format"})
			continue
		}
		h.handle(ctx, c, msg)
	}
}

// handle applies one client-issued operation. Errors are reported back to
// the issuing client only; they never tear down the connection.
func (h *Hub) handle(ctx context.Context, c *client, msg ClientMessage) {
	switch msg.Type {
	case "ping":
		c.send(map[string]string{"type": "pong"})

	case "subscribe:project":
		if msg.ProjectID == "" {
			c.send(map[string]string{"type": "error", "message": "projectId is required"})
			return
		}
		c.mu.Lock()
		c.topics[msg.ProjectID] = true
		c.mu.Unlock()
		c.send(map[string]string{"type": "subscribed", "projectId": msg.ProjectID})

	case "memory:reinforce":
		h.mutate(ctx, c, msg, func(id string, amount float64) (*store.Memory, error) {
			return h.memories.Reinforce(ctx, id, amount)
		})

	case "memory:deemphasize":
		h.mutate(ctx, c, msg, func(id string, amount float64) (*store.Memory, error) {
			return h.memories.Deemphasize(ctx, id, amount)
		})

	case "memory:delete":
		if msg.MemoryID == "" {
			c.send(map[string]string{"type": "error", "message": "memoryId is required"})
			return
		}
		if err := h.memories.Delete(ctx, msg.MemoryID, false); err != nil {
			c.send(map[string]string{"type": "error", "message": err.Error()})
			return
		}
		c.send(map[string]string{"type": "ok", "memoryId": msg.MemoryID})

	default:
		c.send(map[string]string{"type": "error", "message": "unknown message type: " + msg.Type})
	}
}

func (h *Hub) mutate(ctx context.Context, c *client, msg ClientMessage, fn func(id string, amount float64) (*store.Memory, error)) {
	if msg.MemoryID == "" {
		c.send(map[string]string{"type": "error", "message": "memoryId is required"})
		return
	}
	m, err := fn(msg.MemoryID, msg.Amount)
	if err != nil {
		c.send(map[string]string{"type": "error", "message": err.Error()})
		return
	}
	c.send(map[string]any{"type": "ok", "memory": m})
}
