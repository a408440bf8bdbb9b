// Package hub streams history updates to WebSocket clients.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nicktill/starcast/pkg/config"
	"github.com/nicktill/starcast/pkg/history"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header = non-browser client (curl, tests)
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// message is the wire form of a history.Update.
type message struct {
	history.Update
	SentAt int64 `json:"sent_at"`
}

type outgoing struct {
	label   string
	payload []byte
}

// client is one connection. gorilla/websocket allows a single concurrent
// writer, so pings and broadcasts share mu.
type client struct {
	conn   *websocket.Conn
	prefix string
	mu     sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
	return c.conn.WriteMessage(messageType, data)
}

// wants reports whether the client subscribed to label.
// An empty prefix subscribes to everything.
func (c *client) wants(label string) bool {
	return c.prefix == "" || strings.HasPrefix(label, c.prefix)
}

// Hub manages WebSocket connections and fans updates out to them.
type Hub struct {
	clients    map[*client]bool
	unregister chan *client
	broadcast  chan outgoing
	mu         sync.RWMutex
}

var _ history.Notifier = (*Hub)(nil)

// New creates a hub; call Run to start delivering.
func New() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		unregister: make(chan *client, config.WSChannelBuffer),
		broadcast:  make(chan outgoing, config.WSBroadcastBuffer),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			return
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected (total: %d)", count)
		case msg := <-h.broadcast:
			h.mu.RLock()
			var failed []*client
			for c := range h.clients {
				if !c.wants(msg.label) {
					continue
				}
				if err := c.write(websocket.TextMessage, msg.payload); err != nil {
					log.Printf("WebSocket write error: %v", err)
					failed = append(failed, c)
				}
			}
			h.mu.RUnlock()

			// this loop is the unregister consumer, so drop failed clients here
			if len(failed) > 0 {
				h.mu.Lock()
				for _, c := range failed {
					delete(h.clients, c)
					c.conn.Close()
				}
				h.mu.Unlock()
			}
		}
	}
}

// Publish queues u for every subscribed client. It never blocks: when the
// broadcast buffer is full the update is dropped.
func (h *Hub) Publish(u history.Update) {
	if !h.HasClients() {
		return
	}

	payload, err := json.Marshal(message{Update: u, SentAt: time.Now().UnixMilli()})
	if err != nil {
		log.Printf("Failed to encode update for %s: %v", u.Label, err)
		return
	}

	select {
	case h.broadcast <- outgoing{label: u.Label, payload: payload}:
	default:
		log.Printf("Broadcast channel full, dropping update for %s", u.Label)
	}
}

// HasClients returns true if there are any connected WebSocket clients
func (h *Hub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// ServeHTTP upgrades the request to a WebSocket and streams updates until
// the client goes away. The optional "label" query value filters updates
// by label prefix (e.g. "acme/" for one organization).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// register synchronously so Run can never see the unregister first
	c := &client{conn: conn, prefix: r.URL.Query().Get("label")}
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("WebSocket client connected (total: %d)", count)

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		select {
		case h.unregister <- c:
		default:
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			conn.Close()
		}
	}()

	go func() {
		ticker := time.NewTicker(config.WSPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	// Read loop only services control frames and detects close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}
