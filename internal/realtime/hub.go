// Package realtime pushes JSON events to signed-in users over WebSockets.
package realtime

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/crmhub/internal/monitoring"
	"github.com/charlesng35/crmhub/pkg/logger"
)

// Message is one event written to a subscriber.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Hub tracks open sockets per user. Each socket carries its own stream set,
// so a broadcast walks the target user's sockets and skips those not
// subscribed.
type Hub struct {
	mu      sync.RWMutex
	byUser  map[string]map[*client]struct{}
	active  atomic.Int64
	origins originPolicy
	ws      websocket.Upgrader
	log     *zap.Logger
}

// NewHub accepts browser sockets from the API host itself, loopback hosts
// and allowedOrigins.
func NewHub(allowedOrigins ...string) *Hub {
	h := &Hub{
		byUser:  make(map[string]map[*client]struct{}),
		origins: newOriginPolicy(allowedOrigins),
		log:     logger.WithModule("realtime"),
	}
	h.ws = websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: h.checkOrigin}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	return h.origins.allows(r.Header.Get("Origin"), r.Host)
}

// ActiveConnections is the number of open sockets.
func (h *Hub) ActiveConnections() int64 { return h.active.Load() }

// ConnectionCount counts userID's sockets subscribed to stream.
func (h *Hub) ConnectionCount(stream, userID string) int {
	stream = normalizeStream(stream)
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.byUser[userID] {
		if c.listening(stream) {
			n++
		}
	}
	return n
}

// Serve upgrades the request and blocks until the socket closes. allowed
// limits which streams the client may join; nil allows any.
func (h *Hub) Serve(userID string, streams []string, allowed map[string]struct{}, w http.ResponseWriter, r *http.Request) {
	ws, err := h.ws.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	c := newClient(h, ws, userID, allowed)
	h.attach(c)
	h.join(c, streams)

	go c.pump()
	c.listen()
}

// BroadcastToUser sends message to userID's sockets on stream.
func (h *Hub) BroadcastToUser(stream, userID string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" || userID == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byUser[userID] {
		if c.listening(stream) {
			c.deliver(message)
		}
	}
}

// BroadcastToUsers calls BroadcastToUser for each id.
func (h *Hub) BroadcastToUsers(stream string, userIDs []string, message Message) {
	for _, id := range userIDs {
		h.BroadcastToUser(stream, id, message)
	}
}

// BroadcastStream sends message to every socket on stream.
func (h *Hub) BroadcastStream(stream string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sockets := range h.byUser {
		for c := range sockets {
			if c.listening(stream) {
				c.deliver(message)
			}
		}
	}
}

// Shutdown closes every open socket.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	var all []*client
	for _, sockets := range h.byUser {
		for c := range sockets {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.close()
	}
}

func (h *Hub) attach(c *client) {
	h.mu.Lock()
	sockets := h.byUser[c.userID]
	if sockets == nil {
		sockets = make(map[*client]struct{})
		h.byUser[c.userID] = sockets
	}
	sockets[c] = struct{}{}
	h.mu.Unlock()

	h.active.Add(1)
	monitoring.RecordRealtimeConnection(1)
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	if sockets := h.byUser[c.userID]; sockets != nil {
		delete(sockets, c)
		if len(sockets) == 0 {
			delete(h.byUser, c.userID)
		}
	}
	h.mu.Unlock()

	h.active.Add(-1)
	monitoring.RecordRealtimeConnection(-1)
}

// join adds streams the client is allowed to see; the rest are ignored.
func (h *Hub) join(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, stream := range uniqueStreams(streams) {
		if !c.mayJoin(stream) {
			h.log.Debug("stream not permitted", zap.String("stream", stream), zap.String("user_id", c.userID))
			continue
		}
		c.streams[stream] = struct{}{}
	}
}

func (h *Hub) leave(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, stream := range uniqueStreams(streams) {
		delete(c.streams, stream)
	}
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	out := make([]string, 0, len(streams))
	for _, s := range streams {
		s = normalizeStream(s)
		if _, dup := seen[s]; dup || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
