package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/crmhub/internal/monitoring"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout * 9 / 10
	readLimit    = 64 << 10
	outboxSize   = 64
)

// control is a message sent by the browser.
type control struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

type client struct {
	hub     *Hub
	ws      *websocket.Conn
	userID  string
	allowed map[string]struct{}
	// streams is guarded by hub.mu.
	streams map[string]struct{}

	outbox    chan Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newClient(h *Hub, ws *websocket.Conn, userID string, allowed map[string]struct{}) *client {
	return &client{
		hub:     h,
		ws:      ws,
		userID:  userID,
		allowed: allowed,
		streams: make(map[string]struct{}),
		outbox:  make(chan Message, outboxSize),
		closed:  make(chan struct{}),
	}
}

// listening must be called with hub.mu held.
func (c *client) listening(stream string) bool {
	_, ok := c.streams[stream]
	return ok
}

func (c *client) mayJoin(stream string) bool {
	if len(c.allowed) == 0 {
		return true
	}
	_, ok := c.allowed[stream]
	return ok
}

// deliver queues message without blocking. A client whose outbox is full
// is disconnected; the browser reconnects and reloads.
func (c *client) deliver(message Message) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.outbox <- message:
		monitoring.RecordRealtimeBroadcast(message.Stream)
	default:
		c.hub.log.Warn("outbox full, disconnecting", zap.String("user_id", c.userID), zap.String("stream", message.Stream))
		monitoring.RecordRealtimeFailure(message.Stream, "backpressure", "send buffer full")
		go c.close()
	}
}

// listen reads control messages until the socket fails.
func (c *client) listen() {
	defer c.close()

	c.ws.SetReadLimit(readLimit)
	extend := func(string) error { return c.ws.SetReadDeadline(time.Now().Add(idleTimeout)) }
	_ = extend("")
	c.ws.SetPongHandler(extend)

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("socket closed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if len(raw) == 0 {
			continue
		}

		var msg control
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.log.Debug("bad control message", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}
		switch strings.ToLower(strings.TrimSpace(msg.Action)) {
		case "subscribe":
			c.hub.join(c, msg.Streams)
		case "unsubscribe":
			c.hub.leave(c, msg.Streams)
		case "ping":
			c.deliver(Message{Event: "pong"})
		default:
			c.hub.log.Debug("unknown control action", zap.String("action", msg.Action), zap.String("user_id", c.userID))
		}
	}
}

// pump writes queued messages and keepalive pings.
func (c *client) pump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	write := func(kind int, payload []byte) error {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		return c.ws.WriteMessage(kind, payload)
	}

	for {
		select {
		case <-c.closed:
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.outbox:
			payload, err := json.Marshal(msg)
			if err != nil {
				c.hub.log.Warn("unencodable message", zap.String("event", msg.Event), zap.Error(err))
				continue
			}
			if err := write(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.hub.detach(c)
		close(c.closed)
		_ = c.ws.Close()
	})
}
