package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub, userID string, streams []string, allowed map[string]struct{}) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(userID, streams, allowed, w, r)
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubDeliversToSubscribedUser(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "user-1", []string{StreamNotifications}, nil)

	require.Eventually(t, func() bool {
		return hub.ConnectionCount(StreamNotifications, "user-1") == 1
	}, time.Second, 10*time.Millisecond)

	hub.BroadcastToUser(StreamNotifications, "user-2", Message{Event: "ignored"})
	hub.BroadcastToUser(StreamNotifications, "user-1", Message{Event: "notification.created", Data: map[string]any{"title": "Hi"}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, StreamNotifications, msg.Stream)
	require.Equal(t, "notification.created", msg.Event)
}

func TestHubControlMessages(t *testing.T) {
	hub := NewHub()
	allowed := map[string]struct{}{StreamNotifications: {}, StreamTasks: {}}
	conn := dialHub(t, hub, "user-1", nil, allowed)

	require.NoError(t, conn.WriteJSON(control{Action: "subscribe", Streams: []string{"Tasks", StreamCampaigns}}))
	require.Eventually(t, func() bool {
		return hub.ConnectionCount(StreamTasks, "user-1") == 1
	}, time.Second, 10*time.Millisecond)
	require.Zero(t, hub.ConnectionCount(StreamCampaigns, "user-1"))

	require.NoError(t, conn.WriteJSON(control{Action: "ping"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "pong", msg.Event)

	require.NoError(t, conn.WriteJSON(control{Action: "unsubscribe", Streams: []string{StreamTasks}}))
	require.Eventually(t, func() bool {
		return hub.ConnectionCount(StreamTasks, "user-1") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "user-9", AllStreams(), nil)

	require.Eventually(t, func() bool {
		return hub.ConnectionCount(StreamCampaigns, "user-9") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return hub.ConnectionCount(StreamCampaigns, "user-9") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub("https://app.example.com")

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/ws", nil)
	require.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://app.example.com")
	require.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "http://localhost:3000")
	require.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example.net")
	require.False(t, hub.checkOrigin(req))
}

func TestHubFiltersStreamsPerSocket(t *testing.T) {
	hub := NewHub()
	tasks := dialHub(t, hub, "user-1", []string{StreamTasks}, nil)
	notes := dialHub(t, hub, "user-1", []string{StreamNotifications}, nil)

	require.Eventually(t, func() bool {
		return hub.ConnectionCount(StreamTasks, "user-1") == 1 && hub.ConnectionCount(StreamNotifications, "user-1") == 1
	}, time.Second, 10*time.Millisecond)
	require.EqualValues(t, 2, hub.ActiveConnections())

	hub.BroadcastStream(StreamTasks, Message{Event: "task.assigned"})
	hub.BroadcastToUsers(StreamNotifications, []string{"user-1", "user-2"}, Message{Event: "notification.created"})

	_ = tasks.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, tasks.ReadJSON(&msg))
	require.Equal(t, "task.assigned", msg.Event)

	_ = notes.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, notes.ReadJSON(&msg))
	require.Equal(t, "notification.created", msg.Event)
	require.Equal(t, StreamNotifications, msg.Stream)
}

func TestHubShutdownClosesSockets(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "user-1", AllStreams(), nil)
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	hub.Shutdown()
	require.Zero(t, hub.ActiveConnections())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"https://App.Example.com:8443", " "})
	require.Len(t, p, 1)
	require.True(t, p.allows("https://app.example.com", "api.example.com"))
	require.True(t, p.allows("http://[::1]:5173", "api.example.com"))
	require.True(t, p.allows("https://api.example.com", "api.example.com:8000"))
	require.False(t, p.allows("://bad", "api.example.com"))
	require.False(t, p.allows("https://example.org", "api.example.com"))
}
