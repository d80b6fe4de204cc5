package broadcast

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/JoeyEamigh/ccengram/internal/memory"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

func newTestHub(t *testing.T) (*Hub, store.Store) {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewHub(memory.New(db, nil)), db
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubPingPong(t *testing.T) {
	hub, _ := newTestHub(t)
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))

	var resp map[string]string
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "pong", resp["type"])
}

func TestHubSubscribeAndBroadcast(t *testing.T) {
	hub, _ := newTestHub(t)
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "subscribe:project", ProjectID: "proj-1"}))

	var subAck map[string]string
	require.NoError(t, conn.ReadJSON(&subAck))
	require.Equal(t, "subscribed", subAck["type"])

	// Give the hub a moment to register the subscription before
	// broadcasting, since the read loop processes it asynchronously.
	time.Sleep(20 * time.Millisecond)

	hub.Broadcast(Event{Type: "memory:created", ProjectID: "proj-1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "memory:created", ev.Type)
}

func TestHubBroadcastSkipsUnsubscribedTopic(t *testing.T) {
	hub, _ := newTestHub(t)
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "subscribe:project", ProjectID: "proj-1"}))
	var subAck map[string]string
	require.NoError(t, conn.ReadJSON(&subAck))

	time.Sleep(20 * time.Millisecond)
	hub.Broadcast(Event{Type: "memory:created", ProjectID: "other-project"})

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var ev Event
	err := conn.ReadJSON(&ev)
	require.Error(t, err, "client should not receive events for topics it never subscribed to")
}

func TestHubMemoryDeleteRequiresMemoryID(t *testing.T) {
	hub, _ := newTestHub(t)
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "memory:delete"}))

	var resp map[string]string
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "error", resp["type"])
}

func TestHubUnknownMessageType(t *testing.T) {
	hub, _ := newTestHub(t)
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "not-a-real-type"}))

	var resp map[string]string
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "error", resp["type"])
}
