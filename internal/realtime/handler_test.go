package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/testutil"
)

const allowedOrigin = "http://localhost:3000"

func startServer(t *testing.T) (*Hub, string) {
	t.Helper()
	hub, _ := startHub(t)
	server := httptest.NewServer(NewHandler(hub, []string{allowedOrigin}, zap.NewNop()))
	t.Cleanup(server.Close)
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	header := http.Header{"Origin": []string{allowedOrigin}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := NewFrame(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func read(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// roundTrip pings and waits for the pong; earlier events have been applied by then
func roundTrip(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, EventPing, nil)
	assert.Equal(t, EventPong, read(t, conn).Event)
}

func TestHandler_SubscribeAndReceive(t *testing.T) {
	hub, url := startServer(t)
	conn := dial(t, url)

	send(t, conn, EventSubscribe, testutil.TestGuildID)
	roundTrip(t, conn)

	hub.Broadcast(testutil.TestGuildID, "warning:created", map[string]string{"userId": testutil.TestUserID})

	frame := read(t, conn)
	assert.Equal(t, "warning:created", frame.Event)
	assert.JSONEq(t, `{"userId":"`+testutil.TestUserID+`"}`, string(frame.Data))
}

func TestHandler_Unsubscribe(t *testing.T) {
	hub, url := startServer(t)
	conn := dial(t, url)

	send(t, conn, EventSubscribe, testutil.TestGuildID)
	send(t, conn, EventUnsubscribe, testutil.TestGuildID)
	roundTrip(t, conn)

	hub.Broadcast(testutil.TestGuildID, "warning:created", nil)
	// The next frame is the pong, not the broadcast
	roundTrip(t, conn)

	n, err := hub.GroupSize(context.Background(), testutil.TestGuildID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandler_InvalidGuildID(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)

	for _, data := range []any{"not-a-snowflake", 42, nil} {
		send(t, conn, EventSubscribe, data)
		frame := read(t, conn)
		assert.Equal(t, EventError, frame.Event)
		assert.JSONEq(t, `"Invalid guild ID"`, string(frame.Data))
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, EventError, read(t, conn).Event)
}

func TestHandler_DisconnectUnregisters(t *testing.T) {
	hub, url := startServer(t)
	conn := dial(t, url)

	send(t, conn, EventSubscribe, testutil.TestGuildID)
	roundTrip(t, conn)
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		stats, err := hub.Stats(context.Background())
		return err == nil && stats.Clients == 0 && stats.Groups == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	_, url := startServer(t)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)

	require.Error(t, err)
	assert.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHandler_AllowsMissingOrigin(t *testing.T) {
	_, url := startServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()

	roundTrip(t, conn)
}
