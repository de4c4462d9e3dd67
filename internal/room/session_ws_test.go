package room

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
)

// testRoomServer serves a room over a real WebSocket endpoint.
func testRoomServer(t *testing.T) (*Room, func() *ws.Conn) {
	t.Helper()

	r := New("main", clockwork.NewRealClock(), metrics.NewRoomMetrics(prometheus.NewRegistry()))
	t.Cleanup(r.Stop)

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		s, err := r.Join(conn)
		if err != nil {
			_ = conn.Close()
			return
		}
		go func() {
			defer r.Leave(s)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(server.Close)

	dial := func() *ws.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	return r, dial
}

func waitForMembers(r *Room, expected int) bool {
	for range 200 {
		if r.Members() == expected {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestRoom_WebSocketFanOut(t *testing.T) {
	r, dial := testRoomServer(t)

	a := dial()
	b := dial()
	require.True(t, waitForMembers(r, 2))

	require.NoError(t, r.Broadcast(domain.VoteEvent{AIName: domain.AIGemini}))

	for _, conn := range []*ws.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"ai_name":"Gemini"}`, string(msg))
	}
}

func TestRoom_WebSocketDisconnectLeaves(t *testing.T) {
	r, dial := testRoomServer(t)

	a := dial()
	dial()
	require.True(t, waitForMembers(r, 2))

	require.NoError(t, a.Close())

	assert.True(t, waitForMembers(r, 1))
}
