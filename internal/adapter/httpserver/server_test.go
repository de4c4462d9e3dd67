package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/config"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/room"
)

type stubVotes struct {
	mu      sync.Mutex
	cast    []string
	castFn  func(ctx context.Context, raw string) (domain.AIName, error)
	tallyFn func(ctx context.Context) (domain.VoteCounts, error)
}

func (s *stubVotes) Cast(ctx context.Context, raw string) (domain.AIName, error) {
	s.mu.Lock()
	s.cast = append(s.cast, raw)
	s.mu.Unlock()
	if s.castFn != nil {
		return s.castFn(ctx, raw)
	}
	return domain.ParseAIName(raw)
}

func (s *stubVotes) Tally(ctx context.Context) (domain.VoteCounts, error) {
	if s.tallyFn != nil {
		return s.tallyFn(ctx)
	}
	return domain.NewVoteCounts(), nil
}

func (s *stubVotes) casts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cast...)
}

type testServer struct {
	*Server
	votes *stubVotes
	rooms *room.Registry
}

type testOptions struct {
	cfg          *config.Config
	healthChecks []HealthCheck
	voteLimits   middleware.RateLimiterStore
}

type testOption func(*testOptions)

func withConfig(mutate func(*config.Config)) testOption {
	return func(o *testOptions) { mutate(o.cfg) }
}

func withHealthChecks(checks ...HealthCheck) testOption {
	return func(o *testOptions) { o.healthChecks = checks }
}

func withVoteLimits(store middleware.RateLimiterStore) testOption {
	return func(o *testOptions) { o.voteLimits = store }
}

func newTestConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "development",
		Port:                    "0",
		InternalAddr:            "127.0.0.1:0",
		AppURL:                  "http://localhost:8080",
		VoteStore:               config.StoreMemory,
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     10,
		ConnectionRatePerIP:     100,
		ConnectionRateBurst:     100,
		VoteRatePerSecond:       100,
		VoteRateBurst:           100,
		MaxInflightBroadcasts:   4,
		ShutdownTimeout:         time.Second,
	}
}

func newTestServer(t *testing.T, votes *stubVotes, opts ...testOption) *testServer {
	t.Helper()
	if votes == nil {
		votes = &stubVotes{}
	}

	o := &testOptions{cfg: newTestConfig()}
	for _, opt := range opts {
		opt(o)
	}

	// sessions set real read deadlines, so rooms need the real clock
	rooms := room.NewRegistry(clockwork.NewRealClock(), metrics.NewRoomMetrics(prometheus.NewRegistry()))
	t.Cleanup(rooms.Stop)

	srv := NewServer(o.cfg, votes, rooms, o.healthChecks, o.voteLimits, metrics.NewRegistry(), clockwork.NewRealClock())
	return &testServer{Server: srv, votes: votes, rooms: rooms}
}

// serve starts both listeners on httptest servers and returns their base URLs.
func (ts *testServer) serve(t *testing.T) (publicURL, internalURL string) {
	t.Helper()
	pub := httptest.NewServer(ts.public)
	t.Cleanup(pub.Close)
	internal := httptest.NewServer(ts.internal)
	t.Cleanup(internal.Close)
	return pub.URL, internal.URL
}

func (ts *testServer) do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func dialRoom(t *testing.T, baseURL, path string, header http.Header) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + path
	conn, _, err := ws.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForMembers(r *room.Room, expected int) bool {
	for range 200 {
		if r.Members() == expected {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
