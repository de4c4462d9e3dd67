package roomclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/version"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	handshakeTimeout      = 10 * time.Second
	maxPayloadSize        = 512
	eventBufferSize       = 16
)

// Conn is the part of a WebSocket connection the client reads from.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// DialFunc opens a connection to the room at url.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// WebSocketDialer returns a DialFunc backed by gorilla's dialer.
func WebSocketDialer() DialFunc {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	header := http.Header{"User-Agent": []string{version.UserAgent()}}

	return func(ctx context.Context, url string) (Conn, error) {
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		conn.SetReadLimit(maxPayloadSize)
		return conn, nil
	}
}

// Config configures a Client. URL is required; every other field has a default.
type Config struct {
	URL            string
	ReconnectDelay time.Duration
	Dial           DialFunc
	Clock          clockwork.Clock
	Metrics        *metrics.ClientMetrics

	// OnVote runs on the connection's read goroutine for every valid event.
	OnVote func(domain.VoteEvent)
	// OnStateChange runs on the event loop. It must not call back into the client.
	OnStateChange func(State)
}

// Snapshot is a point-in-time view of the client.
type Snapshot struct {
	State        State
	Generation   uint64
	TimerPending bool
}

// Client is a self-healing room connection.
type Client struct {
	cfg    Config
	events chan event
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once

	// owned by the event loop
	state      State
	generation uint64
	conn       Conn
	timer      clockwork.Timer
	dialCancel context.CancelFunc
	dialed     bool
}

// New creates a client in the Disconnected state. Call Start to connect.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("roomclient: URL is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Dial == nil {
		cfg.Dial = WebSocketDialer()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewClientMetrics(prometheus.NewRegistry())
	}
	if cfg.OnVote == nil {
		cfg.OnVote = func(domain.VoteEvent) {}
	}
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(State) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		events: make(chan event, eventBufferSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		state:  StateDisconnected,
	}, nil
}

// Start launches the event loop and the first dial. Subsequent calls are no-ops.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		go c.run()
	})
}

// Stop cancels any pending reconnect, closes the current connection and
// leaves the client in the terminal Stopped state. Safe to call repeatedly.
// Stopping a client that was never started does not dial.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		neverStarted := false
		c.startOnce.Do(func() { neverStarted = true })
		if neverStarted {
			c.setState(StateStopped)
			close(c.done)
			c.cancel()
			return
		}

		reply := make(chan struct{})
		if c.post(stopEvent{reply: reply}) {
			<-reply
		}
		<-c.done
		c.cancel()
	})
}

// Done is closed once the client has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Snapshot returns the client's current state. A stopped client reports Stopped.
func (c *Client) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !c.post(snapshotEvent{reply: reply}) {
		return Snapshot{State: StateStopped}
	}
	select {
	case snap := <-reply:
		return snap
	case <-c.done:
		return Snapshot{State: StateStopped}
	}
}

// State is shorthand for Snapshot().State.
func (c *Client) State() State {
	return c.Snapshot().State
}

// post hands an event to the loop. It reports false once the loop has exited.
func (c *Client) post(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) run() {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("room client panic recovered", "error", r)
			c.shutdown()
		}
	}()

	c.connect()

	for ev := range c.events {
		switch e := ev.(type) {
		case dialedEvent:
			c.handleDialed(e)
		case dialFailedEvent:
			c.handleDialFailed(e)
		case closedEvent:
			c.handleClosed(e)
		case timerFiredEvent:
			c.handleTimerFired(e)
		case snapshotEvent:
			e.reply <- Snapshot{State: c.state, Generation: c.generation, TimerPending: c.timer != nil}
		case stopEvent:
			c.shutdown()
			close(e.reply)
			return
		}
	}
}

func (c *Client) connect() {
	c.generation++
	gen := c.generation
	if c.dialed {
		c.cfg.Metrics.ReconnectAttempts.Inc()
	}
	c.dialed = true
	c.setState(StateConnecting)

	ctx, cancel := context.WithCancel(c.ctx)
	c.dialCancel = cancel

	go func() {
		conn, err := c.cfg.Dial(ctx, c.cfg.URL)
		if err != nil {
			c.post(dialFailedEvent{generation: gen, err: err})
			return
		}
		if !c.post(dialedEvent{generation: gen, conn: conn}) {
			conn.Close()
		}
	}()
}

func (c *Client) handleDialed(e dialedEvent) {
	if e.generation != c.generation || c.state != StateConnecting {
		e.conn.Close()
		return
	}
	c.conn = e.conn
	c.cfg.Metrics.Connected.Set(1)
	c.setState(StateConnected)
	slog.Info("Connected to room", "url", c.cfg.URL, "generation", e.generation)

	go c.readPump(e.generation, e.conn)
}

func (c *Client) handleDialFailed(e dialFailedEvent) {
	if e.generation != c.generation || c.state != StateConnecting {
		return
	}
	c.clearDial()
	slog.Warn("Room dial failed", "url", c.cfg.URL, "error", e.err, "retry_in", c.cfg.ReconnectDelay)
	c.scheduleReconnect()
}

func (c *Client) handleClosed(e closedEvent) {
	if e.generation != c.generation || c.state != StateConnected {
		return
	}
	c.closeConn()
	slog.Warn("Room connection lost", "url", c.cfg.URL, "error", e.err, "retry_in", c.cfg.ReconnectDelay)
	c.scheduleReconnect()
}

func (c *Client) handleTimerFired(e timerFiredEvent) {
	if e.generation != c.generation || c.state != StateReconnectPending {
		return
	}
	c.timer = nil
	c.connect()
}

// scheduleReconnect arms the single reconnect timer. A timer that is already
// pending is left alone.
func (c *Client) scheduleReconnect() {
	if c.timer != nil {
		return
	}
	gen := c.generation
	c.setState(StateReconnectPending)
	c.timer = c.cfg.Clock.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.post(timerFiredEvent{generation: gen})
	})
}

func (c *Client) shutdown() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.closeConn()
	c.setState(StateStopped)
}

func (c *Client) clearDial() {
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
}

func (c *Client) closeConn() {
	c.clearDial()
	if c.conn == nil {
		return
	}
	c.conn.Close()
	c.conn = nil
	c.cfg.Metrics.Connected.Set(0)
}

func (c *Client) setState(s State) {
	if c.state == s {
		return
	}
	slog.Debug("Room client state change", "from", c.state, "to", s)
	c.state = s
	c.cfg.OnStateChange(s)
}

func (c *Client) readPump(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.post(closedEvent{generation: gen, err: err})
			return
		}

		ev, err := domain.DecodeVoteEvent(data)
		if err != nil {
			c.cfg.Metrics.EventsReceived.WithLabelValues("malformed").Inc()
			slog.Warn("Dropping malformed room payload", "error", err, "size", len(data))
			continue
		}
		c.cfg.Metrics.EventsReceived.WithLabelValues("ok").Inc()
		c.cfg.OnVote(ev)
	}
}
