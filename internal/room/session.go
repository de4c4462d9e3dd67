package room

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline   = 5 * time.Second
	pingInterval    = 30 * time.Second
	pongDeadline    = 60 * time.Second
	sendBufferSize  = 16
	shutdownMessage = "Server shutting down"
)

var (
	// ErrSessionClosed is returned by Send once the session's transport has failed or been closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrSendBufferFull is returned by Send when the session's outbound queue is saturated.
	ErrSendBufferFull = errors.New("session send buffer full")
)

// Transport is the part of a WebSocket connection a session writes to.
// *websocket.Conn satisfies it.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// State is the lifecycle state of a session.
type State int32

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

type outbound struct {
	payload []byte
	result  chan error
}

// Session is one live connection inside a room.
type Session struct {
	id        uuid.UUID
	transport Transport
	clock     clockwork.Clock
	sendCh    chan outbound
	doneCh    chan struct{}
	exitedCh  chan struct{}
	state     atomic.Int32
	stopOnce  sync.Once
}

func newSession(transport Transport, clock clockwork.Clock) *Session {
	s := &Session{
		id:        uuid.New(),
		transport: transport,
		clock:     clock,
		sendCh:    make(chan outbound, sendBufferSize),
		doneCh:    make(chan struct{}),
		exitedCh:  make(chan struct{}),
	}
	s.configurePongHandler()
	go s.run()
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// State reports whether the session can still take payloads.
func (s *Session) State() State { return State(s.state.Load()) }

// Send queues a payload for delivery without blocking. The returned channel
// receives the outcome of the transport write once the writer gets to it.
func (s *Session) Send(payload []byte) (<-chan error, error) {
	if s.State() == StateClosed {
		return nil, ErrSessionClosed
	}
	msg := outbound{payload: payload, result: make(chan error, 1)}
	select {
	case s.sendCh <- msg:
		return msg.result, nil
	default:
		return nil, ErrSendBufferFull
	}
}

// exited is closed when the writer goroutine has returned.
func (s *Session) exited() <-chan struct{} { return s.exitedCh }

func (s *Session) run() {
	ticker := s.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer close(s.exitedCh)

	for {
		select {
		case msg := <-s.sendCh:
			s.updateWriteDeadline()
			err := s.transport.WriteMessage(websocket.TextMessage, msg.payload)
			msg.result <- err
			if err != nil {
				s.fail()
				return
			}
		case <-ticker.Chan():
			s.updateWriteDeadline()
			if err := s.transport.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.fail()
				return
			}
		case <-s.doneCh:
			return
		}
	}
}

// fail marks the session closed after a transport error. The writer never
// calls back into the room; the room learns of the failure through the write
// result or the exited channel.
func (s *Session) fail() {
	s.state.Store(int32(StateClosed))
	_ = s.transport.Close()
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.doneCh)
		_ = s.transport.Close()
	})
	<-s.exitedCh
}

// stopGraceful sends a close frame before closing the transport.
func (s *Session) stopGraceful(reason string) {
	s.stopOnce.Do(func() {
		wasOpen := s.State() == StateOpen
		s.state.Store(int32(StateClosed))
		close(s.doneCh)

		// writer must be gone before the close frame is written
		<-s.exitedCh

		if wasOpen {
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
			s.updateWriteDeadline()
			_ = s.transport.WriteMessage(websocket.CloseMessage, closeMsg)
		}
		_ = s.transport.Close()
	})
}

func (s *Session) configurePongHandler() {
	s.updateReadDeadline()
	s.transport.SetPongHandler(func(string) error {
		s.updateReadDeadline()
		return nil
	})
}

func (s *Session) updateWriteDeadline() {
	_ = s.transport.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
}

func (s *Session) updateReadDeadline() {
	_ = s.transport.SetReadDeadline(s.clock.Now().Add(pongDeadline))
}
