package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
)

const (
	commandTimeout  = 5 * time.Second
	stopTimeout     = 10 * time.Second
	cmdBufferSize   = 256
	depthWarnLevel  = 200
	depthSampleRate = time.Second

	// deliveryTimeout bounds how long a fan-out waits for member writes.
	// Transport writes carry their own writeDeadline, so this only trips for
	// transports that ignore deadlines.
	deliveryTimeout  = writeDeadline + time.Second
	broadcastTimeout = commandTimeout + deliveryTimeout

	pruneReasonClosed       = "closed"
	pruneReasonFull         = "buffer_full"
	pruneReasonWriteFailed  = "write_failed"
	pruneReasonWriteTimeout = "write_timeout"
)

// ErrRoomStopped is returned by commands sent to a room that has shut down.
var ErrRoomStopped = errors.New("room stopped")

var errDeliveryTimeout = errors.New("delivery timed out")

type roomCmd interface{ isRoomCmd() }

type baseRoomCmd struct{}

func (baseRoomCmd) isRoomCmd() {}

type joinCmd struct {
	baseRoomCmd
	transport Transport
	replyCh   chan *Session
}

type leaveCmd struct {
	baseRoomCmd
	session *Session
}

type broadcastCmd struct {
	baseRoomCmd
	payload []byte
	replyCh chan struct{}
}

type membersCmd struct {
	baseRoomCmd
	replyCh chan int
}

type stopCmd struct {
	baseRoomCmd
}

// Room fans events out to its member sessions. All membership state lives on
// the actor goroutine started by New.
type Room struct {
	key      string
	cmdCh    chan roomCmd
	clock    clockwork.Clock
	metrics  *metrics.RoomMetrics
	sessions map[uuid.UUID]*Session
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a room and starts its actor goroutine.
func New(key string, clock clockwork.Clock, m *metrics.RoomMetrics) *Room {
	r := &Room{
		key:      key,
		cmdCh:    make(chan roomCmd, cmdBufferSize),
		clock:    clock,
		metrics:  m,
		sessions: make(map[uuid.UUID]*Session),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Key returns the registry key the room was created under.
func (r *Room) Key() string { return r.key }

// Join admits a connection as a new member. It fails only when the room is
// stopped or its actor does not answer in time.
func (r *Room) Join(transport Transport) (*Session, error) {
	replyCh := make(chan *Session, 1)
	if err := r.send(joinCmd{transport: transport, replyCh: replyCh}); err != nil {
		return nil, err
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case s := <-replyCh:
		return s, nil
	case <-r.done:
		return nil, ErrRoomStopped
	case <-timer.Chan():
		return nil, fmt.Errorf("join command timed out after %v", commandTimeout)
	}
}

// Leave removes a session. Removing a session that is not a member is a no-op.
func (r *Room) Leave(s *Session) {
	if s == nil {
		return
	}
	_ = r.send(leaveCmd{session: s})
}

// Broadcast serializes event once and writes it to every current member.
// Writes run concurrently on each member's writer; members whose write fails
// or times out are removed before Broadcast returns. Per-member failures are
// not reported to the caller.
func (r *Room) Broadcast(event domain.VoteEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal vote event: %w", err)
	}
	return r.BroadcastPayload(payload)
}

// BroadcastPayload fans out an already encoded payload.
func (r *Room) BroadcastPayload(payload []byte) error {
	replyCh := make(chan struct{}, 1)
	if err := r.send(broadcastCmd{payload: payload, replyCh: replyCh}); err != nil {
		return err
	}

	timer := r.clock.NewTimer(broadcastTimeout)
	defer timer.Stop()

	select {
	case <-replyCh:
		return nil
	case <-r.done:
		return ErrRoomStopped
	case <-timer.Chan():
		return fmt.Errorf("broadcast command timed out after %v", broadcastTimeout)
	}
}

// Members returns the current member count, or -1 if the room did not answer.
func (r *Room) Members() int {
	replyCh := make(chan int, 1)
	if err := r.send(membersCmd{replyCh: replyCh}); err != nil {
		return -1
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-replyCh:
		return n
	case <-r.done:
		return -1
	case <-timer.Chan():
		slog.Warn("Members timed out", "room", r.key, "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every member with a close frame and ends the actor.
// Blocks until the actor exits or the stop timeout passes.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		if err := r.send(stopCmd{}); err != nil {
			return
		}

		timeout := r.clock.NewTimer(stopTimeout)
		defer timeout.Stop()

		select {
		case <-r.done:
			slog.Info("Room stopped", "room", r.key)
		case <-timeout.Chan():
			slog.Error("Room stop timeout exceeded", "room", r.key, "timeout", stopTimeout)
		}
	})
}

func (r *Room) send(cmd roomCmd) error {
	select {
	case <-r.done:
		return ErrRoomStopped
	default:
	}
	select {
	case r.cmdCh <- cmd:
		return nil
	case <-r.done:
		return ErrRoomStopped
	}
}

func (r *Room) run() {
	defer close(r.done)
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Room panic recovered", "room", r.key, "panic", p)
			r.closeAll("room failure")
		}
	}()

	depthTicker := r.clock.NewTicker(depthSampleRate)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(r.cmdCh)
			r.metrics.CommandQueueSize.WithLabelValues(r.key).Set(float64(depth))
			if depth > depthWarnLevel {
				slog.Warn("Room command channel near capacity", "room", r.key, "depth", depth, "capacity", cap(r.cmdCh))
			}

		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case joinCmd:
				c.replyCh <- r.handleJoin(c)
			case leaveCmd:
				r.handleLeave(c)
			case broadcastCmd:
				r.handleBroadcast(c)
				c.replyCh <- struct{}{}
			case membersCmd:
				c.replyCh <- len(r.sessions)
			case stopCmd:
				r.handleStop()
				return
			default:
				slog.Warn("Room received unknown command type", "room", r.key, "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (r *Room) handleJoin(c joinCmd) *Session {
	s := newSession(c.transport, r.clock)
	r.sessions[s.id] = s
	r.metrics.Members.WithLabelValues(r.key).Set(float64(len(r.sessions)))

	slog.Debug("Session joined", "room", r.key, "session_id", s.id.String(), "members", len(r.sessions))
	return s
}

func (r *Room) handleLeave(c leaveCmd) {
	if !r.remove(c.session) {
		return
	}
	slog.Debug("Session left", "room", r.key, "session_id", c.session.id.String(), "members", len(r.sessions))
}

func (r *Room) handleBroadcast(c broadcastCmd) {
	start := r.clock.Now()
	defer func() {
		r.metrics.FanoutDuration.Observe(r.clock.Since(start).Seconds())
	}()
	r.metrics.Broadcasts.WithLabelValues(r.key).Inc()

	var (
		failed  []failure
		pending []delivery
	)
	for _, s := range r.sessions {
		result, err := s.Send(c.payload)
		if err != nil {
			failed = append(failed, failure{session: s, reason: pruneReason(err)})
			continue
		}
		pending = append(pending, delivery{session: s, result: result})
	}

	failed = append(failed, r.awaitDeliveries(pending)...)

	for _, f := range failed {
		r.remove(f.session)
		r.metrics.SessionsPruned.WithLabelValues(f.reason).Inc()
		slog.Warn("Pruned session during broadcast", "room", r.key, "session_id", f.session.id.String(), "reason", f.reason)
	}
}

type failure struct {
	session *Session
	reason  string
}

type delivery struct {
	session *Session
	result  <-chan error
}

// awaitDeliveries collects the write outcome of every queued payload. One
// timer bounds the whole fan-out; writes still outstanding when it fires
// count as failed.
func (r *Room) awaitDeliveries(pending []delivery) []failure {
	if len(pending) == 0 {
		return nil
	}

	timer := r.clock.NewTimer(deliveryTimeout)
	defer timer.Stop()

	var failed []failure
	expired := false
	for _, d := range pending {
		var err error
		if expired {
			err = d.poll()
		} else {
			select {
			case err = <-d.result:
			case <-d.session.exited():
				err = d.poll()
			case <-timer.Chan():
				expired = true
				err = d.poll()
			}
		}
		if err != nil {
			failed = append(failed, failure{session: d.session, reason: pruneReason(err)})
		}
	}
	return failed
}

// poll reads a write outcome that is already available. A writer that has
// exited without answering counts as closed; one still writing counts as
// timed out.
func (d delivery) poll() error {
	select {
	case err := <-d.result:
		return err
	default:
	}
	select {
	case <-d.session.exited():
		return ErrSessionClosed
	default:
		return errDeliveryTimeout
	}
}

func pruneReason(err error) string {
	switch {
	case errors.Is(err, ErrSendBufferFull):
		return pruneReasonFull
	case errors.Is(err, ErrSessionClosed):
		return pruneReasonClosed
	case errors.Is(err, errDeliveryTimeout):
		return pruneReasonWriteTimeout
	default:
		return pruneReasonWriteFailed
	}
}

func (r *Room) remove(s *Session) bool {
	if _, ok := r.sessions[s.id]; !ok {
		return false
	}
	delete(r.sessions, s.id)
	s.stop()
	r.metrics.Members.WithLabelValues(r.key).Set(float64(len(r.sessions)))
	return true
}

func (r *Room) handleStop() {
	slog.Info("Room shutting down", "room", r.key, "members", len(r.sessions))
	r.closeAll(shutdownMessage)
}

func (r *Room) closeAll(reason string) {
	for id, s := range r.sessions {
		s.stopGraceful(reason)
		delete(r.sessions, id)
	}
	r.metrics.Members.WithLabelValues(r.key).Set(0)
}
