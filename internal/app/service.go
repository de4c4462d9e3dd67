package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
)

const tallyKey = "tally"

// VoteService orchestrates the vote use cases.
type VoteService struct {
	store      domain.VoteStore
	rooms      domain.RoomResolver
	dispatcher *Dispatcher
	metrics    *metrics.VoteMetrics
	clock      clockwork.Clock
	tallyGroup singleflight.Group
}

func NewVoteService(store domain.VoteStore, rooms domain.RoomResolver, dispatcher *Dispatcher, m *metrics.VoteMetrics, clock clockwork.Clock) *VoteService {
	return &VoteService{
		store:      store,
		rooms:      rooms,
		dispatcher: dispatcher,
		metrics:    m,
		clock:      clock,
	}
}

// Cast validates raw, records the vote and schedules its broadcast to the
// default room. Invalid names return domain.ErrInvalidAIName and are never
// stored or broadcast.
func (s *VoteService) Cast(ctx context.Context, raw string) (domain.AIName, error) {
	name, err := domain.ParseAIName(raw)
	if err != nil {
		s.metrics.VotesCast.WithLabelValues("invalid", "rejected").Inc()
		return "", err
	}

	start := s.clock.Now()
	err = s.store.RecordVote(ctx, name)
	s.metrics.StoreDuration.WithLabelValues("record").Observe(s.clock.Since(start).Seconds())
	if err != nil {
		s.metrics.VotesCast.WithLabelValues(string(name), "error").Inc()
		return "", fmt.Errorf("failed to record vote: %w", err)
	}
	s.metrics.VotesCast.WithLabelValues(string(name), "recorded").Inc()

	event := domain.VoteEvent{AIName: name}
	s.dispatcher.Go(ctx, func(context.Context) error {
		return s.rooms.Broadcaster(domain.DefaultRoomKey).Broadcast(event)
	})

	slog.DebugContext(ctx, "Vote recorded", "ai_name", string(name))
	return name, nil
}

// Tally returns the vote count for every artist. Concurrent callers share one
// store query.
func (s *VoteService) Tally(ctx context.Context) (domain.VoteCounts, error) {
	v, err, _ := s.tallyGroup.Do(tallyKey, func() (any, error) {
		start := s.clock.Now()
		defer func() {
			s.metrics.StoreDuration.WithLabelValues("count").Observe(s.clock.Since(start).Seconds())
		}()
		return s.store.CountVotes(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}

	// copy so callers never share the singleflight result
	counts := domain.NewVoteCounts()
	for name, n := range v.(domain.VoteCounts) {
		counts[name] = n
	}
	return counts, nil
}

// Ready reports whether the vote store is reachable.
func (s *VoteService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}
