// Package memory implements an in-process vote store for development and
// single-instance deployments. Counts are lost on restart.
package memory

import (
	"context"
	"sync"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
)

type VoteStore struct {
	mu     sync.RWMutex
	counts domain.VoteCounts
}

func NewVoteStore() *VoteStore {
	return &VoteStore{counts: domain.NewVoteCounts()}
}

func (s *VoteStore) RecordVote(_ context.Context, name domain.AIName) error {
	if !name.Valid() {
		return domain.ErrInvalidAIName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name]++
	return nil
}

func (s *VoteStore) CountVotes(_ context.Context) (domain.VoteCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(domain.VoteCounts, len(s.counts))
	for name, n := range s.counts {
		counts[name] = n
	}
	return counts, nil
}

func (s *VoteStore) Ping(context.Context) error { return nil }
