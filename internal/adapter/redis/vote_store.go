package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
)

const votesKey = "votes"

// VoteStore keeps the tally in one hash: field per AI name, value is the count.
type VoteStore struct {
	rdb *goredis.Client
}

func NewVoteStore(rdb *goredis.Client) *VoteStore {
	return &VoteStore{rdb: rdb}
}

func (s *VoteStore) RecordVote(ctx context.Context, name domain.AIName) error {
	if err := s.rdb.HIncrBy(ctx, votesKey, string(name), 1).Err(); err != nil {
		return fmt.Errorf("failed to increment vote count: %w", err)
	}
	return nil
}

func (s *VoteStore) CountVotes(ctx context.Context) (domain.VoteCounts, error) {
	raw, err := s.rdb.HGetAll(ctx, votesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read vote counts: %w", err)
	}

	counts := domain.NewVoteCounts()
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt vote count for %q: %w", field, err)
		}
		counts[domain.AIName(field)] = n
	}
	return counts, nil
}

func (s *VoteStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
