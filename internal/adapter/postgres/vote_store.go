package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
)

const (
	insertVoteSQL = `INSERT INTO votes (ai_name) VALUES ($1)`
	countVotesSQL = `SELECT ai_name, count(*) FROM votes GROUP BY ai_name`
)

// VoteStore keeps one row per vote and tallies with GROUP BY.
type VoteStore struct {
	pool *pgxpool.Pool
}

func NewVoteStore(pool *pgxpool.Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

func (s *VoteStore) RecordVote(ctx context.Context, name domain.AIName) error {
	if _, err := s.pool.Exec(ctx, insertVoteSQL, string(name)); err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

func (s *VoteStore) CountVotes(ctx context.Context) (domain.VoteCounts, error) {
	rows, err := s.pool.Query(ctx, countVotesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query vote counts: %w", err)
	}

	counts := domain.NewVoteCounts()
	var name string
	var n int64
	_, err = pgx.ForEachRow(rows, []any{&name, &n}, func() error {
		counts[domain.AIName(name)] = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan vote counts: %w", err)
	}
	return counts, nil
}

func (s *VoteStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
