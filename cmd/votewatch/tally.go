package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
)

// tally is the viewer's running count. Only known artists are counted.
type tally struct {
	mu     sync.Mutex
	counts domain.VoteCounts
}

func newTally(initial domain.VoteCounts) *tally {
	counts := domain.NewVoteCounts()
	for name, n := range initial {
		if name.Valid() {
			counts[name] = n
		}
	}
	return &tally{counts: counts}
}

func (t *tally) add(name domain.AIName) bool {
	if !name.Valid() {
		return false
	}
	t.mu.Lock()
	t.counts[name]++
	t.mu.Unlock()
	return true
}

func (t *tally) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	parts := make([]string, 0, len(domain.AINames))
	for _, name := range domain.AINames {
		parts = append(parts, fmt.Sprintf("%s: %d", name, t.counts[name]))
	}
	return strings.Join(parts, "  ")
}
