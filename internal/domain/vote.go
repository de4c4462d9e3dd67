package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// AIName identifies one of the competing AI artists.
type AIName string

const (
	AICodex  AIName = "Codex"
	AIClaude AIName = "Claude"
	AIGemini AIName = "Gemini"
)

// AINames lists every valid artist in display order.
var AINames = []AIName{AICodex, AIClaude, AIGemini}

// Valid reports whether n is one of the known artists. The comparison is case-sensitive.
func (n AIName) Valid() bool {
	switch n {
	case AICodex, AIClaude, AIGemini:
		return true
	default:
		return false
	}
}

// ParseAIName validates a raw artist name.
func ParseAIName(raw string) (AIName, error) {
	name := AIName(raw)
	if !name.Valid() {
		return "", ErrInvalidAIName
	}
	return name, nil
}

// VoteEvent is the wire payload fanned out to every room member.
type VoteEvent struct {
	AIName AIName `json:"ai_name"`
}

// DecodeVoteEvent parses and validates a JSON vote payload.
// Every failure wraps ErrInvalidPayload.
func DecodeVoteEvent(data []byte) (VoteEvent, error) {
	var event VoteEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&event); err != nil {
		return VoteEvent{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if !event.AIName.Valid() {
		return VoteEvent{}, fmt.Errorf("%w: %w", ErrInvalidPayload, ErrInvalidAIName)
	}
	return event, nil
}

// VoteCounts maps every artist to the number of votes cast for it.
type VoteCounts map[AIName]int64

// NewVoteCounts returns a tally with every known artist at zero.
func NewVoteCounts() VoteCounts {
	counts := make(VoteCounts, len(AINames))
	for _, name := range AINames {
		counts[name] = 0
	}
	return counts
}

// VoteStore persists votes and computes tallies.
type VoteStore interface {
	RecordVote(ctx context.Context, name AIName) error
	CountVotes(ctx context.Context) (VoteCounts, error)
	Ping(ctx context.Context) error
}

// Broadcaster fans a vote event out to the members of a room.
type Broadcaster interface {
	Broadcast(event VoteEvent) error
}

// RoomResolver maps a room key to its broadcaster.
type RoomResolver interface {
	Broadcaster(key string) Broadcaster
}

// DefaultRoomKey names the room every cast vote is announced to.
const DefaultRoomKey = "main"
