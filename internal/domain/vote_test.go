package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAIName(t *testing.T) {
	tests := []struct {
		raw     string
		want    AIName
		wantErr bool
	}{
		{"Codex", AICodex, false},
		{"Claude", AIClaude, false},
		{"Gemini", AIGemini, false},
		{"claude", "", true},
		{"Bogus", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAIName(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAIName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeVoteEvent(t *testing.T) {
	event, err := DecodeVoteEvent([]byte(`{"ai_name":"Gemini"}`))
	require.NoError(t, err)
	assert.Equal(t, VoteEvent{AIName: AIGemini}, event)
}

func TestDecodeVoteEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not json`},
		{"empty body", ``},
		{"wrong type", `{"ai_name":42}`},
		{"missing name", `{}`},
		{"unknown name", `{"ai_name":"Bogus"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeVoteEvent([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPayload))
		})
	}
}

func TestNewVoteCounts_AllArtistsZero(t *testing.T) {
	counts := NewVoteCounts()
	require.Len(t, counts, 3)
	for _, name := range AINames {
		assert.Equal(t, int64(0), counts[name])
	}
}
