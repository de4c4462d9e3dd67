package domain

import "errors"

var (
	// ErrInvalidAIName is returned when a vote names an artist outside the fixed enumeration.
	ErrInvalidAIName = errors.New("invalid ai_name")
	// ErrInvalidPayload is returned when a broadcast body cannot be decoded into a VoteEvent.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrUpgradeRequired is returned when a realtime request does not ask for a WebSocket upgrade.
	ErrUpgradeRequired = errors.New("websocket upgrade required")
)
