package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
	apperrors "github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/errors"
)

const msgInvalidAIName = "Invalid ai_name. Must be Codex, Claude, or Gemini."

type castVoteRequest struct {
	AIName string `json:"ai_name"`
}

func (s *Server) handleCastVote(c echo.Context) error {
	// the body is JSON whatever Content-Type the client sends
	var req castVoteRequest
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxBroadcastBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return apperrors.InvalidPayloadError("invalid request body", err)
	}

	if _, err := s.votes.Cast(c.Request().Context(), req.AIName); err != nil {
		if errors.Is(err, domain.ErrInvalidAIName) {
			return apperrors.ValidationError(msgInvalidAIName).WithField("ai_name", req.AIName)
		}
		return apperrors.InternalError("failed to record vote", err)
	}

	if err := c.JSON(http.StatusOK, map[string]bool{"success": true}); err != nil {
		return fmt.Errorf("failed to write vote response: %w", err)
	}
	return nil
}

func (s *Server) handleGetVotes(c echo.Context) error {
	counts, err := s.votes.Tally(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to load votes", err)
	}

	if err := c.JSON(http.StatusOK, counts); err != nil {
		return fmt.Errorf("failed to write votes response: %w", err)
	}
	return nil
}
