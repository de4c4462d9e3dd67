package httpserver

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
	apperrors "github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/errors"
)

const (
	maxClientMessageSize = 512
	maxBroadcastBodySize = 4 << 10

	msgUpgradeRequired = "Expected WebSocket upgrade"
	msgRoomBadRequest  = "Expected WebSocket or POST request"
	msgInvalidPayload  = "InvalidPayload"
)

// isWebSocketUpgrade matches only the exact header value "websocket".
func isWebSocketUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") == "websocket"
}

func (s *Server) handleVoteRoom(c echo.Context) error {
	if !isWebSocketUpgrade(c.Request()) {
		slog.DebugContext(c.Request().Context(), "Rejected non-upgrade request", "error", domain.ErrUpgradeRequired)
		return c.String(http.StatusUpgradeRequired, msgUpgradeRequired)
	}
	return s.serveRoom(c, domain.DefaultRoomKey)
}

// handleRoomRequest serves the internal room endpoint: upgrades join the room,
// POSTs broadcast to it, anything else is refused.
func (s *Server) handleRoomRequest(c echo.Context) error {
	key := c.Param("key")
	switch {
	case isWebSocketUpgrade(c.Request()):
		return s.serveRoom(c, key)
	case c.Request().Method == http.MethodPost:
		return s.handleBroadcast(c, key)
	default:
		return c.String(http.StatusBadRequest, msgRoomBadRequest)
	}
}

func (s *Server) handleBroadcast(c echo.Context, key string) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxBroadcastBodySize))
	if err != nil {
		return apperrors.InvalidPayloadError(msgInvalidPayload, err).WithField("room", key)
	}

	event, err := domain.DecodeVoteEvent(body)
	if err != nil {
		return apperrors.InvalidPayloadError(msgInvalidPayload, err).WithField("room", key)
	}

	if err := s.rooms.Get(key).Broadcast(event); err != nil {
		return apperrors.InternalError("failed to broadcast", err).WithField("room", key)
	}

	if err := c.JSON(http.StatusOK, map[string]bool{"success": true}); err != nil {
		return fmt.Errorf("failed to write broadcast response: %w", err)
	}
	return nil
}

// serveRoom upgrades the connection, joins the room and blocks reading until
// the peer goes away. Leave runs exactly once on the way out.
func (s *Server) serveRoom(c echo.Context, key string) error {
	ctx := c.Request().Context()
	ip := c.RealIP()

	if ok, reason := s.limits.Acquire(ip); !ok {
		s.connMetrics.Rejected.WithLabelValues(string(reason)).Inc()
		if reason == LimitReasonGlobal {
			return apperrors.UnavailableError("too many connections").WithField("reason", string(reason))
		}
		return apperrors.RateLimitedError("too many connections from this address").WithField("reason", string(reason))
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		s.connMetrics.Rejected.WithLabelValues("handshake").Inc()
		slog.DebugContext(ctx, "WebSocket upgrade failed", "room", key, "error", err)
		return nil
	}

	r := s.rooms.Get(key)
	session, err := r.Join(conn)
	if err != nil {
		slog.WarnContext(ctx, "Room join failed", "room", key, "error", err)
		_ = conn.Close()
		return nil
	}
	defer r.Leave(session)

	s.connMetrics.ActiveConnections.Inc()
	defer s.connMetrics.ActiveConnections.Dec()

	slog.InfoContext(ctx, "WebSocket connected", "room", key, "session_id", session.ID().String(), "remote_ip", ip)

	conn.SetReadLimit(maxClientMessageSize)
	for {
		// client frames carry no meaning; reading drives pong and close handling
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.DebugContext(ctx, "WebSocket read error", "room", key, "session_id", session.ID().String(), "error", err)
			}
			break
		}
	}

	slog.InfoContext(ctx, "WebSocket disconnected", "room", key, "session_id", session.ID().String())
	return nil
}
