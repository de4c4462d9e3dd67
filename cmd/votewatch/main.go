package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/logging"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/retry"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/version"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/roomclient"
)

const fetchTimeout = 10 * time.Second

func main() {
	var (
		baseURL   = flag.String("url", envOr("VOTEROOM_URL", "http://localhost:8080"), "Base URL of the vote server (or set VOTEROOM_URL env)")
		roomPath  = flag.String("path", "/vote-room", "WebSocket path of the vote room")
		reconnect = flag.Duration("reconnect", roomclient.DefaultReconnectDelay, "Delay before redialing a lost connection")
		verbose   = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	slog.SetDefault(logging.New(os.Stderr, level, "text"))

	wsURL, err := roomURL(*baseURL, *roomPath)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initial, err := fetchTally(ctx, *baseURL)
	if err != nil {
		log.Fatalf("Failed to load vote tally: %v", err)
	}
	board := newTally(initial)
	fmt.Println(board)

	client, err := roomclient.New(roomclient.Config{
		URL:            wsURL,
		ReconnectDelay: *reconnect,
		OnVote: func(ev domain.VoteEvent) {
			if board.add(ev.AIName) {
				fmt.Println(board)
			}
		},
		OnStateChange: func(s roomclient.State) {
			slog.Info("Room connection", "state", s.String())
		},
	})
	if err != nil {
		log.Fatalf("Failed to create room client: %v", err)
	}

	client.Start()
	<-ctx.Done()
	client.Stop()
	slog.Info("Stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// roomURL turns the HTTP base URL into the WebSocket URL of the room.
func roomURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}

func fetchTally(ctx context.Context, base string) (domain.VoteCounts, error) {
	policy := retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     4 * time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Tally request failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	client := &http.Client{Timeout: fetchTimeout}
	endpoint := strings.TrimSuffix(base, "/") + "/api/votes"

	return retry.Do(ctx, policy, retry.Always, func(ctx context.Context) (domain.VoteCounts, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", version.UserAgent())

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("GET %s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GET %s: unexpected status %d", endpoint, resp.StatusCode)
		}

		var counts domain.VoteCounts
		if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
			return nil, fmt.Errorf("decode tally: %w", err)
		}
		return counts, nil
	})
}
