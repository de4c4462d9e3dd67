package httpserver

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// viewerOrigin is the scheme and host a browser page was served from.
type viewerOrigin struct {
	scheme   string
	host     string
	hostname string
}

func parseViewerOrigin(raw string) (viewerOrigin, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return viewerOrigin{}, false
	}
	return viewerOrigin{
		scheme:   strings.ToLower(u.Scheme),
		host:     strings.ToLower(u.Host),
		hostname: strings.ToLower(u.Hostname()),
	}, true
}

func (o viewerOrigin) loopback() bool {
	return o.hostname == "localhost" || o.hostname == "127.0.0.1" || o.hostname == "::1"
}

// NewCheckOrigin decides which pages may open a /vote-room connection.
// Viewers without an Origin header (votewatch, curl) are always admitted, as
// is the vote page served from appURL. Development builds also admit pages on
// loopback hosts so a local frontend dev server can connect.
func NewCheckOrigin(appURL string, isDevelopment bool) func(r *http.Request) bool {
	app, appOK := parseViewerOrigin(appURL)

	return func(r *http.Request) bool {
		raw := r.Header.Get("Origin")
		if raw == "" {
			return true
		}

		viewer, ok := parseViewerOrigin(raw)
		switch {
		case ok && appOK && viewer == app:
			return true
		case ok && isDevelopment && viewer.loopback():
			return true
		}

		slog.Warn("Vote room origin rejected", "origin", raw, "remote_addr", r.RemoteAddr)
		return false
	}
}
