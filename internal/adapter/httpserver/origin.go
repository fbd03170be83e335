package httpserver

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/gigmarket/internal/platform/config"
)

func newUpgrader(cfg *config.Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newCheckOrigin(cfg.AppURL, !cfg.IsProduction()),
	}
}

// newCheckOrigin accepts requests without an Origin header, since those are
// not browsers and carry no ambient cookies, and requests from the app's
// own origin. Development also accepts loopback origins on any port.
func newCheckOrigin(appURL string, development bool) func(r *http.Request) bool {
	appOrigin := extractOrigin(appURL)

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "", origin == appOrigin:
			return true
		case development && isLoopback(origin):
			return true
		}
		slog.Warn("WebSocket origin rejected", "origin", origin, "path", r.URL.Path)
		return false
	}
}

// extractOrigin returns scheme://host[:port] of rawURL, or "" if it has no host.
func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
}

func isLoopback(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
