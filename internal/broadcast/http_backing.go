package broadcast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gigmarket/internal/coordinator"
	"github.com/pscheid92/gigmarket/internal/domain"
	"github.com/pscheid92/gigmarket/internal/platform/correlation"
	"github.com/pscheid92/gigmarket/internal/platform/version"
	"github.com/sony/gobreaker"
)

// InternalSecretHeader carries the internal broadcast secret.
const InternalSecretHeader = "X-Internal-Secret"

const (
	breakerFailureThreshold = 5
	breakerOpenDuration     = 30 * time.Second
	maxErrorBody            = 4096
)

var (
	// ErrCoordinatorUnavailable means the coordinator host could not be reached
	// or answered with a server error.
	ErrCoordinatorUnavailable = errors.New("coordinator host unavailable")
	// ErrRemoteCoordinator is returned for sockets offered to a node whose
	// coordinators live on another host.
	ErrRemoteCoordinator = errors.New("coordinators are hosted remotely")
)

// HTTPBacking forwards broadcast requests to a coordinator host over HTTP.
// A circuit breaker fails calls fast while the host is unreachable.
type HTTPBacking struct {
	baseURL string
	client  *http.Client
	clock   clockwork.Clock
	breaker *gobreaker.CircuitBreaker
}

var _ coordinator.Backing = (*HTTPBacking)(nil)

func NewHTTPBacking(baseURL string, client *http.Client, clock clockwork.Clock) *HTTPBacking {
	if client == nil {
		client = &http.Client{Timeout: defaultSendTimeout}
	}
	h := &HTTPBacking{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		clock:   clock,
	}
	h.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "coordinator-host",
		Timeout: breakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		// Refusals by the host are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrCoordinatorUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return h
}

// Resolve returns a handle that forwards broadcasts. It cannot hold sockets.
func (h *HTTPBacking) Resolve(key domain.EntityKey) coordinator.Handle {
	return remoteHandle{key: key, backing: h}
}

func (h *HTTPBacking) Send(ctx context.Context, key domain.EntityKey, req coordinator.BroadcastRequest) error {
	if req.Action != coordinator.ActionBroadcast {
		return fmt.Errorf("%w: %q", coordinator.ErrUnsupportedAction, req.Action)
	}
	body, err := coordinator.EncodeBroadcastBody(req.Event, h.clock.Now())
	if err != nil {
		return fmt.Errorf("encode broadcast body: %w", err)
	}

	_, err = h.breaker.Execute(func() (interface{}, error) {
		return nil, h.post(ctx, key, req.Secret, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCoordinatorUnavailable, err)
	}
	return err
}

// State exposes the breaker state for health reporting.
func (h *HTTPBacking) State() gobreaker.State {
	return h.breaker.State()
}

func (h *HTTPBacking) post(ctx context.Context, key domain.EntityKey, secret string, body []byte) error {
	endpoint := h.baseURL + "/internal/coordinators/" + url.PathEscape(key.String()) + "/broadcast"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set(InternalSecretHeader, secret)
	if id, ok := correlation.ID(ctx); ok {
		req.Header.Set(correlation.Header, id)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCoordinatorUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusForbidden:
		return coordinator.ErrForbidden
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status %d: %s", coordinator.ErrMalformedRequest, resp.StatusCode, bytes.TrimSpace(detail))
	default:
		return fmt.Errorf("%w: status %d", ErrCoordinatorUnavailable, resp.StatusCode)
	}
}

type remoteHandle struct {
	key     domain.EntityKey
	backing *HTTPBacking
}

func (r remoteHandle) Key() domain.EntityKey {
	return r.key
}

func (r remoteHandle) AcceptConnection(_ string, ws *websocket.Conn) (*coordinator.Connection, error) {
	msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "connect to the coordinator host")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = ws.Close()
	return nil, ErrRemoteCoordinator
}

func (r remoteHandle) HandleBroadcastRequest(secret string, event domain.Event) error {
	return r.backing.Send(context.Background(), r.key, coordinator.BroadcastRequest{
		Action: coordinator.ActionBroadcast,
		Secret: secret,
		Event:  event,
	})
}

// ConnectionCount is unknown for remote coordinators.
func (r remoteHandle) ConnectionCount() int {
	return -1
}
