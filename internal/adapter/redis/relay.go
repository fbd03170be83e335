package redis

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/gigmarket/internal/adapter/metrics"
	"github.com/pscheid92/gigmarket/internal/coordinator"
	"github.com/pscheid92/gigmarket/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const relayChannelPrefix = "realtime:"

var errBadSignature = errors.New("relay message signature mismatch")

// relayEnvelope is published once per broadcast. Every node, including the
// publisher, delivers it to its local coordinator for the key.
type relayEnvelope struct {
	Origin    string          `json:"origin"`
	Key       string          `json:"key"`
	Body      json.RawMessage `json:"body"`
	Signature string          `json:"sig"`
}

func relayChannel(key domain.EntityKey) string {
	return relayChannelPrefix + key.String()
}

// Relay is a coordinator.Backing for multi-node deployments. Sockets are
// accepted by the local registry; broadcasts fan out through Redis pub/sub
// so that each node relays to the connections it holds.
type Relay struct {
	rdb     *goredis.Client
	local   *coordinator.Registry
	secret  string
	nodeID  string
	clock   clockwork.Clock
	metrics *metrics.RedisMetrics
	ready   chan struct{}
}

var _ coordinator.Backing = (*Relay)(nil)

func NewRelay(rdb *goredis.Client, local *coordinator.Registry, secret, nodeID string, clock clockwork.Clock, m *metrics.RedisMetrics) *Relay {
	if m == nil {
		m = metrics.NewRedisMetrics(prometheus.NewRegistry())
	}
	return &Relay{
		rdb:     rdb,
		local:   local,
		secret:  secret,
		nodeID:  nodeID,
		clock:   clock,
		metrics: m,
		ready:   make(chan struct{}),
	}
}

func (r *Relay) Resolve(key domain.EntityKey) coordinator.Handle {
	return r.local.Resolve(key)
}

// Send checks the request locally, then publishes it for every node.
func (r *Relay) Send(ctx context.Context, key domain.EntityKey, req coordinator.BroadcastRequest) error {
	if req.Action != coordinator.ActionBroadcast {
		return fmt.Errorf("%w: %q", coordinator.ErrUnsupportedAction, req.Action)
	}
	if !coordinator.SecretMatches(req.Secret, r.secret) {
		return coordinator.ErrForbidden
	}
	if req.Event == nil || !domain.EventAllowedOn(req.Event, key.Kind) {
		return fmt.Errorf("%w on %s", coordinator.ErrEventNotAllowed, key)
	}

	body, err := coordinator.EncodeBroadcastBody(req.Event, r.clock.Now())
	if err != nil {
		return fmt.Errorf("encode relay body: %w", err)
	}
	payload, err := json.Marshal(relayEnvelope{
		Origin:    r.nodeID,
		Key:       key.String(),
		Body:      body,
		Signature: r.sign(key.String(), body),
	})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}

	if err := r.rdb.Publish(ctx, relayChannel(key), payload).Err(); err != nil {
		r.metrics.RelayPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish relay message: %w", err)
	}
	r.metrics.RelayPublished.WithLabelValues("ok").Inc()
	return nil
}

// Ready is closed once the subscription is active.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes to every relay channel and delivers messages until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.rdb.PSubscribe(ctx, relayChannelPrefix+"*")
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to relay channels: %w", err)
	}
	close(r.ready)
	slog.Info("Relay subscribed", "node_id", r.nodeID, "pattern", relayChannelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg.Channel, msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Relay) deliver(channel, payload string) {
	key, event, err := r.open(channel, payload)
	if err != nil {
		slog.Warn("Dropping relay message", "error", err)
		r.metrics.RelayReceived.WithLabelValues("invalid").Inc()
		return
	}

	handle, ok := r.local.Lookup(key)
	if !ok {
		r.metrics.RelayReceived.WithLabelValues("no_coordinator").Inc()
		return
	}
	if err := handle.HandleBroadcastRequest(r.secret, event); err != nil {
		slog.Warn("Relay delivery failed", "entity_key", key.String(), "error", err)
		r.metrics.RelayReceived.WithLabelValues("error").Inc()
		return
	}
	r.metrics.RelayReceived.WithLabelValues("delivered").Inc()
}

func (r *Relay) open(channel, payload string) (domain.EntityKey, domain.Event, error) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return domain.EntityKey{}, nil, fmt.Errorf("decode relay envelope: %w", err)
	}
	if !hmac.Equal([]byte(env.Signature), []byte(r.sign(env.Key, env.Body))) {
		return domain.EntityKey{}, nil, errBadSignature
	}
	key, err := entityKeyFromChannel(channel)
	if err != nil {
		return domain.EntityKey{}, nil, err
	}
	if key.String() != env.Key {
		return domain.EntityKey{}, nil, fmt.Errorf("relay message for %q published on %q", env.Key, channel)
	}
	event, err := coordinator.DecodeBroadcastBody(env.Body)
	if err != nil {
		return domain.EntityKey{}, nil, err
	}
	return key, event, nil
}

func (r *Relay) sign(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(r.secret))
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write(body)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// entityKeyFromChannel is the inverse of relayChannel.
func entityKeyFromChannel(channel string) (domain.EntityKey, error) {
	return domain.ParseEntityKey(strings.TrimPrefix(channel, relayChannelPrefix))
}
