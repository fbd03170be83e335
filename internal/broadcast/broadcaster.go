package broadcast

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/pscheid92/gigmarket/internal/adapter/metrics"
	"github.com/pscheid92/gigmarket/internal/coordinator"
	"github.com/pscheid92/gigmarket/internal/domain"
)

const (
	defaultWorkers     = 8
	defaultQueueSize   = 256
	defaultSendTimeout = 5 * time.Second
)

// Reason explains why a broadcast did not reach its coordinator.
type Reason string

const (
	ReasonNotConfigured Reason = "not_configured"
	ReasonQueueFull     Reason = "queue_full"
	ReasonStopped       Reason = "stopped"
	ReasonForbidden     Reason = "forbidden"
	ReasonRejected      Reason = "rejected"
	ReasonTimeout       Reason = "timeout"
	ReasonUnavailable   Reason = "unavailable"
)

// Result is the outcome of one broadcast. The zero Reason means Ok.
type Result struct {
	Ok     bool
	Reason Reason
	Err    error
}

func (r Result) outcome() string {
	if r.Ok {
		return "ok"
	}
	return string(r.Reason)
}

type Options struct {
	Backing     coordinator.Backing
	Secret      string
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	Metrics     *metrics.RealtimeMetrics
}

type job struct {
	key   domain.EntityKey
	event domain.Event
}

// Broadcaster attaches the internal secret to events and hands them to the
// coordinator backing. Enqueue hashes each key onto one dispatch worker, so
// events for the same entity keep their order.
type Broadcaster struct {
	backing     coordinator.Backing
	secret      string
	sendTimeout time.Duration
	metrics     *metrics.RealtimeMetrics

	mu      sync.RWMutex
	stopped bool
	queues  []chan job
	wg      sync.WaitGroup
}

func New(opts Options) *Broadcaster {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNopRealtimeMetrics()
	}

	b := &Broadcaster{
		backing:     opts.Backing,
		secret:      opts.Secret,
		sendTimeout: opts.SendTimeout,
		metrics:     opts.Metrics,
		queues:      make([]chan job, opts.Workers),
	}
	for i := range b.queues {
		b.queues[i] = make(chan job, opts.QueueSize)
		b.wg.Add(1)
		go b.dispatch(b.queues[i])
	}

	if !b.Enabled() {
		slog.Warn("Realtime broadcasting disabled: backing or internal secret not configured")
	}
	return b
}

// Enabled reports whether broadcasts can be delivered at all.
func (b *Broadcaster) Enabled() bool {
	return b.backing != nil && b.secret != ""
}

// Broadcast delivers event to the coordinator for key and waits for the answer.
func (b *Broadcaster) Broadcast(ctx context.Context, key domain.EntityKey, event domain.Event) Result {
	res := b.send(ctx, key, event)
	b.metrics.BroadcastResults.WithLabelValues(res.outcome()).Inc()
	return res
}

// Enqueue schedules event for delivery without blocking the caller.
func (b *Broadcaster) Enqueue(key domain.EntityKey, event domain.Event) Result {
	if !b.Enabled() {
		return b.record(b.notConfigured(key, event))
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.stopped {
		return b.record(Result{Reason: ReasonStopped})
	}

	select {
	case b.queues[b.worker(key)] <- job{key: key, event: event}:
		b.metrics.DispatchQueue.Inc()
		return Result{Ok: true}
	default:
		slog.Warn("Broadcast queue full, dropping event", "entity_key", key.String(), "type", event.Type())
		return b.record(Result{Reason: ReasonQueueFull})
	}
}

// Stop drains queued events and waits for the workers to finish.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	for _, q := range b.queues {
		close(q)
	}
	b.mu.Unlock()

	b.wg.Wait()
	slog.Info("Broadcaster stopped")
}

func (b *Broadcaster) dispatch(queue <-chan job) {
	defer b.wg.Done()
	for j := range queue {
		b.metrics.DispatchQueue.Dec()
		b.Broadcast(context.Background(), j.key, j.event)
	}
}

func (b *Broadcaster) send(ctx context.Context, key domain.EntityKey, event domain.Event) Result {
	if !b.Enabled() {
		return b.notConfigured(key, event)
	}

	ctx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()

	err := b.backing.Send(ctx, key, coordinator.BroadcastRequest{
		Action: coordinator.ActionBroadcast,
		Secret: b.secret,
		Event:  event,
	})
	if err != nil {
		reason := classify(err)
		slog.WarnContext(ctx, "Broadcast failed",
			"entity_key", key.String(),
			"type", event.Type(),
			"reason", reason,
			"error", err,
		)
		return Result{Reason: reason, Err: err}
	}
	return Result{Ok: true}
}

func (b *Broadcaster) notConfigured(key domain.EntityKey, event domain.Event) Result {
	slog.Error("Broadcast skipped: realtime not configured", "entity_key", key.String(), "type", event.Type())
	return Result{Reason: ReasonNotConfigured}
}

func (b *Broadcaster) record(res Result) Result {
	b.metrics.BroadcastResults.WithLabelValues(res.outcome()).Inc()
	return res
}

func (b *Broadcaster) worker(key domain.EntityKey) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return int(h.Sum32() % uint32(len(b.queues)))
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, coordinator.ErrForbidden):
		return ReasonForbidden
	case errors.Is(err, coordinator.ErrEventNotAllowed),
		errors.Is(err, coordinator.ErrUnsupportedAction),
		errors.Is(err, coordinator.ErrMalformedRequest):
		return ReasonRejected
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonUnavailable
	}
}
