package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/pscheid92/gigmarket/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const (
	breakerFailureThreshold = 5
	breakerDelay            = 30 * time.Second
)

// breakerStates is the gauge value exported per state.
var breakerStates = map[circuitbreaker.State]float64{
	circuitbreaker.ClosedState:   0,
	circuitbreaker.HalfOpenState: 1,
	circuitbreaker.OpenState:     2,
}

// CircuitBreakerHook fails relay publishes, heartbeats and health pings fast
// while Redis is unreachable. Redis nil replies count as successes.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook opens after five consecutive failures and lets one
// probe through after 30s. m may be nil.
func NewCircuitBreakerHook(m *metrics.RedisMetrics) *CircuitBreakerHook {
	return newCircuitBreakerHook(m, breakerDelay)
}

func newCircuitBreakerHook(m *metrics.RedisMetrics, delay time.Duration) *CircuitBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(breakerFailureThreshold).
		WithDelay(delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Redis breaker transition", "from", e.OldState.String(), "to", e.NewState.String())
			if m == nil {
				return
			}
			m.CircuitBreakerChanges.WithLabelValues(e.NewState.String()).Inc()
			if v, ok := breakerStates[e.NewState]; ok {
				m.CircuitBreakerState.Set(v)
			}
		}).
		Build()

	return &CircuitBreakerHook{cb: cb}
}

// guard runs fn if the breaker admits it and records the outcome.
func (h *CircuitBreakerHook) guard(op string, fn func() error) error {
	if !h.cb.TryAcquirePermit() {
		return fmt.Errorf("redis %s refused: %w", op, circuitbreaker.ErrOpen)
	}
	err := fn()
	if err == nil || errors.Is(err, goredis.Nil) {
		h.cb.RecordSuccess()
		return err
	}
	h.cb.RecordError(err)
	return err
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		var conn net.Conn
		err := h.guard("dial", func() (err error) {
			conn, err = next(ctx, network, addr)
			return err
		})
		return conn, err
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		return h.guard(cmd.Name(), func() error { return next(ctx, cmd) })
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		return h.guard("pipeline", func() error { return next(ctx, cmds) })
	}
}

func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}
