package coordinator

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gigmarket/internal/adapter/metrics"
	"github.com/pscheid92/gigmarket/internal/capability"
)

const (
	commandTimeout    = 5 * time.Second
	stopTimeout       = 10 * time.Second
	cmdBufferSize     = 256
	sendBufferSize    = 16
	maxInboundMessage = 4096

	defaultPingInterval   = 25 * time.Second
	defaultMaxMissedPongs = 2
	defaultWriteTimeout   = 5 * time.Second
	defaultMaxConnections = 64
	defaultIdleTTL        = 10 * time.Minute
)

// TokenVerifier checks capability tokens. *capability.Signer implements it.
type TokenVerifier interface {
	Verify(token string) (capability.Claims, error)
}

// KeepAlive controls the ping/pong exchange with each connection.
type KeepAlive struct {
	PingInterval   time.Duration
	MaxMissedPongs int
	WriteTimeout   time.Duration
}

// readWindow is how long a connection may stay silent before its read fails.
func (k KeepAlive) readWindow() time.Duration {
	return k.PingInterval*time.Duration(k.MaxMissedPongs+1) + k.WriteTimeout
}

type Options struct {
	// Verifier is nil when no signing secret is configured; every connection
	// attempt is then rejected as unauthorized.
	Verifier TokenVerifier
	// InternalSecret authenticates broadcast requests. Empty rejects all of them.
	InternalSecret string
	KeepAlive      KeepAlive
	MaxConnections int
	IdleTTL        time.Duration
	Clock          clockwork.Clock
	Metrics        *metrics.RealtimeMetrics
}

func (o Options) withDefaults() Options {
	if o.KeepAlive.PingInterval <= 0 {
		o.KeepAlive.PingInterval = defaultPingInterval
	}
	if o.KeepAlive.MaxMissedPongs <= 0 {
		o.KeepAlive.MaxMissedPongs = defaultMaxMissedPongs
	}
	if o.KeepAlive.WriteTimeout <= 0 {
		o.KeepAlive.WriteTimeout = defaultWriteTimeout
	}
	if o.MaxConnections <= 0 {
		o.MaxConnections = defaultMaxConnections
	}
	if o.IdleTTL <= 0 {
		o.IdleTTL = defaultIdleTTL
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewNopRealtimeMetrics()
	}
	return o
}
