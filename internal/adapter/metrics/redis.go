package metrics

import "github.com/prometheus/client_golang/prometheus"

// RedisMetrics holds Prometheus metrics for Redis commands, the relay, and
// the client's circuit breaker.
type RedisMetrics struct {
	CommandsTotal         *prometheus.CounterVec
	CommandDuration       *prometheus.HistogramVec
	DialErrors            prometheus.Counter
	CircuitBreakerState   prometheus.Gauge
	CircuitBreakerChanges *prometheus.CounterVec
	RelayPublished        *prometheus.CounterVec
	RelayReceived         *prometheus.CounterVec
}

// NewRedisMetrics creates and registers Redis metrics on the given registry.
func NewRedisMetrics(reg prometheus.Registerer) *RedisMetrics {
	m := &RedisMetrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "commands_total",
			Help:      "Total number of Redis commands, by command and status.",
		}, []string{"command", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "command_duration_seconds",
			Help:      "Duration of Redis commands in seconds.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"command"}),
		DialErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "dial_errors_total",
			Help:      "Total number of failed Redis connection attempts.",
		}),
		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_state",
			Help:      "Redis circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		CircuitBreakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of Redis circuit breaker transitions, by target state.",
		}, []string{"to"}),
		RelayPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "relay_published_total",
			Help:      "Total number of broadcast requests published to the relay, by result.",
		}, []string{"result"}),
		RelayReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "relay_received_total",
			Help:      "Total number of relay messages handled by this node, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.CommandsTotal, m.CommandDuration, m.DialErrors,
		m.CircuitBreakerState, m.CircuitBreakerChanges, m.RelayPublished, m.RelayReceived,
	)
	return m
}
