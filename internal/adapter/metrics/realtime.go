package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics holds Prometheus metrics for coordinators, their
// WebSocket connections, and the broadcaster feeding them.
type RealtimeMetrics struct {
	Coordinators      prometheus.Gauge
	ActiveConnections prometheus.Gauge
	EventsRelayed     *prometheus.CounterVec
	FanoutDuration    prometheus.Histogram
	Evictions         *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	PingFailures      prometheus.Counter
	BroadcastResults  *prometheus.CounterVec
	DispatchQueue     prometheus.Gauge
}

// NewRealtimeMetrics creates and registers realtime metrics on the given registry.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	m := &RealtimeMetrics{
		Coordinators: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "coordinators",
			Help:      "Number of live entity coordinators on this node.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "active_connections",
			Help:      "Number of open WebSocket connections held by coordinators.",
		}),
		EventsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_relayed_total",
			Help:      "Total number of events fanned out by coordinators, by event type.",
		}, []string{"type"}),
		FanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "fanout_duration_seconds",
			Help:      "Time spent queueing one event to every connection of a coordinator.",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01},
		}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "evictions_total",
			Help:      "Total number of connections removed by the server, by reason.",
		}, []string{"reason"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "rejections_total",
			Help:      "Total number of refused connection attempts and broadcast requests, by reason.",
		}, []string{"reason"}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "ping_failures_total",
			Help:      "Total number of keep-alive pings that could not be written.",
		}),
		BroadcastResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "broadcast_results_total",
			Help:      "Total number of broadcaster calls, by outcome.",
		}, []string{"outcome"}),
		DispatchQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "dispatch_queue_depth",
			Help:      "Events waiting in the broadcaster dispatch queues.",
		}),
	}

	reg.MustRegister(
		m.Coordinators, m.ActiveConnections, m.EventsRelayed, m.FanoutDuration,
		m.Evictions, m.Rejections, m.PingFailures, m.BroadcastResults, m.DispatchQueue,
	)
	return m
}

// NewNopRealtimeMetrics returns metrics registered on a throwaway registry.
func NewNopRealtimeMetrics() *RealtimeMetrics {
	return NewRealtimeMetrics(prometheus.NewRegistry())
}
