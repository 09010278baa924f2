package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections_active",
			Help: "Authenticated WebSocket connections on this node",
		},
	)

	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_connections_total",
			Help: "WebSocket connection attempts",
		},
		[]string{"result"}, // "accepted", "unauthorized", "failed"
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_frames_received_total",
			Help: "Inbound frames by event",
		},
		[]string{"event"},
	)

	ErrorFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_error_frames_total",
			Help: "Error frames sent to clients",
		},
		[]string{"code"},
	)

	OutboundDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_ws_outbound_dropped_total",
			Help: "Frames dropped because a connection send queue was full",
		},
	)

	// Business metrics
	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_posted_total",
			Help: "Total messages persisted",
		},
	)

	CallsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_calls_rejected_total",
			Help: "Call offers rejected because the callee was busy",
		},
	)

	// Broker metrics
	BrokerPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_broker_publishes_total",
			Help: "Broker publishes by channel family",
		},
		[]string{"family", "result"},
	)

	BrokerReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_broker_received_total",
			Help: "Broker messages received by channel family",
		},
		[]string{"family"},
	)

	BrokerParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broker_parse_failures_total",
			Help: "Broker payloads that could not be routed",
		},
	)

	FanoutDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_fanout_deliveries_total",
			Help: "Frames enqueued to local connections by the listener",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	DatabaseLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_database_latency_seconds",
			Help:    "Message store query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
