package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echo_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "echo_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "echo_live_connections",
			Help: "Transport sessions currently open",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "echo_online_users",
			Help: "Users with at least one registered connection",
		},
	)

	FanoutPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echo_fanout_pushes_total",
			Help: "Events handed to a connection send queue",
		},
		[]string{"event"},
	)

	FanoutDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echo_fanout_dropped_total",
			Help: "Pushes dropped because the connection was gone or its queue was full",
		},
		[]string{"event", "reason"},
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echo_frames_received_total",
			Help: "Inbound websocket frames by type",
		},
		[]string{"type"},
	)

	// Store
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "echo_store_latency_seconds",
			Help:    "Store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .5},
		},
		[]string{"driver", "op"},
	)
)
