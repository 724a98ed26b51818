package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tutor_connections_active",
			Help: "Open websocket connections",
		},
		[]string{"kind"}, // "call" or "chat"
	)

	RoomsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tutor_rooms_active",
			Help: "Rooms with at least one member",
		},
		[]string{"kind"},
	)

	// Signaling metrics
	JoinAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_join_attempts_total",
			Help: "Call room join attempts by outcome",
		},
		[]string{"result"},
	)

	SignalsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_signals_relayed_total",
			Help: "Signaling frames relayed to peers",
		},
		[]string{"type"},
	)

	// Chat metrics
	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tutor_messages_persisted_total",
			Help: "Chat messages durably recorded",
		},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_persistence_failures_total",
			Help: "Store operations that failed",
		},
		[]string{"op"},
	)

	// Delivery metrics
	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_frames_dropped_total",
			Help: "Frames not delivered because of backpressure or closed transport",
		},
		[]string{"kind"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tutor_store_latency_seconds",
			Help:    "Store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"driver", "op"},
	)
)
