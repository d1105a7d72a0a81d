// Package metrics prometheus collectors of the replication engine.
// Labels are bounded, never per client or per object.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// snapshot
	SnapshotBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapsync_snapshot_bytes",
		Help:    "Size of formatted snapshot datagrams",
		Buckets: prometheus.ExponentialBuckets(16, 2, 12),
	}, []string{"kind"}) // "full", "delta"

	SnapshotDatagrams = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapsync_snapshot_datagrams_total",
		Help: "Snapshot datagrams formatted",
	}, []string{"kind"}) // "full", "delta", "generate", "delete"

	PackedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapsync_packed_records_total",
		Help: "Packed state records by outcome",
	}, []string{"outcome"}) // "created", "reused", "full"

	Resyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapsync_resyncs_total",
		Help: "Full resync requests",
	}, []string{"result"}) // "accepted", "limited"

	// prediction
	PredictionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapsync_prediction_errors_total",
		Help: "Prediction checks by classification",
	}, []string{"diff"}) // "identical", "within_tolerance", "differs", "teleport"

	PredictionAborts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapsync_prediction_aborts_total",
		Help: "Frames whose replay exceeded the prediction ring",
	})

	PredictedCommands = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapsync_predicted_commands",
		Help:    "Commands simulated per prediction update",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 90},
	})

	// server
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapsync_tick_duration_seconds",
		Help:    "Time spent in one server tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
	})

	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapsync_rooms",
		Help: "Running rooms",
	})

	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapsync_sessions",
		Help: "Connected sessions",
	})

	CommandsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapsync_commands_dropped_total",
		Help: "User commands not executed",
	}, []string{"reason"}) // "stale", "rate_limit", "overflow"

	Packets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapsync_packets_total",
		Help: "Envelope packets by direction",
	}, []string{"dir"}) // "in", "out"

	PacketsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapsync_unreliable_dropped_total",
		Help: "Unreliable sends dropped because the connection was congested",
	})
)

// Handler http handler exposing the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
