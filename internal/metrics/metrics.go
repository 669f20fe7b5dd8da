package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsingester_frames_total",
			Help: "Frames decoded, by protocol and frame kind.",
		},
		[]string{"protocol", "kind"},
	)

	DecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsingester_decode_errors_total",
			Help: "Frames that failed to decode.",
		},
		[]string{"protocol"},
	)

	BytesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsingester_bytes_read_total",
			Help: "Bytes read from device sockets.",
		},
		[]string{"protocol"},
	)

	ActiveSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gpsingester_active_sessions",
			Help: "Live device sessions.",
		},
		[]string{"protocol"},
	)

	AcksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsingester_acks_total",
			Help: "Acknowledgement frames written back to devices.",
		},
		[]string{"protocol"},
	)

	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsingester_publish_total",
			Help: "Records handed to the bus producer, by topic.",
		},
		[]string{"topic"},
	)

	PublishDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsingester_publish_dropped_total",
			Help: "Records dropped before produce (no_imei, queue_full, marshal).",
		},
		[]string{"reason"},
	)

	PublishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsingester_publish_errors_total",
			Help: "Produce failures reported by the bus client.",
		},
		[]string{"topic"},
	)

	ListenerRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsingester_listener_restarts_total",
			Help: "Listener restarts after a crash or bind failure.",
		},
		[]string{"protocol"},
	)

	LastFrameTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gpsingester_last_frame_timestamp_seconds",
			Help: "Unix timestamp of the last decoded frame.",
		},
		[]string{"protocol"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(register)
}

func register() {
	prometheus.MustRegister(
		FramesTotal,
		DecodeErrorsTotal,
		BytesReadTotal,
		ActiveSessions,
		AcksTotal,
		PublishTotal,
		PublishDroppedTotal,
		PublishErrorsTotal,
		ListenerRestartsTotal,
		LastFrameTimestamp,
	)
}
