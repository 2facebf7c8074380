package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DetectionsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailguard_detections_received_total",
			Help: "Total number of detection submissions received",
		},
		[]string{"outcome"},
	)

	DetectionsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trailguard_detections_duplicate_total",
			Help: "Total number of duplicate detection submissions absorbed by the dedup window",
		},
	)

	AlertMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailguard_alert_messages_total",
			Help: "Total number of alert messages by channel and status",
		},
		[]string{"channel", "status"},
	)

	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trailguard_stream_subscribers",
			Help: "Number of currently connected stream subscribers",
		},
	)

	HeartbeatsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trailguard_heartbeats_received_total",
			Help: "Total number of device heartbeats received",
		},
	)

	IntakeProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trailguard_intake_processing_duration_seconds",
			Help:    "Time taken to process one detection submission",
			Buckets: prometheus.DefBuckets,
		},
	)
)
