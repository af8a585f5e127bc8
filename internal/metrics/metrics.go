package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Records appended, skipped by the duplicate window, or rejected as invalid ids
	RecorderOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_recorder_outcomes_total",
			Help: "Outcome of conditional notification appends",
		},
		[]string{"kind", "channel", "outcome"}, // outcome: modified/skipped/invalid
	)

	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_attempts_total",
			Help: "Delivery attempts per channel",
		},
		[]string{"channel", "status"}, // status: sent/failed/pending/delivered
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_job_duration_seconds",
			Help:    "Time spent running notification jobs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job", "status"},
	)

	JobNotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_job_sent_total",
			Help: "Notifications sent by job",
		},
		[]string{"job"},
	)

	ConnectedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_connected_users_current",
			Help: "Users with at least one live browser connection",
		},
	)

	OpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_open_connections_current",
			Help: "Live authenticated browser connections",
		},
	)

	PendingAlertsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_pending_alerts_delivered_total",
			Help: "Pending alerts flushed on reconnection",
		},
	)
)
