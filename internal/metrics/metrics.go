package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_alerts_evaluations_total",
			Help: "Entity evaluations by signal and terminal outcome",
		},
		[]string{"signal", "outcome"}, // outcome: no_data, below_threshold, suppressed, admitted, error
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "irrigation_alerts_sweep_duration_seconds",
			Help:    "Duration of one scheduled sweep",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"signal"},
	)

	SweepErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_alerts_sweep_entity_errors_total",
			Help: "Per-entity failures inside a sweep",
		},
		[]string{"signal"},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_alerts_notifications_total",
			Help: "Push notification deliveries by status",
		},
		[]string{"status"}, // sent, partial, no_tokens, failed
	)

	TokensPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "irrigation_alerts_push_tokens_pruned_total",
			Help: "Device tokens removed after permanent delivery failures",
		},
	)

	MailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_alerts_mails_total",
			Help: "Admin verification mails by status",
		},
		[]string{"status"}, // sent, failed, skipped
	)

	// Approval metrics
	ApprovalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_alerts_approval_requests_total",
			Help: "Approval endpoint requests by audit outcome",
		},
		[]string{"outcome"},
	)

	// Event metrics
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_alerts_events_consumed_total",
			Help: "MQTT events handled by kind and result",
		},
		[]string{"kind", "result"}, // result: ok, invalid, duplicate, error
	)
)
