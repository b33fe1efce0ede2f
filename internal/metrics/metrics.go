package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// StoreSends counts per-store outcomes of fan-out passes and test pushes.
	StoreSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "broadcast",
			Name:      "store_sends_total",
			Help:      "Per-store send outcomes.",
		},
		[]string{"mode", "outcome"}, // mode: broadcast|push, outcome: success|no_media|no_url|render_error|provider_error|unexpected|store_missing|template_missing
	)

	Jobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "broadcast",
			Name:      "jobs_total",
			Help:      "Broadcast jobs that reached a terminal state.",
		},
		[]string{"trigger", "status"},
	)

	FanoutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "broadcast",
			Name:      "fanout_duration_seconds",
			Help:      "Wall-clock duration of one fan-out pass.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"trigger"},
	)

	LineRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "line",
			Name:      "api_request_duration_seconds",
			Help:      "Duration of LINE Messaging API requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "status_code"},
	)

	SchedulerRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "registrations_total",
			Help:      "Delayed-dispatch registrations by driver and outcome.",
		},
		[]string{"driver", "outcome"},
	)

	CallbacksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "callbacks_skipped_total",
			Help:      "Scheduler callbacks ignored as duplicates.",
		},
		[]string{"reason"},
	)

	RelayDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "relay_deliveries_total",
			Help:      "Callbacks forwarded by the AMQP relay, by outcome.",
		},
		[]string{"outcome"}, // delivered|retried|dropped|gave_up
	)
)
