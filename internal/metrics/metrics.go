package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whatsapp_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whatsapp_http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	// Invocation metrics
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_invocations_total",
			Help: "Total number of processor invocations",
		},
		[]string{"trigger", "outcome"}, // outcome: completed, disabled, config_error
	)

	InvocationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whatsapp_invocation_duration_seconds",
			Help:    "Time taken by a single invocation",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	InvocationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_invocations_enqueued_total",
			Help: "Invocations accepted into the queue by source",
		},
		[]string{"source", "status"}, // status: accepted, rejected
	)

	QueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "whatsapp_queue_size",
			Help: "Current number of queued invocations",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "whatsapp_queue_capacity",
			Help: "Capacity of the invocation queue",
		},
	)

	// Threshold metrics
	RulesFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_rules_fired_total",
			Help: "Total number of threshold rules that fired",
		},
		[]string{"operator"},
	)

	RulesSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whatsapp_rules_suppressed_total",
			Help: "Total number of violations suppressed by cooldown",
		},
	)

	// Dispatch metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_dispatch_total",
			Help: "Total number of WhatsApp send attempts",
		},
		[]string{"status"}, // status: sent, failed
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whatsapp_dispatch_duration_seconds",
			Help:    "Latency of a single WhatsApp API call",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// State store metrics
	TagStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_tag_store_errors_total",
			Help: "Total number of failed tag reads and writes",
		},
		[]string{"op"}, // op: get, set
	)

	// Kafka metrics
	KafkaConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_kafka_consumed_total",
			Help: "Total number of channel messages read from Kafka",
		},
		[]string{"status"}, // status: accepted, invalid
	)

	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_kafka_publish_total",
			Help: "Total number of alert events published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whatsapp_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// NATS metrics
	NATSReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_nats_received_total",
			Help: "Total number of channel messages received over NATS",
		},
		[]string{"status"},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
