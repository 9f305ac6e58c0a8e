package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhooksReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsehook_webhooks_received_total",
			Help: "Total number of webhook deliveries received, by platform and outcome.",
		},
		[]string{"platform", "outcome"}, // accepted, bad_signature, bad_payload
	)

	EventsClassifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsehook_events_classified_total",
			Help: "Total number of webhook changes classified, by kind and priority.",
		},
		[]string{"kind", "priority"},
	)

	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsehook_events_processed_total",
			Help: "Total number of event processing attempts, by kind and status.",
		},
		[]string{"kind", "status"}, // processed, failed, abandoned
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsehook_retries_total",
			Help: "Total number of event retries by reason.",
		},
		[]string{"reason"}, // e.g. platform_api, db, timeout, other
	)

	DLQTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsehook_dlq_total",
			Help: "Total number of events abandoned to the DLQ.",
		},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsehook_notifications_total",
			Help: "Total number of notification tasks published, by kind.",
		},
		[]string{"kind"},
	)

	ProcessingSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulsehook_processing_seconds",
			Help:    "Event processing latency in seconds, by kind.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	SentimentScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulsehook_sentiment_score",
			Help:    "Distribution of computed sentiment scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	WorkerBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulsehook_worker_backlog",
			Help: "Current depth of the worker channel on the events topic.",
		},
	)

	NSQTopicDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulsehook_nsq_topic_depth",
			Help: "Current NSQ channel depth, by topic and channel.",
		},
		[]string{"topic", "channel"},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		WebhooksReceivedTotal,
		EventsClassifiedTotal,
		EventsProcessedTotal,
		RetriesTotal,
		DLQTotal,
		NotificationsTotal,
		ProcessingSeconds,
		SentimentScore,
		WorkerBacklog,
		NSQTopicDepth,
	)
}

// RecordWebhook records an inbound webhook delivery and its outcome
func RecordWebhook(platform, outcome string) {
	WebhooksReceivedTotal.WithLabelValues(platform, outcome).Inc()
}

// RecordClassified records a classified change
func RecordClassified(kind, priority string) {
	EventsClassifiedTotal.WithLabelValues(kind, priority).Inc()
}

// RecordProcessed records an event processing attempt outcome with its latency
func RecordProcessed(kind, status string, latency time.Duration) {
	EventsProcessedTotal.WithLabelValues(kind, status).Inc()
	if latency > 0 {
		ProcessingSeconds.WithLabelValues(kind).Observe(latency.Seconds())
	}
}

// RecordRetry records a scheduled retry by failure reason
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordDLQ records an event abandoned to the DLQ
func RecordDLQ() {
	DLQTotal.Inc()
}

// RecordNotification records a published notification task
func RecordNotification(kind string) {
	NotificationsTotal.WithLabelValues(kind).Inc()
}

// RecordSentiment records a computed sentiment score
func RecordSentiment(score float64) {
	SentimentScore.Observe(score)
}

// UpdateWorkerBacklog sets the worker backlog gauge
func UpdateWorkerBacklog(depth float64) {
	WorkerBacklog.Set(depth)
}

// UpdateNSQTopicDepth sets the per-topic channel depth gauge
func UpdateNSQTopicDepth(topic, channel string, depth float64) {
	NSQTopicDepth.WithLabelValues(topic, channel).Set(depth)
}
