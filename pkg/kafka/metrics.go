package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_messages_total",
			Help: "Kafka messages handled by outcome (processed, failed, malformed, dead_lettered).",
		},
		[]string{"topic", "consumer_group", "outcome"},
	)

	consumerDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_messages_duplicate_total",
			Help: "Events skipped by the idempotency guard.",
		},
		[]string{"event_type"},
	)

	consumerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_consumer_processing_duration_seconds",
			Help:    "Duration of Kafka message processing in seconds, retries included.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic", "consumer_group"},
	)

	producerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_producer_messages_total",
			Help: "Kafka publish attempts by outcome (published, failed).",
		},
		[]string{"topic", "outcome"},
	)
)

const (
	outcomeProcessed    = "processed"
	outcomeFailed       = "failed"
	outcomeMalformed    = "malformed"
	outcomeDeadLettered = "dead_lettered"
	outcomePublished    = "published"
)
