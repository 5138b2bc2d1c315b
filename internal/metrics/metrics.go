// Package metrics exposes Prometheus instruments for the digest pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue add outcomes.
const (
	OutcomeAdded          = "added"
	OutcomeDuplicate      = "duplicate"
	OutcomeBelowThreshold = "below_threshold"
)

var (
	PapersScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arxivintel_papers_scored_total",
			Help: "Total number of papers scored, by threat level",
		},
		[]string{"threat_level"},
	)

	QueueAdds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arxivintel_queue_adds_total",
			Help: "Queue add attempts by outcome",
		},
		[]string{"outcome"},
	)

	QueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arxivintel_queue_size",
			Help: "Number of papers waiting for the next digest",
		},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arxivintel_queue_persist_failures_total",
			Help: "Queue load or save failures",
		},
	)

	DigestsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arxivintel_digests_sent_total",
			Help: "Digests delivered, by trigger",
		},
		[]string{"trigger"},
	)

	FeedChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arxivintel_feed_checks_total",
			Help: "Feed polling attempts by result",
		},
		[]string{"result"},
	)
)
