package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for leaderbus.
// Registered on the default registry via promauto.
var (
	// --- Election Metrics ---

	// CandidaciesTotal counts candidacy attempts by outcome.
	CandidaciesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leaderbus",
			Subsystem: "election",
			Name:      "candidacies_total",
			Help:      "Total candidacy attempts by outcome (won, aborted, rejected, failed)",
		},
		[]string{"outcome"},
	)

	// CandidacyDuration tracks how long an attempt takes from APPLY to decision.
	CandidacyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "leaderbus",
			Subsystem: "election",
			Name:      "candidacy_duration_seconds",
			Help:      "Duration of candidacy attempts in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
	)

	// Leaders is the number of electors in this process that currently hold leadership.
	Leaders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "leaderbus",
			Subsystem: "election",
			Name:      "leaders",
			Help:      "Electors in this process currently holding leadership",
		},
	)

	// LeadershipWait tracks time from RequestLeadership to becoming leader.
	LeadershipWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "leaderbus",
			Subsystem: "election",
			Name:      "leadership_wait_seconds",
			Help:      "Time from requesting leadership to acquiring it",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7min
		},
	)

	// Departures counts electors that left the election.
	Departures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leaderbus",
			Subsystem: "election",
			Name:      "departures_total",
			Help:      "Total electors closed in this process",
		},
	)

	// --- Channel Metrics ---

	// MessagesPublished counts election messages sent by action.
	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leaderbus",
			Subsystem: "channel",
			Name:      "messages_published_total",
			Help:      "Election messages published by action",
		},
		[]string{"action"},
	)

	// MessagesReceived counts election messages observed by action.
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leaderbus",
			Subsystem: "channel",
			Name:      "messages_received_total",
			Help:      "Election messages received by action",
		},
		[]string{"action"},
	)

	// FramesDropped counts inbound frames a transport could not decode.
	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leaderbus",
			Subsystem: "channel",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped by transport and reason",
		},
		[]string{"transport", "reason"},
	)

	// BreakerState exposes the publish circuit breaker per transport (0 closed, 1 open, 2 half-open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "leaderbus",
			Subsystem: "channel",
			Name:      "breaker_state",
			Help:      "Publish circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"transport"},
	)
)

// RecordCandidacy records the outcome and duration of one attempt.
func RecordCandidacy(outcome string, durationSeconds float64) {
	CandidaciesTotal.WithLabelValues(outcome).Inc()
	if durationSeconds > 0 {
		CandidacyDuration.Observe(durationSeconds)
	}
}
