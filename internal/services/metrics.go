// Package services – domain metrics
//
// Prometheus collectors for the consistency subsystems. Label cardinality is
// kept bounded: route names come from the fixed set of registered API
// operations, never from raw URLs.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// idempotencyReplays counts responses served from a prior execution,
	// split by where the replay was found.
	idempotencyReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_replays_total",
			Help: "Total number of responses replayed from a prior execution.",
		},
		[]string{"route", "source"}, // source: cache|store
	)

	// idempotencyConflicts counts key-reuse-with-different-payload rejections.
	idempotencyConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_conflicts_total",
			Help: "Total number of idempotency key conflicts detected.",
		},
		[]string{"route"},
	)

	// journalEntriesPosted counts successfully posted journal entries.
	journalEntriesPosted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_journal_entries_posted_total",
			Help: "Total number of journal entries posted.",
		},
	)

	// ledgerInvariantViolations counts rejected postings and failed audits.
	ledgerInvariantViolations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_invariant_violations_total",
			Help: "Total number of double-entry invariant violations detected.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		idempotencyReplays,
		idempotencyConflicts,
		journalEntriesPosted,
		ledgerInvariantViolations,
	)
}
