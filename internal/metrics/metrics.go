// Package metrics declares the Prometheus instruments for the intake service.
// They are registered on the default registry via promauto.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts processed turns.
	//
	// Labels:
	//   - stage: the stage the session ended the turn in
	//   - outcome: "advanced", "reprompt", "completed", "escalated", "noop", "conflict", "error"
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Total dialogue turns processed.",
		},
		[]string{"stage", "outcome"},
	)

	// CollaboratorCalls counts classifier, extractor and interpreter calls.
	//
	// Labels:
	//   - kind: "classify", "extract", "confirm"
	//   - status: "ok", "invalid", "timeout", "error"
	CollaboratorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total natural-language collaborator calls.",
		},
		[]string{"kind", "status"},
	)

	collaboratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of natural-language collaborator calls in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"kind"},
	)

	// StoreConflicts counts optimistic concurrency failures on session writes.
	StoreConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "sessions",
			Name:      "conflicts_total",
			Help:      "Session writes rejected because of a concurrent update.",
		},
	)

	// RecordsTotal counts intake record inserts.
	//
	// Labels:
	//   - result: "created", "duplicate", "error"
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "records",
			Name:      "inserts_total",
			Help:      "Intake record insert attempts.",
		},
		[]string{"result"},
	)

	// NotificationsTotal counts confirmation notifications.
	//
	// Labels:
	//   - result: "sent", "failed", "skipped"
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Confirmation notifications by result.",
		},
		[]string{"result"},
	)
)

// ObserveCollaborator records one collaborator call.
func ObserveCollaborator(kind, status string, started time.Time) {
	CollaboratorCalls.WithLabelValues(kind, status).Inc()
	collaboratorDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
