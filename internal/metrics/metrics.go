// Package metrics exposes Prometheus metrics for the presence coordinator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for the application
var Registry = prometheus.NewRegistry()

// factory registers metrics to our custom Registry directly
var factory = promauto.With(Registry)

// PollCyclesTotal counts completed dialer poll passes
var PollCyclesTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "coordinator",
	Name:      "poll_cycles_total",
	Help:      "Completed dialer status poll passes across all campaigns",
})

// PollErrorsTotal counts per-campaign poll failures (transport or parse)
var PollErrorsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "coordinator",
	Name:      "poll_errors_total",
	Help:      "Per-campaign dialer poll failures; the pass continues past them",
})

// StatusChangesTotal counts emitted presence status change events
var StatusChangesTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "coordinator",
	Name:      "status_changes_total",
	Help:      "Presence status change events emitted after snapshot diffing",
})

// OfflineEventsTotal counts agents declared offline by the poller
var OfflineEventsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "coordinator",
	Name:      "poller_offline_events_total",
	Help:      "Offline events emitted for agents missing from a poll response",
})

// ConnectsTotal counts real-time connection registrations
var ConnectsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "coordinator",
	Name:      "connects_total",
	Help:      "Real-time connections opened by agents",
})

// DisconnectsTotal counts real-time connection removals
var DisconnectsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "coordinator",
	Name:      "disconnects_total",
	Help:      "Real-time connections closed by agents",
})

// ReconciliationsTotal counts completed offline reconciliations
var ReconciliationsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "coordinator",
	Name:      "reconciliations_total",
	Help:      "Offline reconciliation procedures run to completion",
})

// ReconciliationStepErrors counts reconciliation steps that failed and
// were skipped past
var ReconciliationStepErrors = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "coordinator",
	Name:      "reconciliation_step_errors_total",
	Help:      "Reconciliation side effects that failed, by step",
}, []string{"step"})

// ClaimConflictsTotal counts claims rejected because another agent holds the item
var ClaimConflictsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "coordinator",
	Name:      "claim_conflicts_total",
	Help:      "Claim attempts rejected because the account was already claimed",
})

// OnlineAgents tracks agents currently considered online by the presence tracker
var OnlineAgents = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "coordinator",
	Name:      "online_agents",
	Help:      "Agents with at least one live connection or a pending-offline timer",
})

// PendingOfflineTimers tracks armed debounce timers
var PendingOfflineTimers = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "coordinator",
	Name:      "pending_offline_timers",
	Help:      "Agents with zero connections waiting out the offline debounce",
})
