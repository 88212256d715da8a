// Package metrics holds the Prometheus collectors for the moderation core:
// persisted tables, mute transitions and sweeps, cooldown decisions,
// leaderboard sessions, dispatcher events and collaborator failures.
//
// Labels never carry user or guild identifiers. All collectors are registered with the default
// registry in init() and are safe for concurrent use.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TablePersists counts full-table persists by table name and result
	// ("ok" or "error").
	TablePersists = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "table_persist_total",
			Help: "Total number of persisted table flushes.",
		},
		[]string{"table", "result"},
	)

	// TablePersistDuration records how long a serialize-and-overwrite takes.
	TablePersistDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "table_persist_duration_seconds",
			Help:    "Duration of table flushes in seconds.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"table"},
	)

	// MuteTransitions counts state machine transitions
	// ("mute_for", "mute_permanent", "unmute").
	MuteTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mute_transitions_total",
			Help: "Total number of mute state transitions.",
		},
		[]string{"transition"},
	)

	// SweepRevocations counts role revocations issued by the expiry sweep.
	SweepRevocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mute_sweep_revocations_total",
			Help: "Total number of role revocations attempted by the mute sweep.",
		},
		[]string{"result"},
	)

	// CooldownDecisions counts cooldown checks by resource and result
	// ("allowed", "denied", "bypass").
	CooldownDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cooldown_decisions_total",
			Help: "Total number of cooldown checks.",
		},
		[]string{"resource", "result"},
	)

	// LeaderboardSessions gauges the number of open pagination sessions.
	LeaderboardSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "leaderboard_sessions_open",
			Help: "Current number of open leaderboard pagination sessions.",
		},
	)

	// BotEvents counts inbound gateway events by kind and outcome.
	BotEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_events_total",
			Help: "Total number of inbound events handled by the dispatcher.",
		},
		[]string{"kind", "result"},
	)

	// CollaboratorFailures counts failed external calls by operation.
	CollaboratorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collaborator_failures_total",
			Help: "Total number of failed gateway calls.",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(
		TablePersists,
		TablePersistDuration,
		MuteTransitions,
		SweepRevocations,
		CooldownDecisions,
		LeaderboardSessions,
		BotEvents,
		CollaboratorFailures,
	)
}
