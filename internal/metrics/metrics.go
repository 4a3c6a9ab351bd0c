// Package metrics provides Prometheus metrics for relaycore: governor tick
// outcomes, connection-pool occupancy, and message-router throughput.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Governor ───────────────────────────────────────────────────────────────

// GovernorTicks counts governor ticks by outcome ("ok" or "error").
var GovernorTicks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "relaycore",
	Name:      "governor_ticks_total",
	Help:      "Total heartbeat governor ticks by outcome.",
}, []string{"outcome"})

// GovernorTickDuration tracks how long a governor tick takes end to end.
var GovernorTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "relaycore",
	Name:      "governor_tick_duration_seconds",
	Help:      "Duration of a single governor tick.",
	Buckets:   prometheus.DefBuckets,
})

// GovernorPatchesDispatched counts per-gateway heartbeat patch batches sent,
// by outcome.
var GovernorPatchesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "relaycore",
	Name:      "governor_patches_dispatched_total",
	Help:      "Total heartbeat patch batches dispatched to gateways, by outcome.",
}, []string{"outcome"})

// ─── Connection pools ───────────────────────────────────────────────────────

// PoolConnections tracks live connections per pool ("user", "gateway").
var PoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "relaycore",
	Name:      "pool_connections",
	Help:      "Current live WebSocket connections per pool.",
}, []string{"pool"})

// ─── Message router ─────────────────────────────────────────────────────────

// ChatMessagesRouted counts chat messages routed, by direction
// ("user_to_agent" or "gateway_to_user") and outcome.
var ChatMessagesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "relaycore",
	Name:      "chat_messages_routed_total",
	Help:      "Total chat messages routed between end-users and agents.",
}, []string{"direction", "outcome"})

// ─── Rule engine ────────────────────────────────────────────────────────────

// RulesFired counts proactive rule firings that produced a suggestion.
var RulesFired = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "relaycore",
	Name:      "rules_fired_total",
	Help:      "Total proactive rule firings that produced a suggestion.",
}, []string{"trigger_event"})
