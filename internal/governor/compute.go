// Package governor implements the auto heartbeat governor: a periodic tick
// that widens or narrows each governable agent's heartbeat interval based on
// recent board activity and assigned work, and pushes the result out to
// gateways. Grounded on
// original_source/backend/app/services/auto_heartbeat_governor.py.
package governor

import (
	"time"
)

// Default policy constants, used when a board's governor columns are unset
// (empty ladder / empty lead-cap-every).
const (
	DefaultActiveEvery  = "5m"
	DefaultLeadCapEvery = "1h"
	activeWindow        = 60 * time.Minute
)

// DefaultLadder is the sequence of widening heartbeat intervals a
// non-active agent steps through as it stays idle.
var DefaultLadder = []string{"10m", "30m", "1h", "3h", "6h"}

// DesiredHeartbeat is the governor's per-agent-per-tick decision: either a
// concrete interval (Every != "") or fully off.
type DesiredHeartbeat struct {
	Every string
	Step  int
	Off   bool
}

// TriggerChatOnly ('A') bases activity solely on recent board chat.
// TriggerChatOrWork ('B') additionally treats an agent with active work as
// active regardless of chat recency.
const (
	TriggerChatOnly   = "A"
	TriggerChatOrWork = "B"
)

// isActive reports whether an agent should run at ActiveEvery this tick,
// per the board's activity_trigger_type.
func isActive(now time.Time, lastActivityAt *time.Time, hasWork bool, triggerType string) bool {
	chatActive := lastActivityAt != nil && now.Sub(*lastActivityAt) < activeWindow
	if triggerType == TriggerChatOnly {
		return chatActive
	}
	return chatActive || hasWork
}

// computeDesiredHeartbeat ports auto_heartbeat_governor.py's
// compute_desired_heartbeat. Active agents always reset to step 0 at
// activeEvery. Idle agents advance one rung down the ladder each tick.
// Board leads never go fully off — once the ladder is exhausted they hold
// at leadCapEvery; non-leads go fully off once the ladder is exhausted.
func computeDesiredHeartbeat(isLead, active bool, step int, activeEvery string, ladder []string, leadCapEvery string) DesiredHeartbeat {
	if active {
		return DesiredHeartbeat{Every: activeEvery, Step: 0}
	}

	nextStep := step + 1
	if nextStep < 1 {
		nextStep = 1
	}

	if nextStep-1 < len(ladder) {
		return DesiredHeartbeat{Every: ladder[nextStep-1], Step: nextStep}
	}

	if isLead {
		return DesiredHeartbeat{Every: leadCapEvery, Step: nextStep}
	}

	return DesiredHeartbeat{Every: "", Step: nextStep, Off: true}
}

// resolvePolicy fills in board-level governor overrides, falling back to
// package defaults when a column is unset.
func resolvePolicy(activeEvery string, ladder []string, leadCapEvery string) (string, []string, string) {
	if activeEvery == "" {
		activeEvery = DefaultActiveEvery
	}
	if len(ladder) == 0 {
		ladder = DefaultLadder
	}
	if leadCapEvery == "" {
		leadCapEvery = DefaultLeadCapEvery
	}
	return activeEvery, ladder, leadCapEvery
}
