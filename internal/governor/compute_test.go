package governor

import (
	"testing"
	"time"
)

func TestIsActive(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Minute)
	stale := now.Add(-2 * time.Hour)

	tests := []struct {
		name           string
		lastActivityAt *time.Time
		hasWork        bool
		triggerType    string
		want           bool
	}{
		{"chat-only, recent chat", &recent, false, TriggerChatOnly, true},
		{"chat-only, stale chat", &stale, false, TriggerChatOnly, false},
		{"chat-only, ignores work", &stale, true, TriggerChatOnly, false},
		{"chat-or-work, recent chat", &recent, false, TriggerChatOrWork, true},
		{"chat-or-work, stale chat but has work", &stale, true, TriggerChatOrWork, true},
		{"chat-or-work, stale chat no work", &stale, false, TriggerChatOrWork, false},
		{"chat-or-work, never active, no work", nil, false, TriggerChatOrWork, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isActive(now, tt.lastActivityAt, tt.hasWork, tt.triggerType)
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeDesiredHeartbeat_ActiveAlwaysResetsToStepZero(t *testing.T) {
	got := computeDesiredHeartbeat(false, true, 3, DefaultActiveEvery, DefaultLadder, DefaultLeadCapEvery)
	want := DesiredHeartbeat{Every: DefaultActiveEvery, Step: 0}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestComputeDesiredHeartbeat_IdleStepsDownTheLadder(t *testing.T) {
	ladder := []string{"10m", "30m", "1h"}

	got := computeDesiredHeartbeat(false, false, 0, DefaultActiveEvery, ladder, DefaultLeadCapEvery)
	want := DesiredHeartbeat{Every: "10m", Step: 1}
	if got != want {
		t.Errorf("first idle step: got %+v, want %+v", got, want)
	}

	got = computeDesiredHeartbeat(false, false, 1, DefaultActiveEvery, ladder, DefaultLeadCapEvery)
	want = DesiredHeartbeat{Every: "30m", Step: 2}
	if got != want {
		t.Errorf("second idle step: got %+v, want %+v", got, want)
	}
}

func TestComputeDesiredHeartbeat_NonLeadGoesOffPastLadder(t *testing.T) {
	ladder := []string{"10m"}

	got := computeDesiredHeartbeat(false, false, 1, DefaultActiveEvery, ladder, DefaultLeadCapEvery)
	want := DesiredHeartbeat{Every: "", Step: 2, Off: true}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestComputeDesiredHeartbeat_LeadHoldsAtCapPastLadder(t *testing.T) {
	ladder := []string{"10m"}

	got := computeDesiredHeartbeat(true, false, 1, DefaultActiveEvery, ladder, "2h")
	want := DesiredHeartbeat{Every: "2h", Step: 2}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestResolvePolicy_FallsBackToDefaultsWhenUnset(t *testing.T) {
	activeEvery, ladder, leadCapEvery := resolvePolicy("", nil, "")
	if activeEvery != DefaultActiveEvery {
		t.Errorf("active_every: got %q, want %q", activeEvery, DefaultActiveEvery)
	}
	if len(ladder) != len(DefaultLadder) {
		t.Errorf("ladder: got %v, want %v", ladder, DefaultLadder)
	}
	if leadCapEvery != DefaultLeadCapEvery {
		t.Errorf("lead_cap_every: got %q, want %q", leadCapEvery, DefaultLeadCapEvery)
	}
}

func TestResolvePolicy_KeepsBoardOverrides(t *testing.T) {
	activeEvery, ladder, leadCapEvery := resolvePolicy("1m", []string{"5m"}, "30m")
	if activeEvery != "1m" || leadCapEvery != "30m" || len(ladder) != 1 || ladder[0] != "5m" {
		t.Errorf("expected overrides preserved, got active=%q ladder=%v cap=%q", activeEvery, ladder, leadCapEvery)
	}
}
