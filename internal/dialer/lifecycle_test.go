package dialer

import "testing"

func TestCallStateTransitions(t *testing.T) {
	allowed := map[[2]CallState]bool{
		{StateQueued, StateAssigned}:           true,
		{StateAssigned, StateArtifactEmitted}:  true,
		{StateAssigned, StateQueued}:           true,
		{StateArtifactEmitted, StateCompleted}: true,
		{StateCompleted, StateReleased}:        true,
	}
	all := []CallState{StateQueued, StateAssigned, StateArtifactEmitted, StateCompleted, StateReleased}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]CallState{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCallStateString(t *testing.T) {
	if StateArtifactEmitted.String() != "ARTIFACT_EMITTED" {
		t.Errorf("got %s", StateArtifactEmitted)
	}
	if CallState(42).String() != "UNKNOWN" {
		t.Errorf("got %s", CallState(42))
	}
}
