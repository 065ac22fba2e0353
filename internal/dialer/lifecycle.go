package dialer

// CallState is the position of a call in its lifecycle:
// Queued -> Assigned -> ArtifactEmitted -> Completed -> Released.
// A provisioning failure returns an Assigned call to Queued.
type CallState int

const (
	StateQueued CallState = iota
	StateAssigned
	StateArtifactEmitted
	StateCompleted
	StateReleased
)

var stateNames = [...]string{"QUEUED", "ASSIGNED", "ARTIFACT_EMITTED", "COMPLETED", "RELEASED"}

func (s CallState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// CanTransition reports whether s may move to next.
func (s CallState) CanTransition(next CallState) bool {
	switch s {
	case StateQueued:
		return next == StateAssigned
	case StateAssigned:
		return next == StateArtifactEmitted || next == StateQueued
	case StateArtifactEmitted:
		return next == StateCompleted
	case StateCompleted:
		return next == StateReleased
	}
	return false
}
