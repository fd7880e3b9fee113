package gesture

// State is the discrete formation the rendering layer targets.
type State string

const (
	// StateGathered means the hand is closed and the scene forms its
	// shape (the assembled tree).
	StateGathered State = "gathered"

	// StateScattered means the hand is open or absent and the scene
	// dissolves into the particle cloud.
	StateScattered State = "scattered"
)

// TargetState maps an openness value to a formation. Openness strictly
// below the closed threshold gathers; the threshold itself scatters.
func TargetState(openness float64, t Tuning) State {
	if openness < t.ClosedThreshold {
		return StateGathered
	}
	return StateScattered
}
