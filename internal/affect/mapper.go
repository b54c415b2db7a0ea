package affect

// Deterministic classification rule mapping a classifier distribution plus a
// head-movement signal to one of the four affective states and a raw stress
// score. Not a learned model: the weights below are fixed constants so the
// mapping stays auditable.

const (
	// Stress score composition: movement is the primary signal, expression
	// probabilities the secondary one.
	movementWeight = 0.65
	emotionWeight  = 0.35

	// Weighted contribution of each expression class to the emotion stress
	// component. Negative-affect classes push up, positive classes pull down.
	stressedMass  = 0.60
	confusedMass  = 0.30
	calmRelief    = 0.40
	focusedRelief = 0.10

	// Movement thresholds, as a fraction of the frame diagonal per frame.
	stableMovement  = 0.03
	erraticMovement = 0.18

	// Rapid left-right scanning reads as confusion once the head both
	// reverses direction often and actually travels.
	confusedReversals = 3
	confusedMovement  = 0.10

	// Half of the neutral mass counts toward each of the two low-arousal
	// states; neutral frames carry no distress evidence either way.
	neutralSplit = 0.5
)

// Mapper converts (distribution, pose signal) pairs into raw state judgments.
// It is stateless and safe for concurrent use.
type Mapper struct{}

// NewMapper creates a state mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// Map returns the raw affective state and stress score for one frame.
// Ties between candidate states resolve toward the more alarming state.
func (m *Mapper) Map(dist Distribution, pose PoseSignal) (AffectiveState, float64) {
	stress := m.StressScore(dist, pose)
	state := m.classify(dist, pose, stress)
	return state, stress
}

// StressScore computes the raw stress score in [0,1] for one frame: a
// weighted combination of head movement and negative-affect expression mass.
func (m *Mapper) StressScore(dist Distribution, pose PoseSignal) float64 {
	raw := movementWeight*clamp01(pose.MovementScore) + emotionWeight*emotionStress(dist)
	return clamp01(raw)
}

// emotionStress folds the expression distribution into a 0-1 stress
// component. The raw weighted sum lives in roughly [-0.5, 0.6]; shifting by
// 0.3 and dividing by 0.9 renormalizes it so an all-neutral frame lands near
// the middle-low range.
func emotionStress(dist Distribution) float64 {
	raw := stressedMass*dist[ExprStressed] +
		confusedMass*dist[ExprConfused] -
		calmRelief*dist[ExprCalm] -
		focusedRelief*dist[ExprFocused]
	return clamp01((raw + 0.3) / 0.9)
}

// classify partitions the probability mass into the four target states,
// applies the movement-based adjustments, and picks the winner.
func (m *Mapper) classify(dist Distribution, pose PoseSignal, stress float64) AffectiveState {
	// A locked-in head dominates everything else: the student is solving,
	// the only question is calm vs focused.
	if pose.Stable || pose.MovementScore < stableMovement*2 {
		if dist[ExprCalm] >= dist[ExprStressed] {
			return StateCalm
		}
		return StateFocused
	}

	scores := map[AffectiveState]float64{
		StateCalm:     dist[ExprCalm] + neutralSplit*dist[ExprNeutral],
		StateFocused:  dist[ExprFocused] + neutralSplit*dist[ExprNeutral],
		StateConfused: dist[ExprConfused],
		StateStressed: dist[ExprStressed],
	}

	// Rapid left-right scanning while moving: the student is searching, not
	// reading. Shift mass toward confusion.
	if pose.DirectionChanges >= confusedReversals && pose.MovementScore >= confusedMovement {
		scores[StateConfused] += 0.35
	}
	// Erratic movement or already-high stress shifts mass toward distress.
	if pose.MovementScore >= erraticMovement || stress >= 0.55 {
		scores[StateStressed] += 0.25
		scores[StateConfused] += 0.10
	}

	best := StateCalm
	for _, s := range []AffectiveState{StateFocused, StateConfused, StateStressed} {
		if scores[s] > scores[best] || (scores[s] == scores[best] && s.AlarmRank() > best.AlarmRank()) {
			best = s
		}
	}
	return best
}
