package affect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func dist(calm, focused, confused, stressed, neutral float64) Distribution {
	return Distribution{
		ExprCalm:     calm,
		ExprFocused:  focused,
		ExprConfused: confused,
		ExprStressed: stressed,
		ExprNeutral:  neutral,
	}
}

func TestMapperStableHeadReadsCalmOrFocused(t *testing.T) {
	m := NewMapper()

	state, stress := m.Map(dist(0.6, 0.2, 0.1, 0.05, 0.05), PoseSignal{Stable: true})
	assert.Equal(t, StateCalm, state)
	assert.GreaterOrEqual(t, stress, 0.0)
	assert.LessOrEqual(t, stress, 1.0)

	// More stressed than calm mass, but a still head means concentration.
	state, _ = m.Map(dist(0.1, 0.3, 0.1, 0.4, 0.1), PoseSignal{Stable: true})
	assert.Equal(t, StateFocused, state)
}

func TestMapperErraticMovementReadsStressed(t *testing.T) {
	m := NewMapper()
	state, stress := m.Map(dist(0.2, 0.2, 0.2, 0.2, 0.2), PoseSignal{MovementScore: 0.5})
	assert.Equal(t, StateStressed, state)
	assert.Greater(t, stress, 0.3)
}

func TestMapperScanningReadsConfused(t *testing.T) {
	m := NewMapper()
	pose := PoseSignal{MovementScore: 0.12, DirectionChanges: 4}
	state, _ := m.Map(dist(0.25, 0.25, 0.2, 0.1, 0.2), pose)
	assert.Equal(t, StateConfused, state)
}

func TestMapperTieResolvesToAlarming(t *testing.T) {
	m := NewMapper()
	// Calm and stressed mass exactly tied under moderate movement: the more
	// alarming state must win.
	pose := PoseSignal{MovementScore: 0.08}
	state, _ := m.Map(dist(0.5, 0.0, 0.0, 0.5, 0.0), pose)
	assert.Equal(t, StateStressed, state)
}

func TestMapperMovementRaisesStress(t *testing.T) {
	m := NewMapper()
	d := dist(0.2, 0.2, 0.2, 0.2, 0.2)

	still := m.StressScore(d, PoseSignal{MovementScore: 0.0})
	moving := m.StressScore(d, PoseSignal{MovementScore: 0.8})
	assert.Greater(t, moving, still)
}

func TestMapperStressInRange(t *testing.T) {
	m := NewMapper()
	cases := []struct {
		d    Distribution
		pose PoseSignal
	}{
		{dist(1, 0, 0, 0, 0), PoseSignal{}},
		{dist(0, 0, 0, 1, 0), PoseSignal{MovementScore: 1}},
		{Uniform(), PoseSignal{MovementScore: 2.5}}, // out-of-range input still clamps
	}
	for _, c := range cases {
		got := m.StressScore(c.d, c.pose)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestDistributionValidate(t *testing.T) {
	assert.NoError(t, Uniform().Validate())
	assert.NoError(t, dist(0.6, 0.2, 0.1, 0.05, 0.05).Validate())

	assert.Error(t, dist(0.6, 0.2, 0.1, 0.05, 0.5).Validate(), "mass over 1")
	assert.Error(t, dist(-0.1, 0.5, 0.2, 0.2, 0.2).Validate(), "negative probability")
	assert.Error(t, Distribution{ExprCalm: 1}.Validate(), "missing labels")

	extra := Uniform()
	delete(extra, ExprNeutral)
	extra["bored"] = 0.2
	assert.Error(t, extra.Validate(), "unknown label")
}

func TestMovementTrackerStillHead(t *testing.T) {
	tr := NewMovementTracker()
	var sig PoseSignal
	for i := 0; i < 15; i++ {
		sig = tr.Observe(0.5, 0.5)
	}
	assert.True(t, sig.Stable)
	assert.Zero(t, sig.DirectionChanges)
	assert.InDelta(t, 0, sig.MovementScore, 1e-9)
}

func TestMovementTrackerScanning(t *testing.T) {
	tr := NewMovementTracker()
	var sig PoseSignal
	// Head sweeping left-right across a third of the frame every frame.
	xs := []float64{0.3, 0.6, 0.3, 0.6, 0.3, 0.6, 0.3, 0.6}
	for _, x := range xs {
		sig = tr.Observe(x, 0.5)
	}
	assert.False(t, sig.Stable)
	assert.GreaterOrEqual(t, sig.DirectionChanges, confusedReversals)
	assert.Greater(t, sig.MovementScore, confusedMovement)
}

func TestMovementTrackerReset(t *testing.T) {
	tr := NewMovementTracker()
	tr.Observe(0.1, 0.1)
	tr.Observe(0.9, 0.9)
	tr.Reset()
	assert.True(t, tr.Last().Stable)
	sig := tr.Observe(0.5, 0.5)
	assert.InDelta(t, 0, sig.MovementScore, 1e-9, "no displacement against cleared history")
}
