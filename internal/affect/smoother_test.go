package affect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(s *Smoother, states ...AffectiveState) SmoothedReading {
	var r SmoothedReading
	at := time.Now()
	for i, st := range states {
		r = s.Observe(st, 0.5, at.Add(time.Duration(i)*time.Second))
	}
	return r
}

func TestSmootherMajorityWithOutlier(t *testing.T) {
	s := NewSmoother(SmootherConfig{WindowSize: 5})
	r := feed(s, StateCalm, StateCalm, StateCalm, StateConfused, StateCalm)

	assert.Equal(t, StateCalm, r.State)
	assert.InDelta(t, 0.8, r.Confidence, 1e-9)
	assert.True(t, r.IsStable, "single outlier frame must not break stability")
}

func TestSmootherNoMajority(t *testing.T) {
	s := NewSmoother(SmootherConfig{WindowSize: 5})
	r := feed(s, StateStressed, StateCalm, StateConfused, StateFocused, StateStressed)

	assert.False(t, r.IsStable)
	// Stressed holds the plurality (2/5); alarm ordering would pick it on a tie too.
	assert.Equal(t, StateStressed, r.State)
	assert.InDelta(t, 0.4, r.Confidence, 1e-9)
}

func TestSmootherConstantStreamBecomesStable(t *testing.T) {
	s := NewSmoother(SmootherConfig{WindowSize: 5})
	var r SmoothedReading
	at := time.Now()
	for i := 0; i < 5; i++ {
		r = s.Observe(StateFocused, 0.2, at)
	}
	assert.Equal(t, StateFocused, r.State)
	assert.True(t, r.IsStable)
	assert.InDelta(t, 1.0, r.Confidence, 1e-9)
}

func TestSmootherStabilityThresholdPartialWindow(t *testing.T) {
	// With N=5 the majority needs ceil(5*0.6)=3 agreeing samples; two
	// samples, however unanimous, are not yet stable.
	s := NewSmoother(SmootherConfig{WindowSize: 5})
	r := feed(s, StateCalm, StateCalm)
	assert.False(t, r.IsStable)
	assert.InDelta(t, 0.4, r.Confidence, 1e-9)

	r = s.Observe(StateCalm, 0.5, time.Now())
	assert.True(t, r.IsStable)
	assert.InDelta(t, 0.6, r.Confidence, 1e-9)
}

func TestSmootherReactsWithinWindow(t *testing.T) {
	// A genuine sustained change must propagate within N frames.
	s := NewSmoother(SmootherConfig{WindowSize: 5})
	feed(s, StateCalm, StateCalm, StateCalm, StateCalm, StateCalm)

	var r SmoothedReading
	for i := 0; i < 5; i++ {
		r = s.Observe(StateStressed, 0.9, time.Now())
	}
	assert.Equal(t, StateStressed, r.State)
	assert.True(t, r.IsStable)
}

func TestSmootherFrequencyTieResolvesToAlarming(t *testing.T) {
	s := NewSmoother(SmootherConfig{WindowSize: 4})
	r := feed(s, StateCalm, StateCalm, StateConfused, StateConfused)
	assert.Equal(t, StateConfused, r.State)
}

func TestSmootherEMA(t *testing.T) {
	s := NewSmoother(SmootherConfig{WindowSize: 5, Alpha: 0.3})
	at := time.Now()

	r := s.Observe(StateCalm, 0.9, at)
	assert.InDelta(t, 0.9, r.StressScore, 1e-9, "first sample primes the EMA")

	r = s.Observe(StateCalm, 0.1, at)
	assert.InDelta(t, 0.3*0.1+0.7*0.9, r.StressScore, 1e-9)
}

func TestSmootherStressClamped(t *testing.T) {
	s := NewSmoother(SmootherConfig{WindowSize: 5})
	r := s.Observe(StateStressed, 3.7, time.Now())
	assert.LessOrEqual(t, r.StressScore, 1.0)

	r = s.Observe(StateStressed, -2.0, time.Now())
	assert.GreaterOrEqual(t, r.StressScore, 0.0)
}

func TestSmootherNoFaceHold(t *testing.T) {
	s := NewSmoother(SmootherConfig{WindowSize: 5, NoFaceGrace: 3, NoFacePolicy: NoFaceHold})
	want := feed(s, StateCalm, StateCalm, StateCalm)

	for i := 0; i < 20; i++ {
		r, ok := s.ObserveNoFace(time.Now())
		require.True(t, ok)
		assert.Equal(t, want, r, "hold policy keeps the reading unchanged")
	}
}

func TestSmootherNoFaceDecay(t *testing.T) {
	s := NewSmoother(SmootherConfig{WindowSize: 5, NoFaceGrace: 2, NoFacePolicy: NoFaceDecay})
	before := feed(s, StateCalm, StateCalm, StateCalm, StateCalm, StateCalm)
	require.True(t, before.IsStable)

	// Within grace: unchanged.
	r, ok := s.ObserveNoFace(time.Now())
	require.True(t, ok)
	assert.Equal(t, before.Confidence, r.Confidence)

	// Past grace: confidence decays, state persists.
	var last SmoothedReading
	for i := 0; i < 10; i++ {
		last, _ = s.ObserveNoFace(time.Now())
	}
	assert.Equal(t, StateCalm, last.State)
	assert.Less(t, last.Confidence, before.Confidence)
	assert.False(t, last.IsStable)
}

func TestSmootherNoFaceBeforeAnySample(t *testing.T) {
	s := NewSmoother(SmootherConfig{})
	_, ok := s.ObserveNoFace(time.Now())
	assert.False(t, ok, "no reading exists before the first accepted sample")
}

func TestSmootherFaceReturnResetsGrace(t *testing.T) {
	s := NewSmoother(SmootherConfig{WindowSize: 5, NoFaceGrace: 3, NoFacePolicy: NoFaceDecay})
	feed(s, StateCalm, StateCalm, StateCalm)

	s.ObserveNoFace(time.Now())
	s.ObserveNoFace(time.Now())
	s.Observe(StateCalm, 0.2, time.Now())

	// Grace counter restarted: the next no-face frame is a blink again.
	r, ok := s.ObserveNoFace(time.Now())
	require.True(t, ok)
	assert.True(t, r.IsStable)
}
