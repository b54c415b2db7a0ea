package affect

import (
	"math"
	"time"
)

// Smoothing defaults. Window and alpha are tunable via config; the stability
// fraction is part of the consumer contract and stays fixed.
const (
	DefaultWindowSize = 5
	DefaultAlpha      = 0.3
	// stableFraction is the share of the window the majority state must hold
	// before the reading is flagged stable. Majority-with-margin, not
	// unanimity: isolated single-frame flicker must not toggle the state.
	stableFraction = 0.6
	// DefaultNoFaceGrace is how many consecutive no-face frames are treated
	// as a blink before the no-face policy kicks in.
	DefaultNoFaceGrace = 8
	// noFaceDecayFactor shrinks confidence per no-face frame under the decay
	// policy.
	noFaceDecayFactor = 0.95
)

// NoFacePolicy selects what prolonged face loss does to a session's reading.
type NoFacePolicy string

const (
	// NoFaceHold keeps the last reading unchanged indefinitely.
	NoFaceHold NoFacePolicy = "hold"
	// NoFaceDecay keeps the state but decays confidence toward zero, so a
	// dashboard can tell a fresh judgment from a stale one.
	NoFaceDecay NoFacePolicy = "decay"
)

// SmootherConfig tunes one temporal smoother.
type SmootherConfig struct {
	WindowSize   int
	Alpha        float64
	NoFaceGrace  int
	NoFacePolicy NoFacePolicy
}

// withDefaults fills zero fields with the design defaults.
func (c SmootherConfig) withDefaults() SmootherConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		c.Alpha = DefaultAlpha
	}
	if c.NoFaceGrace <= 0 {
		c.NoFaceGrace = DefaultNoFaceGrace
	}
	if c.NoFacePolicy == "" {
		c.NoFacePolicy = NoFaceHold
	}
	return c
}

// Smoother converts a high-frequency, noisy stream of raw (state, stress)
// pairs into a low-frequency stable signal: a fixed-size sliding window of
// raw states plus an exponential moving average of the stress score.
//
// Not safe for concurrent use. The session monitor owns the lock; the
// registry guarantees one smoother per session.
type Smoother struct {
	cfg        SmootherConfig
	window     []AffectiveState
	ema        float64
	emaPrimed  bool
	last       SmoothedReading
	hasReading bool
	noFaceRun  int
}

// NewSmoother creates a smoother with empty history.
func NewSmoother(cfg SmootherConfig) *Smoother {
	cfg = cfg.withDefaults()
	return &Smoother{
		cfg:    cfg,
		window: make([]AffectiveState, 0, cfg.WindowSize),
	}
}

// Observe applies one raw sample and returns the updated smoothed reading.
// The window evicts its oldest entry beyond the configured size; the EMA
// update is ema' = alpha*raw + (1-alpha)*ema.
func (s *Smoother) Observe(state AffectiveState, rawStress float64, at time.Time) SmoothedReading {
	s.noFaceRun = 0

	s.window = append(s.window, state)
	if len(s.window) > s.cfg.WindowSize {
		s.window = s.window[1:]
	}

	rawStress = clamp01(rawStress)
	if !s.emaPrimed {
		s.ema = rawStress
		s.emaPrimed = true
	} else {
		s.ema = s.cfg.Alpha*rawStress + (1-s.cfg.Alpha)*s.ema
	}

	majority, count := s.majority()
	required := int(math.Ceil(float64(s.cfg.WindowSize) * stableFraction))

	s.last = SmoothedReading{
		State:       majority,
		StressScore: clamp01(s.ema),
		Confidence:  float64(count) / float64(s.cfg.WindowSize),
		IsStable:    count >= required,
		ObservedAt:  at,
	}
	s.hasReading = true
	return s.last
}

// ObserveNoFace registers a frame with no usable face. Within the grace
// window the last reading is simply held; past it the configured policy
// applies. No new evidence ever changes the reported state here.
func (s *Smoother) ObserveNoFace(at time.Time) (SmoothedReading, bool) {
	if !s.hasReading {
		return SmoothedReading{}, false
	}
	s.noFaceRun++
	if s.noFaceRun < s.cfg.NoFaceGrace {
		return s.last, true
	}
	if s.cfg.NoFacePolicy == NoFaceDecay {
		s.last.Confidence *= noFaceDecayFactor
		s.last.IsStable = false
		s.last.ObservedAt = at
	}
	return s.last, true
}

// Last returns the most recent smoothed reading, if any sample has been
// accepted yet.
func (s *Smoother) Last() (SmoothedReading, bool) {
	return s.last, s.hasReading
}

// WindowLen reports how many raw samples the window currently holds.
func (s *Smoother) WindowLen() int {
	return len(s.window)
}

// majority returns the most frequent state in the window and its count,
// breaking frequency ties toward the more alarming state.
func (s *Smoother) majority() (AffectiveState, int) {
	counts := make(map[AffectiveState]int, 4)
	for _, st := range s.window {
		counts[st]++
	}
	var best AffectiveState
	bestCount := -1
	for _, st := range []AffectiveState{StateCalm, StateFocused, StateConfused, StateStressed} {
		c, ok := counts[st]
		if !ok {
			continue
		}
		if c > bestCount || (c == bestCount && st.AlarmRank() > best.AlarmRank()) {
			best, bestCount = st, c
		}
	}
	return best, bestCount
}
