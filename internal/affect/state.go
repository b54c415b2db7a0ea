package affect

import (
	"fmt"
	"math"
	"time"
)

// AffectiveState is the categorical judgment surfaced to consumers.
type AffectiveState string

const (
	StateCalm     AffectiveState = "Calm"
	StateFocused  AffectiveState = "Focused"
	StateConfused AffectiveState = "Confused"
	StateStressed AffectiveState = "Stressed"
)

// alarmRank orders states by intervention urgency. Ties between candidate
// states always resolve toward the higher rank: under-alerting is the
// costlier error for the teacher-facing consumer.
var alarmRank = map[AffectiveState]int{
	StateCalm:     0,
	StateFocused:  1,
	StateConfused: 2,
	StateStressed: 3,
}

// AlarmRank returns the alarm ordering rank of the state (higher = more alarming).
func (s AffectiveState) AlarmRank() int {
	return alarmRank[s]
}

// Expression is a base expression class emitted by the classifier.
type Expression string

const (
	ExprCalm     Expression = "calm"
	ExprFocused  Expression = "focused"
	ExprConfused Expression = "confused"
	ExprStressed Expression = "stressed"
	ExprNeutral  Expression = "neutral"
)

// Expressions is the fixed, closed label set of the classifier.
var Expressions = []Expression{ExprCalm, ExprFocused, ExprConfused, ExprStressed, ExprNeutral}

// distributionTolerance is the allowed deviation of the probability sum from 1.
const distributionTolerance = 0.01

// Distribution maps each base expression to its probability.
type Distribution map[Expression]float64

// Validate checks that the distribution covers exactly the fixed label set,
// that every probability is non-negative, and that the mass sums to 1 within
// floating tolerance.
func (d Distribution) Validate() error {
	if len(d) != len(Expressions) {
		return fmt.Errorf("distribution has %d labels, want %d", len(d), len(Expressions))
	}
	sum := 0.0
	for _, e := range Expressions {
		p, ok := d[e]
		if !ok {
			return fmt.Errorf("distribution missing label %q", e)
		}
		if p < 0 || math.IsNaN(p) {
			return fmt.Errorf("distribution label %q has invalid probability %v", e, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > distributionTolerance {
		return fmt.Errorf("distribution mass sums to %.4f, want 1", sum)
	}
	return nil
}

// Uniform returns the maximum-entropy distribution over the label set. Used
// as the designated low-confidence fallback when inference fails.
func Uniform() Distribution {
	d := make(Distribution, len(Expressions))
	for _, e := range Expressions {
		d[e] = 1.0 / float64(len(Expressions))
	}
	return d
}

// SmoothedReading is the unit returned to callers: the temporally smoothed
// judgment for one session.
type SmoothedReading struct {
	State       AffectiveState `json:"state"`
	StressScore float64        `json:"stress_score"`
	Confidence  float64        `json:"confidence"`
	IsStable    bool           `json:"is_stable"`
	ObservedAt  time.Time      `json:"observed_at"`
}

// PoseSignal summarizes head movement around the current frame. It is a
// behavioral signal, not a per-frame geometric one: a still head (even looking
// away from the camera) reads as calm, erratic scanning reads as distress.
type PoseSignal struct {
	MovementScore    float64 // 0 = stone still, 1 = very erratic
	DirectionChanges int     // left-right reversals in the recent window
	Stable           bool    // movement below the stability threshold
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
