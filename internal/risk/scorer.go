package risk

// Deterministic weighted-sum dropout-risk scoring. Not a trained model: the
// formula stays auditable and explainable to teachers. Higher stress never
// lowers the score; better performance, confidence, or engagement never
// raises it.

// Band is the discrete risk classification derived from the score.
type Band string

const (
	BandLow    Band = "Low"
	BandMedium Band = "Medium"
	BandHigh   Band = "High"
)

// ScoreMax is the upper end of the risk score range.
const ScoreMax = 5.0

// Fixed band thresholds. Part of the consumer contract, not per-call knobs.
const (
	HighThreshold   = 3.5
	MediumThreshold = 1.8
)

// Feature weights. Non-negative, summing to 1, so the normalized-feature
// combination stays in [0,1] before scaling to [0,ScoreMax].
const (
	weightStress      = 0.30
	weightPerformance = 0.25
	weightConfidence  = 0.20
	weightLogins      = 0.15
	weightSessionTime = 0.10
)

// Score is the scored dropout risk for one student.
type Score struct {
	Score   float64            `json:"risk_score"`
	Band    Band               `json:"band"`
	Factors map[string]float64 `json:"factors"`
}

// BandFor maps a score to its band by the fixed thresholds.
func BandFor(score float64) Band {
	switch {
	case score >= HighThreshold:
		return BandHigh
	case score >= MediumThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

// Scorer computes dropout-risk scores. Stateless, safe for concurrent use.
type Scorer struct{}

// NewScorer creates a risk scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Evaluate maps a validated feature vector to a bounded score and band.
// Every feature is normalized to [0,1] in its risk direction, combined with
// the fixed weights, then scaled to [0,ScoreMax].
func (s *Scorer) Evaluate(v FeatureVector) Score {
	factors := map[string]float64{
		"stress":       v.StressLevel,
		"performance":  1 - v.AvgScore/MaxAvgScore,
		"confidence":   1 - v.ConfidenceLevel,
		"logins":       1 - saturate(float64(v.LoginCount), loginSaturation),
		"session_time": 1 - saturate(v.AvgSessionTime, sessionTimeSaturation),
	}

	combined := weightStress*factors["stress"] +
		weightPerformance*factors["performance"] +
		weightConfidence*factors["confidence"] +
		weightLogins*factors["logins"] +
		weightSessionTime*factors["session_time"]

	score := combined * ScoreMax
	if score < 0 {
		score = 0
	}
	if score > ScoreMax {
		score = ScoreMax
	}
	return Score{Score: score, Band: BandFor(score), Factors: factors}
}

// saturate maps v linearly onto [0,1], flat above the saturation point.
func saturate(v, max float64) float64 {
	if v >= max {
		return 1
	}
	if v <= 0 {
		return 0
	}
	return v / max
}
