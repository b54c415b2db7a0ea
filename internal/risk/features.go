package risk

import "fmt"

// Feature domains. Values outside these are rejected, never silently
// clamped, so bad upstream data surfaces instead of hiding.
const (
	MaxAvgScore = 100.0
	// Engagement saturation points: beyond these a feature stops improving
	// the score. 30 logins / 60-minute average sessions already read as a
	// fully engaged student.
	loginSaturation       = 30.0
	sessionTimeSaturation = 60.0
)

// FeatureVector is one student's current standing, fully validated.
type FeatureVector struct {
	AvgScore        float64 `json:"avg_score"`        // mean test score, 0-100
	StressLevel     float64 `json:"stress_level"`     // aggregated smoothed stress, 0-1
	ConfidenceLevel float64 `json:"confidence_level"` // aggregated reading confidence, 0-1
	LoginCount      int     `json:"login_count"`      // non-negative
	AvgSessionTime  float64 `json:"avg_session_time"` // minutes, non-negative
}

// FeatureInput is a partially-filled feature set. Nil fields take the
// documented default (zero: a brand-new student has no history).
type FeatureInput struct {
	AvgScore        *float64 `json:"avg_score"`
	StressLevel     *float64 `json:"stress_level"`
	ConfidenceLevel *float64 `json:"confidence_level"`
	LoginCount      *int     `json:"login_count"`
	AvgSessionTime  *float64 `json:"avg_session_time"`
}

// ValidationError reports a single out-of-domain feature with enough detail
// to identify the offending field.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("feature %q: %s (got %v)", e.Field, e.Reason, e.Value)
}

// BuildVector fills gaps in a partial feature set with defaults and validates
// every value against its domain.
func BuildVector(in FeatureInput) (FeatureVector, error) {
	var v FeatureVector
	if in.AvgScore != nil {
		v.AvgScore = *in.AvgScore
	}
	if in.StressLevel != nil {
		v.StressLevel = *in.StressLevel
	}
	if in.ConfidenceLevel != nil {
		v.ConfidenceLevel = *in.ConfidenceLevel
	}
	if in.LoginCount != nil {
		v.LoginCount = *in.LoginCount
	}
	if in.AvgSessionTime != nil {
		v.AvgSessionTime = *in.AvgSessionTime
	}
	if err := v.Validate(); err != nil {
		return FeatureVector{}, err
	}
	return v, nil
}

// Validate checks every feature against its domain.
func (v FeatureVector) Validate() error {
	if v.AvgScore < 0 || v.AvgScore > MaxAvgScore {
		return &ValidationError{Field: "avg_score", Value: v.AvgScore, Reason: "must be in [0,100]"}
	}
	if v.StressLevel < 0 || v.StressLevel > 1 {
		return &ValidationError{Field: "stress_level", Value: v.StressLevel, Reason: "must be in [0,1]"}
	}
	if v.ConfidenceLevel < 0 || v.ConfidenceLevel > 1 {
		return &ValidationError{Field: "confidence_level", Value: v.ConfidenceLevel, Reason: "must be in [0,1]"}
	}
	if v.LoginCount < 0 {
		return &ValidationError{Field: "login_count", Value: float64(v.LoginCount), Reason: "must be non-negative"}
	}
	if v.AvgSessionTime < 0 {
		return &ValidationError{Field: "avg_session_time", Value: v.AvgSessionTime, Reason: "must be non-negative"}
	}
	return nil
}
