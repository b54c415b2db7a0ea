package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edusense/backend/internal/affect"
)

// ErrSessionNotFound means the session id is unknown to the store.
var ErrSessionNotFound = errors.New("session not found")

// Session is one monitoring stream for one student.
type Session struct {
	ID        uuid.UUID  `json:"session_id"`
	StudentID uuid.UUID  `json:"student_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// Sample is one accepted smoothed reading persisted for later aggregation.
type Sample struct {
	SessionID  uuid.UUID
	StudentID  uuid.UUID
	State      affect.AffectiveState
	Stress     float64
	Confidence float64
	IsStable   bool
	ObservedAt time.Time
}

// Repository handles monitoring_sessions and emotion_samples.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a monitoring telemetry repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSession inserts a new monitoring session row.
func (r *Repository) CreateSession(ctx context.Context, id, studentID uuid.UUID, startedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO monitoring_sessions (id, student_id, started_at) VALUES ($1, $2, $3)`,
		id, studentID, startedAt)
	return err
}

// GetSession returns a session by id.
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	const q = `SELECT id, student_id, started_at, ended_at, COALESCE(end_reason, '')
		FROM monitoring_sessions WHERE id = $1`
	var s Session
	err := r.pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.StudentID, &s.StartedAt, &s.EndedAt, &s.EndReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// EndSession marks the session as finished. Idempotent: an already-ended
// session keeps its original end time.
func (r *Repository) EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE monitoring_sessions SET ended_at = COALESCE(ended_at, $2), end_reason = COALESCE(end_reason, $3)
		 WHERE id = $1`,
		id, endedAt, reason)
	return err
}

// InsertSample persists one accepted reading.
func (r *Repository) InsertSample(ctx context.Context, s Sample) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO emotion_samples (session_id, student_id, state, stress, confidence, is_stable, observed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.SessionID, s.StudentID, string(s.State), s.Stress, s.Confidence, s.IsStable, s.ObservedAt)
	return err
}

// SessionAggregates is the per-session fold used by the rollup worker.
type SessionAggregates struct {
	SampleCount   int
	AvgStress     float64
	AvgConfidence float64
	Minutes       float64
}

// AggregateSession folds a finished session's samples into mean stress, mean
// confidence, and duration in minutes.
func (r *Repository) AggregateSession(ctx context.Context, sessionID uuid.UUID) (*SessionAggregates, error) {
	const q = `SELECT COUNT(*), COALESCE(AVG(stress), 0), COALESCE(AVG(confidence), 0),
		COALESCE(EXTRACT(EPOCH FROM (MAX(observed_at) - MIN(observed_at))) / 60.0, 0)
		FROM emotion_samples WHERE session_id = $1`
	var agg SessionAggregates
	if err := r.pool.QueryRow(ctx, q, sessionID).Scan(&agg.SampleCount, &agg.AvgStress, &agg.AvgConfidence, &agg.Minutes); err != nil {
		return nil, err
	}
	return &agg, nil
}

// FoldIntoEngagement updates the student's running engagement aggregates with
// one finished session and stamps the session row with its fold.
func (r *Repository) FoldIntoEngagement(ctx context.Context, sessionID, studentID uuid.UUID, agg *SessionAggregates) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE monitoring_sessions SET sample_count = $2, avg_stress = $3, avg_confidence = $4 WHERE id = $1`,
		sessionID, agg.SampleCount, agg.AvgStress, agg.AvgConfidence)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO student_engagement (student_id, session_count, total_session_minutes, avg_stress, avg_confidence, updated_at)
		 VALUES ($1, 1, $2, $3, $4, NOW())
		 ON CONFLICT (student_id) DO UPDATE SET
			total_session_minutes = student_engagement.total_session_minutes + EXCLUDED.total_session_minutes,
			avg_stress = (student_engagement.avg_stress * student_engagement.session_count + EXCLUDED.avg_stress)
				/ (student_engagement.session_count + 1),
			avg_confidence = (student_engagement.avg_confidence * student_engagement.session_count + EXCLUDED.avg_confidence)
				/ (student_engagement.session_count + 1),
			session_count = student_engagement.session_count + 1,
			updated_at = NOW()`,
		studentID, agg.Minutes, agg.AvgStress, agg.AvgConfidence)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordLogin bumps the student's login counter, used by the risk features.
func (r *Repository) RecordLogin(ctx context.Context, studentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO student_engagement (student_id, login_count, updated_at) VALUES ($1, 1, NOW())
		 ON CONFLICT (student_id) DO UPDATE SET
			login_count = student_engagement.login_count + 1, updated_at = NOW()`,
		studentID)
	return err
}
