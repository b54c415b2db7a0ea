package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStudentNotFound means the student id is unknown to the store.
var ErrStudentNotFound = errors.New("student not found")

// StudentFeatures is the assembled raw feature input for one student.
type StudentFeatures struct {
	StudentID uuid.UUID
	FullName  string
	Input     FeatureInput
}

// Repository assembles risk features from test scores and engagement rolled
// up from monitoring sessions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a risk feature repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchFeatures gathers the feature input for one student. Features with no
// recorded data stay nil and fall back to the scorer defaults.
func (r *Repository) FetchFeatures(ctx context.Context, studentID uuid.UUID) (*StudentFeatures, error) {
	const q = `SELECT s.full_name,
			(SELECT AVG(score) FROM test_scores t WHERE t.student_id = s.id),
			e.avg_stress, e.avg_confidence, e.login_count,
			CASE WHEN e.session_count > 0
				THEN e.total_session_minutes / e.session_count END
		FROM students s
		LEFT JOIN student_engagement e ON e.student_id = s.id
		WHERE s.id = $1`

	sf := StudentFeatures{StudentID: studentID}
	err := r.pool.QueryRow(ctx, q, studentID).Scan(
		&sf.FullName,
		&sf.Input.AvgScore,
		&sf.Input.StressLevel,
		&sf.Input.ConfidenceLevel,
		&sf.Input.LoginCount,
		&sf.Input.AvgSessionTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch features: %w", err)
	}
	return &sf, nil
}

// ListFeatures gathers feature input for every student, for the scored
// roster view.
func (r *Repository) ListFeatures(ctx context.Context) ([]StudentFeatures, error) {
	const q = `SELECT s.id, s.full_name,
			(SELECT AVG(score) FROM test_scores t WHERE t.student_id = s.id),
			e.avg_stress, e.avg_confidence, e.login_count,
			CASE WHEN e.session_count > 0
				THEN e.total_session_minutes / e.session_count END
		FROM students s
		LEFT JOIN student_engagement e ON e.student_id = s.id
		ORDER BY s.full_name`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	var out []StudentFeatures
	for rows.Next() {
		var sf StudentFeatures
		if err := rows.Scan(
			&sf.StudentID,
			&sf.FullName,
			&sf.Input.AvgScore,
			&sf.Input.StressLevel,
			&sf.Input.ConfidenceLevel,
			&sf.Input.LoginCount,
			&sf.Input.AvgSessionTime,
		); err != nil {
			return nil, fmt.Errorf("scan features: %w", err)
		}
		out = append(out, sf)
	}
	return out, rows.Err()
}

// RecordTestScore appends a test result for a student.
func (r *Repository) RecordTestScore(ctx context.Context, studentID uuid.UUID, score float64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO test_scores (student_id, score, recorded_at) VALUES ($1, $2, NOW())`,
		studentID, score)
	if err != nil {
		return fmt.Errorf("record test score: %w", err)
	}
	return nil
}
