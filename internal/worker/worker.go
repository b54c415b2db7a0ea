package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edusense/backend/internal/monitor"
	"github.com/edusense/backend/pkg/queue"
)

// RollupProcessor processes session rollup jobs: aggregate a finished
// session's emotion samples, stamp the session row, and fold the result into
// the student's engagement record that feeds dropout-risk features.
type RollupProcessor struct {
	repo   *monitor.Repository
	queue  *queue.Queue
	logger *zap.Logger
}

// NewRollupProcessor creates a session rollup processor.
func NewRollupProcessor(repo *monitor.Repository, q *queue.Queue, logger *zap.Logger) *RollupProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RollupProcessor{repo: repo, queue: q, logger: logger}
}

// Process executes one session rollup job.
func (p *RollupProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionRollup {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.SessionRollupPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	agg, err := p.repo.AggregateSession(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("aggregate session: %w", err)
	}
	if agg.SampleCount == 0 {
		// Nothing observed; the session contributes no engagement signal.
		p.logger.Info("session had no samples, skipping rollup",
			zap.String("session_id", payload.SessionID.String()))
		return nil
	}

	if err := p.repo.FoldIntoEngagement(ctx, payload.SessionID, payload.StudentID, agg); err != nil {
		return fmt.Errorf("fold engagement: %w", err)
	}

	p.logger.Info("session rollup completed",
		zap.String("session_id", payload.SessionID.String()),
		zap.String("student_id", payload.StudentID.String()),
		zap.Int("samples", agg.SampleCount),
		zap.Float64("avg_stress", agg.AvgStress))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *RollupProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("rollup worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
