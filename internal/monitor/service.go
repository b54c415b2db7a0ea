package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edusense/backend/internal/affect"
	"github.com/edusense/backend/internal/vision"
)

var (
	// ErrSessionEnded means the session was explicitly finished and takes no
	// more frames.
	ErrSessionEnded = errors.New("session already ended")
	// ErrNoReading means inference is unavailable and no previous reading
	// exists to fall back to.
	ErrNoReading = errors.New("no reading available yet")
)

// Store is the persistence surface the service needs.
type Store interface {
	CreateSession(ctx context.Context, id, studentID uuid.UUID, startedAt time.Time) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time, reason string) error
	InsertSample(ctx context.Context, s Sample) error
}

// ReadingCache shares the last reading per session across instances. Entries
// are removed on session end and eviction so a dead session reports "no
// data", never stale data.
type ReadingCache interface {
	SetReading(ctx context.Context, sessionID uuid.UUID, r affect.SmoothedReading) error
	GetReading(ctx context.Context, sessionID uuid.UUID) (affect.SmoothedReading, bool, error)
	DeleteReading(ctx context.Context, sessionID uuid.UUID) error
}

// Broadcaster pushes fresh readings to live dashboard watchers.
type Broadcaster interface {
	BroadcastReading(sessionID uuid.UUID, r affect.SmoothedReading)
}

// RollupEnqueuer schedules a telemetry rollup for a finished session.
type RollupEnqueuer interface {
	EnqueueSessionRollup(ctx context.Context, sessionID, studentID uuid.UUID) error
}

// FrameResult is the outcome of one analyze or status call.
type FrameResult struct {
	Reading *affect.SmoothedReading
	// NoFace marks a frame where no usable face was found; the reading, if
	// present, is the held previous one.
	NoFace bool
	// Degraded marks a reading served unchanged because inference failed
	// transiently ("no new evidence").
	Degraded bool
	// NoData means the session is live but has produced no reading yet.
	NoData bool
}

// Service orchestrates the frame pipeline: preprocess, classify, map, smooth,
// persist, broadcast.
type Service struct {
	registry    *Registry
	pre         *vision.Preprocessor
	classifier  vision.Classifier
	store       Store
	cache       ReadingCache
	broadcaster Broadcaster
	rollups     RollupEnqueuer
	frameBudget time.Duration
	logger      *zap.Logger
}

// NewService creates the monitoring service. cache, broadcaster, and rollups
// may be nil in tests.
func NewService(
	registry *Registry,
	pre *vision.Preprocessor,
	classifier vision.Classifier,
	store Store,
	cache ReadingCache,
	broadcaster Broadcaster,
	rollups RollupEnqueuer,
	frameBudget time.Duration,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if frameBudget <= 0 {
		frameBudget = 300 * time.Millisecond
	}
	return &Service{
		registry:    registry,
		pre:         pre,
		classifier:  classifier,
		store:       store,
		cache:       cache,
		broadcaster: broadcaster,
		rollups:     rollups,
		frameBudget: frameBudget,
		logger:      logger,
	}
}

// StartSession creates a monitoring session for a student and registers its
// monitor.
func (s *Service) StartSession(ctx context.Context, studentID uuid.UUID) (*Session, error) {
	id := uuid.New()
	now := time.Now()
	if err := s.store.CreateSession(ctx, id, studentID, now); err != nil {
		return nil, err
	}
	s.registry.GetOrCreate(id, studentID)
	s.logger.Info("monitoring session started",
		zap.String("session_id", id.String()), zap.String("student_id", studentID.String()))
	return &Session{ID: id, StudentID: studentID, StartedAt: now}, nil
}

// AnalyzeFrame runs one frame through the pipeline and returns the session's
// smoothed reading. Inference runs under the frame time budget and outside
// any cross-session lock; a budget overrun is a soft failure that leaves the
// session state untouched.
func (s *Service) AnalyzeFrame(ctx context.Context, sessionID uuid.UUID, imageData []byte) (*FrameResult, error) {
	m, err := s.monitorFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	frame, err := s.pre.Decode(imageData)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.frameBudget)
	defer cancel()
	res, err := s.classifier.Classify(cctx, frame)
	if err != nil {
		// Transient inference failure: no new evidence. Serve the last
		// reading unchanged rather than failing the request.
		s.logger.Warn("classifier unavailable", zap.Error(err), zap.String("session_id", sessionID.String()))
		if last, ok := m.LastReading(); ok {
			return &FrameResult{Reading: &last, Degraded: true}, nil
		}
		return nil, ErrNoReading
	}

	now := time.Now()
	if !res.FaceDetected {
		last, ok := m.ApplyNoFace(now)
		if !ok {
			return &FrameResult{NoFace: true, NoData: true}, nil
		}
		return &FrameResult{Reading: &last, NoFace: true}, nil
	}

	reading := m.ApplySample(res, now)
	s.publish(ctx, m, reading)
	return &FrameResult{Reading: &reading}, nil
}

// Status returns the last smoothed reading for a session, or a "no data yet"
// result for a live session with no samples.
func (s *Service) Status(ctx context.Context, sessionID uuid.UUID) (*FrameResult, error) {
	if m, ok := s.registry.Get(sessionID); ok {
		if last, ok := m.LastReading(); ok {
			return &FrameResult{Reading: &last}, nil
		}
		return &FrameResult{NoData: true}, nil
	}

	// Not homed here: the session may live on another instance, be expired,
	// or be unknown entirely.
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if reading, ok, err := s.cache.GetReading(ctx, sessionID); err == nil && ok {
			return &FrameResult{Reading: &reading}, nil
		}
	}
	return &FrameResult{NoData: true}, nil
}

// EndSession finishes a session explicitly: removes its monitor, stamps the
// row, drops the cached reading, and schedules the telemetry rollup.
func (s *Service) EndSession(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.registry.Evict(sessionID)
	if err := s.store.EndSession(ctx, sessionID, time.Now(), "ended"); err != nil {
		return err
	}
	s.dropAndRollup(ctx, sessionID, sess.StudentID)
	s.logger.Info("monitoring session ended", zap.String("session_id", sessionID.String()))
	return nil
}

// HandleEviction is installed as the registry's eviction handler: an idle or
// capacity eviction finishes the session the same way an explicit end does.
func (s *Service) HandleEviction(m *SessionMonitor) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.EndSession(ctx, m.ID, time.Now(), "idle_evicted"); err != nil {
		s.logger.Warn("mark evicted session failed", zap.Error(err), zap.String("session_id", m.ID.String()))
	}
	s.dropAndRollup(ctx, m.ID, m.StudentID)
}

// monitorFor resolves the live monitor for a session, recreating one with
// empty history when this instance does not have it but the session is still
// open.
func (s *Service) monitorFor(ctx context.Context, sessionID uuid.UUID) (*SessionMonitor, error) {
	if m, ok := s.registry.Get(sessionID); ok {
		return m, nil
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.EndedAt != nil {
		return nil, ErrSessionEnded
	}
	m, _ := s.registry.GetOrCreate(sessionID, sess.StudentID)
	return m, nil
}

// publish persists and fans out one accepted reading. Telemetry failures are
// logged, never surfaced: the reading itself is already committed to the
// session state.
func (s *Service) publish(ctx context.Context, m *SessionMonitor, reading affect.SmoothedReading) {
	sample := Sample{
		SessionID:  m.ID,
		StudentID:  m.StudentID,
		State:      reading.State,
		Stress:     reading.StressScore,
		Confidence: reading.Confidence,
		IsStable:   reading.IsStable,
		ObservedAt: reading.ObservedAt,
	}
	if err := s.store.InsertSample(ctx, sample); err != nil {
		s.logger.Warn("persist sample failed", zap.Error(err), zap.String("session_id", m.ID.String()))
	}
	if s.cache != nil {
		if err := s.cache.SetReading(ctx, m.ID, reading); err != nil {
			s.logger.Warn("cache reading failed", zap.Error(err))
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastReading(m.ID, reading)
	}
}

// dropAndRollup clears the cached reading and schedules the rollup job.
func (s *Service) dropAndRollup(ctx context.Context, sessionID, studentID uuid.UUID) {
	if s.cache != nil {
		if err := s.cache.DeleteReading(ctx, sessionID); err != nil {
			s.logger.Warn("drop cached reading failed", zap.Error(err))
		}
	}
	if s.rollups != nil {
		if err := s.rollups.EnqueueSessionRollup(ctx, sessionID, studentID); err != nil {
			s.logger.Warn("enqueue rollup failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		}
	}
}
