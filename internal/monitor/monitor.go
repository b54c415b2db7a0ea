package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edusense/backend/internal/affect"
	"github.com/edusense/backend/internal/vision"
)

// SessionMonitor owns the only mutable smoothing state for one monitoring
// session: the temporal smoother and the head-movement tracker. All mutation
// happens under one mutex so a sample is applied in full or not at all, and
// the last-touched timestamp can never drift from the smoother state.
type SessionMonitor struct {
	ID        uuid.UUID
	StudentID uuid.UUID
	CreatedAt time.Time

	mu        sync.Mutex
	smoother  *affect.Smoother
	movement  *affect.MovementTracker
	mapper    *affect.Mapper
	noFaceRun int
	grace     int
	lastTouch time.Time
}

func newSessionMonitor(id, studentID uuid.UUID, cfg affect.SmootherConfig, mapper *affect.Mapper, now time.Time) *SessionMonitor {
	grace := cfg.NoFaceGrace
	if grace <= 0 {
		grace = affect.DefaultNoFaceGrace
	}
	return &SessionMonitor{
		ID:        id,
		StudentID: studentID,
		CreatedAt: now,
		smoother:  affect.NewSmoother(cfg),
		movement:  affect.NewMovementTracker(),
		mapper:    mapper,
		grace:     grace,
		lastTouch: now,
	}
}

// ApplySample feeds one classifier result through the movement tracker, the
// state mapper, and the smoother, returning the updated reading. Classifier
// inference has already happened; nothing slow runs under the lock.
func (m *SessionMonitor) ApplySample(res *vision.Result, at time.Time) affect.SmoothedReading {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.noFaceRun = 0
	pose := m.movement.Observe(res.FaceCenterX, res.FaceCenterY)
	state, stress := m.mapper.Map(res.Distribution, pose)
	reading := m.smoother.Observe(state, stress, at)
	m.lastTouch = at
	return reading
}

// ApplyNoFace registers a frame with no usable face. Returns the reading the
// caller should report and whether one exists yet. Once the grace window is
// exhausted the movement history is cleared, so a reappearing face does not
// stitch onto stale positions and fake a jump.
func (m *SessionMonitor) ApplyNoFace(at time.Time) (affect.SmoothedReading, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.noFaceRun++
	if m.noFaceRun == m.grace {
		m.movement.Reset()
	}
	m.lastTouch = at
	return m.smoother.ObserveNoFace(at)
}

// LastReading returns the most recent smoothed reading, if any.
func (m *SessionMonitor) LastReading() (affect.SmoothedReading, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.smoother.Last()
}

// LastTouched returns when this session last received any frame.
func (m *SessionMonitor) LastTouched() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTouch
}
