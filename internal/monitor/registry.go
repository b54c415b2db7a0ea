package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edusense/backend/internal/affect"
)

// Registry defaults.
const (
	DefaultIdleTimeout   = 3 * time.Minute
	DefaultSweepInterval = 30 * time.Second
	DefaultMaxSessions   = 10000
)

// RegistryConfig tunes the session registry.
type RegistryConfig struct {
	Smoother      affect.SmootherConfig
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	MaxSessions   int
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	return c
}

// EvictionHandler is called after a session is removed by the idle sweep or
// the capacity cap (not on explicit end), e.g. to roll its telemetry up.
type EvictionHandler func(m *SessionMonitor)

// Registry holds one SessionMonitor per live session. Creation is serialized
// so racing first-frames cannot produce duplicate monitors; unrelated
// sessions never share a lock beyond the map itself.
type Registry struct {
	cfg    RegistryConfig
	mapper *affect.Mapper
	logger *zap.Logger

	mu        sync.RWMutex
	sessions  map[uuid.UUID]*SessionMonitor
	onEvicted EvictionHandler

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry creates an empty session registry.
func NewRegistry(cfg RegistryConfig, mapper *affect.Mapper, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:      cfg.withDefaults(),
		mapper:   mapper,
		logger:   logger,
		sessions: make(map[uuid.UUID]*SessionMonitor),
	}
}

// SetEvictionHandler sets the callback invoked for swept sessions.
func (r *Registry) SetEvictionHandler(fn EvictionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvicted = fn
}

// GetOrCreate returns the monitor for sessionID, creating one with empty
// history on first use. Reports whether it was created by this call.
func (r *Registry) GetOrCreate(sessionID, studentID uuid.UUID) (*SessionMonitor, bool) {
	r.mu.RLock()
	m, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok {
		return m, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.sessions[sessionID]; ok {
		// Lost the race to another first-frame; one monitor per session.
		return m, false
	}
	var evicted []*SessionMonitor
	if len(r.sessions) >= r.cfg.MaxSessions {
		evicted = r.evictIdlestLocked()
	}
	m = newSessionMonitor(sessionID, studentID, r.cfg.Smoother, r.mapper, time.Now())
	r.sessions[sessionID] = m
	r.notify(evicted)
	return m, true
}

// Get returns the monitor for sessionID, if registered.
func (r *Registry) Get(sessionID uuid.UUID) (*SessionMonitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.sessions[sessionID]
	return m, ok
}

// Evict removes the monitor for sessionID and returns it, or nil if absent.
// Used for explicit session end; the eviction handler is not invoked.
func (r *Registry) Evict(sessionID uuid.UUID) *SessionMonitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	return m
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Start begins the idle-eviction sweep loop. Call Stop to release it.
func (r *Registry) Start() {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx)
	r.logger.Info("session registry sweep started",
		zap.Duration("idle_timeout", r.cfg.IdleTimeout),
		zap.Duration("interval", r.cfg.SweepInterval))
}

// Stop stops the sweep loop.
func (r *Registry) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.logger.Info("session registry sweep stopped")
}

func (r *Registry) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Sweep evicts every session with no update for longer than the idle
// timeout, bounding memory for abandoned sessions.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var evicted []*SessionMonitor
	for id, m := range r.sessions {
		if now.Sub(m.LastTouched()) > r.cfg.IdleTimeout {
			delete(r.sessions, id)
			evicted = append(evicted, m)
		}
	}
	r.notify(evicted)
	r.mu.Unlock()

	if len(evicted) > 0 {
		r.logger.Info("evicted idle sessions", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

// evictIdlestLocked removes the longest-idle session to make room. Registry
// at capacity is a recoverable condition, never fatal.
func (r *Registry) evictIdlestLocked() []*SessionMonitor {
	var (
		oldestID uuid.UUID
		oldest   *SessionMonitor
	)
	for id, m := range r.sessions {
		if oldest == nil || m.LastTouched().Before(oldest.LastTouched()) {
			oldestID, oldest = id, m
		}
	}
	if oldest == nil {
		return nil
	}
	delete(r.sessions, oldestID)
	r.logger.Warn("registry at capacity, evicted idlest session",
		zap.String("session_id", oldestID.String()))
	return []*SessionMonitor{oldest}
}

// notify invokes the eviction handler outside the per-monitor locks but
// while still holding the registry lock ordering stable. Handler runs are
// dispatched on a goroutine so a slow rollup cannot stall frame traffic.
func (r *Registry) notify(evicted []*SessionMonitor) {
	if r.onEvicted == nil || len(evicted) == 0 {
		return
	}
	fn := r.onEvicted
	go func() {
		for _, m := range evicted {
			fn(m)
		}
	}()
}
