package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edusense/backend/internal/affect"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// WatcherChangeHandler is called when the watcher count changes for a session.
type WatcherChangeHandler func(sessionID uuid.UUID, count int)

// Hub maintains session_id -> set of dashboard connections and fans smoothed
// readings out to them. Uses Redis pub/sub for horizontal scaling: readings
// produced on one instance reach watchers connected to another.
type Hub struct {
	// sessionID -> map[clientID]*Client
	sessions   map[uuid.UUID]map[string]*Client
	subs       map[uuid.UUID]func() // cancel Redis subscription per session
	mu         sync.RWMutex
	logger     *zap.Logger
	redis      RedisPublisher
	redisSub   RedisSubscriber
	onWatchers WatcherChangeHandler
}

// RedisPublisher publishes session events for cross-instance broadcast.
type RedisPublisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to session channels and invokes handler for
// incoming events.
type RedisSubscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// SetWatcherChangeHandler sets the callback for watcher count changes.
func (h *Hub) SetWatcherChangeHandler(fn WatcherChangeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onWatchers = fn
}

// Register adds a client to a session room. Starts the Redis subscription for
// this session when the first watcher arrives.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeSession(c.SessionID, func(event string, payload []byte) {
				h.BroadcastToSession(c.SessionID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.SessionID] = cancel
			}
		}
	}
	h.sessions[c.SessionID][c.ID] = c
	count := len(h.sessions[c.SessionID])
	onWatchers := h.onWatchers
	h.mu.Unlock()
	if onWatchers != nil {
		onWatchers(c.SessionID, count)
	}
	h.logger.Debug("watcher joined session", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
}

// Unregister removes a client from a session room. Cancels the Redis
// subscription when the last watcher leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var count int
	if m, ok := h.sessions[c.SessionID]; ok {
		delete(m, c.ID)
		count = len(m)
		if count == 0 {
			delete(h.sessions, c.SessionID)
			if cancel, ok := h.subs[c.SessionID]; ok {
				cancel()
				delete(h.subs, c.SessionID)
			}
		}
	}
	onWatchers := h.onWatchers
	h.mu.Unlock()
	if onWatchers != nil && count > 0 {
		onWatchers(c.SessionID, count)
	}
	h.logger.Debug("watcher left session", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
}

// BroadcastToSession sends a message to all watchers of a session (local only).
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.sessions[sessionID]
	h.mu.RUnlock()

	if clients == nil {
		return
	}
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastReading fans one smoothed reading out to this session's watchers.
// Satisfies the monitoring service's broadcaster interface. With Redis
// present it publishes only; the subscriber callback performs the broadcast
// once per instance, so local watchers never see a reading twice.
func (h *Hub) BroadcastReading(sessionID uuid.UUID, reading affect.SmoothedReading) {
	data, err := json.Marshal(reading)
	if err != nil {
		return
	}
	h.publishOrBroadcast(sessionID, "reading", data)
}

// BroadcastSessionEnded tells watchers the session is over.
func (h *Hub) BroadcastSessionEnded(sessionID uuid.UUID, reason string) {
	data, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return
	}
	h.publishOrBroadcast(sessionID, "session_ended", data)
}

func (h *Hub) publishOrBroadcast(sessionID uuid.UUID, event string, data []byte) {
	if h.redis != nil {
		_ = h.redis.PublishSessionEvent(sessionID, event, data)
		return
	}
	h.BroadcastToSession(sessionID, event, json.RawMessage(data))
}

// WatcherCount returns the number of connected watchers for a session.
func (h *Hub) WatcherCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
