package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edusense/backend/internal/affect"
)

func testClient(h *Hub, sessionID uuid.UUID) *Client {
	return &Client{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		hub:       h,
		send:      make(chan WSMessage, 8),
	}
}

func TestHubRegisterUnregisterCounts(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()

	a := testClient(h, sessionID)
	b := testClient(h, sessionID)
	h.Register(a)
	h.Register(b)
	assert.Equal(t, 2, h.WatcherCount(sessionID))

	h.Unregister(a)
	assert.Equal(t, 1, h.WatcherCount(sessionID))
	h.Unregister(b)
	assert.Equal(t, 0, h.WatcherCount(sessionID))
}

func TestHubBroadcastReadingReachesOnlyitsSession(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	watched := uuid.New()
	other := uuid.New()

	w := testClient(h, watched)
	o := testClient(h, other)
	h.Register(w)
	h.Register(o)

	reading := affect.SmoothedReading{
		State:       affect.StateFocused,
		StressScore: 0.2,
		Confidence:  0.8,
		IsStable:    true,
		ObservedAt:  time.Now(),
	}
	h.BroadcastReading(watched, reading)

	select {
	case msg := <-w.send:
		assert.Equal(t, "reading", msg.Event)
		var got affect.SmoothedReading
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, affect.StateFocused, got.State)
		assert.True(t, got.IsStable)
	default:
		t.Fatal("watcher did not receive the reading")
	}

	select {
	case <-o.send:
		t.Fatal("reading leaked to a different session's watcher")
	default:
	}
}

func TestHubSessionEndedEvent(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()
	c := testClient(h, sessionID)
	h.Register(c)

	h.BroadcastSessionEnded(sessionID, "idle_evicted")

	select {
	case msg := <-c.send:
		assert.Equal(t, "session_ended", msg.Event)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		assert.Equal(t, "idle_evicted", payload["reason"])
	default:
		t.Fatal("watcher did not receive session_ended")
	}
}

func TestHubFullSendBufferDoesNotBlock(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()
	c := testClient(h, sessionID)
	c.send = make(chan WSMessage) // no buffer, nobody reading
	h.Register(c)

	done := make(chan struct{})
	go func() {
		h.BroadcastToSession(sessionID, "reading", []byte(`{}`))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow watcher")
	}
}
