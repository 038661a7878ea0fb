package events

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go h.Run()
	return h
}

func join(t *testing.T, h *Hub, versionID, buffer int) *Client {
	t.Helper()
	c := &Client{Hub: h, Send: make(chan []byte, buffer), VersionID: versionID}
	h.Register <- c
	waitForMembership(t, h, c, true)
	return c
}

func waitForMembership(t *testing.T, h *Hub, c *Client, want bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.rooms[c.VersionID][c] == want
	}, time.Second, 5*time.Millisecond)
}

func TestHubPublishReachesOnlySubscribedRoom(t *testing.T) {
	h := newTestHub()
	watching := join(t, h, 7, 4)
	other := join(t, h, 8, 4)

	h.Publish(7, "ASSIGNMENT_CHANGED", map[string]int{"match_id": 3})

	select {
	case raw := <-watching.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "ASSIGNMENT_CHANGED", msg.Type)
		assert.Equal(t, 7, msg.VersionID)
		assert.Equal(t, map[string]interface{}{"match_id": float64(3)}, msg.Payload)
	default:
		t.Fatal("expected event for subscribed room")
	}
	assert.Zero(t, len(other.Send))
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	h := newTestHub()
	c := join(t, h, 12, 1)

	h.Unregister <- c
	waitForMembership(t, h, c, false)

	select {
	case _, open := <-c.Send:
		assert.False(t, open)
	default:
		t.Fatal("send channel should be closed after unregister")
	}

	// A repeated unregister must not double-close; the hub keeps serving.
	h.Unregister <- c
	join(t, h, 12, 1)
}

func TestHubPublishDropsWhenSubscriberStalls(t *testing.T) {
	h := newTestHub()
	c := join(t, h, 5, 1)

	h.Publish(5, "POLICY_RUN_COMPLETED", map[string]int{"day": 1})
	h.Publish(5, "POLICY_RUN_COMPLETED", map[string]int{"day": 2})

	require.Equal(t, 1, len(c.Send))
	var msg Message
	require.NoError(t, json.Unmarshal(<-c.Send, &msg))
	assert.Equal(t, map[string]interface{}{"day": float64(1)}, msg.Payload)

	// Once drained the subscriber receives again.
	h.Publish(5, "VERSION_FINALIZED", nil)
	require.Equal(t, 1, len(c.Send))
}
