package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hseguard/syncd/internal/model"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func receive(t *testing.T, c *Client) model.SyncEvent {
	t.Helper()
	select {
	case data := <-c.Send:
		var event model.SyncEvent
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return model.SyncEvent{}
	}
}

func TestPublishReachesProjectSubscribers(t *testing.T) {
	h := testHub(t)

	sub := &Client{ProjectID: "proj-1", Send: make(chan []byte, 16)}
	h.Register(sub)

	h.Publish(model.SyncEvent{
		Type:      model.EventSyncCompleted,
		ProjectID: "proj-1",
		EntityID:  "dev-1",
		TargetID:  "DLX-1",
		Status:    model.SyncSuccess,
	})

	event := receive(t, sub)
	assert.Equal(t, model.EventSyncCompleted, event.Type)
	assert.Equal(t, "DLX-1", event.TargetID)
}

func TestPublishScopedToProject(t *testing.T) {
	h := testHub(t)

	wanted := &Client{ProjectID: "proj-1", Send: make(chan []byte, 16)}
	other := &Client{ProjectID: "proj-2", Send: make(chan []byte, 16)}
	h.Register(wanted)
	h.Register(other)

	h.Publish(model.SyncEvent{Type: model.EventNotice, ProjectID: "proj-1", Message: "hello"})

	event := receive(t, wanted)
	assert.Equal(t, "hello", event.Message)

	select {
	case <-other.Send:
		t.Fatal("event leaked to another project's subscriber")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	h := testHub(t)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			h.Publish(model.SyncEvent{Type: model.EventNotice, ProjectID: "proj-empty"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked without subscribers")
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := testHub(t)

	sub := &Client{ProjectID: "proj-1", Send: make(chan []byte, 16)}
	h.Register(sub)
	h.Unregister(sub)

	select {
	case _, open := <-sub.Send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
}
