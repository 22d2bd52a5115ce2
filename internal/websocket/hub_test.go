package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/oldphotos/api/internal/model"
)

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.Send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast arrived")
		return nil
	}
}

func TestHubBroadcastsJobEvents(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := &Client{Send: make(chan []byte, 16)}
	h.Register(c)

	h.JobUpdated(&model.Job{ID: "j1", Status: model.JobStatusProcessing})
	var update model.WSJobUpdateMessage
	if err := json.Unmarshal(receive(t, c), &update); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if update.Type != model.WSMessageTypeJobUpdate || update.Job.ID != "j1" {
		t.Errorf("unexpected update: %+v", update)
	}

	h.JobRemoved("j1")
	var removed model.WSJobRemovedMessage
	if err := json.Unmarshal(receive(t, c), &removed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if removed.Type != model.WSMessageTypeJobRemoved || removed.JobID != "j1" {
		t.Errorf("unexpected removal: %+v", removed)
	}
}

func TestHubDropsStalledClient(t *testing.T) {
	h := NewHub()
	go h.Run()

	// A client that never drains fills up instantly.
	stalled := &Client{Send: make(chan []byte)}
	healthy := &Client{Send: make(chan []byte, 16)}
	h.Register(stalled)
	h.Register(healthy)

	h.JobUpdated(&model.Job{ID: "j1", Status: model.JobStatusPending})
	receive(t, healthy)

	// The stalled client's channel was closed by the hub.
	select {
	case _, ok := <-stalled.Send:
		if ok {
			t.Error("expected the stalled channel to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Error("stalled client never dropped")
	}

	// The healthy client keeps receiving.
	h.JobUpdated(&model.Job{ID: "j2", Status: model.JobStatusPending})
	var update model.WSJobUpdateMessage
	if err := json.Unmarshal(receive(t, healthy), &update); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if update.Job.ID != "j2" {
		t.Errorf("expected j2, got %+v", update)
	}
}

func TestHubUnregisterIsIdempotent(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := &Client{Send: make(chan []byte, 1)}
	h.Register(c)
	h.Unregister(c)
	h.Unregister(c)

	// Events after unregister go nowhere and must not block.
	h.JobUpdated(&model.Job{ID: "j1"})
}
