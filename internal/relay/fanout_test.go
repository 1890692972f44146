package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/riscvbooks/eventrelay/internal/event"
)

func decodeRespFrame(t *testing.T, frame []byte) (string, json.RawMessage) {
	t.Helper()
	var elements []json.RawMessage
	if err := json.Unmarshal(frame, &elements); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if len(elements) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(elements))
	}
	var command, requestID string
	if err := json.Unmarshal(elements[0], &command); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if command != CommandResp {
		t.Fatalf("expected RESP frame, got %q", command)
	}
	if err := json.Unmarshal(elements[1], &requestID); err != nil {
		t.Fatalf("decode request id: %v", err)
	}
	return requestID, elements[2]
}

func TestPublishDeliversToMatchedSubscriptionsOnly(t *testing.T) {
	registry := NewRegistry(nil)
	books := newFakeConn("books-conn")
	music := newFakeConn("music-conn")
	registry.Add(books, "books", event.Filter{Tags: event.Tags{event.NewTag("t", "book")}}, time.Now())
	registry.Add(music, "music", event.Filter{Tags: event.Tags{event.NewTag("t", "music")}}, time.Now())

	broadcaster := NewBroadcaster(registry, nil, nil)
	broadcaster.Publish(&event.Event{
		ID:   "ev-1",
		User: "alice",
		Tags: event.Tags{event.NewTag("t", "book"), event.NewTag("bid", "5")},
	})

	if len(books.frames) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(books.frames))
	}
	if len(music.frames) != 0 {
		t.Fatalf("unmatched subscriber must receive nothing, got %d", len(music.frames))
	}

	requestID, payload := decodeRespFrame(t, books.frames[0])
	if requestID != "books" {
		t.Fatalf("delivery must carry the subscription id, got %q", requestID)
	}
	var delivered event.Event
	if err := json.Unmarshal(payload, &delivered); err != nil {
		t.Fatalf("decode delivered event: %v", err)
	}
	if delivered.ID != "ev-1" {
		t.Fatalf("unexpected event delivered: %+v", delivered)
	}
}

func TestPublishDropsInsteadOfBlockingOnFullBuffer(t *testing.T) {
	registry := NewRegistry(nil)
	slow := newFakeConn("slow")
	slow.capacity = 1
	registry.Add(slow, "sub-1", event.Filter{}, time.Now())

	broadcaster := NewBroadcaster(registry, nil, nil)
	broadcaster.Publish(&event.Event{ID: "ev-1"})
	broadcaster.Publish(&event.Event{ID: "ev-2"})

	if len(slow.frames) != 1 {
		t.Fatalf("second delivery should be dropped, got %d frames", len(slow.frames))
	}
	// The subscription survives; only the one delivery was lost.
	if registry.Len() != 1 {
		t.Fatalf("dropped delivery must not cancel the subscription")
	}
}

func TestPublishPrunesClosedConnections(t *testing.T) {
	registry := NewRegistry(nil)
	dead := newFakeConn("dead")
	registry.Add(dead, "sub-1", event.Filter{}, time.Now())
	dead.closed = true

	broadcaster := NewBroadcaster(registry, nil, nil)
	broadcaster.Publish(&event.Event{ID: "ev-1"})

	if len(dead.frames) != 0 {
		t.Fatalf("closed connection must not receive frames")
	}
	if registry.Len() != 0 {
		t.Fatalf("closed connection's subscriptions should be pruned, got %d", registry.Len())
	}
}

func TestPublishWithNoSubscribersIsNoOp(t *testing.T) {
	registry := NewRegistry(nil)
	broadcaster := NewBroadcaster(registry, nil, nil)
	broadcaster.Publish(&event.Event{ID: "ev-1"})
}
