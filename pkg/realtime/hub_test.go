package realtime

import "testing"

func TestHubBroadcastDropsForSlowListeners(t *testing.T) {
	h := NewHub(1)
	id, ch := h.Register()
	defer h.Unregister(id)

	if n := h.Broadcast(Event{Type: EventGeometry}); n != 1 {
		t.Fatalf("first broadcast delivered to %d", n)
	}
	if n := h.Broadcast(Event{Type: EventGeometry}); n != 0 {
		t.Fatalf("full listener should miss the event, delivered to %d", n)
	}
	if ev := <-ch; ev.Type != EventGeometry {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestHubUnregisterClosesChannel(t *testing.T) {
	h := NewHub(0)
	id, ch := h.Register()
	if h.Size() != 1 {
		t.Fatalf("size %d", h.Size())
	}
	h.Unregister(id)
	h.Unregister(id)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed")
	}
	if h.Size() != 0 {
		t.Fatalf("size %d", h.Size())
	}
}
