package peer

import "testing"

type fakeHandle struct {
	id      int
	stopped *bool
}

func (f fakeHandle) Stop() {
	if f.stopped != nil {
		*f.stopped = true
	}
}

func TestRegistryUniqueness(t *testing.T) {
	r := NewRegistry[fakeHandle]()
	stoppedFirst := false
	r.Register("alice", fakeHandle{id: 1, stopped: &stoppedFirst})
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
	r.Register("alice", fakeHandle{id: 2})
	if r.Count() != 1 {
		t.Fatalf("expected count to remain 1 after replace, got %d", r.Count())
	}
	if !stoppedFirst {
		t.Fatal("expected the replaced handle to be stopped")
	}
	h, ok := r.Get("alice")
	if !ok || h.id != 2 {
		t.Fatalf("expected the newest handle to be registered, got %+v ok=%v", h, ok)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry[fakeHandle]()
	r.Register("bob", fakeHandle{id: 1})
	r.Remove("bob")
	if r.Contains("bob") {
		t.Fatal("expected bob to be removed")
	}
	if r.Count() != 0 {
		t.Fatalf("expected count 0, got %d", r.Count())
	}
}
