package connstate

import (
	"testing"
	"time"
)

func TestQueueingDiscipline(t *testing.T) {
	m := New[int]()
	now := time.Now()
	m.BeginConnecting(now)

	m.Enqueue(1)
	m.Enqueue(2)
	m.Enqueue(3)

	if m.IsConnected() {
		t.Fatal("expected not connected yet")
	}

	flushed := m.Connect()
	if len(flushed) != 3 || flushed[0] != 1 || flushed[1] != 2 || flushed[2] != 3 {
		t.Fatalf("expected queued messages flushed in order, got %v", flushed)
	}
	if !m.IsConnected() {
		t.Fatal("expected Connected after Connect()")
	}
}

func TestConnectingTimeout(t *testing.T) {
	m := New[int]()
	start := time.Now().Add(-21 * time.Second)
	m.BeginConnecting(start)
	if !m.TimedOut(time.Now()) {
		t.Fatal("expected Connecting for 21s to be timed out")
	}
}
