package protocol

import "testing"

func TestExtractMessageAcrossPacketBoundaries(t *testing.T) {
	full := []byte{0x08, 0x00, 0x00, 0x00, 0x75, 0x73, 0x65, 0x72, 0x6e, 0x61, 0x6d, 0x65}
	chunks := [][]byte{
		full[0:2],
		full[2:5],
		full[5:12],
	}

	r := NewFrameReader()
	for _, c := range chunks[:2] {
		r.Feed(c)
		_, ok, err := r.ExtractMessage()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatal("expected incomplete frame to return ok=false")
		}
	}

	r.Feed(chunks[2])
	payload, ok, err := r.ExtractMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a complete frame once all bytes arrive")
	}
	if string(payload) != "username" {
		t.Fatalf("expected payload %q, got %q", "username", payload)
	}
	if r.Len() != 0 {
		t.Fatalf("expected reader to be drained, got %d leftover bytes", r.Len())
	}
}

func TestExtractMessageRejectsOversizedLength(t *testing.T) {
	r := NewFrameReader()
	r.Feed([]byte{0xff, 0xff, 0xff, 0x7f})
	_, _, err := r.ExtractMessage()
	if !Is(err, KindInvalidMessage) {
		t.Fatalf("expected KindInvalidMessage for oversized length, got %v", err)
	}
}

func TestExtractMessageLeavesBufferUntouchedWhenIncomplete(t *testing.T) {
	r := NewFrameReader()
	r.Feed([]byte{0x05, 0x00, 0x00, 0x00, 0x01})
	before := r.Len()
	_, ok, err := r.ExtractMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected incomplete frame")
	}
	if r.Len() != before {
		t.Fatalf("expected buffer unchanged, was %d now %d", before, r.Len())
	}
}
