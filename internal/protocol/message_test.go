package protocol

import "testing"

func TestWriteBuffer(t *testing.T) {
	m := NewMessage(ServerLogin, true)
	m.WriteString("user")
	buf := m.Buffer()

	if len(buf) != 4+4+4+4 {
		t.Fatalf("unexpected buffer length: %d", len(buf))
	}
	if buf[4] != ServerLogin {
		t.Fatalf("expected opcode byte %d, got %d", ServerLogin, buf[4])
	}
}

func TestReadString(t *testing.T) {
	m := &Message{}
	m.WriteString("username")
	parsed := NewMessageFromBytes(m.Slice())
	s, err := parsed.ReadString()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "username" {
		t.Fatalf("expected %q, got %q", "username", s)
	}
}

func TestReadStringEmpty(t *testing.T) {
	m := &Message{}
	m.WriteString("")
	parsed := NewMessageFromBytes(m.Slice())
	s, err := parsed.ReadString()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "" {
		t.Fatalf("expected empty string, got %q", s)
	}
}

func TestReadStringInvalidUTF8(t *testing.T) {
	m := &Message{}
	m.WriteUint32(2)
	m.WriteRaw([]byte{0xff, 0xfe})
	parsed := NewMessageFromBytes(m.Slice())
	_, err := parsed.ReadString()
	if err == nil {
		t.Fatal("expected an error for invalid utf-8, got none")
	}
	if !Is(err, KindInvalidMessage) {
		t.Fatalf("expected KindInvalidMessage, got %v", err)
	}
}

func TestFixedWidthReadPastEOFReturnsZero(t *testing.T) {
	m := NewMessageFromBytes([]byte{1, 2})
	if v := m.ReadUint32(); v != 0 {
		t.Fatalf("expected 0 past EOF, got %d", v)
	}
}

func TestMessageCode(t *testing.T) {
	m := NewMessage(ServerFileSearch, true)
	if m.MessageCode(true) != ServerFileSearch {
		t.Fatalf("expected %d, got %d", ServerFileSearch, m.MessageCode(true))
	}
}
