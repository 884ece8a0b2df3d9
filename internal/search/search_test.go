package search

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/cenkalti/soulseek/internal/protocol"
)

func TestTokenDerivation(t *testing.T) {
	tok := Token("a test query")
	if tok == 0 {
		t.Fatal("expected a non-zero token")
	}
	if Token("a test query") != tok {
		t.Fatal("expected token derivation to be deterministic")
	}
	if Token("a different query") == tok {
		t.Fatal("expected different queries to (almost always) get different tokens")
	}
}

func buildCompressedResponse(username string, token uint32, files []File) []byte {
	m := &protocol.Message{}
	m.WriteString(username)
	m.WriteUint32(token)
	m.WriteUint32(uint32(len(files)))
	for _, f := range files {
		m.WriteUint8(1)
		m.WriteString(f.Name)
		m.WriteUint64(f.Size)
		m.WriteString(f.Extension)
		m.WriteUint32(uint32(len(f.Attributes)))
		for id, val := range f.Attributes {
			m.WriteUint32(id)
			m.WriteUint32(val)
		}
	}
	m.WriteUint8(3)
	m.WriteUint32(1000)
	m.WriteUint32(0)

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(m.Slice())
	zw.Close()
	return buf.Bytes()
}

func TestParseFileSearchResponse(t *testing.T) {
	files := []File{
		{Name: "Trussel-1979-Gone For The Weekend-16bit-44,1Khz.flac", Size: 47184516, Attributes: map[uint32]uint32{}},
		{Name: "other.mp3", Size: 123456, Attributes: map[uint32]uint32{1: 320}},
	}
	compressed := buildCompressedResponse("dodigan", 882125677, files)

	result, err := ParseFileSearchResponse(compressed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Token != 882125677 {
		t.Fatalf("expected token 882125677, got %d", result.Token)
	}
	if result.Username != "dodigan" {
		t.Fatalf("expected username dodigan, got %s", result.Username)
	}
	if len(result.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(result.Files))
	}
	if result.Files[0].Name != files[0].Name {
		t.Fatalf("expected first filename to match, got %s", result.Files[0].Name)
	}
	if result.Files[0].Size != 47184516 {
		t.Fatalf("expected size 47184516, got %d", result.Files[0].Size)
	}
	if result.FreeUploadSlots != 3 {
		t.Fatalf("expected free upload slots 3, got %d", result.FreeUploadSlots)
	}
}
