package search

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/cenkalti/soulseek/internal/protocol"
)

// File is one shared file entry inside a SearchResult, carrying an
// attribute map (bitrate, duration, ...) the same way the wire format
// does: a flat sequence of (attribute id, value) u32 pairs.
type File struct {
	Name       string
	Size       uint64
	Extension  string
	Attributes map[uint32]uint32
}

// SearchResult is one peer's reply to a FileSearch query.
type SearchResult struct {
	Token           uint32
	Username        string
	Files           []File
	FreeUploadSlots uint8
	AverageSpeed    uint32
	QueueLength     uint32
}

// ParseFileSearchResponse inflates the zlib-compressed Peer opcode 9
// payload and parses the embedded file list. The inflated bytes are
// re-read as a fresh Message with its own cursor, matching the codec's
// "compressed sub-frame" pattern: handlers that need to re-parse an
// inflated buffer do so as a second, independent Message.
func ParseFileSearchResponse(compressed []byte) (*SearchResult, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, protocol.Wrap(protocol.KindCompression, "zlib header", err)
	}
	defer zr.Close()
	inflated, err := io.ReadAll(zr)
	if err != nil {
		return nil, protocol.Wrap(protocol.KindCompression, "zlib inflate", err)
	}

	m := protocol.NewMessageFromBytes(inflated)
	username, err := m.ReadString()
	if err != nil {
		return nil, err
	}
	token := m.ReadUint32()
	numResults := m.ReadUint32()

	result := &SearchResult{
		Token:    token,
		Username: username,
		Files:    make([]File, 0, numResults),
	}
	for i := uint32(0); i < numResults; i++ {
		m.ReadUint8() // leading code byte, always 1
		name, err := m.ReadString()
		if err != nil {
			return nil, err
		}
		size := m.ReadUint64()
		ext, err := m.ReadString()
		if err != nil {
			return nil, err
		}
		numAttrs := m.ReadUint32()
		attrs := make(map[uint32]uint32, numAttrs)
		for a := uint32(0); a < numAttrs; a++ {
			id := m.ReadUint32()
			val := m.ReadUint32()
			attrs[id] = val
		}
		result.Files = append(result.Files, File{
			Name:       name,
			Size:       size,
			Extension:  ext,
			Attributes: attrs,
		})
	}
	result.FreeUploadSlots = m.ReadUint8()
	result.AverageSpeed = m.ReadUint32()
	result.QueueLength = m.ReadUint32()
	return result, nil
}
