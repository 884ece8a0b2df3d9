package protocol

import (
	"encoding/binary"
	"io"
)

// maxFrameLength caps the accepted payload length to guard against a
// corrupt or hostile length prefix turning into an unbounded allocation.
const maxFrameLength = 16 * 1024 * 1024

// readChunkSize is how many bytes FrameReader pulls from the socket in a
// single ReadFromSocket call.
const readChunkSize = 1024

// FrameReader buffers partial socket reads and extracts complete,
// length-prefixed frames. ReadFromSocket blocks only as long as the
// underlying reader does, so callers use a deadline-bound reader and
// treat a timeout error as "nothing available this tick".
type FrameReader struct {
	buf []byte
}

// NewFrameReader returns an empty reader.
func NewFrameReader() *FrameReader {
	return &FrameReader{}
}

// ReadFromSocket pulls up to readChunkSize bytes from r and appends them
// to the internal queue. It returns the number of bytes read and the
// reader's error unchanged; against a deadline-bound reader, a zero count
// with a timeout error means nothing arrived before the deadline.
func (f *FrameReader) ReadFromSocket(r io.Reader) (int, error) {
	var chunk [readChunkSize]byte
	n, err := r.Read(chunk[:])
	if n > 0 {
		f.buf = append(f.buf, chunk[:n]...)
	}
	return n, err
}

// Feed appends bytes directly to the queue, used when handing off
// residual bytes from one owner to the next (double-dispatch connection
// classification).
func (f *FrameReader) Feed(b []byte) {
	f.buf = append(f.buf, b...)
}

// Len reports how many unconsumed bytes remain queued.
func (f *FrameReader) Len() int { return len(f.buf) }

// Drain removes and returns every byte currently queued, leaving the
// reader empty. Used to hand off residual bytes to a new connection
// owner.
func (f *FrameReader) Drain() []byte {
	b := f.buf
	f.buf = nil
	return b
}

// ExtractMessage consumes exactly 4+length bytes from the front of the
// queue and returns the payload (opcode+body, length prefix stripped) if
// a complete frame is available. ok is false if fewer than 4 bytes, or
// fewer than 4+length bytes, are buffered yet — the queue is left
// untouched in that case. err is non-nil only for a pathological length
// prefix exceeding maxFrameLength.
func (f *FrameReader) ExtractMessage() (payload []byte, ok bool, err error) {
	if len(f.buf) < 4 {
		return nil, false, nil
	}
	length := binary.LittleEndian.Uint32(f.buf[0:4])
	if length > maxFrameLength {
		return nil, false, Wrap(KindInvalidMessage, "frame length exceeds maximum", nil)
	}
	total := 4 + int(length)
	if len(f.buf) < total {
		return nil, false, nil
	}
	payload = make([]byte, length)
	copy(payload, f.buf[4:total])
	f.buf = f.buf[total:]
	return payload, true, nil
}
