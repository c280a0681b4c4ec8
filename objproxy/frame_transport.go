package objproxy

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// frameTransport reads and writes length-prefixed frames on a single
// underlying stream. Writes are serialized by a single-holder
// lock so concurrent senders never interleave a payload; reads are strictly
// sequential, matching the receive loop's own single-goroutine drain.
//
// The framing shape (uint32 little-endian length, then exactly that many
// payload bytes) follows the same read-header-then-read-payload loop this
// package's ancestor project used for its own tunnel protocol, just without
// that project's protobuf payload schema -- see DESIGN.md.
type frameTransport struct {
	conn   io.ReadWriteCloser
	logger Logger

	writeMu sync.Mutex

	maxFrameSize int
	bufPool      sync.Pool

	closeOnce sync.Once
	closeErr  error
}

func newFrameTransport(conn io.ReadWriteCloser, logger Logger, maxFrameSize int) *frameTransport {
	return &frameTransport{conn: conn, logger: logger, maxFrameSize: maxFrameSize}
}

// writeFrame sends one payload as a single frame. Safe for concurrent use.
func (t *frameTransport) writeFrame(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return writeFrame(t.conn, payload)
}

// readFrame blocks for the next frame on the stream, returning its payload
// and a release func that must be called once the handler is done decoding
// it, returning the buffer to a shared pool.
// Not safe for concurrent use -- the receive loop is this transport's sole
// reader.
func (t *frameTransport) readFrame() (payload []byte, release func(), err error) {
	var hdr [4]byte
	if _, err = io.ReadFull(t.conn, hdr[:]); err != nil {
		return nil, nil, err
	}
	n := int(binary.LittleEndian.Uint32(hdr[:]))
	if t.maxFrameSize > 0 && n > t.maxFrameSize {
		return nil, nil, fmt.Errorf("objproxy: frame of %d bytes exceeds configured maximum %d", n, t.maxFrameSize)
	}
	buf := t.getBuf(n)
	if n > 0 {
		if _, err = io.ReadFull(t.conn, buf); err != nil {
			return nil, nil, err
		}
	}
	return buf, func() { t.putBuf(buf) }, nil
}

func (t *frameTransport) getBuf(n int) []byte {
	if v := t.bufPool.Get(); v != nil {
		b := v.([]byte)
		if cap(b) >= n {
			return b[:n]
		}
	}
	return make([]byte, n)
}

func (t *frameTransport) putBuf(b []byte) {
	t.bufPool.Put(b[:0]) //nolint:staticcheck // pool stores reusable backing arrays
}

// close shuts down the underlying stream. Idempotent; returns the first
// Close error observed.
func (t *frameTransport) close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
