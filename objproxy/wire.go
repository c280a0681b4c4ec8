package objproxy

import (
	"encoding/binary"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// wireWriter accumulates the bytes of a single frame payload. Scalars are
// little-endian throughout, matching the frame length header's own
// endianness.
type wireWriter struct {
	buf []byte
}

func newWireWriter() *wireWriter { return &wireWriter{buf: make([]byte, 0, 256)} }

func (w *wireWriter) Bytes() []byte { return w.buf }

func (w *wireWriter) writeByte(b byte) { w.buf = append(w.buf, b) }

func (w *wireWriter) writeBool(b bool) {
	if b {
		w.writeByte(1)
	} else {
		w.writeByte(0)
	}
}

func (w *wireWriter) writeInt16(v int16)   { w.writeUint16(uint16(v)) }
func (w *wireWriter) writeUint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *wireWriter) writeInt32(v int32)   { w.writeUint32(uint32(v)) }
func (w *wireWriter) writeUint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *wireWriter) writeInt64(v int64)   { w.writeUint64(uint64(v)) }
func (w *wireWriter) writeUint64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

// writeVarint appends an unsigned base-128 "7-bit-encoded length" prefix.
// protowire's unsigned varint is exactly that continuation-bit scheme, so
// we reuse it rather than hand-rolling one (see DESIGN.md's domain-stack
// entry for ValueSerializer).
func (w *wireWriter) writeVarint(v uint64) {
	w.buf = protowire.AppendVarint(w.buf, v)
}

func (w *wireWriter) writeRawBytes(b []byte) {
	w.writeVarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *wireWriter) writeString(s string) {
	w.writeRawBytes([]byte(s))
}

// wireReader walks a decoded frame payload. All reads are bounds-checked;
// malformed input surfaces as ErrSerialization rather than a panic.
type wireReader struct {
	buf []byte
	pos int
}

func newWireReader(buf []byte) *wireReader { return &wireReader{buf: buf} }

func (r *wireReader) remaining() int { return len(r.buf) - r.pos }

func (r *wireReader) need(n int) error {
	if r.remaining() < n {
		return wrapf(ErrSerialization, "unexpected end of frame (need %d, have %d)", n, r.remaining())
	}
	return nil
}

func (r *wireReader) readByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *wireReader) readBool() (bool, error) {
	b, err := r.readByte()
	return b != 0, err
}

func (r *wireReader) readUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}
func (r *wireReader) readInt16() (int16, error) { v, err := r.readUint16(); return int16(v), err }

func (r *wireReader) readUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}
func (r *wireReader) readInt32() (int32, error) { v, err := r.readUint32(); return int32(v), err }

func (r *wireReader) readUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}
func (r *wireReader) readInt64() (int64, error) { v, err := r.readUint64(); return int64(v), err }

func (r *wireReader) readVarint() (uint64, error) {
	v, n := protowire.ConsumeVarint(r.buf[r.pos:])
	if n < 0 {
		return 0, wrapf(ErrSerialization, "malformed varint length prefix")
	}
	r.pos += n
	return v, nil
}

func (r *wireReader) readRawBytes() ([]byte, error) {
	n, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *wireReader) readString() (string, error) {
	b, err := r.readRawBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeFrame writes the 4-byte little-endian length header followed by
// payload to w. Callers serialize writes to w themselves via a
// single-holder lock.
func writeFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}
