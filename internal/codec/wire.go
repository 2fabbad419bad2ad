// Package codec implements the bijective, length-agnostic record codec for
// the Concord wire protocol: fixed-width big-endian integers and
// length-prefixed byte blobs, composed into a typed sum of Event variants.
// Encoding is hand-rolled rather than reflection-based — allocation-light,
// explicit field assembly in the style of the teacher's protocol structs —
// so the contract in spec.md §4.1/§8 ("decode(encode(e)) == e", "no
// over-read on any prefix") is easy to reason about directly.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned (wrapped) whenever a decode would read past the
// end of the supplied bytes.
var ErrShortBuffer = errors.New("codec: short buffer")

// Writer accumulates an encoded record.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteU8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteU128 writes a 128-bit big-endian quantity as two uint64 halves.
func (w *Writer) WriteU128(hi, lo uint64) {
	w.WriteU64(hi)
	w.WriteU64(lo)
}

// WriteFixed writes b verbatim with no length prefix — used for fixed-width
// fields such as 32-byte public keys.
func (w *Writer) WriteFixed(b []byte) { w.buf = append(w.buf, b...) }

// WriteBytes writes a u64 length prefix followed by b.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU64(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString writes s as a length-prefixed UTF-8 blob.
func (w *Writer) WriteString(s string) { w.WriteBytes([]byte(s)) }

// WriteOptionalBytes writes a presence tag byte followed by the blob when
// present.
func (w *Writer) WriteOptionalBytes(b []byte, present bool) {
	w.WriteBool(present)
	if present {
		w.WriteBytes(b)
	}
}

// WriteOptionalString writes a presence tag byte followed by the string
// when present.
func (w *Writer) WriteOptionalString(s string, present bool) {
	w.WriteBool(present)
	if present {
		w.WriteString(s)
	}
}

// Reader consumes an encoded record, never reading past its end.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Remaining reports how many bytes have not yet been consumed.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("%w: need %d, have %d", ErrShortBuffer, n, r.Remaining())
	}
	return nil
}

func (r *Reader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	if v > 1 {
		return false, fmt.Errorf("codec: invalid bool tag %d", v)
	}
	return v == 1, nil
}

func (r *Reader) ReadU16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadU64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadU128 reads a 128-bit big-endian quantity as two uint64 halves.
func (r *Reader) ReadU128() (hi, lo uint64, err error) {
	if hi, err = r.ReadU64(); err != nil {
		return 0, 0, err
	}
	if lo, err = r.ReadU64(); err != nil {
		return 0, 0, err
	}
	return hi, lo, nil
}

// ReadFixed reads exactly n bytes verbatim.
func (r *Reader) ReadFixed(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// ReadBytes reads a u64-length-prefixed blob.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	return r.ReadFixed(int(n))
}

// ReadString reads a length-prefixed UTF-8 blob.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadOptionalBytes reads a presence tag byte and, if set, the blob.
func (r *Reader) ReadOptionalBytes() ([]byte, bool, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, false, err
	}
	b, err := r.ReadBytes()
	return b, true, err
}

// ReadOptionalString reads a presence tag byte and, if set, the string.
func (r *Reader) ReadOptionalString() (string, bool, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return "", false, err
	}
	s, err := r.ReadString()
	return s, true, err
}
