package schema

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrTruncated the buffer ends before a declared value
var ErrTruncated = errors.New("schema: truncated buffer")

// Writer appends big-endian fixed width values to a buffer.
type Writer struct {
	buf []byte
}

// NewWriter appends to buf (may be nil)
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) PutUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) PutUint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) PutUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) PutUint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// PutBytes uint16 length prefix + bytes
func (w *Writer) PutBytes(b []byte) {
	w.PutUint16(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

// PutRaw appends b without prefix
func (w *Writer) PutRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

// SetUint16 overwrites a previously reserved uint16 at off
func (w *Writer) SetUint16(off int, v uint16) {
	binary.BigEndian.PutUint16(w.buf[off:], v)
}

// Reader consumes big-endian values. The first short read sets a sticky
// ErrTruncated and every later read returns zero values.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader 构造
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) Err() error     { return r.err }
func (r *Reader) Offset() int    { return r.off }
func (r *Reader) Remaining() int { return len(r.data) - r.off }

func (r *Reader) take(n int) []byte {
	if nil != r.err {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = errors.Wrapf(ErrTruncated, "need %d bytes at %d, have %d", n, r.off, len(r.data)-r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool {
	return r.Uint8() != 0
}

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Bytes reads a uint16 length prefixed value. The result aliases the input.
func (r *Reader) Bytes() []byte {
	n := int(r.Uint16())
	return r.take(n)
}

// Rest returns the unread remainder and consumes it.
func (r *Reader) Rest() []byte {
	if nil != r.err {
		return nil
	}
	b := r.data[r.off:]
	r.off = len(r.data)
	return b
}
