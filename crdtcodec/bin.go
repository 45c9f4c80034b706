// Package crdtcodec implements the wire codecs: vu57 and relative-timestamp
// primitives shared by every shape, the canonical patch binary codec, and
// the four structural codecs (structural binary, compact JSON, sidecar,
// indexed-field) described in §4.5-§4.7 and §6.1.
package crdtcodec

import (
	"bytes"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"
)

// Writer accumulates a binary codec output. It is the single byte-writer
// primitive every codec in this package builds on (§9: "factor these as
// pure byte writers/readers reused across all four codecs").
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Byte appends a single raw byte.
func (w *Writer) Byte(b byte) { w.buf.WriteByte(b) }

// Bytes appends a raw byte run with no length prefix.
func (w *Writer) Bytes(b []byte) { w.buf.Write(b) }

// Varint appends x as a vu57 variable-length unsigned integer.
func (w *Writer) Varint(x uint64) { w.buf.Write(varint.ToUvarint(x)) }

// LenPrefixed appends a vu57 length followed by the raw bytes.
func (w *Writer) LenPrefixed(b []byte) {
	w.Varint(uint64(len(b)))
	w.buf.Write(b)
}

// Out returns the accumulated output.
func (w *Writer) Out() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

// Reader consumes a binary codec input, tracking position for error
// messages and truncation checks.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Byte reads one raw byte.
func (r *Reader) Byte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, common.ErrEndOfInput{Context: "reading byte"}
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// Bytes reads exactly n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, common.ErrTruncated{Want: n, Have: r.Remaining()}
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Varint reads a vu57 variable-length unsigned integer.
func (r *Reader) Varint() (uint64, error) {
	x, n, err := varint.FromUvarint(r.buf[r.pos:])
	if err != nil {
		return 0, errors.Wrap(err, "reading varint")
	}
	r.pos += n
	return x, nil
}

// LenPrefixed reads a vu57 length followed by that many raw bytes.
func (r *Reader) LenPrefixed() ([]byte, error) {
	n, err := r.Varint()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

// ReadByte implements io.ByteReader so *Reader can be handed directly to
// consumers that expect one.
func (r *Reader) ReadByte() (byte, error) { return r.Byte() }
