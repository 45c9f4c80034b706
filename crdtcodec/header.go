package crdtcodec

import "github.com/crdtkit/jsoncrdt/common"

// lengthExtended is the length_inline sentinel signalling a vu57 length
// follows the header byte (§6.1).
const lengthExtended = 31

// WriteHeader writes a structural node header: (major << 5) | length_inline,
// with an extended vu57 form for length >= 31.
func WriteHeader(w *Writer, major common.NodeType, length int) {
	if length < lengthExtended {
		w.Byte(byte(major)<<5 | byte(length))
		return
	}
	w.Byte(byte(major)<<5 | lengthExtended)
	w.Varint(uint64(length))
}

// ReadHeader reads a structural node header.
func ReadHeader(r *Reader) (common.NodeType, int, error) {
	b, err := r.Byte()
	if err != nil {
		return 0, 0, err
	}
	major := b >> 5
	if major > byte(common.NodeArr) {
		return 0, 0, common.ErrUnknownMajor{Major: major}
	}
	li := b & 0x1F
	if li != lengthExtended {
		return common.NodeType(major), int(li), nil
	}
	v, err := r.Varint()
	if err != nil {
		return 0, 0, err
	}
	return common.NodeType(major), int(v), nil
}
