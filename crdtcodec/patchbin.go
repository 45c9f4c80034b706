package crdtcodec

import (
	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
	"github.com/crdtkit/jsoncrdt/crdtpatch"
)

// serverModeMarker flags a patch header carrying a literal server time
// rather than a clock-table-relative id (§4.5, §6.1). EncodeRelative's own
// output is never 0x81: its short form tops out at 0x7F (idx<<4|diff with
// idx<=7) and its long form is the single byte 0x80, so 0x81 is free to use
// as an unambiguous header tag distinct from both.
const serverModeMarker = 0x81

// EncodePatch writes p in the canonical patch binary wire format: a header
// carrying the first op's id, an op count, then the op stream itself, each
// op addressed by a one-byte opcode in [0,15] (§4.5). The same logical
// patch always produces the same bytes: compaction is the caller's choice,
// applied before encoding if desired, and is idempotent so re-encoding a
// compacted patch is stable.
func EncodePatch(p *crdtpatch.Patch, table *common.ClockTable) ([]byte, error) {
	w := NewWriter()
	id := p.ID()
	if id.Sid == common.SidServer {
		w.Byte(serverModeMarker)
		w.Varint(id.Time)
	} else {
		EncodeRelative(w, table, id)
	}
	w.Varint(uint64(len(p.Ops)))
	for _, op := range p.Ops {
		if err := encodeOp(w, table, op); err != nil {
			return nil, err
		}
	}
	return w.Out(), nil
}

// DecodePatch reads a patch written by EncodePatch.
func DecodePatch(data []byte, table *common.ClockTable) (*crdtpatch.Patch, error) {
	r := NewReader(data)
	marker, err := peekByte(r)
	if err != nil {
		return nil, err
	}
	var first common.Timestamp
	if marker == serverModeMarker {
		_, _ = r.Byte()
		t, err := r.Varint()
		if err != nil {
			return nil, err
		}
		first = common.Timestamp{Sid: common.SidServer, Time: t}
	} else {
		first, err = DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
	}
	count, err := r.Varint()
	if err != nil {
		return nil, err
	}
	ops := make([]crdtpatch.Op, 0, count)
	cursor := first
	for i := uint64(0); i < count; i++ {
		op, err := decodeOp(r, table, cursor)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		cursor = op.ID().Add(op.Span())
	}
	return &crdtpatch.Patch{Ops: ops}, nil
}

func peekByte(r *Reader) (byte, error) {
	if r.Remaining() < 1 {
		return 0, common.ErrEndOfInput{Context: "reading patch header"}
	}
	return r.buf[r.pos], nil
}

func encodeOpcode(w *Writer, kind common.OpKind) {
	w.Byte(byte(kind))
}

func decodeOpcode(r *Reader) (common.OpKind, error) {
	b, err := r.Byte()
	if err != nil {
		return 0, err
	}
	if b > byte(common.OpNop) {
		return common.OpUnknown, common.ErrUnknownOpcode{Opcode: b}
	}
	return common.OpKind(b), nil
}

func encodeOp(w *Writer, table *common.ClockTable, op crdtpatch.Op) error {
	switch o := op.(type) {
	case crdtpatch.NewConOp:
		encodeOpcode(w, common.OpNewCon)
		if o.IsRef {
			w.Byte(1)
			EncodeRelative(w, table, o.Ref)
			return nil
		}
		w.Byte(0)
		leaf, err := EncodeLeaf(o.Value)
		if err != nil {
			return err
		}
		w.LenPrefixed(leaf)
		return nil

	case crdtpatch.NewValOp:
		encodeOpcode(w, common.OpNewVal)
		return nil
	case crdtpatch.NewObjOp:
		encodeOpcode(w, common.OpNewObj)
		return nil
	case crdtpatch.NewVecOp:
		encodeOpcode(w, common.OpNewVec)
		return nil
	case crdtpatch.NewStrOp:
		encodeOpcode(w, common.OpNewStr)
		return nil
	case crdtpatch.NewBinOp:
		encodeOpcode(w, common.OpNewBin)
		return nil
	case crdtpatch.NewArrOp:
		encodeOpcode(w, common.OpNewArr)
		return nil

	case crdtpatch.InsValOp:
		encodeOpcode(w, common.OpInsVal)
		EncodeRelative(w, table, o.Obj)
		EncodeRelative(w, table, o.Val)
		return nil

	case crdtpatch.InsObjOp:
		encodeOpcode(w, common.OpInsObj)
		EncodeRelative(w, table, o.Obj)
		w.Varint(uint64(len(o.Pairs)))
		for _, p := range o.Pairs {
			w.LenPrefixed([]byte(p.Key))
			EncodeRelative(w, table, p.Value)
		}
		return nil

	case crdtpatch.InsVecOp:
		encodeOpcode(w, common.OpInsVec)
		EncodeRelative(w, table, o.Obj)
		w.Varint(uint64(len(o.Pairs)))
		for _, p := range o.Pairs {
			w.Varint(uint64(p.Index))
			EncodeRelative(w, table, p.Value)
		}
		return nil

	case crdtpatch.InsStrOp:
		encodeOpcode(w, common.OpInsStr)
		EncodeRelative(w, table, o.Obj)
		EncodeRelative(w, table, o.After)
		w.LenPrefixed([]byte(string(o.Data)))
		return nil

	case crdtpatch.InsBinOp:
		encodeOpcode(w, common.OpInsBin)
		EncodeRelative(w, table, o.Obj)
		EncodeRelative(w, table, o.After)
		w.LenPrefixed(o.Data)
		return nil

	case crdtpatch.InsArrOp:
		encodeOpcode(w, common.OpInsArr)
		EncodeRelative(w, table, o.Obj)
		EncodeRelative(w, table, o.After)
		w.Varint(uint64(len(o.Data)))
		for _, ref := range o.Data {
			EncodeRelative(w, table, ref)
		}
		return nil

	case crdtpatch.UpdArrOp:
		encodeOpcode(w, common.OpUpdArr)
		EncodeRelative(w, table, o.Obj)
		EncodeRelative(w, table, o.Ref)
		EncodeRelative(w, table, o.Val)
		return nil

	case crdtpatch.DelOp:
		encodeOpcode(w, common.OpDel)
		EncodeRelative(w, table, o.Obj)
		w.Varint(uint64(len(o.What)))
		for _, sp := range o.What {
			w.Varint(sp.Sid)
			w.Varint(sp.Time)
			w.Varint(sp.Length)
		}
		return nil

	case crdtpatch.NopOp:
		encodeOpcode(w, common.OpNop)
		w.Varint(o.Length)
		return nil
	}
	return common.ErrInvalidOperation{Message: "unknown op type in encodeOp"}
}

func decodeOp(r *Reader, table *common.ClockTable, id common.Timestamp) (crdtpatch.Op, error) {
	kind, err := decodeOpcode(r)
	if err != nil {
		return nil, err
	}
	switch kind {
	case common.OpNewCon:
		flag, err := r.Byte()
		if err != nil {
			return nil, err
		}
		if flag == 1 {
			ref, err := DecodeRelative(r, table)
			if err != nil {
				return nil, err
			}
			return crdtpatch.NewConOp{Id: id, IsRef: true, Ref: ref}, nil
		}
		leaf, err := r.LenPrefixed()
		if err != nil {
			return nil, err
		}
		value, err := DecodeLeaf(leaf)
		if err != nil {
			return nil, err
		}
		return crdtpatch.NewConOp{Id: id, Value: value}, nil

	case common.OpNewVal:
		return crdtpatch.NewValOp{Id: id}, nil
	case common.OpNewObj:
		return crdtpatch.NewObjOp{Id: id}, nil
	case common.OpNewVec:
		return crdtpatch.NewVecOp{Id: id}, nil
	case common.OpNewStr:
		return crdtpatch.NewStrOp{Id: id}, nil
	case common.OpNewBin:
		return crdtpatch.NewBinOp{Id: id}, nil
	case common.OpNewArr:
		return crdtpatch.NewArrOp{Id: id}, nil

	case common.OpInsVal:
		obj, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		val, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		return crdtpatch.InsValOp{Id: id, Obj: obj, Val: val}, nil

	case common.OpInsObj:
		obj, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		n, err := r.Varint()
		if err != nil {
			return nil, err
		}
		pairs := make([]crdt.ObjPair, 0, n)
		for i := uint64(0); i < n; i++ {
			kb, err := r.LenPrefixed()
			if err != nil {
				return nil, err
			}
			val, err := DecodeRelative(r, table)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, crdt.ObjPair{Key: string(kb), Value: val})
		}
		return crdtpatch.InsObjOp{Id: id, Obj: obj, Pairs: pairs}, nil

	case common.OpInsVec:
		obj, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		n, err := r.Varint()
		if err != nil {
			return nil, err
		}
		pairs := make([]crdt.VecPair, 0, n)
		for i := uint64(0); i < n; i++ {
			idx, err := r.Varint()
			if err != nil {
				return nil, err
			}
			val, err := DecodeRelative(r, table)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, crdt.VecPair{Index: int(idx), Value: val})
		}
		return crdtpatch.InsVecOp{Id: id, Obj: obj, Pairs: pairs}, nil

	case common.OpInsStr:
		obj, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		after, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		raw, err := r.LenPrefixed()
		if err != nil {
			return nil, err
		}
		return crdtpatch.InsStrOp{Id: id, Obj: obj, After: after, Data: []rune(string(raw))}, nil

	case common.OpInsBin:
		obj, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		after, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		raw, err := r.LenPrefixed()
		if err != nil {
			return nil, err
		}
		return crdtpatch.InsBinOp{Id: id, Obj: obj, After: after, Data: append([]byte(nil), raw...)}, nil

	case common.OpInsArr:
		obj, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		after, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		n, err := r.Varint()
		if err != nil {
			return nil, err
		}
		data := make([]common.Timestamp, 0, n)
		for i := uint64(0); i < n; i++ {
			ref, err := DecodeRelative(r, table)
			if err != nil {
				return nil, err
			}
			data = append(data, ref)
		}
		return crdtpatch.InsArrOp{Id: id, Obj: obj, After: after, Data: data}, nil

	case common.OpUpdArr:
		obj, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		ref, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		val, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		return crdtpatch.UpdArrOp{Id: id, Obj: obj, Ref: ref, Val: val}, nil

	case common.OpDel:
		obj, err := DecodeRelative(r, table)
		if err != nil {
			return nil, err
		}
		n, err := r.Varint()
		if err != nil {
			return nil, err
		}
		spans := make([]crdt.Span, 0, n)
		for i := uint64(0); i < n; i++ {
			sid, err := r.Varint()
			if err != nil {
				return nil, err
			}
			t, err := r.Varint()
			if err != nil {
				return nil, err
			}
			length, err := r.Varint()
			if err != nil {
				return nil, err
			}
			spans = append(spans, crdt.Span{Sid: sid, Time: t, Length: length})
		}
		return crdtpatch.DelOp{Id: id, Obj: obj, What: spans}, nil

	case common.OpNop:
		length, err := r.Varint()
		if err != nil {
			return nil, err
		}
		return crdtpatch.NopOp{Id: id, Length: length}, nil
	}
	return nil, common.ErrUnknownOpcode{Opcode: byte(kind)}
}
