package crdtcodec

import "github.com/crdtkit/jsoncrdt/common"

// Relative timestamps encode a Timestamp against a ClockTable as
// (session_index, time_diff) where time_diff = base.time - stamp.time
// (§3.1, §4.1). Session index 0 is reserved to mean "system": a literal
// (sid, time) pair follows instead of a table lookup. A one-byte short form
// packs session_index in [0,6] (encoded as [1,7], 0 reserved for system)
// and time_diff in [0,15]; anything larger uses the long form, flagged by
// the reserved marker byte 0x80, followed by two vu57 fields.
const longFormMarker = 0x80

// EncodeRelative writes stamp relative to table, growing table with a fresh
// entry if stamp's session hasn't been seen yet.
func EncodeRelative(w *Writer, table *common.ClockTable, stamp common.Timestamp) {
	if stamp.Sid == common.SidSystem {
		w.Byte(longFormMarker)
		w.Varint(0)
		w.Varint(stamp.Sid)
		w.Varint(stamp.Time)
		return
	}
	idx, ok := table.IndexOf(stamp.Sid)
	if !ok {
		idx = table.EnsureIndex(stamp.Sid, stamp.Time)
	}
	base, _ := table.BaseTimeAt(idx)
	var diff uint64
	if base >= stamp.Time {
		diff = base - stamp.Time
	}
	encodedIdx := uint64(idx + 1)
	if encodedIdx <= 7 && diff <= 15 {
		w.Byte(byte(encodedIdx<<4 | diff))
		return
	}
	w.Byte(longFormMarker)
	w.Varint(encodedIdx)
	w.Varint(diff)
}

// DecodeRelative reads a relative timestamp against table.
func DecodeRelative(r *Reader, table *common.ClockTable) (common.Timestamp, error) {
	b, err := r.Byte()
	if err != nil {
		return common.Timestamp{}, err
	}
	if b != longFormMarker {
		encodedIdx := uint64(b>>4) & 0x7
		diff := uint64(b & 0x0F)
		if encodedIdx == 0 {
			return common.Timestamp{}, common.ErrInvalidSessionIndex{Index: 0}
		}
		idx := int(encodedIdx - 1)
		sid, err := table.SidAt(idx)
		if err != nil {
			return common.Timestamp{}, err
		}
		base, err := table.BaseTimeAt(idx)
		if err != nil {
			return common.Timestamp{}, err
		}
		return common.Timestamp{Sid: sid, Time: base - diff}, nil
	}
	encodedIdx, err := r.Varint()
	if err != nil {
		return common.Timestamp{}, err
	}
	if encodedIdx == 0 {
		sid, err := r.Varint()
		if err != nil {
			return common.Timestamp{}, err
		}
		t, err := r.Varint()
		if err != nil {
			return common.Timestamp{}, err
		}
		return common.Timestamp{Sid: sid, Time: t}, nil
	}
	diff, err := r.Varint()
	if err != nil {
		return common.Timestamp{}, err
	}
	idx := int(encodedIdx - 1)
	sid, err := table.SidAt(idx)
	if err != nil {
		return common.Timestamp{}, err
	}
	base, err := table.BaseTimeAt(idx)
	if err != nil {
		return common.Timestamp{}, err
	}
	return common.Timestamp{Sid: sid, Time: base - diff}, nil
}

// EncodeClockTable writes table as a flat [sid, time, sid, time, ...] vu57
// sequence preceded by its entry count (§3.1, §6.1).
func EncodeClockTable(w *Writer, table *common.ClockTable) {
	w.Varint(uint64(table.Len()))
	for _, e := range table.Entries {
		w.Varint(e.Sid)
		w.Varint(e.Time)
	}
}

// DecodeClockTable reads a table written by EncodeClockTable.
func DecodeClockTable(r *Reader) (*common.ClockTable, error) {
	n, err := r.Varint()
	if err != nil {
		return nil, err
	}
	table := &common.ClockTable{}
	for i := uint64(0); i < n; i++ {
		sid, err := r.Varint()
		if err != nil {
			return nil, err
		}
		t, err := r.Varint()
		if err != nil {
			return nil, err
		}
		table.EnsureIndex(sid, t)
	}
	return table, nil
}
