package crdtcodec

import (
	"strconv"
	"strings"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
)

// The indexed-field codec keys the arena by one field per node, so it can be
// written directly into an external key-value store (§4.7). Unlike
// structural binary, child references are never inlined: every field holds
// exactly one node's own payload, with any children named by timestamp only
// — the reader resolves them by looking up their own field.
//
// Field keys are base36(session_index) + "_" + base36(time), session_index
// being the node id's position in the clock table. The literal text in
// spec.md doesn't say how to key a node whose id carries the reserved
// SidSystem session (the root Val register lives at common.Origin, which is
// exactly that) — there is no "index" for a session that was never ticked.
// This codec resolves it by reserving the "s_" prefix for SidSystem ids
// instead of a table index, so the root and any other system-sid id always
// round-trips through its own field. "c" (clock table) and "r" (root id, the
// value of ORIGIN — almost always itself, but explicit per spec.md) remain
// reserved as specified.
func fieldKey(table *common.ClockTable, id common.Timestamp) string {
	if id.Sid == common.SidSystem {
		return "s_" + strconv.FormatUint(id.Time, 36)
	}
	idx, ok := table.IndexOf(id.Sid)
	if !ok {
		idx = table.EnsureIndex(id.Sid, id.Time)
	}
	return strconv.FormatUint(uint64(idx), 36) + "_" + strconv.FormatUint(id.Time, 36)
}

func parseFieldKey(table *common.ClockTable, key string) (common.Timestamp, error) {
	if strings.HasPrefix(key, "s_") {
		t, err := strconv.ParseUint(key[2:], 36, 64)
		if err != nil {
			return common.Timestamp{}, common.ErrInvalidPayload{Message: "malformed indexed field key: " + key}
		}
		return common.Timestamp{Sid: common.SidSystem, Time: t}, nil
	}
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return common.Timestamp{}, common.ErrInvalidPayload{Message: "malformed indexed field key: " + key}
	}
	idx, err := strconv.ParseUint(parts[0], 36, 64)
	if err != nil {
		return common.Timestamp{}, common.ErrInvalidPayload{Message: "malformed indexed field key: " + key}
	}
	t, err := strconv.ParseUint(parts[1], 36, 64)
	if err != nil {
		return common.Timestamp{}, common.ErrInvalidPayload{Message: "malformed indexed field key: " + key}
	}
	sid, err := table.SidAt(int(idx))
	if err != nil {
		return common.Timestamp{}, err
	}
	return common.Timestamp{Sid: sid, Time: t}, nil
}

// EncodeIndexedField serialises m as one wire field per arena node.
func EncodeIndexedField(m *crdt.Model) (map[string][]byte, error) {
	table := common.NewClockTable(m.Clock)
	fields := make(map[string][]byte, m.Arena.Len()+2)
	for id, node := range m.Arena.Nodes() {
		w := NewWriter()
		if err := encodeIndexedNode(w, table, node); err != nil {
			return nil, err
		}
		fields[fieldKey(table, id)] = w.Out()
	}
	tableW := NewWriter()
	EncodeClockTable(tableW, table)
	fields["c"] = tableW.Out()
	rootW := NewWriter()
	EncodeRelative(rootW, table, common.Origin)
	fields["r"] = rootW.Out()
	return fields, nil
}

// DecodeIndexedField reconstructs a Model from fields written by
// EncodeIndexedField.
func DecodeIndexedField(fields map[string][]byte) (*crdt.Model, error) {
	tableBytes, ok := fields["c"]
	if !ok {
		return nil, common.ErrInvalidPayload{Message: "indexed fields missing \"c\" clock table"}
	}
	table, err := DecodeClockTable(NewReader(tableBytes))
	if err != nil {
		return nil, err
	}
	if _, ok := fields["r"]; !ok {
		return nil, common.ErrInvalidPayload{Message: "indexed fields missing \"r\" root id"}
	}

	arena := crdt.NewArena()
	for key, payload := range fields {
		if key == "c" || key == "r" {
			continue
		}
		id, err := parseFieldKey(table, key)
		if err != nil {
			return nil, err
		}
		if err := decodeIndexedNode(NewReader(payload), table, arena, id); err != nil {
			return nil, err
		}
	}

	var localSid uint64
	if table.Len() > 0 {
		localSid, _ = table.SidAt(0)
	}
	clock := common.NewClock(localSid)
	for _, e := range table.Entries {
		if e.Time > 0 {
			_ = clock.Observe(common.Timestamp{Sid: e.Sid, Time: 0}, e.Time)
		}
	}
	return &crdt.Model{Clock: clock, Arena: arena}, nil
}

func encodeIndexedNode(w *Writer, table *common.ClockTable, node crdt.Node) error {
	switch n := node.(type) {
	case *crdt.ConNode:
		if n.IsRef {
			WriteHeader(w, common.NodeCon, 1)
			EncodeRelative(w, table, n.Id)
			EncodeRelative(w, table, n.Ref)
			return nil
		}
		WriteHeader(w, common.NodeCon, 0)
		EncodeRelative(w, table, n.Id)
		leaf, err := EncodeLeaf(n.Value)
		if err != nil {
			return err
		}
		w.LenPrefixed(leaf)
		return nil

	case *crdt.ValNode:
		length := 0
		if !n.Val.IsOrigin() {
			length = 1
		}
		WriteHeader(w, common.NodeVal, length)
		EncodeRelative(w, table, n.Id)
		EncodeRelative(w, table, n.WriteID)
		if length == 1 {
			EncodeRelative(w, table, n.Val)
		}
		return nil

	case *crdt.ObjNode:
		keys := n.SortedKeys()
		WriteHeader(w, common.NodeObj, len(keys))
		EncodeRelative(w, table, n.Id)
		for _, k := range keys {
			e := n.Keys[k]
			w.LenPrefixed([]byte(k))
			EncodeRelative(w, table, e.WriteID)
			EncodeRelative(w, table, e.Value)
		}
		return nil

	case *crdt.VecNode:
		WriteHeader(w, common.NodeVec, n.Len())
		EncodeRelative(w, table, n.Id)
		for i := 0; i < n.Len(); i++ {
			v, present := n.Get(i)
			if !present {
				w.Byte(0)
				continue
			}
			w.Byte(1)
			EncodeRelative(w, table, n.Elements[i].WriteID)
			EncodeRelative(w, table, v)
		}
		return nil

	case *crdt.StrNode:
		chunks := n.RGA.Chunks()
		WriteHeader(w, common.NodeStr, len(chunks))
		EncodeRelative(w, table, n.Id)
		for _, c := range chunks {
			encodeChunkHeader(w, table, c.ID, c.Span, c.Deleted)
			if !c.Deleted {
				w.LenPrefixed([]byte(string(c.Data)))
			}
		}
		return nil

	case *crdt.BinNode:
		chunks := n.RGA.Chunks()
		WriteHeader(w, common.NodeBin, len(chunks))
		EncodeRelative(w, table, n.Id)
		for _, c := range chunks {
			encodeChunkHeader(w, table, c.ID, c.Span, c.Deleted)
			if !c.Deleted {
				w.LenPrefixed(c.Data)
			}
		}
		return nil

	case *crdt.ArrNode:
		chunks := n.RGA.Chunks()
		WriteHeader(w, common.NodeArr, len(chunks))
		EncodeRelative(w, table, n.Id)
		for _, c := range chunks {
			encodeChunkHeader(w, table, c.ID, c.Span, c.Deleted)
			if !c.Deleted {
				w.Varint(uint64(len(c.Data)))
				for _, ref := range c.Data {
					EncodeRelative(w, table, ref)
				}
			}
		}
		return nil
	}
	return common.ErrUnknownMajor{Major: byte(node.Kind())}
}

func decodeIndexedNode(r *Reader, table *common.ClockTable, arena *crdt.Arena, expectID common.Timestamp) error {
	major, length, err := ReadHeader(r)
	if err != nil {
		return err
	}
	id, err := DecodeRelative(r, table)
	if err != nil {
		return err
	}
	_ = expectID // the key already named this node; the payload's own id must agree
	switch major {
	case common.NodeCon:
		if length == 1 {
			ref, err := DecodeRelative(r, table)
			if err != nil {
				return err
			}
			arena.Put(&crdt.ConNode{Id: id, IsRef: true, Ref: ref})
			return nil
		}
		leaf, err := r.LenPrefixed()
		if err != nil {
			return err
		}
		value, err := DecodeLeaf(leaf)
		if err != nil {
			return err
		}
		arena.Put(&crdt.ConNode{Id: id, Value: value})
		return nil

	case common.NodeVal:
		writeID, err := DecodeRelative(r, table)
		if err != nil {
			return err
		}
		val := common.Origin
		if length == 1 {
			val, err = DecodeRelative(r, table)
			if err != nil {
				return err
			}
		}
		arena.Put(&crdt.ValNode{Id: id, Val: val, WriteID: writeID})
		return nil

	case common.NodeObj:
		order := make([]string, 0, length)
		values := make(map[string]common.Timestamp, length)
		writeIDs := make(map[string]common.Timestamp, length)
		for i := 0; i < length; i++ {
			kb, err := r.LenPrefixed()
			if err != nil {
				return err
			}
			writeID, err := DecodeRelative(r, table)
			if err != nil {
				return err
			}
			childID, err := DecodeRelative(r, table)
			if err != nil {
				return err
			}
			key := string(kb)
			order = append(order, key)
			values[key] = childID
			writeIDs[key] = writeID
		}
		arena.Put(crdt.NewObjNodeForDecode(id, order, values, writeIDs))
		return nil

	case common.NodeVec:
		values := make([]common.Timestamp, length)
		writeIDs := make([]common.Timestamp, length)
		present := make([]bool, length)
		for i := 0; i < length; i++ {
			flag, err := r.Byte()
			if err != nil {
				return err
			}
			if flag == 0 {
				continue
			}
			writeID, err := DecodeRelative(r, table)
			if err != nil {
				return err
			}
			childID, err := DecodeRelative(r, table)
			if err != nil {
				return err
			}
			values[i] = childID
			writeIDs[i] = writeID
			present[i] = true
		}
		arena.Put(crdt.NewVecNodeForDecode(id, values, writeIDs, present))
		return nil

	case common.NodeStr:
		rga := crdt.NewRGA[rune]()
		for i := 0; i < length; i++ {
			cid, span, deleted, err := decodeChunkHeader(r, table)
			if err != nil {
				return err
			}
			chunk := &crdt.Chunk[rune]{ID: cid, Span: span, Deleted: deleted}
			if !deleted {
				raw, err := r.LenPrefixed()
				if err != nil {
					return err
				}
				chunk.Data = []rune(string(raw))
			}
			rga.AppendChunk(chunk)
		}
		arena.Put(&crdt.StrNode{Id: id, RGA: rga})
		return nil

	case common.NodeBin:
		rga := crdt.NewRGA[byte]()
		for i := 0; i < length; i++ {
			cid, span, deleted, err := decodeChunkHeader(r, table)
			if err != nil {
				return err
			}
			chunk := &crdt.Chunk[byte]{ID: cid, Span: span, Deleted: deleted}
			if !deleted {
				raw, err := r.LenPrefixed()
				if err != nil {
					return err
				}
				chunk.Data = append([]byte(nil), raw...)
			}
			rga.AppendChunk(chunk)
		}
		arena.Put(&crdt.BinNode{Id: id, RGA: rga})
		return nil

	case common.NodeArr:
		rga := crdt.NewRGA[common.Timestamp]()
		for i := 0; i < length; i++ {
			cid, span, deleted, err := decodeChunkHeader(r, table)
			if err != nil {
				return err
			}
			chunk := &crdt.Chunk[common.Timestamp]{ID: cid, Span: span, Deleted: deleted}
			if !deleted {
				n, err := r.Varint()
				if err != nil {
					return err
				}
				data := make([]common.Timestamp, 0, n)
				for j := uint64(0); j < n; j++ {
					ref, err := DecodeRelative(r, table)
					if err != nil {
						return err
					}
					data = append(data, ref)
				}
				chunk.Data = data
			}
			rga.AppendChunk(chunk)
		}
		arena.Put(&crdt.ArrNode{Id: id, RGA: rga})
		return nil
	}
	return common.ErrUnknownMajor{Major: byte(major)}
}
