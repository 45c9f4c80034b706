package crdtcodec

import (
	"encoding/base64"
	"encoding/json"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
)

// Structural compact is the same depth-first tree as structural binary, but
// expressed as nested JSON arrays instead of a byte stream (§4.7). A
// relative timestamp becomes the two-element array [-(index+1), time_diff]
// (index negated so it can never collide with a literal non-negative
// server-mode integer); the system sentinel becomes [0, sid, time]; a
// server-mode timestamp is a single non-negative JSON number (the raw
// server time offset). The document is `[clockTable, root]`, clockTable
// itself a flat array of [sid, time] pairs with index 0 first.

func compactEncodeTimestamp(table *common.ClockTable, stamp common.Timestamp) interface{} {
	if stamp.Sid == common.SidSystem {
		return []interface{}{float64(0), float64(stamp.Sid), float64(stamp.Time)}
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
	return []interface{}{-float64(idx + 1), float64(diff)}
}

func compactDecodeTimestamp(table *common.ClockTable, raw interface{}) (common.Timestamp, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) < 2 {
		return common.Timestamp{}, common.ErrInvalidPayload{Message: "malformed compact timestamp"}
	}
	tag, ok := arr[0].(float64)
	if !ok {
		return common.Timestamp{}, common.ErrInvalidPayload{Message: "compact timestamp tag not numeric"}
	}
	if tag == 0 && len(arr) == 3 {
		sid, _ := arr[1].(float64)
		t, _ := arr[2].(float64)
		return common.Timestamp{Sid: uint64(sid), Time: uint64(t)}, nil
	}
	idx := int(-tag) - 1
	diff, _ := arr[1].(float64)
	sid, err := table.SidAt(idx)
	if err != nil {
		return common.Timestamp{}, err
	}
	base, err := table.BaseTimeAt(idx)
	if err != nil {
		return common.Timestamp{}, err
	}
	return common.Timestamp{Sid: sid, Time: base - uint64(diff)}, nil
}

// EncodeStructuralCompact renders m as the nested-array JSON form (§4.7).
func EncodeStructuralCompact(m *crdt.Model) ([]byte, error) {
	table := common.NewClockTable(m.Clock)
	root, err := compactEncodeNode(table, m.Arena, common.Origin)
	if err != nil {
		return nil, err
	}
	clockArr := make([]interface{}, 0, table.Len())
	for _, e := range table.Entries {
		clockArr = append(clockArr, []interface{}{float64(e.Sid), float64(e.Time)})
	}
	return json.Marshal([]interface{}{clockArr, root})
}

// DecodeStructuralCompact parses bytes written by EncodeStructuralCompact.
func DecodeStructuralCompact(data []byte) (*crdt.Model, error) {
	var doc []interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, common.ErrInvalidPayload{Message: err.Error()}
	}
	if len(doc) != 2 {
		return nil, common.ErrInvalidPayload{Message: "compact document must be [clockTable, root]"}
	}
	clockArr, ok := doc[0].([]interface{})
	if !ok {
		return nil, common.ErrInvalidPayload{Message: "compact clock table malformed"}
	}
	table := &common.ClockTable{}
	for _, raw := range clockArr {
		pair, ok := raw.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, common.ErrInvalidPayload{Message: "compact clock entry malformed"}
		}
		sid, _ := pair[0].(float64)
		t, _ := pair[1].(float64)
		table.EnsureIndex(uint64(sid), uint64(t))
	}
	arena := crdt.NewArena()
	if _, err := compactDecodeNode(table, arena, doc[1]); err != nil {
		return nil, err
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

func compactEncodeNode(table *common.ClockTable, arena *crdt.Arena, id common.Timestamp) (interface{}, error) {
	node, ok := arena.Get(id)
	if !ok {
		return nil, common.ErrNodeNotFound{ID: id}
	}
	idRel := compactEncodeTimestamp(table, id)
	switch n := node.(type) {
	case *crdt.ConNode:
		if n.IsRef {
			return []interface{}{float64(common.NodeCon), idRel, float64(1), compactEncodeTimestamp(table, n.Ref)}, nil
		}
		return []interface{}{float64(common.NodeCon), idRel, float64(0), n.Value}, nil

	case *crdt.ValNode:
		writeRel := compactEncodeTimestamp(table, n.WriteID)
		if n.Val.IsOrigin() {
			return []interface{}{float64(common.NodeVal), idRel, writeRel, nil}, nil
		}
		child, err := compactEncodeNode(table, arena, n.Val)
		if err != nil {
			return nil, err
		}
		return []interface{}{float64(common.NodeVal), idRel, writeRel, child}, nil

	case *crdt.ObjNode:
		keys := n.SortedKeys()
		fields := make([]interface{}, 0, len(keys))
		for _, k := range keys {
			e := n.Keys[k]
			child, err := compactEncodeNode(table, arena, e.Value)
			if err != nil {
				return nil, err
			}
			fields = append(fields, []interface{}{k, compactEncodeTimestamp(table, e.WriteID), child})
		}
		return []interface{}{float64(common.NodeObj), idRel, fields}, nil

	case *crdt.VecNode:
		fields := make([]interface{}, n.Len())
		for i := 0; i < n.Len(); i++ {
			v, present := n.Get(i)
			if !present {
				fields[i] = []interface{}{float64(0), nil, nil}
				continue
			}
			child, err := compactEncodeNode(table, arena, v)
			if err != nil {
				return nil, err
			}
			fields[i] = []interface{}{float64(1), compactEncodeTimestamp(table, n.Elements[i].WriteID), child}
		}
		return []interface{}{float64(common.NodeVec), idRel, fields}, nil

	case *crdt.StrNode:
		chunks := compactEncodeChunks(table, n.RGA.Chunks(), func(data []rune) interface{} {
			return string(data)
		})
		return []interface{}{float64(common.NodeStr), idRel, chunks}, nil

	case *crdt.BinNode:
		chunks := compactEncodeChunks(table, n.RGA.Chunks(), func(data []byte) interface{} {
			return base64.StdEncoding.EncodeToString(data)
		})
		return []interface{}{float64(common.NodeBin), idRel, chunks}, nil

	case *crdt.ArrNode:
		fields := make([]interface{}, 0, n.RGA.ChunkCount())
		for _, c := range n.RGA.Chunks() {
			entry := []interface{}{boolByte(c.Deleted), compactEncodeTimestamp(table, c.ID), float64(c.Span)}
			if !c.Deleted {
				children := make([]interface{}, 0, len(c.Data))
				for _, ref := range c.Data {
					child, err := compactEncodeNode(table, arena, ref)
					if err != nil {
						return nil, err
					}
					children = append(children, child)
				}
				entry = append(entry, children)
			} else {
				entry = append(entry, nil)
			}
			fields = append(fields, entry)
		}
		return []interface{}{float64(common.NodeArr), idRel, fields}, nil
	}
	return nil, common.ErrUnknownMajor{Major: byte(node.Kind())}
}

func boolByte(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func compactEncodeChunks[T any](table *common.ClockTable, chunks []*crdt.Chunk[T], payload func([]T) interface{}) []interface{} {
	out := make([]interface{}, 0, len(chunks))
	for _, c := range chunks {
		entry := []interface{}{boolByte(c.Deleted), compactEncodeTimestamp(table, c.ID), float64(c.Span)}
		if c.Deleted {
			entry = append(entry, nil)
		} else {
			entry = append(entry, payload(c.Data))
		}
		out = append(out, entry)
	}
	return out
}

func compactDecodeNode(table *common.ClockTable, arena *crdt.Arena, raw interface{}) (common.Timestamp, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) < 3 {
		return common.Timestamp{}, common.ErrInvalidPayload{Message: "malformed compact node"}
	}
	majorF, ok := arr[0].(float64)
	if !ok {
		return common.Timestamp{}, common.ErrInvalidPayload{Message: "compact node major not numeric"}
	}
	major := common.NodeType(majorF)
	id, err := compactDecodeTimestamp(table, arr[1])
	if err != nil {
		return common.Timestamp{}, err
	}
	switch major {
	case common.NodeCon:
		flag, _ := arr[2].(float64)
		if flag == 1 {
			ref, err := compactDecodeTimestamp(table, arr[3])
			if err != nil {
				return id, err
			}
			arena.Put(&crdt.ConNode{Id: id, IsRef: true, Ref: ref})
			return id, nil
		}
		arena.Put(&crdt.ConNode{Id: id, Value: arr[3]})
		return id, nil

	case common.NodeVal:
		writeID, err := compactDecodeTimestamp(table, arr[2])
		if err != nil {
			return id, err
		}
		val := common.Origin
		if len(arr) > 3 && arr[3] != nil {
			val, err = compactDecodeNode(table, arena, arr[3])
			if err != nil {
				return id, err
			}
		}
		arena.Put(&crdt.ValNode{Id: id, Val: val, WriteID: writeID})
		return id, nil

	case common.NodeObj:
		fields, _ := arr[2].([]interface{})
		order := make([]string, 0, len(fields))
		values := make(map[string]common.Timestamp, len(fields))
		writeIDs := make(map[string]common.Timestamp, len(fields))
		for _, raw := range fields {
			f, ok := raw.([]interface{})
			if !ok || len(f) != 3 {
				return id, common.ErrInvalidPayload{Message: "malformed compact obj field"}
			}
			key, _ := f[0].(string)
			writeID, err := compactDecodeTimestamp(table, f[1])
			if err != nil {
				return id, err
			}
			childID, err := compactDecodeNode(table, arena, f[2])
			if err != nil {
				return id, err
			}
			order = append(order, key)
			values[key] = childID
			writeIDs[key] = writeID
		}
		arena.Put(crdt.NewObjNodeForDecode(id, order, values, writeIDs))
		return id, nil

	case common.NodeVec:
		fields, _ := arr[2].([]interface{})
		values := make([]common.Timestamp, len(fields))
		writeIDs := make([]common.Timestamp, len(fields))
		present := make([]bool, len(fields))
		for i, raw := range fields {
			f, ok := raw.([]interface{})
			if !ok || len(f) != 3 {
				return id, common.ErrInvalidPayload{Message: "malformed compact vec field"}
			}
			flag, _ := f[0].(float64)
			if flag == 0 {
				continue
			}
			writeID, err := compactDecodeTimestamp(table, f[1])
			if err != nil {
				return id, err
			}
			childID, err := compactDecodeNode(table, arena, f[2])
			if err != nil {
				return id, err
			}
			values[i] = childID
			writeIDs[i] = writeID
			present[i] = true
		}
		arena.Put(crdt.NewVecNodeForDecode(id, values, writeIDs, present))
		return id, nil

	case common.NodeStr:
		fields, _ := arr[2].([]interface{})
		rga := crdt.NewRGA[rune]()
		for _, raw := range fields {
			f, ok := raw.([]interface{})
			if !ok || len(f) != 4 {
				return id, common.ErrInvalidPayload{Message: "malformed compact str chunk"}
			}
			deleted, cid, span, err := compactDecodeChunkHeader(table, f)
			if err != nil {
				return id, err
			}
			chunk := &crdt.Chunk[rune]{ID: cid, Span: span, Deleted: deleted}
			if !deleted {
				s, _ := f[3].(string)
				chunk.Data = []rune(s)
			}
			rga.AppendChunk(chunk)
		}
		arena.Put(&crdt.StrNode{Id: id, RGA: rga})
		return id, nil

	case common.NodeBin:
		fields, _ := arr[2].([]interface{})
		rga := crdt.NewRGA[byte]()
		for _, raw := range fields {
			f, ok := raw.([]interface{})
			if !ok || len(f) != 4 {
				return id, common.ErrInvalidPayload{Message: "malformed compact bin chunk"}
			}
			deleted, cid, span, err := compactDecodeChunkHeader(table, f)
			if err != nil {
				return id, err
			}
			chunk := &crdt.Chunk[byte]{ID: cid, Span: span, Deleted: deleted}
			if !deleted {
				s, _ := f[3].(string)
				raw, err := base64.StdEncoding.DecodeString(s)
				if err != nil {
					return id, common.ErrInvalidPayload{Message: err.Error()}
				}
				chunk.Data = raw
			}
			rga.AppendChunk(chunk)
		}
		arena.Put(&crdt.BinNode{Id: id, RGA: rga})
		return id, nil

	case common.NodeArr:
		fields, _ := arr[2].([]interface{})
		rga := crdt.NewRGA[common.Timestamp]()
		for _, raw := range fields {
			f, ok := raw.([]interface{})
			if !ok || len(f) != 4 {
				return id, common.ErrInvalidPayload{Message: "malformed compact arr chunk"}
			}
			deletedF, _ := f[0].(float64)
			deleted := deletedF == 1
			cid, err := compactDecodeTimestamp(table, f[1])
			if err != nil {
				return id, err
			}
			spanF, _ := f[2].(float64)
			span := uint64(spanF)
			chunk := &crdt.Chunk[common.Timestamp]{ID: cid, Span: span, Deleted: deleted}
			if !deleted {
				children, _ := f[3].([]interface{})
				data := make([]common.Timestamp, 0, len(children))
				for _, childRaw := range children {
					childID, err := compactDecodeNode(table, arena, childRaw)
					if err != nil {
						return id, err
					}
					data = append(data, childID)
				}
				chunk.Data = data
			}
			rga.AppendChunk(chunk)
		}
		arena.Put(&crdt.ArrNode{Id: id, RGA: rga})
		return id, nil
	}
	return id, common.ErrUnknownMajor{Major: byte(major)}
}

func compactDecodeChunkHeader(table *common.ClockTable, f []interface{}) (deleted bool, id common.Timestamp, span uint64, err error) {
	deletedF, _ := f[0].(float64)
	deleted = deletedF == 1
	id, err = compactDecodeTimestamp(table, f[1])
	if err != nil {
		return
	}
	spanF, _ := f[2].(float64)
	span = uint64(spanF)
	return
}
