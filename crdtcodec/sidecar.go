package crdtcodec

import (
	"encoding/binary"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
)

// Sidecar splits a snapshot into a view stream (the plain materialised JSON,
// CBOR-encoded) and a meta stream (CRDT bookkeeping only: ids, RGA chunk
// spans, tombstone flags) (§4.7). Decoding walks the two in lock-step: every
// meta node that would carry a leaf value in structural binary instead reads
// its value from the next position in the already-decoded view tree.

// EncodeSidecar serialises m into its view and meta byte streams.
func EncodeSidecar(m *crdt.Model) (view []byte, meta []byte, err error) {
	view, err = EncodeLeaf(m.View())
	if err != nil {
		return nil, nil, err
	}
	table := common.NewClockTable(m.Clock)
	tree := NewWriter()
	if err := encodeMetaNode(tree, table, m.Arena, common.Origin); err != nil {
		return nil, nil, err
	}
	treeBytes := tree.Out()

	out := NewWriter()
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(treeBytes)))
	out.Bytes(prefix[:])
	out.Bytes(treeBytes)
	EncodeClockTable(out, table)
	return view, out.Out(), nil
}

// DecodeSidecar reconstructs a Model from streams written by EncodeSidecar.
func DecodeSidecar(view, meta []byte) (*crdt.Model, error) {
	viewValue, err := DecodeLeaf(view)
	if err != nil {
		return nil, err
	}
	if len(meta) < 4 {
		return nil, common.ErrTruncated{Want: 4, Have: len(meta)}
	}
	treeLen := int(binary.BigEndian.Uint32(meta[:4]))
	if len(meta) < 4+treeLen {
		return nil, common.ErrTruncated{Want: 4 + treeLen, Have: len(meta)}
	}
	table, err := DecodeClockTable(NewReader(meta[4+treeLen:]))
	if err != nil {
		return nil, err
	}
	arena := crdt.NewArena()
	r := NewReader(meta[4 : 4+treeLen])
	if _, err := decodeMetaNode(r, table, arena, viewValue); err != nil {
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

func encodeMetaNode(w *Writer, table *common.ClockTable, arena *crdt.Arena, id common.Timestamp) error {
	node, ok := arena.Get(id)
	if !ok {
		return common.ErrNodeNotFound{ID: id}
	}
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
			return encodeMetaNode(w, table, arena, n.Val)
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
			if err := encodeMetaNode(w, table, arena, e.Value); err != nil {
				return err
			}
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
			if err := encodeMetaNode(w, table, arena, v); err != nil {
				return err
			}
		}
		return nil

	case *crdt.StrNode:
		chunks := n.RGA.Chunks()
		WriteHeader(w, common.NodeStr, len(chunks))
		EncodeRelative(w, table, n.Id)
		for _, c := range chunks {
			encodeChunkHeader(w, table, c.ID, c.Span, c.Deleted)
		}
		return nil

	case *crdt.BinNode:
		chunks := n.RGA.Chunks()
		WriteHeader(w, common.NodeBin, len(chunks))
		EncodeRelative(w, table, n.Id)
		for _, c := range chunks {
			encodeChunkHeader(w, table, c.ID, c.Span, c.Deleted)
		}
		return nil

	case *crdt.ArrNode:
		chunks := n.RGA.Chunks()
		WriteHeader(w, common.NodeArr, len(chunks))
		EncodeRelative(w, table, n.Id)
		for _, c := range chunks {
			encodeChunkHeader(w, table, c.ID, c.Span, c.Deleted)
			if !c.Deleted {
				for _, ref := range c.Data {
					if err := encodeMetaNode(w, table, arena, ref); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	return common.ErrUnknownMajor{Major: byte(node.Kind())}
}

// decodeMetaNode walks meta and, wherever a node would own a view leaf,
// pulls it from the matching position in viewValue (already decoded from
// the view stream). Returns the node's own id.
func decodeMetaNode(r *Reader, table *common.ClockTable, arena *crdt.Arena, viewValue interface{}) (common.Timestamp, error) {
	major, length, err := ReadHeader(r)
	if err != nil {
		return common.Timestamp{}, err
	}
	id, err := DecodeRelative(r, table)
	if err != nil {
		return common.Timestamp{}, err
	}
	switch major {
	case common.NodeCon:
		if length == 1 {
			ref, err := DecodeRelative(r, table)
			if err != nil {
				return id, err
			}
			arena.Put(&crdt.ConNode{Id: id, IsRef: true, Ref: ref})
			return id, nil
		}
		arena.Put(&crdt.ConNode{Id: id, Value: viewValue})
		return id, nil

	case common.NodeVal:
		writeID, err := DecodeRelative(r, table)
		if err != nil {
			return id, err
		}
		val := common.Origin
		if length == 1 {
			val, err = decodeMetaNode(r, table, arena, viewValue)
			if err != nil {
				return id, err
			}
		}
		arena.Put(&crdt.ValNode{Id: id, Val: val, WriteID: writeID})
		return id, nil

	case common.NodeObj:
		viewObj, _ := viewValue.(map[string]interface{})
		order := make([]string, 0, length)
		values := make(map[string]common.Timestamp, length)
		writeIDs := make(map[string]common.Timestamp, length)
		for i := 0; i < length; i++ {
			kb, err := r.LenPrefixed()
			if err != nil {
				return id, err
			}
			key := string(kb)
			writeID, err := DecodeRelative(r, table)
			if err != nil {
				return id, err
			}
			childID, err := decodeMetaNode(r, table, arena, viewObj[key])
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
		viewVec, _ := viewValue.([]interface{})
		values := make([]common.Timestamp, length)
		writeIDs := make([]common.Timestamp, length)
		present := make([]bool, length)
		for i := 0; i < length; i++ {
			flag, err := r.Byte()
			if err != nil {
				return id, err
			}
			if flag == 0 {
				continue
			}
			writeID, err := DecodeRelative(r, table)
			if err != nil {
				return id, err
			}
			var elemView interface{}
			if i < len(viewVec) {
				elemView = viewVec[i]
			}
			childID, err := decodeMetaNode(r, table, arena, elemView)
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
		full, _ := viewValue.(string)
		runes := []rune(full)
		rga := crdt.NewRGA[rune]()
		offset := 0
		for i := 0; i < length; i++ {
			cid, span, deleted, err := decodeChunkHeader(r, table)
			if err != nil {
				return id, err
			}
			chunk := &crdt.Chunk[rune]{ID: cid, Span: span, Deleted: deleted}
			if !deleted {
				end := offset + int(span)
				if end > len(runes) {
					end = len(runes)
				}
				chunk.Data = append([]rune(nil), runes[offset:end]...)
				offset = end
			}
			rga.AppendChunk(chunk)
		}
		arena.Put(&crdt.StrNode{Id: id, RGA: rga})
		return id, nil

	case common.NodeBin:
		full, _ := viewValue.([]byte)
		rga := crdt.NewRGA[byte]()
		offset := 0
		for i := 0; i < length; i++ {
			cid, span, deleted, err := decodeChunkHeader(r, table)
			if err != nil {
				return id, err
			}
			chunk := &crdt.Chunk[byte]{ID: cid, Span: span, Deleted: deleted}
			if !deleted {
				end := offset + int(span)
				if end > len(full) {
					end = len(full)
				}
				chunk.Data = append([]byte(nil), full[offset:end]...)
				offset = end
			}
			rga.AppendChunk(chunk)
		}
		arena.Put(&crdt.BinNode{Id: id, RGA: rga})
		return id, nil

	case common.NodeArr:
		viewArr, _ := viewValue.([]interface{})
		rga := crdt.NewRGA[common.Timestamp]()
		liveIdx := 0
		for i := 0; i < length; i++ {
			cid, span, deleted, err := decodeChunkHeader(r, table)
			if err != nil {
				return id, err
			}
			chunk := &crdt.Chunk[common.Timestamp]{ID: cid, Span: span, Deleted: deleted}
			if !deleted {
				data := make([]common.Timestamp, 0, span)
				for j := uint64(0); j < span; j++ {
					var elemView interface{}
					if liveIdx < len(viewArr) {
						elemView = viewArr[liveIdx]
					}
					refID, err := decodeMetaNode(r, table, arena, elemView)
					if err != nil {
						return id, err
					}
					data = append(data, refID)
					liveIdx++
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
