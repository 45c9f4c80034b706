package crdtcodec

import (
	"encoding/binary"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
)

// emptyRootMarker is the sole byte of the tree section when the document
// root has never been written: a pristine root Val carries no information
// beyond its own existence, so it collapses to one byte instead of the
// general node header plus two relative ids.
const emptyRootMarker = 0x00

// EncodeStructuralBinary serialises the full arena as a depth-first tree
// followed by the clock table, with a 4-byte offset prefix pointing from
// tree-start to table-start (§4.7, §6.1).
func EncodeStructuralBinary(m *crdt.Model) ([]byte, error) {
	table := common.NewClockTable(m.Clock)
	tree := NewWriter()
	root := m.Root()
	if root.Val.IsOrigin() && root.WriteID.IsOrigin() {
		tree.Byte(emptyRootMarker)
	} else if err := encodeNode(tree, table, m.Arena, common.Origin); err != nil {
		return nil, err
	}
	treeBytes := tree.Out()

	out := NewWriter()
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(treeBytes)))
	out.Bytes(prefix[:])
	out.Bytes(treeBytes)
	EncodeClockTable(out, table)
	return out.Out(), nil
}

// DecodeStructuralBinary reconstructs a Model from bytes written by
// EncodeStructuralBinary. The model is built entirely in memory and only
// returned on success (§7: decode never partially mutates the output).
func DecodeStructuralBinary(data []byte) (*crdt.Model, error) {
	if len(data) < 4 {
		return nil, common.ErrTruncated{Want: 4, Have: len(data)}
	}
	treeLen := int(binary.BigEndian.Uint32(data[:4]))
	if len(data) < 4+treeLen {
		return nil, common.ErrTruncated{Want: 4 + treeLen, Have: len(data)}
	}
	tableBytes := data[4+treeLen:]
	tableReader := NewReader(tableBytes)
	table, err := DecodeClockTable(tableReader)
	if err != nil {
		return nil, err
	}

	arena := crdt.NewArena()
	if treeLen == 1 && data[4] == emptyRootMarker {
		arena.Put(&crdt.ValNode{Id: common.Origin, Val: common.Origin, WriteID: common.Origin})
	} else {
		treeReader := NewReader(data[4 : 4+treeLen])
		if _, err := decodeNode(treeReader, table, arena); err != nil {
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

func encodeNode(w *Writer, table *common.ClockTable, arena *crdt.Arena, id common.Timestamp) error {
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
			return encodeNode(w, table, arena, n.Val)
		}
		return nil

	case *crdt.ObjNode:
		keys := n.SortedKeys()
		WriteHeader(w, common.NodeObj, len(keys))
		EncodeRelative(w, table, n.Id)
		for _, k := range keys {
			entry := n.Keys[k]
			w.LenPrefixed([]byte(k))
			EncodeRelative(w, table, entry.WriteID)
			if err := encodeNode(w, table, arena, entry.Value); err != nil {
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
			writeID := n.Elements[i].WriteID
			EncodeRelative(w, table, writeID)
			if err := encodeNode(w, table, arena, v); err != nil {
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
				for _, ref := range c.Data {
					if err := encodeNode(w, table, arena, ref); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	return common.ErrUnknownMajor{Major: byte(node.Kind())}
}

func encodeChunkHeader(w *Writer, table *common.ClockTable, id common.Timestamp, span uint64, deleted bool) {
	if deleted {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
	EncodeRelative(w, table, id)
	w.Varint(span)
}

func decodeChunkHeader(r *Reader, table *common.ClockTable) (id common.Timestamp, span uint64, deleted bool, err error) {
	b, err := r.Byte()
	if err != nil {
		return
	}
	deleted = b == 1
	id, err = DecodeRelative(r, table)
	if err != nil {
		return
	}
	span, err = r.Varint()
	return
}

func decodeNode(r *Reader, table *common.ClockTable, arena *crdt.Arena) (common.Timestamp, error) {
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
		leaf, err := r.LenPrefixed()
		if err != nil {
			return id, err
		}
		value, err := DecodeLeaf(leaf)
		if err != nil {
			return id, err
		}
		arena.Put(&crdt.ConNode{Id: id, Value: value})
		return id, nil

	case common.NodeVal:
		writeID, err := DecodeRelative(r, table)
		if err != nil {
			return id, err
		}
		val := common.Origin
		if length == 1 {
			val, err = decodeNode(r, table, arena)
			if err != nil {
				return id, err
			}
		}
		arena.Put(&crdt.ValNode{Id: id, Val: val, WriteID: writeID})
		return id, nil

	case common.NodeObj:
		keys := make(map[string]common.Timestamp, length)
		writeIDs := make(map[string]common.Timestamp, length)
		order := make([]string, 0, length)
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
			childID, err := decodeNode(r, table, arena)
			if err != nil {
				return id, err
			}
			keys[key] = childID
			writeIDs[key] = writeID
			order = append(order, key)
		}
		obj := crdt.NewObjNodeForDecode(id, order, keys, writeIDs)
		arena.Put(obj)
		return id, nil

	case common.NodeVec:
		elements := make([]common.Timestamp, length)
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
			childID, err := decodeNode(r, table, arena)
			if err != nil {
				return id, err
			}
			elements[i] = childID
			writeIDs[i] = writeID
			present[i] = true
		}
		vec := crdt.NewVecNodeForDecode(id, elements, writeIDs, present)
		arena.Put(vec)
		return id, nil

	case common.NodeStr:
		rga := crdt.NewRGA[rune]()
		for i := 0; i < length; i++ {
			cid, span, deleted, err := decodeChunkHeader(r, table)
			if err != nil {
				return id, err
			}
			chunk := &crdt.Chunk[rune]{ID: cid, Span: span, Deleted: deleted}
			if !deleted {
				raw, err := r.LenPrefixed()
				if err != nil {
					return id, err
				}
				chunk.Data = []rune(string(raw))
			}
			rga.AppendChunk(chunk)
		}
		arena.Put(&crdt.StrNode{Id: id, RGA: rga})
		return id, nil

	case common.NodeBin:
		rga := crdt.NewRGA[byte]()
		for i := 0; i < length; i++ {
			cid, span, deleted, err := decodeChunkHeader(r, table)
			if err != nil {
				return id, err
			}
			chunk := &crdt.Chunk[byte]{ID: cid, Span: span, Deleted: deleted}
			if !deleted {
				raw, err := r.LenPrefixed()
				if err != nil {
					return id, err
				}
				chunk.Data = append([]byte(nil), raw...)
			}
			rga.AppendChunk(chunk)
		}
		arena.Put(&crdt.BinNode{Id: id, RGA: rga})
		return id, nil

	case common.NodeArr:
		rga := crdt.NewRGA[common.Timestamp]()
		for i := 0; i < length; i++ {
			cid, span, deleted, err := decodeChunkHeader(r, table)
			if err != nil {
				return id, err
			}
			chunk := &crdt.Chunk[common.Timestamp]{ID: cid, Span: span, Deleted: deleted}
			if !deleted {
				data := make([]common.Timestamp, 0, span)
				for j := uint64(0); j < span; j++ {
					refID, err := decodeNode(r, table, arena)
					if err != nil {
						return id, err
					}
					data = append(data, refID)
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
