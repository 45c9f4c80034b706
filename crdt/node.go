package crdt

import (
	"sort"

	"github.com/crdtkit/jsoncrdt/common"
)

// Node is the common capability every arena entry exposes: identity and its
// tag (§9 "polymorphic nodes... dispatch is a match on the tag").
type Node interface {
	ID() common.Timestamp
	Kind() common.NodeType
}

// ConNode holds an immutable constant scalar, or a Ref indirection to
// another node's timestamp.
type ConNode struct {
	Id    common.Timestamp
	IsRef bool
	Ref   common.Timestamp
	Value interface{}
}

func (n *ConNode) ID() common.Timestamp    { return n.Id }
func (n *ConNode) Kind() common.NodeType   { return common.NodeCon }
func (n *ConNode) Clone() *ConNode         { c := *n; return &c }

// ValNode is a last-writer-wins register pointing at a child timestamp. The
// distinguished root register lives at common.Origin in every arena.
type ValNode struct {
	Id      common.Timestamp
	Val     common.Timestamp
	WriteID common.Timestamp
}

func (n *ValNode) ID() common.Timestamp  { return n.Id }
func (n *ValNode) Kind() common.NodeType { return common.NodeVal }

// objEntry pairs a key's current child timestamp with the id of the op that
// last wrote it, needed to arbitrate per-key LWW (§4.3).
type objEntry struct {
	Value   common.Timestamp
	WriteID common.Timestamp
}

// ObjNode is a keyed map of child timestamps with per-key LWW.
type ObjNode struct {
	Id   common.Timestamp
	Keys map[string]objEntry
}

func (n *ObjNode) ID() common.Timestamp  { return n.Id }
func (n *ObjNode) Kind() common.NodeType { return common.NodeObj }

// NewObjNodeForDecode rebuilds an ObjNode from a structural codec's decoded
// key order and per-key write ids.
func NewObjNodeForDecode(id common.Timestamp, order []string, values, writeIDs map[string]common.Timestamp) *ObjNode {
	keys := make(map[string]objEntry, len(order))
	for _, k := range order {
		keys[k] = objEntry{Value: values[k], WriteID: writeIDs[k]}
	}
	return &ObjNode{Id: id, Keys: keys}
}

// Get returns the live child timestamp for key, if set.
func (n *ObjNode) Get(key string) (common.Timestamp, bool) {
	e, ok := n.Keys[key]
	if !ok {
		return common.Timestamp{}, false
	}
	return e.Value, true
}

// SortedKeys returns the object's keys in deterministic (sorted) order, for
// view materialisation and codecs.
func (n *ObjNode) SortedKeys() []string {
	keys := make([]string, 0, len(n.Keys))
	for k := range n.Keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MaxVecIndex bounds Vec element indices to the wire field width (§3.2,
// resolved in DESIGN.md as one byte / 256 slots).
const MaxVecIndex = 256

type vecEntry struct {
	Value   common.Timestamp
	Set     bool
	WriteID common.Timestamp
}

// VecNode is a fixed-index, sparse tuple with per-index LWW.
type VecNode struct {
	Id       common.Timestamp
	Elements []vecEntry
}

func (n *VecNode) ID() common.Timestamp  { return n.Id }
func (n *VecNode) Kind() common.NodeType { return common.NodeVec }

// NewVecNodeForDecode rebuilds a VecNode from a structural codec's decoded
// per-index values, write ids, and presence flags.
func NewVecNodeForDecode(id common.Timestamp, values, writeIDs []common.Timestamp, present []bool) *VecNode {
	elements := make([]vecEntry, len(values))
	for i := range values {
		elements[i] = vecEntry{Value: values[i], Set: present[i], WriteID: writeIDs[i]}
	}
	return &VecNode{Id: id, Elements: elements}
}

// Get returns the live child timestamp at index, if set.
func (n *VecNode) Get(index int) (common.Timestamp, bool) {
	if index < 0 || index >= len(n.Elements) || !n.Elements[index].Set {
		return common.Timestamp{}, false
	}
	return n.Elements[index].Value, true
}

// Len returns one past the highest set index (the tuple's apparent length).
func (n *VecNode) Len() int { return len(n.Elements) }

// StrNode is collaborative text: an RGA of runes.
type StrNode struct {
	Id  common.Timestamp
	RGA *RGA[rune]
}

func (n *StrNode) ID() common.Timestamp  { return n.Id }
func (n *StrNode) Kind() common.NodeType { return common.NodeStr }

// BinNode is a collaborative byte sequence: an RGA of bytes.
type BinNode struct {
	Id  common.Timestamp
	RGA *RGA[byte]
}

func (n *BinNode) ID() common.Timestamp  { return n.Id }
func (n *BinNode) Kind() common.NodeType { return common.NodeBin }

// ArrNode is a collaborative array of node references: an RGA of
// timestamps.
type ArrNode struct {
	Id      common.Timestamp
	RGA     *RGA[common.Timestamp]
	writers map[common.Timestamp]common.Timestamp
}

func (n *ArrNode) ID() common.Timestamp  { return n.Id }
func (n *ArrNode) Kind() common.NodeType { return common.NodeArr }

// Update overwrites the element at ref with val, last-writer-wins per slot
// (§4.3). ref not being live is a no-op, returning false.
func (n *ArrNode) Update(ref, id, val common.Timestamp) bool {
	if n.writers == nil {
		n.writers = make(map[common.Timestamp]common.Timestamp)
	}
	cur, ok := n.writers[ref]
	if !ok {
		cur = ref
	}
	if id.Compare(cur) < 0 {
		return false
	}
	if !n.RGA.SetAt(ref, val) {
		return false
	}
	n.writers[ref] = id
	return true
}
