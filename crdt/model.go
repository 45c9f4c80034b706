package crdt

import (
	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/internal/xlog"
)

// Arena is the owned collection of every node, keyed by its creating
// timestamp (§3.2, GLOSSARY "Arena").
type Arena struct {
	nodes map[common.Timestamp]Node
}

// NewArena returns an empty arena.
func NewArena() *Arena { return &Arena{nodes: make(map[common.Timestamp]Node)} }

// Get looks up a node by id.
func (a *Arena) Get(id common.Timestamp) (Node, bool) {
	n, ok := a.nodes[id]
	return n, ok
}

// Put inserts a node if its id is not already present, enforcing the
// at-most-once constructor contract (§4.3). Returns false if id was already
// occupied (the insert is then a silent no-op, as required).
func (a *Arena) Put(n Node) bool {
	if _, exists := a.nodes[n.ID()]; exists {
		return false
	}
	a.nodes[n.ID()] = n
	return true
}

// Len returns the number of nodes in the arena.
func (a *Arena) Len() int { return len(a.nodes) }

// Nodes exposes the underlying id->node map, read-only by convention, for
// codecs that need to walk every node rather than a single tree (the
// indexed-field codec keys one field per node).
func (a *Arena) Nodes() map[common.Timestamp]Node { return a.nodes }

// Model is the root register, arena, and clock for one peer, plus the apply
// protocol mutating the arena (§C5).
type Model struct {
	Clock *common.Clock
	Arena *Arena
}

// NewModel creates an empty model for session sid, with its root register
// pre-seeded at ORIGIN pointing at ORIGIN (empty view = null, §3.2).
func NewModel(sid uint64) *Model {
	m := &Model{Clock: common.NewClock(sid), Arena: NewArena()}
	m.Arena.nodes[common.Origin] = &ValNode{Id: common.Origin, Val: common.Origin, WriteID: common.Origin}
	return m
}

// Root returns the document's root register.
func (m *Model) Root() *ValNode {
	n, _ := m.Arena.Get(common.Origin)
	return n.(*ValNode)
}

// observeOp records that id (spanning `span` logical units) has been
// applied, skipping it entirely if that range was already observed
// (prefix-idempotence, §4.3). Returns true if the op is fresh and should be
// effected.
func (m *Model) observeOp(id common.Timestamp, span uint64) bool {
	if span == 0 {
		span = 1
	}
	if m.Clock.ContainsRange(id, span) {
		return false
	}
	_ = m.Clock.Observe(id, span)
	return true
}

// NewCon installs a fresh Con node holding a scalar value.
func (m *Model) NewCon(id common.Timestamp, value interface{}) error {
	if !m.observeOp(id, 1) {
		return nil
	}
	m.Arena.Put(&ConNode{Id: id, Value: value})
	return nil
}

// NewConRef installs a fresh Con node holding a Ref indirection.
func (m *Model) NewConRef(id, ref common.Timestamp) error {
	if !m.observeOp(id, 1) {
		return nil
	}
	m.Arena.Put(&ConNode{Id: id, IsRef: true, Ref: ref})
	return nil
}

// NewVal installs a fresh Val register, initially pointing at ORIGIN.
func (m *Model) NewVal(id common.Timestamp) error {
	if !m.observeOp(id, 1) {
		return nil
	}
	m.Arena.Put(&ValNode{Id: id, Val: common.Origin, WriteID: id})
	return nil
}

// NewObj installs a fresh, empty Obj node.
func (m *Model) NewObj(id common.Timestamp) error {
	if !m.observeOp(id, 1) {
		return nil
	}
	m.Arena.Put(&ObjNode{Id: id, Keys: make(map[string]objEntry)})
	return nil
}

// NewVec installs a fresh, empty Vec node.
func (m *Model) NewVec(id common.Timestamp) error {
	if !m.observeOp(id, 1) {
		return nil
	}
	m.Arena.Put(&VecNode{Id: id})
	return nil
}

// NewStr installs a fresh, empty Str node.
func (m *Model) NewStr(id common.Timestamp) error {
	if !m.observeOp(id, 1) {
		return nil
	}
	m.Arena.Put(&StrNode{Id: id, RGA: NewRGA[rune]()})
	return nil
}

// NewBin installs a fresh, empty Bin node.
func (m *Model) NewBin(id common.Timestamp) error {
	if !m.observeOp(id, 1) {
		return nil
	}
	m.Arena.Put(&BinNode{Id: id, RGA: NewRGA[byte]()})
	return nil
}

// NewArr installs a fresh, empty Arr node.
func (m *Model) NewArr(id common.Timestamp) error {
	if !m.observeOp(id, 1) {
		return nil
	}
	m.Arena.Put(&ArrNode{Id: id, RGA: NewRGA[common.Timestamp]()})
	return nil
}

// InsVal sets arena[obj].Val = val if id is a fresher writer than the
// register's current WriteID (LWW, §4.3). obj == ORIGIN moves the document
// root. Missing obj is a lazy drop (§9 Open Question resolution).
func (m *Model) InsVal(id, obj, val common.Timestamp) error {
	if !m.observeOp(id, 1) {
		return nil
	}
	n, ok := m.Arena.Get(obj)
	if !ok {
		xlog.Debugf("InsVal %s: target %s not in arena, dropped", id, obj)
		return nil
	}
	reg, ok := n.(*ValNode)
	if !ok {
		return common.ErrWrongType{Want: "val", Got: n.Kind().String()}
	}
	if id.Compare(reg.WriteID) >= 0 {
		reg.Val = val
		reg.WriteID = id
	}
	return nil
}

// ObjPair is one key/value write in an InsObj op.
type ObjPair struct {
	Key   string
	Value common.Timestamp
}

// InsObj replaces arena[obj].Keys[key] per pair, iff id outranks the
// previous writer for that key (per-key LWW, §4.3).
func (m *Model) InsObj(id, obj common.Timestamp, pairs []ObjPair) error {
	if !m.observeOp(id, 1) {
		return nil
	}
	n, ok := m.Arena.Get(obj)
	if !ok {
		xlog.Debugf("InsObj %s: target %s not in arena, dropped", id, obj)
		return nil
	}
	o, ok := n.(*ObjNode)
	if !ok {
		return common.ErrWrongType{Want: "obj", Got: n.Kind().String()}
	}
	for _, p := range pairs {
		cur, exists := o.Keys[p.Key]
		if !exists || id.Compare(cur.WriteID) >= 0 {
			o.Keys[p.Key] = objEntry{Value: p.Value, WriteID: id}
		}
	}
	return nil
}

// VecPair is one index/value write in an InsVec op.
type VecPair struct {
	Index int
	Value common.Timestamp
}

// InsVec writes each (index, value) pair into a Vec node with per-index LWW.
func (m *Model) InsVec(id, obj common.Timestamp, pairs []VecPair) error {
	if !m.observeOp(id, 1) {
		return nil
	}
	n, ok := m.Arena.Get(obj)
	if !ok {
		xlog.Debugf("InsVec %s: target %s not in arena, dropped", id, obj)
		return nil
	}
	v, ok := n.(*VecNode)
	if !ok {
		return common.ErrWrongType{Want: "vec", Got: n.Kind().String()}
	}
	for _, p := range pairs {
		if p.Index < 0 || p.Index >= MaxVecIndex {
			return common.ErrOutOfBounds{Index: p.Index, Length: MaxVecIndex}
		}
		for len(v.Elements) <= p.Index {
			v.Elements = append(v.Elements, vecEntry{})
		}
		cur := v.Elements[p.Index]
		if !cur.Set || id.Compare(cur.WriteID) >= 0 {
			v.Elements[p.Index] = vecEntry{Value: p.Value, Set: true, WriteID: id}
		}
	}
	return nil
}

// InsStr inserts text into a Str node's RGA immediately after "after".
func (m *Model) InsStr(id, obj, after common.Timestamp, data []rune) error {
	if !m.observeOp(id, uint64(len(data))) {
		return nil
	}
	n, ok := m.Arena.Get(obj)
	if !ok {
		xlog.Debugf("InsStr %s: target %s not in arena, dropped", id, obj)
		return nil
	}
	s, ok := n.(*StrNode)
	if !ok {
		return common.ErrWrongType{Want: "str", Got: n.Kind().String()}
	}
	if !s.RGA.Insert(after, id, data) {
		xlog.Debugf("InsStr %s: anchor %s not ready, dropped", id, after)
	}
	return nil
}

// InsBin inserts bytes into a Bin node's RGA immediately after "after".
func (m *Model) InsBin(id, obj, after common.Timestamp, data []byte) error {
	if !m.observeOp(id, uint64(len(data))) {
		return nil
	}
	n, ok := m.Arena.Get(obj)
	if !ok {
		xlog.Debugf("InsBin %s: target %s not in arena, dropped", id, obj)
		return nil
	}
	b, ok := n.(*BinNode)
	if !ok {
		return common.ErrWrongType{Want: "bin", Got: n.Kind().String()}
	}
	if !b.RGA.Insert(after, id, data) {
		xlog.Debugf("InsBin %s: anchor %s not ready, dropped", id, after)
	}
	return nil
}

// InsArr inserts element references into an Arr node's RGA immediately
// after "after".
func (m *Model) InsArr(id, obj, after common.Timestamp, data []common.Timestamp) error {
	if !m.observeOp(id, uint64(len(data))) {
		return nil
	}
	n, ok := m.Arena.Get(obj)
	if !ok {
		xlog.Debugf("InsArr %s: target %s not in arena, dropped", id, obj)
		return nil
	}
	arr, ok := n.(*ArrNode)
	if !ok {
		return common.ErrWrongType{Want: "arr", Got: n.Kind().String()}
	}
	if !arr.RGA.Insert(after, id, data) {
		xlog.Debugf("InsArr %s: anchor %s not ready, dropped", id, after)
	}
	return nil
}

// UpdArr overwrites the element at chunk position ref with a new child
// timestamp, last-writer-wins per slot (§4.3). Unlike Ins*, this rewrites an
// existing chunk's payload in place rather than inserting.
func (m *Model) UpdArr(id, obj, ref, val common.Timestamp) error {
	if !m.observeOp(id, 1) {
		return nil
	}
	n, ok := m.Arena.Get(obj)
	if !ok {
		xlog.Debugf("UpdArr %s: target %s not in arena, dropped", id, obj)
		return nil
	}
	arr, ok := n.(*ArrNode)
	if !ok {
		return common.ErrWrongType{Want: "arr", Got: n.Kind().String()}
	}
	if !arr.Update(ref, id, val) {
		xlog.Debugf("UpdArr %s: ref %s not ready, dropped", id, ref)
	}
	return nil
}

// delSpan sums What's lengths, the same way DelOp.Span() does, so the id
// range this op reserves on the clock matches the range the builder advanced
// its cursor by.
func delSpan(what []Span) uint64 {
	var total uint64
	for _, sp := range what {
		total += sp.Length
	}
	if total == 0 {
		return 1
	}
	return total
}

// Del runs an RGA delete against the target node's sequence (§4.3).
func (m *Model) Del(id, obj common.Timestamp, what []Span) error {
	if !m.observeOp(id, delSpan(what)) {
		return nil
	}
	n, ok := m.Arena.Get(obj)
	if !ok {
		return nil
	}
	switch t := n.(type) {
	case *StrNode:
		t.RGA.Delete(what)
	case *BinNode:
		t.RGA.Delete(what)
	case *ArrNode:
		t.RGA.Delete(what)
	default:
		return common.ErrWrongType{Want: "str|bin|arr", Got: n.Kind().String()}
	}
	return nil
}

// Nop reserves [id.Time, id.Time+length) without any state change, used
// when rebasing patches to keep op-id sequences contiguous (§4.3).
func (m *Model) Nop(id common.Timestamp, length uint64) error {
	m.observeOp(id, length)
	return nil
}
