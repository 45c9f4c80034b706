// Package crdtpatch defines the sixteen live operation kinds, the Patch and
// PatchBuilder, and patch compaction (§3.4, §4.4, §4.6).
package crdtpatch

import (
	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
)

// Op is one operation in a patch: it carries an id, knows how much logical
// time it spans, and knows how to effect itself against a Model.
type Op interface {
	ID() common.Timestamp
	Kind() common.OpKind
	Span() uint64
	Apply(m *crdt.Model) error
}

// NewConOp constructs a Con node, either a literal scalar or a Ref
// indirection.
type NewConOp struct {
	Id    common.Timestamp
	IsRef bool
	Ref   common.Timestamp
	Value interface{}
}

func (o NewConOp) ID() common.Timestamp  { return o.Id }
func (o NewConOp) Kind() common.OpKind   { return common.OpNewCon }
func (o NewConOp) Span() uint64          { return 1 }
func (o NewConOp) Apply(m *crdt.Model) error {
	if o.IsRef {
		return m.NewConRef(o.Id, o.Ref)
	}
	return m.NewCon(o.Id, o.Value)
}

// NewValOp constructs an empty Val register.
type NewValOp struct{ Id common.Timestamp }

func (o NewValOp) ID() common.Timestamp      { return o.Id }
func (o NewValOp) Kind() common.OpKind       { return common.OpNewVal }
func (o NewValOp) Span() uint64              { return 1 }
func (o NewValOp) Apply(m *crdt.Model) error { return m.NewVal(o.Id) }

// NewObjOp constructs an empty Obj node.
type NewObjOp struct{ Id common.Timestamp }

func (o NewObjOp) ID() common.Timestamp      { return o.Id }
func (o NewObjOp) Kind() common.OpKind       { return common.OpNewObj }
func (o NewObjOp) Span() uint64              { return 1 }
func (o NewObjOp) Apply(m *crdt.Model) error { return m.NewObj(o.Id) }

// NewVecOp constructs an empty Vec node.
type NewVecOp struct{ Id common.Timestamp }

func (o NewVecOp) ID() common.Timestamp      { return o.Id }
func (o NewVecOp) Kind() common.OpKind       { return common.OpNewVec }
func (o NewVecOp) Span() uint64              { return 1 }
func (o NewVecOp) Apply(m *crdt.Model) error { return m.NewVec(o.Id) }

// NewStrOp constructs an empty Str node.
type NewStrOp struct{ Id common.Timestamp }

func (o NewStrOp) ID() common.Timestamp      { return o.Id }
func (o NewStrOp) Kind() common.OpKind       { return common.OpNewStr }
func (o NewStrOp) Span() uint64              { return 1 }
func (o NewStrOp) Apply(m *crdt.Model) error { return m.NewStr(o.Id) }

// NewBinOp constructs an empty Bin node.
type NewBinOp struct{ Id common.Timestamp }

func (o NewBinOp) ID() common.Timestamp      { return o.Id }
func (o NewBinOp) Kind() common.OpKind       { return common.OpNewBin }
func (o NewBinOp) Span() uint64              { return 1 }
func (o NewBinOp) Apply(m *crdt.Model) error { return m.NewBin(o.Id) }

// NewArrOp constructs an empty Arr node.
type NewArrOp struct{ Id common.Timestamp }

func (o NewArrOp) ID() common.Timestamp      { return o.Id }
func (o NewArrOp) Kind() common.OpKind       { return common.OpNewArr }
func (o NewArrOp) Span() uint64              { return 1 }
func (o NewArrOp) Apply(m *crdt.Model) error { return m.NewArr(o.Id) }

// InsValOp sets a Val register's child, LWW. Obj == ORIGIN moves the
// document root.
type InsValOp struct {
	Id  common.Timestamp
	Obj common.Timestamp
	Val common.Timestamp
}

func (o InsValOp) ID() common.Timestamp      { return o.Id }
func (o InsValOp) Kind() common.OpKind       { return common.OpInsVal }
func (o InsValOp) Span() uint64              { return 1 }
func (o InsValOp) Apply(m *crdt.Model) error { return m.InsVal(o.Id, o.Obj, o.Val) }

// InsObjOp installs or overwrites keys of an Obj node, per-key LWW.
type InsObjOp struct {
	Id    common.Timestamp
	Obj   common.Timestamp
	Pairs []crdt.ObjPair
}

func (o InsObjOp) ID() common.Timestamp      { return o.Id }
func (o InsObjOp) Kind() common.OpKind       { return common.OpInsObj }
func (o InsObjOp) Span() uint64              { return 1 }
func (o InsObjOp) Apply(m *crdt.Model) error { return m.InsObj(o.Id, o.Obj, o.Pairs) }

// InsVecOp installs or overwrites indices of a Vec node, per-index LWW.
type InsVecOp struct {
	Id    common.Timestamp
	Obj   common.Timestamp
	Pairs []crdt.VecPair
}

func (o InsVecOp) ID() common.Timestamp      { return o.Id }
func (o InsVecOp) Kind() common.OpKind       { return common.OpInsVec }
func (o InsVecOp) Span() uint64              { return 1 }
func (o InsVecOp) Apply(m *crdt.Model) error { return m.InsVec(o.Id, o.Obj, o.Pairs) }

// InsStrOp inserts a run of characters into a Str node's RGA.
type InsStrOp struct {
	Id    common.Timestamp
	Obj   common.Timestamp
	After common.Timestamp
	Data  []rune
}

func (o InsStrOp) ID() common.Timestamp      { return o.Id }
func (o InsStrOp) Kind() common.OpKind       { return common.OpInsStr }
func (o InsStrOp) Span() uint64              { return uint64(len(o.Data)) }
func (o InsStrOp) Apply(m *crdt.Model) error { return m.InsStr(o.Id, o.Obj, o.After, o.Data) }

// InsBinOp inserts a run of bytes into a Bin node's RGA.
type InsBinOp struct {
	Id    common.Timestamp
	Obj   common.Timestamp
	After common.Timestamp
	Data  []byte
}

func (o InsBinOp) ID() common.Timestamp      { return o.Id }
func (o InsBinOp) Kind() common.OpKind       { return common.OpInsBin }
func (o InsBinOp) Span() uint64              { return uint64(len(o.Data)) }
func (o InsBinOp) Apply(m *crdt.Model) error { return m.InsBin(o.Id, o.Obj, o.After, o.Data) }

// InsArrOp inserts a run of element references into an Arr node's RGA.
type InsArrOp struct {
	Id    common.Timestamp
	Obj   common.Timestamp
	After common.Timestamp
	Data  []common.Timestamp
}

func (o InsArrOp) ID() common.Timestamp      { return o.Id }
func (o InsArrOp) Kind() common.OpKind       { return common.OpInsArr }
func (o InsArrOp) Span() uint64              { return uint64(len(o.Data)) }
func (o InsArrOp) Apply(m *crdt.Model) error { return m.InsArr(o.Id, o.Obj, o.After, o.Data) }

// UpdArrOp overwrites an existing Arr element in place, LWW per slot.
type UpdArrOp struct {
	Id  common.Timestamp
	Obj common.Timestamp
	Ref common.Timestamp
	Val common.Timestamp
}

func (o UpdArrOp) ID() common.Timestamp      { return o.Id }
func (o UpdArrOp) Kind() common.OpKind       { return common.OpUpdArr }
func (o UpdArrOp) Span() uint64              { return 1 }
func (o UpdArrOp) Apply(m *crdt.Model) error { return m.UpdArr(o.Id, o.Obj, o.Ref, o.Val) }

// DelOp tombstones one or more interval spans on a Str/Bin/Arr node.
type DelOp struct {
	Id   common.Timestamp
	Obj  common.Timestamp
	What []crdt.Span
}

func (o DelOp) ID() common.Timestamp { return o.Id }
func (o DelOp) Kind() common.OpKind  { return common.OpDel }
func (o DelOp) Span() uint64 {
	var total uint64
	for _, sp := range o.What {
		total += sp.Length
	}
	if total == 0 {
		return 1
	}
	return total
}
func (o DelOp) Apply(m *crdt.Model) error { return m.Del(o.Id, o.Obj, o.What) }

// NopOp reserves a time range without effecting any state change, used to
// pad a rebased patch to keep op-id sequences contiguous.
type NopOp struct {
	Id     common.Timestamp
	Length uint64
}

func (o NopOp) ID() common.Timestamp { return o.Id }
func (o NopOp) Kind() common.OpKind  { return common.OpNop }
func (o NopOp) Span() uint64 {
	if o.Length == 0 {
		return 1
	}
	return o.Length
}
func (o NopOp) Apply(m *crdt.Model) error { return m.Nop(o.Id, o.Span()) }
