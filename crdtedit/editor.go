package crdtedit

import (
	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
	"github.com/crdtkit/jsoncrdt/crdtpatch"
	"github.com/pkg/errors"
)

// Editor wraps a Model with the builder/apply plumbing every editing call
// needs: allocate ids from the model's own clock, build one patch, apply it
// immediately, hand the patch back so callers can ship it to peers (§4.10).
type Editor struct {
	Model *crdt.Model
}

// New wraps m for editing.
func New(m *crdt.Model) *Editor {
	return &Editor{Model: m}
}

func (e *Editor) builder() *crdtpatch.PatchBuilder {
	return crdtpatch.NewPatchBuilderAt(common.Timestamp{Sid: e.Model.Clock.Sid, Time: e.Model.Clock.LocalTime()})
}

func (e *Editor) commit(b *crdtpatch.PatchBuilder) (*crdtpatch.Patch, error) {
	p := b.Flush()
	if len(p.Ops) == 0 {
		return p, nil
	}
	if err := p.Apply(e.Model); err != nil {
		return nil, err
	}
	return p, nil
}

// Set replaces the whole document with value.
func (e *Editor) Set(value interface{}) (*crdtpatch.Patch, error) {
	b := e.builder()
	b.Set(value)
	return e.commit(b)
}

// ObjSet writes key = value into the Obj node at objID, building a fresh
// subtree for value. Creating the object itself is the caller's job (via
// Set or a prior ObjSet) — objID must already exist and be an Obj.
func (e *Editor) ObjSet(objID common.Timestamp, key string, value interface{}) (*crdtpatch.Patch, error) {
	if _, ok := e.Model.Arena.Get(objID); !ok {
		return nil, common.ErrNodeNotFound{ID: objID}
	}
	b := e.builder()
	childID := b.Build(value)
	b.InsObj(objID, []crdt.ObjPair{{Key: key, Value: childID}})
	return e.commit(b)
}

// ObjDel unsets key on the Obj node at objID by writing a fresh null Con,
// the same "write undefined" convention the differ uses for a dropped key.
func (e *Editor) ObjDel(objID common.Timestamp, key string) (*crdtpatch.Patch, error) {
	if _, ok := e.Model.Arena.Get(objID); !ok {
		return nil, common.ErrNodeNotFound{ID: objID}
	}
	b := e.builder()
	nullID := b.ConVal(nil)
	b.InsObj(objID, []crdt.ObjPair{{Key: key, Value: nullID}})
	return e.commit(b)
}

// VecSet writes a value into a fixed Vec slot.
func (e *Editor) VecSet(vecID common.Timestamp, index int, value interface{}) (*crdtpatch.Patch, error) {
	if index < 0 || index >= crdt.MaxVecIndex {
		return nil, common.ErrOutOfBounds{Index: index, Length: crdt.MaxVecIndex}
	}
	if _, ok := e.Model.Arena.Get(vecID); !ok {
		return nil, common.ErrNodeNotFound{ID: vecID}
	}
	b := e.builder()
	childID := b.Build(value)
	b.InsVec(vecID, []crdt.VecPair{{Index: index, Value: childID}})
	return e.commit(b)
}

func strNodeOf(m *crdt.Model, id common.Timestamp) (*crdt.StrNode, error) {
	n, ok := m.Arena.Get(id)
	if !ok {
		return nil, common.ErrNodeNotFound{ID: id}
	}
	s, ok := n.(*crdt.StrNode)
	if !ok {
		return nil, common.ErrWrongType{Want: "str", Got: n.Kind().String()}
	}
	return s, nil
}

func binNodeOf(m *crdt.Model, id common.Timestamp) (*crdt.BinNode, error) {
	n, ok := m.Arena.Get(id)
	if !ok {
		return nil, common.ErrNodeNotFound{ID: id}
	}
	bn, ok := n.(*crdt.BinNode)
	if !ok {
		return nil, common.ErrWrongType{Want: "bin", Got: n.Kind().String()}
	}
	return bn, nil
}

func arrNodeOf(m *crdt.Model, id common.Timestamp) (*crdt.ArrNode, error) {
	n, ok := m.Arena.Get(id)
	if !ok {
		return nil, common.ErrNodeNotFound{ID: id}
	}
	a, ok := n.(*crdt.ArrNode)
	if !ok {
		return nil, common.ErrWrongType{Want: "arr", Got: n.Kind().String()}
	}
	return a, nil
}

// anchorAt returns the id of the element immediately before liveIndex
// (Unicode scalar / byte / live-element count depending on the RGA's type
// parameter), or ORIGIN if liveIndex is 0.
func anchorAt[T any](rga *crdt.RGA[T], liveIndex int) common.Timestamp {
	if liveIndex <= 0 {
		return common.Origin
	}
	if ts, ok := rga.PositionOf(liveIndex - 1); ok {
		return ts
	}
	return common.Origin
}

// StrIns inserts text into a Str node at the given Unicode-scalar offset.
func (e *Editor) StrIns(strID common.Timestamp, index int, text string) (*crdtpatch.Patch, error) {
	if text == "" {
		return nil, common.ErrEmptyWrite{}
	}
	s, err := strNodeOf(e.Model, strID)
	if err != nil {
		return nil, err
	}
	length := len(s.RGA.VisibleValues())
	if index < 0 || index > length {
		return nil, common.ErrOutOfBounds{Index: index, Length: length}
	}
	anchor := anchorAt(s.RGA, index)
	b := e.builder()
	b.InsStr(strID, anchor, []rune(text))
	return e.commit(b)
}

// StrDel deletes length Unicode scalars starting at index from a Str node.
func (e *Editor) StrDel(strID common.Timestamp, index, length int) (*crdtpatch.Patch, error) {
	if length == 0 {
		return nil, common.ErrEmptyWrite{}
	}
	s, err := strNodeOf(e.Model, strID)
	if err != nil {
		return nil, err
	}
	total := len(s.RGA.VisibleValues())
	if index < 0 || length < 0 || index+length > total {
		return nil, common.ErrOutOfBounds{Index: index, Length: total}
	}
	b := e.builder()
	b.Del(strID, s.RGA.Interval(index, length))
	return e.commit(b)
}

// BinIns inserts bytes into a Bin node at the given byte offset.
func (e *Editor) BinIns(binID common.Timestamp, index int, data []byte) (*crdtpatch.Patch, error) {
	if len(data) == 0 {
		return nil, common.ErrEmptyWrite{}
	}
	bn, err := binNodeOf(e.Model, binID)
	if err != nil {
		return nil, err
	}
	length := len(bn.RGA.VisibleValues())
	if index < 0 || index > length {
		return nil, common.ErrOutOfBounds{Index: index, Length: length}
	}
	anchor := anchorAt(bn.RGA, index)
	b := e.builder()
	b.InsBin(binID, anchor, data)
	return e.commit(b)
}

// BinDel deletes length bytes starting at index from a Bin node.
func (e *Editor) BinDel(binID common.Timestamp, index, length int) (*crdtpatch.Patch, error) {
	if length == 0 {
		return nil, common.ErrEmptyWrite{}
	}
	bn, err := binNodeOf(e.Model, binID)
	if err != nil {
		return nil, err
	}
	total := len(bn.RGA.VisibleValues())
	if index < 0 || length < 0 || index+length > total {
		return nil, common.ErrOutOfBounds{Index: index, Length: total}
	}
	b := e.builder()
	b.Del(binID, bn.RGA.Interval(index, length))
	return e.commit(b)
}

// ArrIns builds a fresh subtree per value and inserts them into an Arr node
// starting at the given live-element index.
func (e *Editor) ArrIns(arrID common.Timestamp, index int, values []interface{}) (*crdtpatch.Patch, error) {
	if len(values) == 0 {
		return nil, common.ErrEmptyWrite{}
	}
	a, err := arrNodeOf(e.Model, arrID)
	if err != nil {
		return nil, err
	}
	length := len(a.RGA.VisibleValues())
	if index < 0 || index > length {
		return nil, common.ErrOutOfBounds{Index: index, Length: length}
	}
	anchor := anchorAt(a.RGA, index)
	b := e.builder()
	ids := make([]common.Timestamp, len(values))
	for i, v := range values {
		ids[i] = b.Build(v)
	}
	b.InsArr(arrID, anchor, ids)
	return e.commit(b)
}

// ArrDel removes length live elements starting at index from an Arr node.
func (e *Editor) ArrDel(arrID common.Timestamp, index, length int) (*crdtpatch.Patch, error) {
	if length == 0 {
		return nil, common.ErrEmptyWrite{}
	}
	a, err := arrNodeOf(e.Model, arrID)
	if err != nil {
		return nil, err
	}
	total := len(a.RGA.VisibleValues())
	if index < 0 || length < 0 || index+length > total {
		return nil, common.ErrOutOfBounds{Index: index, Length: total}
	}
	b := e.builder()
	b.Del(arrID, a.RGA.Interval(index, length))
	return e.commit(b)
}

// ArrUpd overwrites the live element at index with a freshly built value,
// last-writer-wins per slot (not an Ins/Del pair — the element identity is
// preserved, only its referenced child changes).
func (e *Editor) ArrUpd(arrID common.Timestamp, index int, value interface{}) (*crdtpatch.Patch, error) {
	a, err := arrNodeOf(e.Model, arrID)
	if err != nil {
		return nil, err
	}
	refs := a.RGA.VisibleValues()
	if index < 0 || index >= len(refs) {
		return nil, common.ErrOutOfBounds{Index: index, Length: len(refs)}
	}
	elemID, _ := a.RGA.PositionOf(index)
	b := e.builder()
	childID := b.Build(value)
	b.UpdArr(arrID, elemID, childID)
	return e.commit(b)
}

// Find resolves a path to a node id (§4.10's "find(start, path)" surface,
// generalised here to always start from the document root).
func (e *Editor) Find(path Path) (common.Timestamp, error) {
	return Find(e.Model, path)
}

// Apply effects an externally-built patch (e.g. received from a peer, or
// produced by crdtdiff.Diff) against this editor's model.
func (e *Editor) Apply(p *crdtpatch.Patch) error {
	if err := p.Apply(e.Model); err != nil {
		return errors.Wrap(err, "apply patch")
	}
	return nil
}
