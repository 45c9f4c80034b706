package crdtpatch

import (
	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
	"github.com/pkg/errors"
)

// Patch is an ordered, non-empty, time-contiguous sequence of ops authored
// by one session (§3.4). Its id equals its first op's id.
type Patch struct {
	Ops      []Op
	Metadata map[string]interface{}
}

// ID returns the patch's id: the id of its first op.
func (p *Patch) ID() common.Timestamp {
	if len(p.Ops) == 0 {
		return common.Undefined
	}
	return p.Ops[0].ID()
}

// Span returns the sum of every op's span — the contiguous time range this
// patch reserves on its authoring session.
func (p *Patch) Span() uint64 {
	var total uint64
	for _, op := range p.Ops {
		total += op.Span()
	}
	return total
}

// Apply effects every op in order against m, in document order. Apply is
// best-effort per op (§7): unready or already-observed ops are silently
// skipped by the underlying Model calls, not treated as fatal.
func (p *Patch) Apply(m *crdt.Model) error {
	for i, op := range p.Ops {
		if err := op.Apply(m); err != nil {
			return errors.Wrapf(err, "apply op %d (%s) of patch %s", i, op.Kind(), p.ID())
		}
	}
	return nil
}

// Clone returns a shallow copy of the patch with an independent Ops slice
// (the ops themselves are immutable value types, safe to share).
func (p *Patch) Clone() *Patch {
	cp := &Patch{Ops: append([]Op(nil), p.Ops...)}
	if p.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// RewriteTime returns a copy of the patch with every op's session-local
// timestamp shifted so the patch begins at newID, preserving the relative
// offsets between ops and any cross-session references unchanged. Used by
// the Log's rebase_batch (§4.11).
func (p *Patch) RewriteTime(newID common.Timestamp) (*Patch, error) {
	if len(p.Ops) == 0 {
		return p.Clone(), nil
	}
	oldID := p.ID()
	if oldID.Sid != newID.Sid {
		return nil, errors.Errorf("cannot rewrite patch %s onto a different session %s", oldID, newID)
	}
	shift := func(t common.Timestamp) common.Timestamp {
		if t.Sid != oldID.Sid {
			return t
		}
		return common.Timestamp{Sid: newID.Sid, Time: newID.Time + (t.Time - oldID.Time)}
	}
	out := &Patch{Ops: make([]Op, len(p.Ops))}
	for i, op := range p.Ops {
		out.Ops[i] = rewriteOp(op, shift)
	}
	return out, nil
}

func rewriteOp(op Op, shift func(common.Timestamp) common.Timestamp) Op {
	switch o := op.(type) {
	case NewConOp:
		o.Id = shift(o.Id)
		if o.IsRef {
			o.Ref = shift(o.Ref)
		}
		return o
	case NewValOp:
		o.Id = shift(o.Id)
		return o
	case NewObjOp:
		o.Id = shift(o.Id)
		return o
	case NewVecOp:
		o.Id = shift(o.Id)
		return o
	case NewStrOp:
		o.Id = shift(o.Id)
		return o
	case NewBinOp:
		o.Id = shift(o.Id)
		return o
	case NewArrOp:
		o.Id = shift(o.Id)
		return o
	case InsValOp:
		o.Id, o.Obj, o.Val = shift(o.Id), shift(o.Obj), shift(o.Val)
		return o
	case InsObjOp:
		o.Id, o.Obj = shift(o.Id), shift(o.Obj)
		pairs := make([]crdt.ObjPair, len(o.Pairs))
		for i, pr := range o.Pairs {
			pairs[i] = crdt.ObjPair{Key: pr.Key, Value: shift(pr.Value)}
		}
		o.Pairs = pairs
		return o
	case InsVecOp:
		o.Id, o.Obj = shift(o.Id), shift(o.Obj)
		pairs := make([]crdt.VecPair, len(o.Pairs))
		for i, pr := range o.Pairs {
			pairs[i] = crdt.VecPair{Index: pr.Index, Value: shift(pr.Value)}
		}
		o.Pairs = pairs
		return o
	case InsStrOp:
		o.Id, o.Obj, o.After = shift(o.Id), shift(o.Obj), shift(o.After)
		return o
	case InsBinOp:
		o.Id, o.Obj, o.After = shift(o.Id), shift(o.Obj), shift(o.After)
		return o
	case InsArrOp:
		o.Id, o.Obj, o.After = shift(o.Id), shift(o.Obj), shift(o.After)
		data := make([]common.Timestamp, len(o.Data))
		for i, d := range o.Data {
			data[i] = shift(d)
		}
		o.Data = data
		return o
	case UpdArrOp:
		o.Id, o.Obj, o.Ref, o.Val = shift(o.Id), shift(o.Obj), shift(o.Ref), shift(o.Val)
		return o
	case DelOp:
		o.Id, o.Obj = shift(o.Id), shift(o.Obj)
		what := make([]crdt.Span, len(o.What))
		for i, sp := range o.What {
			shifted := shift(common.Timestamp{Sid: sp.Sid, Time: sp.Time})
			what[i] = crdt.Span{Sid: shifted.Sid, Time: shifted.Time, Length: sp.Length}
		}
		o.What = what
		return o
	case NopOp:
		o.Id = shift(o.Id)
		return o
	default:
		return op
	}
}
