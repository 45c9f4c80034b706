package crdtpatch

import (
	"sort"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
)

// PatchBuilder tracks a non-regressing cursor (sid, time) and emits ops
// whose ids are drawn from it (§4.4). Callers that need to rewind create a
// new builder (§9).
type PatchBuilder struct {
	cursor common.Timestamp
	ops    []Op
}

// NewPatchBuilder starts a builder whose first allocated id is
// (sid, startTime).
func NewPatchBuilder(sid, startTime uint64) *PatchBuilder {
	return &PatchBuilder{cursor: common.Timestamp{Sid: sid, Time: startTime}}
}

// NewPatchBuilderAt starts a builder at an explicit cursor, used to continue
// authoring from a Model's clock.
func NewPatchBuilderAt(cursor common.Timestamp) *PatchBuilder {
	return &PatchBuilder{cursor: cursor}
}

// Cursor returns the next id this builder will allocate.
func (b *PatchBuilder) Cursor() common.Timestamp { return b.cursor }

func (b *PatchBuilder) push(op Op) common.Timestamp {
	id := op.ID()
	b.ops = append(b.ops, op)
	b.cursor = id.Add(op.Span())
	return id
}

// ConVal emits NewCon holding a literal scalar.
func (b *PatchBuilder) ConVal(value interface{}) common.Timestamp {
	return b.push(NewConOp{Id: b.cursor, Value: value})
}

// ConRef emits NewCon holding a Ref indirection.
func (b *PatchBuilder) ConRef(ref common.Timestamp) common.Timestamp {
	return b.push(NewConOp{Id: b.cursor, IsRef: true, Ref: ref})
}

// Val emits NewVal.
func (b *PatchBuilder) Val() common.Timestamp { return b.push(NewValOp{Id: b.cursor}) }

// Obj emits NewObj.
func (b *PatchBuilder) Obj() common.Timestamp { return b.push(NewObjOp{Id: b.cursor}) }

// Vec emits NewVec.
func (b *PatchBuilder) Vec() common.Timestamp { return b.push(NewVecOp{Id: b.cursor}) }

// StrNode emits NewStr.
func (b *PatchBuilder) StrNode() common.Timestamp { return b.push(NewStrOp{Id: b.cursor}) }

// Bin emits NewBin.
func (b *PatchBuilder) Bin() common.Timestamp { return b.push(NewBinOp{Id: b.cursor}) }

// Arr emits NewArr.
func (b *PatchBuilder) Arr() common.Timestamp { return b.push(NewArrOp{Id: b.cursor}) }

// InsVal emits InsVal(obj, val).
func (b *PatchBuilder) InsVal(obj, val common.Timestamp) common.Timestamp {
	return b.push(InsValOp{Id: b.cursor, Obj: obj, Val: val})
}

// InsObj emits InsObj(obj, pairs).
func (b *PatchBuilder) InsObj(obj common.Timestamp, pairs []crdt.ObjPair) common.Timestamp {
	return b.push(InsObjOp{Id: b.cursor, Obj: obj, Pairs: pairs})
}

// InsVec emits InsVec(obj, pairs).
func (b *PatchBuilder) InsVec(obj common.Timestamp, pairs []crdt.VecPair) common.Timestamp {
	return b.push(InsVecOp{Id: b.cursor, Obj: obj, Pairs: pairs})
}

// InsStr emits InsStr(obj, after, text).
func (b *PatchBuilder) InsStr(obj, after common.Timestamp, text []rune) common.Timestamp {
	return b.push(InsStrOp{Id: b.cursor, Obj: obj, After: after, Data: text})
}

// InsBin emits InsBin(obj, after, data).
func (b *PatchBuilder) InsBin(obj, after common.Timestamp, data []byte) common.Timestamp {
	return b.push(InsBinOp{Id: b.cursor, Obj: obj, After: after, Data: data})
}

// InsArr emits InsArr(obj, after, data).
func (b *PatchBuilder) InsArr(obj, after common.Timestamp, data []common.Timestamp) common.Timestamp {
	return b.push(InsArrOp{Id: b.cursor, Obj: obj, After: after, Data: data})
}

// UpdArr emits UpdArr(obj, ref, val).
func (b *PatchBuilder) UpdArr(obj, ref, val common.Timestamp) common.Timestamp {
	return b.push(UpdArrOp{Id: b.cursor, Obj: obj, Ref: ref, Val: val})
}

// Del emits Del(obj, what).
func (b *PatchBuilder) Del(obj common.Timestamp, what []crdt.Span) common.Timestamp {
	return b.push(DelOp{Id: b.cursor, Obj: obj, What: what})
}

// Root is shorthand for InsVal(ORIGIN, nodeID): moving the document root.
func (b *PatchBuilder) Root(nodeID common.Timestamp) common.Timestamp {
	return b.InsVal(common.Origin, nodeID)
}

// SetVal is an alias for InsVal, named to mirror the spec's editing-surface
// vocabulary.
func (b *PatchBuilder) SetVal(obj, val common.Timestamp) common.Timestamp {
	return b.InsVal(obj, val)
}

// Nop emits a Nop reserving length time units, used when rebasing.
func (b *PatchBuilder) Nop(length uint64) common.Timestamp {
	return b.push(NopOp{Id: b.cursor, Length: length})
}

// Build recursively constructs a CRDT tree for an arbitrary JSON value
// (nil, bool, float64, string, []byte, []interface{}, map[string]interface{})
// and returns the root of the newly built tree (§4.8: "recursive build").
// Strings and byte slices become collaborative Str/Bin nodes; everything
// else that isn't a container becomes a Con.
func (b *PatchBuilder) Build(value interface{}) common.Timestamp {
	switch v := value.(type) {
	case string:
		id := b.StrNode()
		if len(v) > 0 {
			b.InsStr(id, common.Origin, []rune(v))
		}
		return id
	case []byte:
		id := b.Bin()
		if len(v) > 0 {
			b.InsBin(id, common.Origin, v)
		}
		return id
	case []interface{}:
		id := b.Arr()
		ids := make([]common.Timestamp, len(v))
		for i, e := range v {
			ids[i] = b.Build(e)
		}
		if len(ids) > 0 {
			b.InsArr(id, common.Origin, ids)
		}
		return id
	case map[string]interface{}:
		id := b.Obj()
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]crdt.ObjPair, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, crdt.ObjPair{Key: k, Value: b.Build(v[k])})
		}
		if len(pairs) > 0 {
			b.InsObj(id, pairs)
		}
		return id
	default:
		return b.ConVal(v)
	}
}

// Set replaces the document root with a freshly built tree for value,
// returning the patch id of the root-moving InsVal.
func (b *PatchBuilder) Set(value interface{}) common.Timestamp {
	nodeID := b.Build(value)
	return b.Root(nodeID)
}

// Flush returns the accumulated Patch and resets the op buffer, retaining
// the cursor so a subsequent builder session continues from where this one
// left off.
func (b *PatchBuilder) Flush() *Patch {
	p := &Patch{Ops: b.ops}
	b.ops = nil
	return p
}

// Len reports how many ops are currently buffered.
func (b *PatchBuilder) Len() int { return len(b.ops) }
