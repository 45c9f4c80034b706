package crdtpatch

import (
	"sort"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
)

// Compact applies the two equivalence-preserving rewrites from §4.6:
// consecutive RGA inserts on the same target fold into one op with
// concatenated data, and adjacent Del ops on the same target union their
// span lists. Compaction never reorders ops across different targets and
// is idempotent: compacting an already-compact patch is a no-op.
func Compact(p *Patch) *Patch {
	out := make([]Op, 0, len(p.Ops))
	for _, op := range p.Ops {
		if len(out) > 0 {
			if merged, ok := tryMerge(out[len(out)-1], op); ok {
				out[len(out)-1] = merged
				continue
			}
		}
		out = append(out, op)
	}
	return &Patch{Ops: out, Metadata: p.Metadata}
}

func tryMerge(a, b Op) (Op, bool) {
	switch av := a.(type) {
	case InsStrOp:
		bv, ok := b.(InsStrOp)
		if !ok || bv.Obj != av.Obj || bv.After != av.Id.Add(av.Span()-1) || bv.Id != av.Id.Add(av.Span()) {
			return nil, false
		}
		data := append(append([]rune(nil), av.Data...), bv.Data...)
		return InsStrOp{Id: av.Id, Obj: av.Obj, After: av.After, Data: data}, true

	case InsBinOp:
		bv, ok := b.(InsBinOp)
		if !ok || bv.Obj != av.Obj || bv.After != av.Id.Add(av.Span()-1) || bv.Id != av.Id.Add(av.Span()) {
			return nil, false
		}
		data := append(append([]byte(nil), av.Data...), bv.Data...)
		return InsBinOp{Id: av.Id, Obj: av.Obj, After: av.After, Data: data}, true

	case InsArrOp:
		bv, ok := b.(InsArrOp)
		if !ok || bv.Obj != av.Obj || bv.After != av.Id.Add(av.Span()-1) || bv.Id != av.Id.Add(av.Span()) {
			return nil, false
		}
		data := append(append([]common.Timestamp(nil), av.Data...), bv.Data...)
		return InsArrOp{Id: av.Id, Obj: av.Obj, After: av.After, Data: data}, true

	case DelOp:
		bv, ok := b.(DelOp)
		if !ok || bv.Obj != av.Obj || bv.Id != av.Id.Add(av.Span()) {
			return nil, false
		}
		what := mergeSpans(append(append([]crdt.Span(nil), av.What...), bv.What...))
		return DelOp{Id: av.Id, Obj: av.Obj, What: what}, true
	}
	return nil, false
}

// mergeSpans sorts spans by (sid, time) and unions any that touch or
// overlap, simplifying the interval list.
func mergeSpans(spans []crdt.Span) []crdt.Span {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Sid != spans[j].Sid {
			return spans[i].Sid < spans[j].Sid
		}
		return spans[i].Time < spans[j].Time
	})
	out := []crdt.Span{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.Sid == last.Sid && s.Time <= last.Time+last.Length {
			end := last.Time + last.Length
			if sEnd := s.Time + s.Length; sEnd > end {
				end = sEnd
			}
			last.Length = end - last.Time
			continue
		}
		out = append(out, s)
	}
	return out
}
