// Package crdtdiff computes the minimal patch that moves a model's current
// view to a target JSON value (§4.8), walking the arena and the target
// value in parallel and only rebuilding the subtrees that actually changed.
package crdtdiff

import (
	"reflect"
	"sort"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
	"github.com/crdtkit/jsoncrdt/crdtpatch"
)

// Diff returns a patch that, applied to m, makes its view deep-equal to
// target. Returns a patch with no ops if the view already matches.
func Diff(m *crdt.Model, target interface{}) (*crdtpatch.Patch, error) {
	b := crdtpatch.NewPatchBuilderAt(common.Timestamp{Sid: m.Clock.Sid, Time: m.Clock.LocalTime()})
	root := m.Root()
	diffSlot(b, m, root.Val, target, func(newChild common.Timestamp) {
		b.InsVal(common.Origin, newChild)
	})
	return b.Flush(), nil
}

// diffSlot reconciles one child slot (an existing node id, possibly ORIGIN
// meaning "unset") against target, calling setter with a freshly built
// replacement id only when the existing node can't be reconciled in place.
func diffSlot(b *crdtpatch.PatchBuilder, m *crdt.Model, curID common.Timestamp, target interface{}, setter func(common.Timestamp)) {
	if target == nil {
		if !curID.IsOrigin() {
			setter(common.Origin)
		}
		return
	}
	node, ok := m.Arena.Get(curID)
	if !ok || curID.IsOrigin() {
		setter(b.Build(target))
		return
	}
	switch t := target.(type) {
	case string:
		if s, ok := node.(*crdt.StrNode); ok {
			diffStr(b, s, []rune(t))
			return
		}
		setter(b.Build(target))
	case []byte:
		if bn, ok := node.(*crdt.BinNode); ok {
			diffBin(b, bn, t)
			return
		}
		setter(b.Build(target))
	case []interface{}:
		switch n := node.(type) {
		case *crdt.ArrNode:
			diffArr(b, m, n, t)
		case *crdt.VecNode:
			diffVec(b, m, n, t)
		default:
			setter(b.Build(target))
		}
	case map[string]interface{}:
		if o, ok := node.(*crdt.ObjNode); ok {
			diffObj(b, m, o, t)
			return
		}
		setter(b.Build(target))
	default:
		if c, ok := node.(*crdt.ConNode); ok && !c.IsRef && reflect.DeepEqual(c.Value, target) {
			return
		}
		setter(b.Build(target))
	}
}

func diffObj(b *crdtpatch.PatchBuilder, m *crdt.Model, node *crdt.ObjNode, target map[string]interface{}) {
	keys := make(map[string]bool, len(node.Keys)+len(target))
	for k := range node.Keys {
		keys[k] = true
	}
	for k := range target {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		tv, inTarget := target[k]
		cur, inCur := node.Get(k)
		if !inTarget {
			if inCur {
				nullID := b.ConVal(nil)
				b.InsObj(node.Id, []crdt.ObjPair{{Key: k, Value: nullID}})
			}
			continue
		}
		diffSlot(b, m, cur, tv, func(newChild common.Timestamp) {
			b.InsObj(node.Id, []crdt.ObjPair{{Key: k, Value: newChild}})
		})
	}
}

func diffVec(b *crdtpatch.PatchBuilder, m *crdt.Model, node *crdt.VecNode, target []interface{}) {
	for i, tv := range target {
		var cur common.Timestamp
		if i < node.Len() {
			cur, _ = node.Get(i)
		}
		idx := i
		diffSlot(b, m, cur, tv, func(newChild common.Timestamp) {
			b.InsVec(node.Id, []crdt.VecPair{{Index: idx, Value: newChild}})
		})
	}
}

// diffArr reconciles an Arr node's live elements against target by matching
// elements whose current view is deep-equal, via a longest-common-
// subsequence pass, then deleting unmatched originals and inserting
// newly-built subtrees for unmatched targets (§4.8).
func diffArr(b *crdtpatch.PatchBuilder, m *crdt.Model, node *crdt.ArrNode, target []interface{}) {
	refs := node.RGA.VisibleValues()
	curViews := make([]interface{}, len(refs))
	for i, r := range refs {
		curViews[i] = m.ViewOf(r)
	}
	script := diffScript(curViews, target, func(a, bv interface{}) bool { return reflect.DeepEqual(a, bv) })

	i, aCursor := 0, 0
	for i < len(script) {
		op := script[i]
		switch op.kind {
		case editKeep:
			aCursor++
			i++
		case editDel:
			spans := node.RGA.Interval(aCursor, 1)
			b.Del(node.Id, spans)
			aCursor++
			i++
		case editIns:
			anchor := insertAnchor(node.RGA, aCursor)
			var run []interface{}
			j := i
			for j < len(script) && script[j].kind == editIns {
				run = append(run, target[script[j].bIdx])
				j++
			}
			ids := make([]common.Timestamp, len(run))
			for k, v := range run {
				ids[k] = b.Build(v)
			}
			b.InsArr(node.Id, anchor, ids)
			i = j
		}
	}
}

// insertAnchor finds the RGA element id of the original live element
// immediately preceding aCursor original elements already consumed, or
// ORIGIN at the front.
func insertAnchor(rga *crdt.RGA[common.Timestamp], aCursor int) common.Timestamp {
	return positionOrOrigin(rga, aCursor)
}

func diffStr(b *crdtpatch.PatchBuilder, node *crdt.StrNode, target []rune) {
	cur := node.RGA.VisibleValues()
	script := diffScript(cur, target, func(a, bv rune) bool { return a == bv })
	applySeqScript(node.RGA, script, target, func(run []rune, anchor common.Timestamp) {
		b.InsStr(node.Id, anchor, run)
	}, func(spans []crdt.Span) { b.Del(node.Id, spans) })
}

func diffBin(b *crdtpatch.PatchBuilder, node *crdt.BinNode, target []byte) {
	cur := node.RGA.VisibleValues()
	script := diffScript(cur, target, func(a, bv byte) bool { return a == bv })
	applySeqScript(node.RGA, script, target, func(run []byte, anchor common.Timestamp) {
		b.InsBin(node.Id, anchor, run)
	}, func(spans []crdt.Span) { b.Del(node.Id, spans) })
}

func positionOrOrigin[T any](rga *crdt.RGA[T], liveIndex int) common.Timestamp {
	if liveIndex <= 0 {
		return common.Origin
	}
	if ts, ok := rga.PositionOf(liveIndex - 1); ok {
		return ts
	}
	return common.Origin
}

// applySeqScript walks a keep/del/ins script for a Str or Bin node, batching
// contiguous inserts into one op and issuing one Del per removed element.
func applySeqScript[T any](rga *crdt.RGA[T], script []editOp, target []T, insert func([]T, common.Timestamp), del func([]crdt.Span)) {
	i, aCursor := 0, 0
	for i < len(script) {
		op := script[i]
		switch op.kind {
		case editKeep:
			aCursor++
			i++
		case editDel:
			del(rga.Interval(aCursor, 1))
			aCursor++
			i++
		case editIns:
			anchor := positionOrOrigin(rga, aCursor)
			var run []T
			j := i
			for j < len(script) && script[j].kind == editIns {
				run = append(run, target[script[j].bIdx])
				j++
			}
			insert(run, anchor)
			i = j
		}
	}
}
