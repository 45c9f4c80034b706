package crdt

import "github.com/crdtkit/jsoncrdt/common"

// View materialises the document's current JSON value, walking Val
// indirections transparently (§3.2).
func (m *Model) View() interface{} {
	return m.viewOf(common.Origin, make(map[common.Timestamp]bool))
}

// ViewOf materialises the JSON value rooted at id, for use by the editing
// API's find/apply surface.
func (m *Model) ViewOf(id common.Timestamp) interface{} {
	return m.viewOf(id, make(map[common.Timestamp]bool))
}

func (m *Model) viewOf(id common.Timestamp, seen map[common.Timestamp]bool) interface{} {
	if seen[id] {
		return nil
	}
	seen[id] = true

	n, ok := m.Arena.Get(id)
	if !ok {
		return nil
	}
	switch t := n.(type) {
	case *ValNode:
		if t.Val.IsOrigin() {
			return nil
		}
		return m.viewOf(t.Val, seen)
	case *ConNode:
		if t.IsRef {
			return m.viewOf(t.Ref, seen)
		}
		return t.Value
	case *ObjNode:
		out := make(map[string]interface{}, len(t.Keys))
		for _, k := range t.SortedKeys() {
			child, _ := t.Get(k)
			out[k] = m.viewOf(child, seen)
		}
		return out
	case *VecNode:
		out := make([]interface{}, t.Len())
		for i := range out {
			if child, ok := t.Get(i); ok {
				out[i] = m.viewOf(child, seen)
			}
		}
		return out
	case *StrNode:
		return string(t.RGA.VisibleValues())
	case *BinNode:
		return t.RGA.VisibleValues()
	case *ArrNode:
		refs := t.RGA.VisibleValues()
		out := make([]interface{}, len(refs))
		for i, r := range refs {
			out[i] = m.viewOf(r, seen)
		}
		return out
	default:
		return nil
	}
}
