// Package crdtedit is the editing surface (§4.10): a small set of
// operations — set, obj_set/obj_del, vec_set, str_ins/str_del,
// bin_ins/bin_del, arr_ins/arr_del/arr_upd, find — that build and
// immediately apply one patch per call, so callers never see a document
// that reflects only half of a write.
package crdtedit

import (
	"strconv"
	"strings"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
)

// PathElement is one step in a Path: either an Obj key or a Vec/Arr index.
type PathElement interface {
	pathElement()
}

// Key is an object-field path step.
type Key string

func (Key) pathElement() {}

// Index is a Vec/Arr path step.
type Index int

func (Index) pathElement() {}

// Path addresses a node relative to the document root.
type Path []PathElement

// ParsePath parses a slash-separated path ("/a/0/b") into a Path. Segments
// that parse as a non-negative integer become Index steps, everything else
// becomes a Key step.
func ParsePath(s string) Path {
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "/")
	out := make(Path, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil && n >= 0 {
			out = append(out, Index(n))
			continue
		}
		out = append(out, Key(p))
	}
	return out
}

// Find resolves path against m's document, starting from the root register,
// walking through Val indirections transparently. Returns the id of the
// node found at the end of the path.
func Find(m *crdt.Model, path Path) (common.Timestamp, error) {
	cur := common.Origin
	for _, step := range path {
		node, ok := m.Arena.Get(cur)
		if !ok {
			return common.Timestamp{}, common.ErrNotFound{Path: pathString(path)}
		}
		if v, ok := node.(*crdt.ValNode); ok {
			cur = v.Val
			node, ok = m.Arena.Get(cur)
			if !ok {
				return common.Timestamp{}, common.ErrNotFound{Path: pathString(path)}
			}
		}
		switch t := step.(type) {
		case Key:
			o, ok := node.(*crdt.ObjNode)
			if !ok {
				return common.Timestamp{}, common.ErrWrongType{Want: "obj", Got: node.Kind().String()}
			}
			child, ok := o.Get(string(t))
			if !ok {
				return common.Timestamp{}, common.ErrNotFound{Path: pathString(path)}
			}
			cur = child
		case Index:
			switch n := node.(type) {
			case *crdt.VecNode:
				child, ok := n.Get(int(t))
				if !ok {
					return common.Timestamp{}, common.ErrNotFound{Path: pathString(path)}
				}
				cur = child
			case *crdt.ArrNode:
				refs := n.RGA.VisibleValues()
				if int(t) < 0 || int(t) >= len(refs) {
					return common.Timestamp{}, common.ErrOutOfBounds{Index: int(t), Length: len(refs)}
				}
				cur = refs[t]
			default:
				return common.Timestamp{}, common.ErrWrongType{Want: "vec|arr", Got: node.Kind().String()}
			}
		}
	}
	return resolveVal(m, cur), nil
}

// resolveVal follows a single layer of Val indirection, since a path step
// may land on a Val register (e.g. the document root itself).
func resolveVal(m *crdt.Model, id common.Timestamp) common.Timestamp {
	if node, ok := m.Arena.Get(id); ok {
		if v, ok := node.(*crdt.ValNode); ok {
			return v.Val
		}
	}
	return id
}

func pathString(p Path) string {
	var b strings.Builder
	for _, step := range p {
		b.WriteByte('/')
		switch t := step.(type) {
		case Key:
			b.WriteString(string(t))
		case Index:
			b.WriteString(strconv.Itoa(int(t)))
		}
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}
