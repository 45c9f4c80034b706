// Package jsonpatch bridges RFC 6902 JSON Patch documents onto the editing
// API (§4.9), translating each operation into one or more crdtedit calls
// rather than implementing sequence mutation itself.
package jsonpatch

import (
	"reflect"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
	"github.com/crdtkit/jsoncrdt/crdtedit"
	"github.com/pkg/errors"
)

// Op names one JSON Patch operation, including the two sequence-editing
// extensions (str_ins/str_del) this bridge adds beyond RFC 6902 so text
// edits don't have to round-trip through whole-string replace.
type Op string

const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
	OpMove    Op = "move"
	OpCopy    Op = "copy"
	OpTest    Op = "test"
	OpStrIns  Op = "str_ins"
	OpStrDel  Op = "str_del"
)

// Operation is one entry in a JSON Patch document.
type Operation struct {
	Op    Op          `json:"op"`
	Path  string      `json:"path"`
	From  string      `json:"from,omitempty"`
	Value interface{} `json:"value,omitempty"`
	Pos   int         `json:"pos,omitempty"` // str_ins/str_del: Unicode-scalar offset
	Str   string      `json:"str,omitempty"` // str_ins: text to insert
	Len   int         `json:"len,omitempty"` // str_del: number of scalars to remove
}

// Apply effects every operation against e, in order, stopping at the first
// failure (RFC 6902 §5: a patch document is applied atomically in spirit,
// but this bridge leaves partial rollback to the caller, matching the
// editing API's own best-effort-per-call contract).
func Apply(e *crdtedit.Editor, ops []Operation) error {
	for i, op := range ops {
		if err := applyOne(e, op); err != nil {
			return errors.Wrapf(err, "op %d (%s %s)", i, op.Op, op.Path)
		}
	}
	return nil
}

func applyOne(e *crdtedit.Editor, op Operation) error {
	switch op.Op {
	case OpAdd:
		return add(e, op.Path, op.Value)
	case OpReplace:
		return replace(e, op.Path, op.Value)
	case OpRemove:
		return remove(e, op.Path)
	case OpMove:
		if isDescendant(op.From, op.Path) {
			return common.ErrInvalidChild{From: op.From, To: op.Path}
		}
		val, err := getValue(e, op.From)
		if err != nil {
			return err
		}
		if err := remove(e, op.From); err != nil {
			return err
		}
		return add(e, op.Path, val)
	case OpCopy:
		val, err := getValue(e, op.From)
		if err != nil {
			return err
		}
		return add(e, op.Path, val)
	case OpTest:
		val, err := getValue(e, op.Path)
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(val, op.Value) {
			return common.ErrTestFailed{Path: op.Path}
		}
		return nil
	case OpStrIns:
		path, err := fullPath(op.Path)
		if err != nil {
			return err
		}
		strID, err := e.Find(path)
		if err != nil {
			return err
		}
		_, err = e.StrIns(strID, op.Pos, op.Str)
		return err
	case OpStrDel:
		path, err := fullPath(op.Path)
		if err != nil {
			return err
		}
		strID, err := e.Find(path)
		if err != nil {
			return err
		}
		_, err = e.StrDel(strID, op.Pos, op.Len)
		return err
	default:
		return errors.Errorf("unknown json patch op %q", op.Op)
	}
}

func getValue(e *crdtedit.Editor, pointer string) (interface{}, error) {
	path, err := fullPath(pointer)
	if err != nil {
		return nil, err
	}
	id, err := e.Find(path)
	if err != nil {
		return nil, err
	}
	return e.Model.ViewOf(id), nil
}

// add implements both "add" and the append/extend half of "move"/"copy":
// writes value into the parent container named by pointer's last segment.
func add(e *crdtedit.Editor, pointer string, value interface{}) error {
	parent, last, err := splitPointer(pointer)
	if err != nil {
		return err
	}
	parentID, err := e.Find(parent)
	if err != nil {
		return err
	}
	node, ok := e.Model.Arena.Get(parentID)
	if !ok {
		return common.ErrNotFound{Path: pointer}
	}
	switch node.(type) {
	case *crdt.ObjNode:
		_, err := e.ObjSet(parentID, last, value)
		return err
	case *crdt.VecNode:
		idx, err := vecIndex(last)
		if err != nil {
			return err
		}
		_, err = e.VecSet(parentID, idx, value)
		return err
	case *crdt.ArrNode:
		idx, err := arrIndex(e, parentID, last, true)
		if err != nil {
			return err
		}
		_, err = e.ArrIns(parentID, idx, []interface{}{value})
		return err
	default:
		return common.ErrWrongType{Want: "obj|vec|arr", Got: node.Kind().String()}
	}
}

// replace overwrites an existing slot in place: Obj/Vec via their LWW
// write, Arr via ArrUpd so the element's identity (and any concurrent
// UpdArr race) is preserved rather than modelled as a delete+insert pair.
func replace(e *crdtedit.Editor, pointer string, value interface{}) error {
	parent, last, err := splitPointer(pointer)
	if err != nil {
		return err
	}
	parentID, err := e.Find(parent)
	if err != nil {
		return err
	}
	node, ok := e.Model.Arena.Get(parentID)
	if !ok {
		return common.ErrNotFound{Path: pointer}
	}
	switch node.(type) {
	case *crdt.ObjNode:
		_, err := e.ObjSet(parentID, last, value)
		return err
	case *crdt.VecNode:
		idx, err := vecIndex(last)
		if err != nil {
			return err
		}
		_, err = e.VecSet(parentID, idx, value)
		return err
	case *crdt.ArrNode:
		idx, err := arrIndex(e, parentID, last, false)
		if err != nil {
			return err
		}
		_, err = e.ArrUpd(parentID, idx, value)
		return err
	default:
		return common.ErrWrongType{Want: "obj|vec|arr", Got: node.Kind().String()}
	}
}

func remove(e *crdtedit.Editor, pointer string) error {
	parent, last, err := splitPointer(pointer)
	if err != nil {
		return err
	}
	parentID, err := e.Find(parent)
	if err != nil {
		return err
	}
	node, ok := e.Model.Arena.Get(parentID)
	if !ok {
		return common.ErrNotFound{Path: pointer}
	}
	switch node.(type) {
	case *crdt.ObjNode:
		_, err := e.ObjDel(parentID, last)
		return err
	case *crdt.VecNode:
		idx, err := vecIndex(last)
		if err != nil {
			return err
		}
		_, err = e.VecSet(parentID, idx, nil)
		return err
	case *crdt.ArrNode:
		idx, err := arrIndex(e, parentID, last, false)
		if err != nil {
			return err
		}
		_, err = e.ArrDel(parentID, idx, 1)
		return err
	default:
		return common.ErrWrongType{Want: "obj|vec|arr", Got: node.Kind().String()}
	}
}

func vecIndex(raw string) (int, error) {
	idx, err := parseIndex(raw)
	if err != nil {
		return 0, err
	}
	return idx, nil
}

// arrIndex resolves an Arr path segment, including RFC 6902's "-" marker
// meaning "one past the last live element" (valid only when forInsert).
func arrIndex(e *crdtedit.Editor, arrID common.Timestamp, raw string, forInsert bool) (int, error) {
	if raw == "-" {
		if !forInsert {
			return 0, common.ErrInvalidIndex{Raw: raw}
		}
		node, ok := e.Model.Arena.Get(arrID)
		if !ok {
			return 0, common.ErrNodeNotFound{ID: arrID}
		}
		a := node.(*crdt.ArrNode)
		return len(a.RGA.VisibleValues()), nil
	}
	return parseIndex(raw)
}

func parseIndex(raw string) (int, error) {
	n := 0
	if raw == "" {
		return 0, common.ErrInvalidIndex{Raw: raw}
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, common.ErrInvalidIndex{Raw: raw}
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
