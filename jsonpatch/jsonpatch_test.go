package jsonpatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
	"github.com/crdtkit/jsoncrdt/crdtedit"
)

func newEditor(t *testing.T, value interface{}) *crdtedit.Editor {
	t.Helper()
	m := crdt.NewModel(1)
	e := crdtedit.New(m)
	_, err := e.Set(value)
	require.NoError(t, err)
	return e
}

func TestApplyAddToObject(t *testing.T) {
	e := newEditor(t, map[string]interface{}{"a": float64(1)})
	err := Apply(e, []Operation{{Op: OpAdd, Path: "/b", Value: "two"}})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"a": float64(1), "b": "two"}, e.Model.View())
}

func TestApplyRemoveFromObject(t *testing.T) {
	e := newEditor(t, map[string]interface{}{"a": float64(1), "b": "two"})
	err := Apply(e, []Operation{{Op: OpRemove, Path: "/a"}})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"a": nil, "b": "two"}, e.Model.View())
}

func TestApplyReplaceInArray(t *testing.T) {
	e := newEditor(t, []interface{}{"a", "b", "c"})
	err := Apply(e, []Operation{{Op: OpReplace, Path: "/1", Value: "x"}})
	require.NoError(t, err)
	require.Equal(t, []interface{}{"a", "x", "c"}, e.Model.View())
}

func TestApplyAddAppendViaDashMarker(t *testing.T) {
	e := newEditor(t, []interface{}{"a", "b"})
	err := Apply(e, []Operation{{Op: OpAdd, Path: "/-", Value: "c"}})
	require.NoError(t, err)
	require.Equal(t, []interface{}{"a", "b", "c"}, e.Model.View())
}

func TestApplyMoveRelocatesValue(t *testing.T) {
	e := newEditor(t, map[string]interface{}{"from": "val", "to": nil})
	err := Apply(e, []Operation{{Op: OpMove, From: "/from", Path: "/to"}})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"from": nil, "to": "val"}, e.Model.View())
}

func TestApplyMoveRejectsCycleIntoDescendant(t *testing.T) {
	e := newEditor(t, map[string]interface{}{
		"a": map[string]interface{}{"b": "x"},
	})
	err := Apply(e, []Operation{{Op: OpMove, From: "/a", Path: "/a/b"}})
	require.Error(t, err)
	require.ErrorAs(t, err, new(common.ErrInvalidChild))
}

func TestApplyCopyDuplicatesValue(t *testing.T) {
	e := newEditor(t, map[string]interface{}{"a": "val"})
	err := Apply(e, []Operation{{Op: OpCopy, From: "/a", Path: "/b"}})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"a": "val", "b": "val"}, e.Model.View())
}

func TestApplyTestPassesAndFails(t *testing.T) {
	e := newEditor(t, map[string]interface{}{"a": "val"})
	require.NoError(t, Apply(e, []Operation{{Op: OpTest, Path: "/a", Value: "val"}}))

	err := Apply(e, []Operation{{Op: OpTest, Path: "/a", Value: "nope"}})
	require.Error(t, err)
	require.ErrorAs(t, err, new(common.ErrTestFailed))
}

func TestApplyStrInsAndDel(t *testing.T) {
	e := newEditor(t, map[string]interface{}{"s": "hello"})
	err := Apply(e, []Operation{
		{Op: OpStrIns, Path: "/s", Pos: 5, Str: " world"},
		{Op: OpStrDel, Path: "/s", Pos: 0, Len: 6},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"s": "world"}, e.Model.View())
}

func TestApplyStopsAtFirstError(t *testing.T) {
	e := newEditor(t, map[string]interface{}{"a": "val"})
	err := Apply(e, []Operation{
		{Op: OpAdd, Path: "/b", Value: "fine"},
		{Op: OpTest, Path: "/a", Value: "wrong"},
		{Op: OpAdd, Path: "/c", Value: "never happens"},
	})
	require.Error(t, err)
	v := e.Model.View().(map[string]interface{})
	require.Equal(t, "fine", v["b"])
	require.NotContains(t, v, "c")
}
