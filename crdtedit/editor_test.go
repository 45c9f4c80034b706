package crdtedit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
)

func setup(t *testing.T, value interface{}) *Editor {
	t.Helper()
	m := crdt.NewModel(1)
	e := New(m)
	_, err := e.Set(value)
	require.NoError(t, err)
	return e
}

func TestEditorSetReplacesWholeDocument(t *testing.T) {
	e := setup(t, map[string]interface{}{"a": float64(1)})
	require.Equal(t, map[string]interface{}{"a": float64(1)}, e.Model.View())

	_, err := e.Set("scalar now")
	require.NoError(t, err)
	require.Equal(t, "scalar now", e.Model.View())
}

func TestEditorObjSetAndDel(t *testing.T) {
	e := setup(t, map[string]interface{}{"a": float64(1)})
	objID, err := e.Find(ParsePath("/"))
	require.NoError(t, err)

	_, err = e.ObjSet(objID, "b", "two")
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"a": float64(1), "b": "two"}, e.Model.View())

	_, err = e.ObjDel(objID, "a")
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"a": nil, "b": "two"}, e.Model.View())
}

func TestEditorVecSetOutOfBounds(t *testing.T) {
	m := crdt.NewModel(1)
	e := New(m)
	_, err := e.Set(nil)
	require.NoError(t, err)

	var errOOB common.ErrOutOfBounds
	_, err = e.VecSet(common.Origin, -1, "x")
	require.ErrorAs(t, err, &errOOB)
}

func TestEditorStrInsAndDel(t *testing.T) {
	e := setup(t, "hello")
	strID, err := e.Find(nil)
	require.NoError(t, err)

	_, err = e.StrIns(strID, 5, " world")
	require.NoError(t, err)
	require.Equal(t, "hello world", e.Model.View())

	_, err = e.StrDel(strID, 0, 6)
	require.NoError(t, err)
	require.Equal(t, "world", e.Model.View())
}

func TestEditorStrInsEmptyIsRejected(t *testing.T) {
	e := setup(t, "hello")
	strID, err := e.Find(nil)
	require.NoError(t, err)

	_, err = e.StrIns(strID, 0, "")
	require.Error(t, err)
	require.IsType(t, common.ErrEmptyWrite{}, err)
}

func TestEditorStrInsOutOfBoundsDoesNotPanic(t *testing.T) {
	e := setup(t, "hi")
	strID, err := e.Find(nil)
	require.NoError(t, err)

	_, err = e.StrIns(strID, 99, "x")
	require.Error(t, err)
	var errOOB common.ErrOutOfBounds
	require.ErrorAs(t, err, &errOOB)
}

func TestEditorArrInsDelUpd(t *testing.T) {
	e := setup(t, []interface{}{"a", "b", "c"})
	arrID, err := e.Find(nil)
	require.NoError(t, err)

	_, err = e.ArrIns(arrID, 1, []interface{}{"x"})
	require.NoError(t, err)
	require.Equal(t, []interface{}{"a", "x", "b", "c"}, e.Model.View())

	_, err = e.ArrDel(arrID, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []interface{}{"b", "c"}, e.Model.View())

	_, err = e.ArrUpd(arrID, 0, "replaced")
	require.NoError(t, err)
	require.Equal(t, []interface{}{"replaced", "c"}, e.Model.View())
}

func TestEditorArrDelOutOfBoundsDoesNotPanic(t *testing.T) {
	e := setup(t, []interface{}{"a"})
	arrID, err := e.Find(nil)
	require.NoError(t, err)

	_, err = e.ArrDel(arrID, 0, 5)
	require.Error(t, err)
	var errOOB common.ErrOutOfBounds
	require.ErrorAs(t, err, &errOOB)
}

func TestFindWalksNestedObjAndArr(t *testing.T) {
	e := setup(t, map[string]interface{}{
		"items": []interface{}{"first", "second"},
	})
	id, err := e.Find(ParsePath("/items/1"))
	require.NoError(t, err)
	require.Equal(t, "second", e.Model.ViewOf(id))
}
