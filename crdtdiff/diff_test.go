package crdtdiff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
	"github.com/crdtkit/jsoncrdt/crdtpatch"
)

func newModelWith(t *testing.T, value interface{}) *crdt.Model {
	t.Helper()
	m := crdt.NewModel(1)
	b := crdtpatch.NewPatchBuilderAt(common.Timestamp{Sid: 1, Time: 0})
	b.Set(value)
	require.NoError(t, b.Flush().Apply(m))
	return m
}

func diffAndApply(t *testing.T, m *crdt.Model, target interface{}) {
	t.Helper()
	patch, err := Diff(m, target)
	require.NoError(t, err)
	require.NoError(t, patch.Apply(m))
	require.Equal(t, target, m.View())
}

func TestDiffEmptyModelBuildsFromScratch(t *testing.T) {
	m := crdt.NewModel(1)
	diffAndApply(t, m, map[string]interface{}{"a": "hello"})
}

func TestDiffNoopWhenAlreadyEqual(t *testing.T) {
	m := newModelWith(t, map[string]interface{}{"a": float64(1)})
	patch, err := Diff(m, map[string]interface{}{"a": float64(1)})
	require.NoError(t, err)
	require.Empty(t, patch.Ops)
}

func TestDiffObjAddsRemovesAndChangesKeys(t *testing.T) {
	m := newModelWith(t, map[string]interface{}{"a": float64(1), "b": "keep"})
	diffAndApply(t, m, map[string]interface{}{"b": "keep", "c": float64(2)})
}

func TestDiffStrInPlaceEdit(t *testing.T) {
	m := newModelWith(t, "hello world")
	diffAndApply(t, m, "hello brave world")
}

func TestDiffStrFullReplaceWhenTypeChanges(t *testing.T) {
	m := newModelWith(t, "hello")
	diffAndApply(t, m, float64(42))
}

func TestDiffArrReordersViaKeepDelIns(t *testing.T) {
	m := newModelWith(t, []interface{}{"a", "b", "c"})
	diffAndApply(t, m, []interface{}{"a", "x", "c", "y"})
}

func TestDiffArrToEmpty(t *testing.T) {
	m := newModelWith(t, []interface{}{"a", "b", "c"})
	diffAndApply(t, m, []interface{}{})
}

func TestDiffVecExtendsWithoutTruncating(t *testing.T) {
	m := crdt.NewModel(1)
	b := crdtpatch.NewPatchBuilderAt(common.Timestamp{Sid: 1, Time: 0})
	vecID := b.Vec()
	b.InsVec(vecID, []crdt.VecPair{{Index: 0, Value: b.ConVal("x")}})
	b.Root(vecID)
	require.NoError(t, b.Flush().Apply(m))

	patch, err := Diff(m, []interface{}{"x", "y"})
	require.NoError(t, err)
	require.NoError(t, patch.Apply(m))
	require.Equal(t, []interface{}{"x", "y"}, m.View())
}
