package crdtpatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
)

func TestBuilderConValAdvancesCursorBySpanOne(t *testing.T) {
	b := NewPatchBuilder(1, 0)
	id := b.ConVal("x")
	require.Equal(t, common.Timestamp{Sid: 1, Time: 0}, id)
	require.Equal(t, common.Timestamp{Sid: 1, Time: 1}, b.Cursor())
}

func TestBuilderInsStrAdvancesCursorByDataLength(t *testing.T) {
	b := NewPatchBuilder(1, 0)
	strID := b.StrNode()
	b.InsStr(strID, common.Origin, []rune("hello"))
	require.Equal(t, common.Timestamp{Sid: 1, Time: 6}, b.Cursor())
}

func TestBuilderSetBuildsTreeAndMovesRoot(t *testing.T) {
	b := NewPatchBuilder(1, 0)
	b.Set(map[string]interface{}{"a": float64(1), "b": "two"})

	m := crdt.NewModel(1)
	require.NoError(t, b.Flush().Apply(m))
	require.Equal(t, map[string]interface{}{"a": float64(1), "b": "two"}, m.View())
}

func TestBuilderBuildNestedArrayAndObject(t *testing.T) {
	b := NewPatchBuilder(1, 0)
	b.Set([]interface{}{
		map[string]interface{}{"k": "v"},
		"plain",
		float64(3),
	})

	m := crdt.NewModel(1)
	require.NoError(t, b.Flush().Apply(m))
	require.Equal(t, []interface{}{
		map[string]interface{}{"k": "v"},
		"plain",
		float64(3),
	}, m.View())
}

func TestBuilderFlushResetsOpsButKeepsCursor(t *testing.T) {
	b := NewPatchBuilder(1, 0)
	b.ConVal("a")
	require.Equal(t, 1, b.Len())

	p := b.Flush()
	require.Len(t, p.Ops, 1)
	require.Equal(t, 0, b.Len())

	cursorBefore := b.Cursor()
	b.ConVal("b")
	require.Equal(t, cursorBefore, p.Ops[0].ID().Add(1))
}

func TestPatchIDAndSpan(t *testing.T) {
	b := NewPatchBuilder(3, 10)
	b.ConVal("x")
	b.StrNode()
	p := b.Flush()

	require.Equal(t, common.Timestamp{Sid: 3, Time: 10}, p.ID())
	require.Equal(t, uint64(2), p.Span())
}

func TestPatchRewriteTimeShiftsAllOpsBySameOffset(t *testing.T) {
	b := NewPatchBuilder(4, 0)
	objID := b.Obj()
	childID := b.ConVal("v")
	b.InsObj(objID, []crdt.ObjPair{{Key: "k", Value: childID}})
	p := b.Flush()

	rebased, err := p.RewriteTime(common.Timestamp{Sid: 4, Time: 100})
	require.NoError(t, err)
	require.Equal(t, common.Timestamp{Sid: 4, Time: 100}, rebased.ID())

	m := crdt.NewModel(4)
	require.NoError(t, rebased.Apply(m))
	view := m.ViewOf(common.Timestamp{Sid: 4, Time: 100})
	require.Equal(t, map[string]interface{}{"k": "v"}, view)
}

func TestPatchRewriteTimeRejectsDifferentSession(t *testing.T) {
	b := NewPatchBuilder(4, 0)
	b.ConVal("v")
	p := b.Flush()

	_, err := p.RewriteTime(common.Timestamp{Sid: 5, Time: 100})
	require.Error(t, err)
}

func TestPatchCloneIsIndependentOpsSlice(t *testing.T) {
	b := NewPatchBuilder(1, 0)
	b.ConVal("a")
	p := b.Flush()

	clone := p.Clone()
	require.Equal(t, p.Ops, clone.Ops)

	b2 := NewPatchBuilder(1, 1)
	b2.ConVal("b")
	clone.Ops = append(clone.Ops, b2.Flush().Ops...)
	require.Len(t, p.Ops, 1)
	require.Len(t, clone.Ops, 2)
}
