package crdtlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
	"github.com/crdtkit/jsoncrdt/crdtpatch"
)

func buildPatch(t *testing.T, sid, startTime uint64, value interface{}) *crdtpatch.Patch {
	t.Helper()
	b := crdtpatch.NewPatchBuilderAt(common.Timestamp{Sid: sid, Time: startTime})
	b.Set(value)
	return b.Flush()
}

func TestFromNewModelReplaysToMatchEnd(t *testing.T) {
	m := crdt.NewModel(1)
	log := FromNewModel(m)

	p := buildPatch(t, 1, 0, "hello")
	require.NoError(t, log.Apply(p))
	require.Equal(t, "hello", log.End.View())

	replayed, err := log.ReplayToEnd()
	require.NoError(t, err)
	require.Equal(t, "hello", replayed.View())
}

func TestFromModelFreezesBaseline(t *testing.T) {
	m := crdt.NewModel(1)
	p := buildPatch(t, 1, 0, "base")
	require.NoError(t, p.Apply(m))

	log, err := FromModel(m)
	require.NoError(t, err)
	require.Equal(t, "base", log.End.View())

	start, err := log.Start()
	require.NoError(t, err)
	require.Equal(t, "base", start.View())
}

func TestReplayOrderIndependentOfRecordOrder(t *testing.T) {
	m := crdt.NewModel(1)
	log := FromNewModel(m)

	p2 := buildPatch(t, 2, 10, "from-sid-2")
	p1 := buildPatch(t, 1, 0, "from-sid-1")

	// Record out of timestamp order; the log must still replay in time order.
	log.Record(p2)
	log.Record(p1)

	replayed, err := log.ReplayToEnd()
	require.NoError(t, err)
	// p2 carries the later timestamp, so it must win the root register's LWW
	// regardless of the order the two patches were recorded in.
	require.Equal(t, "from-sid-2", replayed.View())
}

func TestAdvanceToBakesHistoryIntoBaseline(t *testing.T) {
	m := crdt.NewModel(1)
	log := FromNewModel(m)

	p1 := buildPatch(t, 1, 0, "first")
	require.NoError(t, log.Apply(p1))
	p2 := buildPatch(t, 1, uint64(log.End.Clock.LocalTime()), "second")
	require.NoError(t, log.Apply(p2))

	require.NoError(t, log.AdvanceTo(p1.ID()))

	start, err := log.Start()
	require.NoError(t, err)
	require.Equal(t, "first", start.View())

	full, err := log.ReplayToEnd()
	require.NoError(t, err)
	require.Equal(t, "second", full.View())
}

func TestRebaseBatchShiftsOntoLatestPatch(t *testing.T) {
	m := crdt.NewModel(5)
	log := FromNewModel(m)

	existing := buildPatch(t, 5, 0, "existing")
	require.NoError(t, log.Apply(existing))

	batch := []*crdtpatch.Patch{buildPatch(t, 7, 0, "incoming")}
	rebased, err := log.RebaseBatch(batch, nil)
	require.NoError(t, err)
	require.Len(t, rebased, 1)

	require.True(t, existing.ID().Time+existing.Span() <= rebased[0].ID().Time)
	require.Equal(t, uint64(7), rebased[0].ID().Sid)
}

func TestCloneIsIndependent(t *testing.T) {
	m := crdt.NewModel(1)
	log := FromNewModel(m)
	require.NoError(t, log.Apply(buildPatch(t, 1, 0, "original")))

	clone, err := log.Clone()
	require.NoError(t, err)

	require.NoError(t, clone.Apply(buildPatch(t, 1, uint64(clone.End.Clock.LocalTime()), "cloned-only")))
	require.Equal(t, "original", log.End.View())
	require.Equal(t, "cloned-only", clone.End.View())
}
