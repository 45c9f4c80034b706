package crdt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crdtkit/jsoncrdt/common"
)

// TestDelObservesFullSpanNotJustOne guards against a regression where Del
// only reserved a single clock unit for a multi-span delete op, leaving the
// remainder of the op's range unobserved and breaking the clock-monotonicity
// property (get(sid) >= op.id.time + op.span) for any multi-element delete.
func TestDelObservesFullSpanNotJustOne(t *testing.T) {
	m := NewModel(1)
	require.NoError(t, m.NewArr(common.Timestamp{Sid: 1, Time: 0}))
	arrID := common.Timestamp{Sid: 1, Time: 0}
	require.NoError(t, m.InsVal(common.Timestamp{Sid: 1, Time: 1}, common.Origin, arrID))

	elems := []common.Timestamp{
		{Sid: 1, Time: 100}, {Sid: 1, Time: 101}, {Sid: 1, Time: 102}, {Sid: 1, Time: 103},
	}
	require.NoError(t, m.InsArr(common.Timestamp{Sid: 1, Time: 2}, arrID, common.Origin, elems))

	delID := common.Timestamp{Sid: 1, Time: 6}
	what := []Span{{Sid: 1, Time: 2, Length: 2}, {Sid: 1, Time: 4, Length: 2}}
	require.NoError(t, m.Del(delID, arrID, what))

	// DelOp.Span() sums What[].Length == 4, so the full [6,10) range must be
	// observed, not just [6,7).
	require.True(t, m.Clock.ContainsRange(delID, 4))
}

func TestDelWithEmptySpansObservesOneUnit(t *testing.T) {
	m := NewModel(1)
	require.NoError(t, m.NewArr(common.Timestamp{Sid: 1, Time: 1}))
	arrID := common.Timestamp{Sid: 1, Time: 1}

	delID := common.Timestamp{Sid: 1, Time: 2}
	require.NoError(t, m.Del(delID, arrID, nil))
	require.True(t, m.Clock.ContainsRange(delID, 1))
}
