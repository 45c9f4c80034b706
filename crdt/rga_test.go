package crdt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crdtkit/jsoncrdt/common"
)

func ts(sid, time uint64) common.Timestamp { return common.Timestamp{Sid: sid, Time: time} }

func TestRGASequentialInsertProducesOrderedValues(t *testing.T) {
	r := NewRGA[rune]()
	require.True(t, r.Insert(common.Origin, ts(1, 0), []rune("hello")))
	require.Equal(t, []rune("hello"), r.VisibleValues())

	require.True(t, r.Insert(ts(1, 4), ts(1, 5), []rune(" world")))
	require.Equal(t, []rune("hello world"), r.VisibleValues())
}

func TestRGAInsertAtMissingAnchorIsLazyDrop(t *testing.T) {
	r := NewRGA[rune]()
	require.True(t, r.Insert(common.Origin, ts(1, 0), []rune("abc")))

	ok := r.Insert(ts(9, 100), ts(1, 3), []rune("x"))
	require.False(t, ok)
	require.Equal(t, []rune("abc"), r.VisibleValues())
}

// TestRGAConcurrentInsertTieBreak exercises the "BA" scenario: two sessions
// insert concurrently at the same anchor; the higher (time, sid) id wins the
// earlier position, so its data appears first.
func TestRGAConcurrentInsertTieBreak(t *testing.T) {
	r := NewRGA[rune]()
	require.True(t, r.Insert(common.Origin, ts(1, 0), []rune("_")))

	require.True(t, r.Insert(ts(1, 0), ts(1, 1), []rune("A")))
	require.True(t, r.Insert(ts(1, 0), ts(2, 5), []rune("B")))

	require.Equal(t, []rune("_BA"), r.VisibleValues())
}

func TestRGADeleteTombstonesAndIsIdempotent(t *testing.T) {
	r := NewRGA[rune]()
	require.True(t, r.Insert(common.Origin, ts(1, 0), []rune("hello")))

	r.Delete([]Span{{Sid: 1, Time: 1, Length: 3}})
	require.Equal(t, []rune("ho"), r.VisibleValues())

	// Deleting the same range again is a silent no-op.
	r.Delete([]Span{{Sid: 1, Time: 1, Length: 3}})
	require.Equal(t, []rune("ho"), r.VisibleValues())
}

func TestRGADeleteOnUnknownChunkIsNoop(t *testing.T) {
	r := NewRGA[rune]()
	require.True(t, r.Insert(common.Origin, ts(1, 0), []rune("abc")))

	r.Delete([]Span{{Sid: 99, Time: 0, Length: 5}})
	require.Equal(t, []rune("abc"), r.VisibleValues())
}

func TestRGAPositionOfAndIntervalAfterSplit(t *testing.T) {
	r := NewRGA[rune]()
	require.True(t, r.Insert(common.Origin, ts(1, 0), []rune("hello")))

	r.Delete([]Span{{Sid: 1, Time: 2, Length: 1}}) // remove 'l' at index 2: "he_lo"

	require.Equal(t, []rune("helo"), r.VisibleValues())

	pos, ok := r.PositionOf(2)
	require.True(t, ok)
	require.Equal(t, ts(1, 3), pos) // skips the tombstoned 'l' at time 2

	spans := r.Interval(1, 2)
	require.NotEmpty(t, spans)
	total := 0
	for _, sp := range spans {
		total += int(sp.Length)
	}
	require.Equal(t, 2, total)
}

func TestRGASetAtOverwritesLiveElement(t *testing.T) {
	r := NewRGA[common.Timestamp]()
	a, b := ts(1, 10), ts(1, 11)
	require.True(t, r.Insert(common.Origin, ts(1, 0), []common.Timestamp{a}))

	require.True(t, r.SetAt(ts(1, 0), b))
	require.Equal(t, []common.Timestamp{b}, r.VisibleValues())

	require.False(t, r.SetAt(ts(5, 0), b))
}

func TestRGACoalesceMergesAdjacentChunksWithoutChangingValues(t *testing.T) {
	r := NewRGA[rune]()
	require.True(t, r.Insert(common.Origin, ts(1, 0), []rune("ab")))
	require.True(t, r.Insert(ts(1, 1), ts(1, 2), []rune("cd")))

	require.Equal(t, []rune("abcd"), r.VisibleValues())
	require.Equal(t, 1, r.ChunkCount())
}
