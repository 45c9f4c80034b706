package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimestampCompareOrdersByTimeThenSid(t *testing.T) {
	require.Equal(t, -1, Timestamp{Sid: 1, Time: 1}.Compare(Timestamp{Sid: 1, Time: 2}))
	require.Equal(t, 1, Timestamp{Sid: 1, Time: 2}.Compare(Timestamp{Sid: 1, Time: 1}))
	require.Equal(t, -1, Timestamp{Sid: 1, Time: 5}.Compare(Timestamp{Sid: 2, Time: 5}))
	require.Equal(t, 0, Timestamp{Sid: 1, Time: 5}.Compare(Timestamp{Sid: 1, Time: 5}))
}

func TestClockTickSpanReservesContiguousRange(t *testing.T) {
	c := NewClock(1)
	first := c.TickSpan(3)
	require.Equal(t, Timestamp{Sid: 1, Time: 0}, first)
	require.Equal(t, uint64(3), c.LocalTime())

	second := c.Tick()
	require.Equal(t, Timestamp{Sid: 1, Time: 3}, second)
}

func TestClockObserveIsIdempotent(t *testing.T) {
	c := NewClock(1)
	require.NoError(t, c.Observe(Timestamp{Sid: 2, Time: 10}, 5))
	require.True(t, c.ContainsRange(Timestamp{Sid: 2, Time: 10}, 5))
	require.True(t, c.ContainsRange(Timestamp{Sid: 2, Time: 12}, 2))
	require.False(t, c.ContainsRange(Timestamp{Sid: 2, Time: 14}, 2))

	require.NoError(t, c.Observe(Timestamp{Sid: 2, Time: 10}, 5))
	require.True(t, c.ContainsRange(Timestamp{Sid: 2, Time: 10}, 5))
}

func TestClockObserveRejectsCausalitySkipOnLocalSession(t *testing.T) {
	c := NewClock(1)
	err := c.Observe(Timestamp{Sid: 1, Time: 50}, 1)
	require.Error(t, err)
	var errCausality ErrCausality
	require.ErrorAs(t, err, &errCausality)
}

func TestClockGetTimeAndSessions(t *testing.T) {
	c := NewClock(1)
	c.TickSpan(2)
	require.NoError(t, c.Observe(Timestamp{Sid: 7, Time: 20}, 4))

	require.Equal(t, uint64(2), c.GetTime(1))
	require.Equal(t, uint64(24), c.GetTime(7))
	require.Equal(t, uint64(0), c.GetTime(99))

	sessions := c.Sessions()
	require.Equal(t, uint64(1), sessions[0])
	require.Contains(t, sessions, uint64(7))
}

func TestClockCloneIsIndependent(t *testing.T) {
	c := NewClock(1)
	c.TickSpan(5)
	clone := c.Clone()

	clone.TickSpan(5)
	require.Equal(t, uint64(5), c.LocalTime())
	require.Equal(t, uint64(10), clone.LocalTime())
}

func TestClockTableRoundTripsSessions(t *testing.T) {
	c := NewClock(1)
	c.TickSpan(3)
	require.NoError(t, c.Observe(Timestamp{Sid: 2, Time: 9}, 1))

	table := NewClockTable(c)
	require.Equal(t, 2, table.Len())

	idx, ok := table.IndexOf(1)
	require.True(t, ok)
	require.Equal(t, 0, idx)

	sid, err := table.SidAt(idx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), sid)

	_, err = table.SidAt(99)
	require.Error(t, err)
}
