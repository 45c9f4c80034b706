package common

import "sort"

// interval is a half-open [Start, End) range of logical time observed for
// one session.
type interval struct {
	Start, End uint64
}

// rangeSet is a sorted, non-overlapping, non-adjacent set of intervals used
// to deduplicate out-of-order patch delivery (§9: a high-water mark alone is
// not enough once deliveries can arrive with gaps).
type rangeSet struct {
	ranges []interval
}

func (r *rangeSet) contains(start, end uint64) bool {
	for _, iv := range r.ranges {
		if iv.Start <= start && end <= iv.End {
			return true
		}
	}
	return false
}

// insert adds [start,end), merging it with every existing range it
// intersects or touches so the set stays non-overlapping and non-adjacent.
func (r *rangeSet) insert(start, end uint64) {
	if start >= end {
		return
	}
	merged := interval{Start: start, End: end}
	out := r.ranges[:0:0]
	inserted := false
	for _, iv := range r.ranges {
		if iv.End < merged.Start || iv.Start > merged.End {
			out = append(out, iv)
			continue
		}
		if iv.Start < merged.Start {
			merged.Start = iv.Start
		}
		if iv.End > merged.End {
			merged.End = iv.End
		}
	}
	_ = inserted
	out = append(out, merged)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	r.ranges = out
}

func (r *rangeSet) max() (uint64, bool) {
	if len(r.ranges) == 0 {
		return 0, false
	}
	return r.ranges[len(r.ranges)-1].End, true
}

// Clock is a peer's view of logical time: its own tick counter plus the
// highest-observed time and the observed-ranges dedup set for every session
// it has seen ops from, including its own.
type Clock struct {
	Sid    uint64
	ranges map[uint64]*rangeSet
}

// NewClock creates a clock for the local session sid, with its own time
// starting at 0 (no ops reserved yet).
func NewClock(sid uint64) *Clock {
	c := &Clock{Sid: sid, ranges: make(map[uint64]*rangeSet)}
	c.ranges[sid] = &rangeSet{}
	return c
}

func (c *Clock) rangeSetFor(sid uint64) *rangeSet {
	rs, ok := c.ranges[sid]
	if !ok {
		rs = &rangeSet{}
		c.ranges[sid] = rs
	}
	return rs
}

// Observe records that [stamp.Time, stamp.Time+span) has been applied for
// stamp.Sid. Idempotent for already-observed ranges. Fails with
// ErrCausality if the local session's own ops are observed skipping ahead
// of its reservable time by more than one tick's worth of slack.
func (c *Clock) Observe(stamp Timestamp, span uint64) error {
	if span == 0 {
		span = 1
	}
	if stamp.Sid == c.Sid {
		local := c.LocalTime()
		if stamp.Time > local+1 {
			return ErrCausality{Message: "local tick skipped beyond local clock"}
		}
	}
	c.rangeSetFor(stamp.Sid).insert(stamp.Time, stamp.Time+span)
	return nil
}

// Contains reports whether a prior observation already covers stamp.
func (c *Clock) Contains(stamp Timestamp) bool {
	rs, ok := c.ranges[stamp.Sid]
	if !ok {
		return false
	}
	return rs.contains(stamp.Time, stamp.Time+1)
}

// ContainsRange reports whether [stamp.Time, stamp.Time+span) is fully
// covered by prior observations, used to skip whole ops/chunks at once.
func (c *Clock) ContainsRange(stamp Timestamp, span uint64) bool {
	if span == 0 {
		span = 1
	}
	rs, ok := c.ranges[stamp.Sid]
	if !ok {
		return false
	}
	return rs.contains(stamp.Time, stamp.Time+span)
}

// LocalTime returns one past the highest time observed for the local
// session (the next time Tick would reserve), or 0 if none has been
// reserved yet.
func (c *Clock) LocalTime() uint64 {
	if max, ok := c.rangeSetFor(c.Sid).max(); ok {
		return max
	}
	return 0
}

// Tick reserves the next time unit on the local session and returns its
// freshly allocated Timestamp.
func (c *Clock) Tick() Timestamp {
	return c.TickSpan(1)
}

// TickSpan reserves span contiguous time units on the local session,
// returning the Timestamp of the first one.
func (c *Clock) TickSpan(span uint64) Timestamp {
	if span == 0 {
		span = 1
	}
	t := c.LocalTime()
	stamp := Timestamp{Sid: c.Sid, Time: t}
	c.rangeSetFor(c.Sid).insert(t, t+span)
	return stamp
}

// GetTime returns one past the highest observed time for sid (0 if never
// observed),
// mirroring a vector-clock lookup for codecs that only need the high-water
// mark rather than the full interval set.
func (c *Clock) GetTime(sid uint64) uint64 {
	if max, ok := c.rangeSetFor(sid).max(); ok {
		return max
	}
	return 0
}

// Sessions returns every sid this clock has observed, local session first.
func (c *Clock) Sessions() []uint64 {
	out := make([]uint64, 0, len(c.ranges))
	out = append(out, c.Sid)
	for sid := range c.ranges {
		if sid != c.Sid {
			out = append(out, sid)
		}
	}
	sort.Slice(out[1:], func(i, j int) bool { return out[i+1] < out[j+1] })
	return out
}

// Clone returns a deep copy of the clock, used by the Log's start() factory
// to hand out independent baselines.
func (c *Clock) Clone() *Clock {
	cl := &Clock{Sid: c.Sid, ranges: make(map[uint64]*rangeSet, len(c.ranges))}
	for sid, rs := range c.ranges {
		cp := make([]interval, len(rs.ranges))
		copy(cp, rs.ranges)
		cl.ranges[sid] = &rangeSet{ranges: cp}
	}
	return cl
}

// ClockTable is the ordered `[(sid, time), …]` list codecs use to encode
// relative timestamps; index 0 is always the local session (§3.1).
type ClockTable struct {
	Entries []Timestamp
	index   map[uint64]int
}

// NewClockTable builds a table from a Clock, local session first, remaining
// sessions in ascending sid order.
func NewClockTable(c *Clock) *ClockTable {
	sessions := c.Sessions()
	t := &ClockTable{
		Entries: make([]Timestamp, 0, len(sessions)),
		index:   make(map[uint64]int, len(sessions)),
	}
	for _, sid := range sessions {
		t.index[sid] = len(t.Entries)
		t.Entries = append(t.Entries, Timestamp{Sid: sid, Time: c.GetTime(sid)})
	}
	return t
}

// IndexOf returns the session index for sid, and whether it is present.
func (t *ClockTable) IndexOf(sid uint64) (int, bool) {
	i, ok := t.index[sid]
	return i, ok
}

// SidAt returns the session id stored at a table index.
func (t *ClockTable) SidAt(i int) (uint64, error) {
	if i < 0 || i >= len(t.Entries) {
		return 0, ErrInvalidSessionIndex{Index: i}
	}
	return t.Entries[i].Sid, nil
}

// BaseTimeAt returns the base time recorded for a table index, used to
// compute time_diff during relative-timestamp decoding.
func (t *ClockTable) BaseTimeAt(i int) (uint64, error) {
	if i < 0 || i >= len(t.Entries) {
		return 0, ErrInvalidSessionIndex{Index: i}
	}
	return t.Entries[i].Time, nil
}

// Len returns the number of sessions in the table.
func (t *ClockTable) Len() int { return len(t.Entries) }

// EnsureIndex returns the session index for sid, appending a fresh entry at
// the end of the table (with the given base time) if sid wasn't already
// present. Used while encoding, when an op references a session not yet
// seen locally.
func (t *ClockTable) EnsureIndex(sid, baseTime uint64) int {
	if i, ok := t.index[sid]; ok {
		return i
	}
	i := len(t.Entries)
	t.index[sid] = i
	t.Entries = append(t.Entries, Timestamp{Sid: sid, Time: baseTime})
	return i
}
