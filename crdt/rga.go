// Package crdt implements the node arena, the RGA sequence engine, and the
// Model apply protocol: the in-memory heart of the document.
package crdt

import "github.com/crdtkit/jsoncrdt/common"

// Chunk is a maximal run of RGA elements sharing a session, contiguous
// times, and deletion state (§3.3). Data holds one payload element per
// logical time unit in [ID.Time, ID.Time+Span); it is nil once tombstoned.
type Chunk[T any] struct {
	ID      common.Timestamp
	Span    uint64
	Deleted bool
	Data    []T
	After   common.Timestamp // the anchor this chunk's first element was inserted after
}

func (c *Chunk[T]) end() uint64 { return c.ID.Time + c.Span }

// last returns the timestamp of the chunk's final live-or-tombstoned unit.
func (c *Chunk[T]) last() common.Timestamp { return c.ID.Add(c.Span - 1) }

// RGA is a Replicated Growable Array over chunks of T: the sequence engine
// shared by Str (rune), Bin (byte), and Arr (Timestamp) nodes (§4.2).
type RGA[T any] struct {
	chunks []*Chunk[T]
}

// NewRGA returns an empty sequence.
func NewRGA[T any]() *RGA[T] { return &RGA[T]{} }

// find locates the chunk index and intra-chunk offset containing ts.
func (r *RGA[T]) find(ts common.Timestamp) (idx, offset int, found bool) {
	for i, c := range r.chunks {
		if c.ID.Sid == ts.Sid && c.ID.Time <= ts.Time && ts.Time < c.end() {
			return i, int(ts.Time - c.ID.Time), true
		}
	}
	return -1, 0, false
}

// splitAt splits chunk i into [0,offset) and [offset,span), preserving id
// continuity: the left half keeps the original id, the right half's id has
// time advanced by offset (§4.2).
func (r *RGA[T]) splitAt(i, offset int) {
	c := r.chunks[i]
	if offset <= 0 || offset >= int(c.Span) {
		return
	}
	right := &Chunk[T]{
		ID:      c.ID.Add(uint64(offset)),
		Span:    c.Span - uint64(offset),
		Deleted: c.Deleted,
		After:   c.ID.Add(uint64(offset - 1)),
	}
	if !c.Deleted {
		right.Data = append([]T(nil), c.Data[offset:]...)
	}
	c.Span = uint64(offset)
	if !c.Deleted {
		c.Data = c.Data[:offset:offset]
	}
	tail := append([]*Chunk[T]{right}, r.chunks[i+1:]...)
	r.chunks = append(r.chunks[:i+1], tail...)
}

// wins reports whether a is placed before b under the concurrent-insert
// tie-break: higher (time, sid) wins the earlier position (§4.2).
func wins(a, b common.Timestamp) bool { return a.Compare(b) > 0 }

// Insert places a fresh chunk of data immediately after the element with
// timestamp "after" (or at the very start if after is ORIGIN). Returns
// false without error if "after" cannot be located — the lazy-drop
// contract for not-yet-arrived anchors (§4.3, §9).
func (r *RGA[T]) Insert(after, id common.Timestamp, data []T) bool {
	if len(data) == 0 {
		return true
	}
	insertPos := 0
	if !after.IsOrigin() {
		ci, offset, found := r.find(after)
		if !found {
			return false
		}
		if offset < int(r.chunks[ci].Span-1) {
			r.splitAt(ci, offset+1)
		}
		insertPos = ci + 1
	}
	for insertPos < len(r.chunks) {
		next := r.chunks[insertPos]
		if next.After != after {
			break
		}
		if wins(next.ID, id) {
			insertPos++
			continue
		}
		break
	}
	newChunk := &Chunk[T]{ID: id, Span: uint64(len(data)), Data: append([]T(nil), data...), After: after}
	tail := append([]*Chunk[T]{newChunk}, r.chunks[insertPos:]...)
	r.chunks = append(r.chunks[:insertPos], tail...)
	r.coalesce()
	return true
}

// Span describes a contiguous run [Sid.Time, Sid.Time+Length) to delete or
// report as a covering interval.
type Span struct {
	Sid    uint64
	Time   uint64
	Length uint64
}

// Delete tombstones every element addressed by spans. Each span is
// idempotent: already-deleted or not-yet-present ranges are silently
// skipped (at-most-once, lazy drop for unknown chunks).
func (r *RGA[T]) Delete(spans []Span) {
	for _, sp := range spans {
		r.deleteOne(common.Timestamp{Sid: sp.Sid, Time: sp.Time}, sp.Length)
	}
	r.coalesce()
}

func (r *RGA[T]) deleteOne(start common.Timestamp, length uint64) {
	if length == 0 {
		return
	}
	remaining := length
	cursor := start
	for remaining > 0 {
		ci, offset, found := r.find(cursor)
		if !found {
			return
		}
		c := r.chunks[ci]
		avail := int(c.Span) - offset
		take := avail
		if uint64(take) > remaining {
			take = int(remaining)
		}
		if offset > 0 {
			r.splitAt(ci, offset)
			ci++
			c = r.chunks[ci]
		}
		if take < int(c.Span) {
			r.splitAt(ci, take)
			c = r.chunks[ci]
		}
		c.Deleted = true
		c.Data = nil
		remaining -= uint64(take)
		cursor = cursor.Add(uint64(take))
	}
}

// coalesce merges adjacent chunks sharing a session, deletion state, and
// contiguous time ranges (§4.2). This never changes visible order or
// tombstone coverage, only chunk count.
func (r *RGA[T]) coalesce() {
	if len(r.chunks) < 2 {
		return
	}
	out := r.chunks[:1]
	for _, c := range r.chunks[1:] {
		last := out[len(out)-1]
		if last.ID.Sid == c.ID.Sid && last.Deleted == c.Deleted && last.end() == c.ID.Time {
			last.Span += c.Span
			if !last.Deleted {
				last.Data = append(last.Data, c.Data...)
			}
			continue
		}
		out = append(out, c)
	}
	r.chunks = out
}

// PositionOf returns the timestamp of the live element at liveIndex,
// skipping tombstones (§4.2).
func (r *RGA[T]) PositionOf(liveIndex int) (common.Timestamp, bool) {
	idx := 0
	for _, c := range r.chunks {
		if c.Deleted {
			continue
		}
		if liveIndex < idx+int(c.Span) {
			return c.ID.Add(uint64(liveIndex - idx)), true
		}
		idx += int(c.Span)
	}
	return common.Timestamp{}, false
}

// Interval returns the minimal covering set of live spans for
// [liveIndex, liveIndex+length), splitting across chunk boundaries and
// skipping tombstones (§4.2).
func (r *RGA[T]) Interval(liveIndex, length int) []Span {
	if length <= 0 {
		return nil
	}
	var spans []Span
	idx := 0
	remaining := length
	started := false
	for _, c := range r.chunks {
		if c.Deleted {
			continue
		}
		chunkStart := idx
		chunkEnd := idx + int(c.Span)
		idx = chunkEnd
		if !started {
			if liveIndex >= chunkEnd {
				continue
			}
			started = true
			offset := liveIndex - chunkStart
			take := int(c.Span) - offset
			if take > remaining {
				take = remaining
			}
			spans = append(spans, Span{Sid: c.ID.Sid, Time: c.ID.Time + uint64(offset), Length: uint64(take)})
			remaining -= take
		} else {
			if remaining <= 0 {
				break
			}
			take := int(c.Span)
			if take > remaining {
				take = remaining
			}
			spans = append(spans, Span{Sid: c.ID.Sid, Time: c.ID.Time, Length: uint64(take)})
			remaining -= take
		}
		if remaining <= 0 {
			break
		}
	}
	return spans
}

// VisibleValues concatenates the payloads of every live run in order.
func (r *RGA[T]) VisibleValues() []T {
	var out []T
	for _, c := range r.chunks {
		if c.Deleted {
			continue
		}
		out = append(out, c.Data...)
	}
	return out
}

// ChunkCount returns the number of chunks, live and tombstoned, used by the
// structural codecs (§4.2, §4.7).
func (r *RGA[T]) ChunkCount() int { return len(r.chunks) }

// Chunks exposes the underlying chunk list in order, read-only by
// convention, for codecs that need to walk chunk structure directly.
func (r *RGA[T]) Chunks() []*Chunk[T] { return r.chunks }

// LiveLength returns the number of non-tombstoned elements.
func (r *RGA[T]) LiveLength() int {
	n := 0
	for _, c := range r.chunks {
		if !c.Deleted {
			n += int(c.Span)
		}
	}
	return n
}

// AppendChunk appends a pre-built chunk directly, used by codec decoders
// that already know chunk structure and don't need tie-break placement.
func (r *RGA[T]) AppendChunk(c *Chunk[T]) { r.chunks = append(r.chunks, c) }

// SetAt overwrites the live element at ts in place, used by UpdArr (§4.3).
// Returns false if ts is not a live element.
func (r *RGA[T]) SetAt(ts common.Timestamp, value T) bool {
	idx, offset, found := r.find(ts)
	if !found {
		return false
	}
	c := r.chunks[idx]
	if c.Deleted {
		return false
	}
	c.Data[offset] = value
	return true
}
