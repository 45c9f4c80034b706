// Package crdtlog stores a document's full patch history alongside a
// frozen baseline, and can replay, advance, or rebase against it (§4.11).
package crdtlog

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
	"github.com/crdtkit/jsoncrdt/crdtcodec"
	"github.com/crdtkit/jsoncrdt/crdtpatch"
	"github.com/pkg/errors"
)

// PatchKey orders the log's history: time first, then session id, matching
// the upstream comparator this package is grounded on.
type PatchKey struct {
	Time uint64
	Sid  uint64
}

func keyOf(id common.Timestamp) PatchKey { return PatchKey{Time: id.Time, Sid: id.Sid} }

func (k PatchKey) less(o PatchKey) bool {
	if k.Time != o.Time {
		return k.Time < o.Time
	}
	return k.Sid < o.Sid
}

// entry pairs a patch with its sort key, kept in a single time-ordered
// slice rather than a tree — logs in this system are per-document and
// small enough that an insertion-sorted slice outperforms a tree's
// bookkeeping, and no example repo in the pack carries an ordered-map
// library suited to this (see DESIGN.md).
type entry struct {
	key   PatchKey
	patch *crdtpatch.Patch
}

// baselineCache interns frozen structural-binary snapshots by content, so
// Logs that converge on the same baseline (forks of one document, or
// repeated advance_to calls producing the same cumulative state) share one
// backing byte slice instead of each holding its own copy.
var baselineCache, _ = lru.New[string, []byte](64)

// intern returns the cached copy of frozen if an identical snapshot has
// already been seen, caching frozen itself otherwise.
func intern(frozen []byte) []byte {
	key := string(frozen)
	if cached, ok := baselineCache.Get(key); ok {
		return cached
	}
	baselineCache.Add(key, frozen)
	return frozen
}

// Log is the patch history for one document: a start() factory producing
// the baseline Model, the ordered patch history, the live end state, and
// free-form metadata.
type Log struct {
	startFn  func() (*crdt.Model, error)
	entries  []entry
	End      *crdt.Model
	Metadata map[string]interface{}
}

// FromNewModel starts a log whose baseline is a fresh empty model sharing
// model's session id; model itself becomes the initial End (any ops
// already applied to it are reflected there, but start() always yields a
// clean slate) (§4.11, "Log.fromNewModel").
func FromNewModel(model *crdt.Model) *Log {
	sid := model.Clock.Sid
	return &Log{
		startFn:  func() (*crdt.Model, error) { return crdt.NewModel(sid), nil },
		End:      model,
		Metadata: make(map[string]interface{}),
	}
}

// FromModel freezes model's current state as a structural-binary snapshot
// and starts a log whose baseline decodes that snapshot on every start()
// call; model is cloned (by round-tripping it through the same codec) to
// become an independent End (§4.11, "Log.from").
func FromModel(model *crdt.Model) (*Log, error) {
	frozen, err := crdtcodec.EncodeStructuralBinary(model)
	if err != nil {
		return nil, errors.Wrap(err, "freeze baseline")
	}
	frozen = intern(frozen)
	end, err := crdtcodec.DecodeStructuralBinary(frozen)
	if err != nil {
		return nil, errors.Wrap(err, "clone end from baseline")
	}
	return &Log{
		startFn: func() (*crdt.Model, error) {
			return crdtcodec.DecodeStructuralBinary(frozen)
		},
		End:      end,
		Metadata: make(map[string]interface{}),
	}, nil
}

// Start returns a fresh copy of the baseline model.
func (l *Log) Start() (*crdt.Model, error) { return l.startFn() }

// Apply effects patch against End and records it in the history. A patch
// with no ops (and therefore no id) is silently ignored.
func (l *Log) Apply(patch *crdtpatch.Patch) error {
	if err := patch.Apply(l.End); err != nil {
		return err
	}
	l.Record(patch)
	return nil
}

// Record adds patch to the history without applying it to End, for callers
// that already applied it elsewhere (e.g. it arrived pre-merged).
func (l *Log) Record(patch *crdtpatch.Patch) {
	if len(patch.Ops) == 0 {
		return
	}
	key := keyOf(patch.ID())
	i := sort.Search(len(l.entries), func(i int) bool { return !l.entries[i].key.less(key) })
	l.entries = append(l.entries, entry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = entry{key: key, patch: patch}
}

// ReplayToEnd replays every patch in the log onto a fresh start() model.
func (l *Log) ReplayToEnd() (*crdt.Model, error) {
	m, err := l.startFn()
	if err != nil {
		return nil, err
	}
	for _, e := range l.entries {
		if err := e.patch.Apply(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ReplayTo replays from start() up to ts, including the patch at ts when
// inclusive is true.
func (l *Log) ReplayTo(ts common.Timestamp, inclusive bool) (*crdt.Model, error) {
	m, err := l.startFn()
	if err != nil {
		return nil, err
	}
	target := keyOf(ts)
	for _, e := range l.entries {
		if target.less(e.key) {
			break
		}
		if target == e.key && !inclusive {
			break
		}
		if err := e.patch.Apply(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AdvanceTo removes every patch up to and including ts from the history,
// baking them into the baseline: the old start() plus the baked patches are
// replayed once here and the result is frozen as the new start() snapshot,
// so repeated AdvanceTo calls don't grow a chain of nested closures.
func (l *Log) AdvanceTo(ts common.Timestamp) error {
	target := keyOf(ts)
	cut := 0
	for cut < len(l.entries) && !target.less(l.entries[cut].key) {
		cut++
	}
	if cut == 0 {
		return nil
	}

	baseline, err := l.startFn()
	if err != nil {
		return err
	}
	for i := 0; i < cut; i++ {
		if err := l.entries[i].patch.Apply(baseline); err != nil {
			return errors.Wrap(err, "bake patch into baseline")
		}
	}
	frozen, err := crdtcodec.EncodeStructuralBinary(baseline)
	if err != nil {
		return errors.Wrap(err, "freeze advanced baseline")
	}
	frozen = intern(frozen)

	l.entries = l.entries[cut:]
	l.startFn = func() (*crdt.Model, error) { return crdtcodec.DecodeStructuralBinary(frozen) }
	return nil
}

// FindMax returns the latest-timestamped patch authored by sid, scanning
// backwards through the history, or nil if none is found.
func (l *Log) FindMax(sid uint64) *crdtpatch.Patch {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].key.Sid == sid {
			return l.entries[i].patch
		}
	}
	return nil
}

// RebaseBatch shifts each patch in batch so it begins immediately after the
// reference patch's span — the latest patch for sid if given, otherwise the
// latest patch in the whole log — chaining each rebased patch's end to the
// next one's start (§4.11, "Log.rebaseBatch").
func (l *Log) RebaseBatch(batch []*crdtpatch.Patch, sid *uint64) ([]*crdtpatch.Patch, error) {
	var ref *crdtpatch.Patch
	if sid != nil {
		ref = l.FindMax(*sid)
	} else if len(l.entries) > 0 {
		ref = l.entries[len(l.entries)-1].patch
	}
	if ref == nil {
		out := make([]*crdtpatch.Patch, len(batch))
		copy(out, batch)
		return out, nil
	}
	refID := ref.ID()
	nextTime := refID.Time + ref.Span()
	out := make([]*crdtpatch.Patch, len(batch))
	for i, p := range batch {
		if len(p.Ops) == 0 {
			out[i] = p
			continue
		}
		rebased, err := p.RewriteTime(common.Timestamp{Sid: p.ID().Sid, Time: nextTime})
		if err != nil {
			return nil, err
		}
		out[i] = rebased
		nextTime += rebased.Span()
	}
	return out, nil
}

// Clone returns a deep copy of the log: an independent End (round-tripped
// through the structural codec) and independent patch entries, sharing the
// cheap start() closure.
func (l *Log) Clone() (*Log, error) {
	snap, err := crdtcodec.EncodeStructuralBinary(l.End)
	if err != nil {
		return nil, err
	}
	end, err := crdtcodec.DecodeStructuralBinary(snap)
	if err != nil {
		return nil, err
	}
	entries := make([]entry, len(l.entries))
	copy(entries, l.entries)
	meta := make(map[string]interface{}, len(l.Metadata))
	for k, v := range l.Metadata {
		meta[k] = v
	}
	return &Log{startFn: l.startFn, entries: entries, End: end, Metadata: meta}, nil
}
