package spdymux

import (
	"sort"
	"sync/atomic"
)

// streamTable is the indexed collection of a Session's active streams,
// keyed by id with separate local/remote counters so Session can
// compare against the negotiated concurrency limits without a second
// pass over the list. Kept sorted by id so iteration during a
// session-level WINDOW_UPDATE visits streams in a stable, fair order.
// The counters are atomic only so Session.Capacity can read them from
// outside the run loop; all mutation still happens on the run loop.
type streamTable struct {
	list        []*Stream
	localCount  int32
	remoteCount int32
}

func newStreamTable() *streamTable {
	return &streamTable{}
}

func (t *streamTable) indexOf(id uint32) int {
	return sort.Search(len(t.list), func(i int) bool {
		return t.list[i].id >= id
	})
}

// get returns the stream with id, or nil.
func (t *streamTable) get(id uint32) *Stream {
	i := t.indexOf(id)
	if i < len(t.list) && t.list[i].id == id {
		return t.list[i]
	}
	return nil
}

// add inserts s, keeping the table sorted by id.
func (t *streamTable) add(s *Stream) {
	i := t.indexOf(s.id)
	t.list = append(t.list, nil)
	copy(t.list[i+1:], t.list[i:])
	t.list[i] = s

	if s.isLocal() {
		atomic.AddInt32(&t.localCount, 1)
	} else {
		atomic.AddInt32(&t.remoteCount, 1)
	}
}

// remove drops s from the table, if present.
func (t *streamTable) remove(s *Stream) {
	i := t.indexOf(s.id)
	if i >= len(t.list) || t.list[i] != s {
		return
	}
	t.list = append(t.list[:i], t.list[i+1:]...)

	if s.isLocal() {
		atomic.AddInt32(&t.localCount, -1)
	} else {
		atomic.AddInt32(&t.remoteCount, -1)
	}
}

func (t *streamTable) localSize() int  { return int(atomic.LoadInt32(&t.localCount)) }
func (t *streamTable) remoteSize() int { return int(atomic.LoadInt32(&t.remoteCount)) }
func (t *streamTable) size() int       { return len(t.list) }

// each iterates the table in stream-id order, safe against fn removing
// the current stream from the table mid-iteration.
func (t *streamTable) each(fn func(*Stream)) {
	snapshot := make([]*Stream, len(t.list))
	copy(snapshot, t.list)
	for _, s := range snapshot {
		fn(s)
	}
}
