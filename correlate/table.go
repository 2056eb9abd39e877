// Package correlate bridges the two observation points of a traced call.
// An entry-side observer stashes per-call context keyed by the calling
// thread; the return-side hook takes it back out on the same thread. The
// return side only ever sees the traced function's return value plus a
// handful of extra argument-passing locations, so whatever else it needs
// must travel through here.
package correlate

import "sync"

// Table is a thread-id-keyed store of in-flight call context. It owns its
// internal synchronization: per-key insert, consume and delete are atomic
// and callers never need external locking. Values are opaque to the table
// and defined by the entry-side collaborator.
//
// The traced call path is assumed non-reentrant per thread, so there is at
// most one live entry per thread id: inserting over a live entry replaces
// it.
type Table struct {
	m sync.Map
}

func New() *Table {
	return &Table{}
}

// Insert records the entry-side context for a thread.
func (t *Table) Insert(tid uint64, v any) {
	t.m.Store(tid, v)
}

// Consume atomically takes the entry for a thread out of the table. Taking
// the entry at lookup time is what guarantees removal on every exit path
// of the consumer, early returns and failures included.
func (t *Table) Consume(tid uint64) (any, bool) {
	return t.m.LoadAndDelete(tid)
}

// Peek looks an entry up without consuming it.
func (t *Table) Peek(tid uint64) (any, bool) {
	return t.m.Load(tid)
}

// Delete drops a thread's entry, if any.
func (t *Table) Delete(tid uint64) {
	t.m.Delete(tid)
}

// Len walks the table and counts live entries. It's meant for diagnostics:
// a steadily growing count means some consumer is not running.
func (t *Table) Len() int {
	n := 0
	t.m.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
