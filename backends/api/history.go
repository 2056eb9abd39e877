package api

import (
	"sync"

	"github.com/flowtap/flowtap/types"
)

// history is a fixed-size ring of the latest events plus per-origin
// counters. Handlers read it while the backend's Run loop writes it, so
// it carries its own lock.
type history struct {
	mu sync.RWMutex

	ring []types.Event
	next int
	full bool

	counts map[string]uint64
}

func newHistory(size int) *history {
	if size < 1 {
		size = 1
	}
	return &history{
		ring:   make([]types.Event, size),
		counts: map[string]uint64{},
	}
}

func (h *history) push(ev types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ring[h.next] = ev
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}

	h.counts[ev.Module.String()+"/"+ev.Kind.String()]++
}

// latest returns the retained events, oldest first.
func (h *history) latest() []types.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.full {
		out := make([]types.Event, h.next)
		copy(out, h.ring[:h.next])
		return out
	}

	out := make([]types.Event, 0, len(h.ring))
	out = append(out, h.ring[h.next:]...)
	out = append(out, h.ring[:h.next]...)
	return out
}

func (h *history) counters() map[string]uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]uint64, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}
