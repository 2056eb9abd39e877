// Package sink hands bounded event buffers to the probes. Hooks run on
// the traced path, so the sink never blocks: when the buffer is exhausted
// the event is dropped on the floor and a counter bumped, nothing more.
package sink

import (
	"sync/atomic"
	"time"

	"github.com/flowtap/flowtap/types"
)

// Sink is a bounded-capacity channel of structured events keyed by the
// (module, kind) pair of the producing hook.
type Sink struct {
	c chan types.Event

	emitted atomic.Uint64
	dropped atomic.Uint64
}

func New(capacity int) *Sink {
	return &Sink{c: make(chan types.Event, capacity)}
}

// TryReserve requests a slot for one event. It never blocks: when the
// buffer is full it reports exhaustion and the caller is expected to
// abandon emission.
func (s *Sink) TryReserve(m types.Module, k types.Kind) (*Slot, bool) {
	if len(s.c) >= cap(s.c) {
		s.dropped.Add(1)
		return nil, false
	}
	return &Slot{
		sink: s,
		ev:   types.Event{Module: m, Kind: k, Ts: time.Now()},
	}, true
}

// Out is the consumer side: whatever reads from it owns the events.
func (s *Sink) Out() <-chan types.Event {
	return s.c
}

// Close ends the consumer side. No reservation may be submitted afterwards.
func (s *Sink) Close() {
	close(s.c)
}

// Emitted reports how many events made it into the buffer.
func (s *Sink) Emitted() uint64 {
	return s.emitted.Load()
}

// Dropped reports how many events were abandoned on exhaustion.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// Slot is a reservation for one event.
type Slot struct {
	sink *Sink
	ev   types.Event
}

// SetTimestamp overrides the reservation timestamp, e.g. with one captured
// closer to the traced call.
func (sl *Slot) SetTimestamp(ts time.Time) {
	sl.ev.Ts = ts
}

// Submit fills the slot and hands the event over; ownership of the payload
// transfers to the consumer immediately. Submission is best-effort too: a
// race against other producers for the last buffer spot degrades to a
// silent drop, never to blocking the traced path.
func (sl *Slot) Submit(payload any) {
	sl.ev.Payload = payload
	select {
	case sl.sink.c <- sl.ev:
		sl.sink.emitted.Add(1)
	default:
		sl.sink.dropped.Add(1)
	}
}
