package sink

import (
	"testing"
	"time"

	"github.com/flowtap/flowtap/types"
)

func TestReserveSubmitRoundtrip(t *testing.T) {
	s := New(4)

	slot, ok := s.TryReserve(types.ModuleOvs, types.KindFlowLookupReturn)
	if !ok {
		t.Fatal("reservation failed on an empty sink")
	}
	slot.Submit("payload")

	select {
	case ev := <-s.Out():
		if ev.Module != types.ModuleOvs || ev.Kind != types.KindFlowLookupReturn {
			t.Errorf("wrong section: %s", ev)
		}
		if ev.Payload != "payload" {
			t.Errorf("got payload %v; want payload", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("the event never made it out")
	}

	if s.Emitted() != 1 || s.Dropped() != 0 {
		t.Errorf("got emitted=%d dropped=%d; want 1/0", s.Emitted(), s.Dropped())
	}
}

func TestExhaustionDropsSilently(t *testing.T) {
	s := New(1)

	slot, ok := s.TryReserve(types.ModulePacket, types.KindPacketMatch)
	if !ok {
		t.Fatal("reservation failed on an empty sink")
	}
	slot.Submit(nil)

	// Nobody is draining: the next reservation must fail right away
	// instead of blocking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := s.TryReserve(types.ModulePacket, types.KindPacketMatch); ok {
			t.Error("reservation succeeded on a full sink")
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TryReserve blocked on exhaustion")
	}

	if s.Dropped() != 1 {
		t.Errorf("got dropped=%d; want 1", s.Dropped())
	}
}
