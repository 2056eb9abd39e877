package ovs

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/flowtap/flowtap/correlate"
	"github.com/flowtap/flowtap/sink"
)

type fakeRetCtx struct {
	tid    uint64
	ret    uint64
	extras map[int]uint64
}

func (f *fakeRetCtx) ThreadID() uint64 { return f.tid }
func (f *fakeRetCtx) Ret() uint64      { return f.ret }

func (f *fakeRetCtx) ExtraArg(i int) (uint64, error) {
	v, ok := f.extras[i]
	if !ok {
		return 0, ErrNoExtraArg
	}
	return v, nil
}

func (f *fakeRetCtx) Timestamp() time.Time { return time.Now() }

// fakeMem maps exact addresses to field contents; anything else fails the
// read, same as a fault on a kernel address would.
type fakeMem map[uint64][]byte

func (m fakeMem) ReadAt(addr uint64, buf []byte) error {
	b, ok := m[addr]
	if !ok || len(b) != len(buf) {
		return fmt.Errorf("cannot read %d bytes at %#x", len(buf), addr)
	}
	copy(buf, b)
	return nil
}

// countingHandler tallies emitted diagnostics.
type countingHandler struct {
	mu sync.Mutex
	n  int
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *countingHandler) Handle(context.Context, slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.n++
	return nil
}

func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

var testLayout = FlowLayout{ID: 100, SfActs: 200, UfidLen: 0, Ufid: 8}

const (
	testFlow     = uint64(0x1000)
	testMaskPtr  = uint64(0x2000)
	testCachePtr = uint64(0x3000)
)

func u32bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.NativeEndian.PutUint32(b, v)
	return b
}

func u64bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.NativeEndian.PutUint64(b, v)
	return b
}

// healthyMem lays out a readable flow with a ufid, actions and both
// counters.
func healthyMem() fakeMem {
	ufid := make([]byte, UfidLen)
	for i := 0; i < UfidLen/4; i++ {
		binary.NativeEndian.PutUint32(ufid[4*i:], uint32(i+1))
	}

	return fakeMem{
		testFlow + testLayout.ID + testLayout.UfidLen: u32bytes(UfidLen),
		testFlow + testLayout.ID + testLayout.Ufid:    ufid,
		testFlow + testLayout.SfActs:                  u64bytes(0xabcd),
		testMaskPtr:                                   u32bytes(7),
		testCachePtr:                                  u32bytes(9),
	}
}

func newHookUnderTest(mem MemReader) (*ReturnHook, *correlate.Table, *sink.Sink, *countingHandler) {
	table := correlate.New()
	events := sink.New(8)
	diag := &countingHandler{}
	hook := NewReturnHook(table, events, mem, testLayout, slog.New(diag))
	return hook, table, events, diag
}

func trackedCtx(tid uint64) *fakeRetCtx {
	return &fakeRetCtx{
		tid:    tid,
		ret:    testFlow,
		extras: map[int]uint64{argNMaskHit: testMaskPtr, argNCacheHit: testCachePtr},
	}
}

func TestUntrackedThreadIsSilentlySkipped(t *testing.T) {
	hook, _, events, diag := newHookUnderTest(healthyMem())

	hook.Handle(trackedCtx(1))

	if events.Emitted() != 0 {
		t.Error("an untracked call must not produce an event")
	}
	if diag.count() != 0 {
		t.Errorf("got %d diagnostics; want none", diag.count())
	}
}

func TestMissCleansUpWithoutEvent(t *testing.T) {
	hook, table, events, diag := newHookUnderTest(healthyMem())
	table.Insert(1, "entry ctx")

	rc := trackedCtx(1)
	rc.ret = 0
	hook.Handle(rc)

	if table.Len() != 0 {
		t.Error("the correlation entry must be removed on a miss")
	}
	if events.Emitted() != 0 {
		t.Error("a miss must not produce an event")
	}
	if diag.count() != 0 {
		t.Errorf("got %d diagnostics; want none", diag.count())
	}
}

func TestUnreadableIdentityAbandonsEmission(t *testing.T) {
	mem := healthyMem()
	delete(mem, testFlow+testLayout.ID+testLayout.UfidLen)

	hook, table, events, diag := newHookUnderTest(mem)
	table.Insert(1, "entry ctx")

	hook.Handle(trackedCtx(1))

	if table.Len() != 0 {
		t.Error("the correlation entry must be removed")
	}
	if events.Emitted() != 0 {
		t.Error("no event must be produced")
	}
	if diag.count() != 1 {
		t.Errorf("got %d diagnostics; want exactly 1", diag.count())
	}
}

func TestZeroUfidLenAbandonsEmission(t *testing.T) {
	mem := healthyMem()
	mem[testFlow+testLayout.ID+testLayout.UfidLen] = u32bytes(0)

	hook, table, events, diag := newHookUnderTest(mem)
	table.Insert(1, "entry ctx")

	hook.Handle(trackedCtx(1))

	if events.Emitted() != 0 || diag.count() != 1 {
		t.Errorf("got emitted=%d diagnostics=%d; want 0/1", events.Emitted(), diag.count())
	}
}

func TestHappyPath(t *testing.T) {
	hook, table, events, _ := newHookUnderTest(healthyMem())
	table.Insert(1, "entry ctx")

	hook.Handle(trackedCtx(1))

	if table.Len() != 0 {
		t.Error("the correlation entry must be removed")
	}

	ev := <-events.Out()
	got, ok := ev.Payload.(*FlowLookupEvent)
	if !ok {
		t.Fatalf("unexpected payload %T", ev.Payload)
	}

	want := &FlowLookupEvent{
		Flow:      testFlow,
		SfActs:    0xabcd,
		Ufid:      Ufid{1, 2, 3, 4},
		NMaskHit:  7,
		NCacheHit: 9,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestUnreadableAncillaryCounterIsIsolated(t *testing.T) {
	mem := healthyMem()
	delete(mem, testCachePtr)

	hook, table, events, diag := newHookUnderTest(mem)
	table.Insert(1, "entry ctx")

	hook.Handle(trackedCtx(1))

	ev := <-events.Out()
	got := ev.Payload.(*FlowLookupEvent)

	if got.NMaskHit != 7 {
		t.Errorf("got n_mask_hit %d; want 7", got.NMaskHit)
	}
	if got.NCacheHit != 0 {
		t.Errorf("an unreadable counter must default to 0, got %d", got.NCacheHit)
	}
	if got.SfActs != 0xabcd {
		t.Errorf("got sf_acts %#x; want 0xabcd", got.SfActs)
	}
	if diag.count() != 1 {
		t.Errorf("got %d diagnostics; want exactly 1", diag.count())
	}
}

func TestSinkExhaustionDropsSilently(t *testing.T) {
	table := correlate.New()
	events := sink.New(1)
	diag := &countingHandler{}
	hook := NewReturnHook(table, events, healthyMem(), testLayout, slog.New(diag))

	// Fill the only slot.
	slot, _ := events.TryReserve(0, 0)
	slot.Submit(nil)

	table.Insert(1, "entry ctx")
	hook.Handle(trackedCtx(1))

	if table.Len() != 0 {
		t.Error("the correlation entry must be removed")
	}
	if diag.count() != 0 {
		t.Errorf("exhaustion must be silent, got %d diagnostics", diag.count())
	}
	if events.Emitted() != 1 {
		t.Errorf("got emitted=%d; want just the filler", events.Emitted())
	}
}

func TestConcurrentReturnsDontCross(t *testing.T) {
	// Each thread gets its own flow whose first ufid word encodes the
	// thread id; no event may come out with a mismatched pairing.
	mem := fakeMem{}
	const threads = 32

	flowFor := func(tid uint64) uint64 { return 0x10000 * tid }

	table := correlate.New()
	events := sink.New(threads)
	hook := NewReturnHook(table, events, mem, testLayout, nil)

	for tid := uint64(1); tid <= threads; tid++ {
		flow := flowFor(tid)
		ufid := make([]byte, UfidLen)
		binary.NativeEndian.PutUint32(ufid, uint32(tid))

		mem[flow+testLayout.ID+testLayout.UfidLen] = u32bytes(UfidLen)
		mem[flow+testLayout.ID+testLayout.Ufid] = ufid
		mem[flow+testLayout.SfActs] = u64bytes(flow)
	}

	var wg sync.WaitGroup
	for tid := uint64(1); tid <= threads; tid++ {
		wg.Add(1)
		go func(tid uint64) {
			defer wg.Done()
			table.Insert(tid, "entry ctx")
			hook.Handle(&fakeRetCtx{tid: tid, ret: flowFor(tid)})
		}(tid)
	}
	wg.Wait()

	if events.Emitted() != threads {
		t.Fatalf("got %d events; want %d", events.Emitted(), threads)
	}
	events.Close()

	for ev := range events.Out() {
		got := ev.Payload.(*FlowLookupEvent)
		if uint64(got.Ufid[0]) != got.Flow/0x10000 {
			t.Errorf("crossed correlation: flow %#x carries ufid %s", got.Flow, got.Ufid)
		}
		if got.SfActs != got.Flow {
			t.Errorf("crossed correlation: flow %#x carries sf_acts %#x", got.Flow, got.SfActs)
		}
	}
	if table.Len() != 0 {
		t.Errorf("got %d live entries; want 0", table.Len())
	}
}
