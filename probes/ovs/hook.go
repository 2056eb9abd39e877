package ovs

import (
	"log/slog"

	"github.com/josharian/native"

	"github.com/flowtap/flowtap/correlate"
	"github.com/flowtap/flowtap/sink"
	"github.com/flowtap/flowtap/types"
)

// ReturnHook consumes the return side of traced flow-table lookups. It
// runs on the traced path's budget, so it is strictly fail-safe: nothing
// it does ever propagates back into the traced call, and every fallible
// step past the correlation lookup degrades on its own. The only fatal
// condition anywhere in this module is an unresolved filter slot at load
// time; the hook has none.
type ReturnHook struct {
	table  *correlate.Table
	events *sink.Sink
	mem    MemReader
	layout FlowLayout

	log *slog.Logger
}

func NewReturnHook(table *correlate.Table, events *sink.Sink, mem MemReader, layout FlowLayout, log *slog.Logger) *ReturnHook {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ReturnHook{
		table:  table,
		events: events,
		mem:    mem,
		layout: layout,
		log:    log,
	}
}

// Handle processes one observed return:
//
//  1. take the thread's correlation entry; absence means the call came in
//     through an unmonitored path and is silently skipped,
//  2. a nil returned flow is an expected miss handled elsewhere, no event,
//  3. the flow's identity token is mandatory: if it can't be read, one
//     diagnostic and no event,
//  4. a slot is requested from the sink; exhaustion degrades to a drop,
//  5. the actions handle and the two hit counters are populated
//     best-effort, each read isolated from the others.
//
// The correlation entry is taken out of the table in step 1, so its
// removal holds on every exit path below, early returns included.
func (h *ReturnHook) Handle(rc RetContext) {
	if _, tracked := h.table.Consume(rc.ThreadID()); !tracked {
		return
	}

	flow := rc.Ret()
	if flow == 0 {
		// No flow. Most likely this lookup ends up as an upcall;
		// someone downstream observes that, not us.
		return
	}

	ufidLen, err := h.readU32(flow + h.layout.ID + h.layout.UfidLen)
	if err != nil {
		h.log.Error("couldn't read the flow's ufid length", "flow", flow, "err", err)
		return
	}
	if ufidLen == 0 {
		h.log.Error("expected a ufid representation, found a key", "flow", flow)
		return
	}

	var ufid Ufid
	if err := h.readUfid(flow+h.layout.ID+h.layout.Ufid, &ufid); err != nil {
		h.log.Error("couldn't read the flow's ufid", "flow", flow, "err", err)
		return
	}

	slot, ok := h.events.TryReserve(types.ModuleOvs, types.KindFlowLookupReturn)
	if !ok {
		// Exhausted sink: drop, never stall the traced path.
		return
	}
	slot.SetTimestamp(rc.Timestamp())

	ev := &FlowLookupEvent{Flow: flow, Ufid: ufid}

	// Ancillary fields, each on its own: a failed read is logged and
	// costs that field only.
	if sfActs, err := h.readU64(flow + h.layout.SfActs); err != nil {
		h.log.Error("couldn't read the flow's sf_acts", "flow", flow, "err", err)
	} else {
		ev.SfActs = sfActs
	}

	if v, err := h.readCounter(rc, argNMaskHit); err != nil {
		h.log.Error("couldn't retrieve n_mask_hit", "flow", flow, "err", err)
	} else {
		ev.NMaskHit = v
	}

	if v, err := h.readCounter(rc, argNCacheHit); err != nil {
		h.log.Error("couldn't retrieve n_cache_hit", "flow", flow, "err", err)
	} else {
		ev.NCacheHit = v
	}

	slot.Submit(ev)
}

// readCounter chases one of the extra argument-passing locations: each
// holds a pointer to a u32 the traced function filled in.
func (h *ReturnHook) readCounter(rc RetContext, arg int) (uint32, error) {
	ptr, err := rc.ExtraArg(arg)
	if err != nil {
		return 0, err
	}
	return h.readU32(ptr)
}

func (h *ReturnHook) readU32(addr uint64) (uint32, error) {
	var buf [4]byte
	if err := h.mem.ReadAt(addr, buf[:]); err != nil {
		return 0, err
	}
	return native.Endian.Uint32(buf[:]), nil
}

func (h *ReturnHook) readU64(addr uint64) (uint64, error) {
	var buf [8]byte
	if err := h.mem.ReadAt(addr, buf[:]); err != nil {
		return 0, err
	}
	return native.Endian.Uint64(buf[:]), nil
}

func (h *ReturnHook) readUfid(addr uint64, out *Ufid) error {
	var buf [UfidLen]byte
	if err := h.mem.ReadAt(addr, buf[:]); err != nil {
		return err
	}
	for i := range out {
		out[i] = native.Endian.Uint32(buf[4*i : 4*i+4])
	}
	return nil
}
