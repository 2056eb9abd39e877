package filter

// Context is the in/out contract between a host program and an installed
// packet filter. The struct lives on the host program's stack; the layout
// offsets below describe it as laid out by the host-program builders.
//
// Data points at the start of the linear packet buffer (the mac header for
// the L2 variant, the network header for the L3 one), Len is its byte
// length and Ret is the match outcome: 0 reports a miss, anything else is
// filter-defined. Ret is only ever written after the slot executes.
type Context struct {
	Data uint64
	Len  uint32
	Ret  uint32
}

// Stack layout of Context as emitted by the host-program builders.
const (
	CtxDataOffset = 0
	CtxLenOffset  = 8
	CtxRetOffset  = 12
	CtxSize       = 16
)

// Scratch region reserved on the host program's stack for each filter
// invocation: one 8-byte end-pointer slot plus 16 4-byte scratch cells
// sized for the classic-BPF M[] memory. The region is 8-byte aligned and
// never survives the invocation, so no state leaks across packets.
//
// The 16 cells are an ABI reservation, not live storage: translated
// bodies keep their M[] state below the window (ScratchMemStart is
// handed to the translator as its stack offset), and host programs are
// free to reuse the cells once the slot's verdict is out.
const (
	StackReserved   = 8
	ScratchCellSize = 4
	ScratchCells    = 16
	ScratchMemStart = ScratchCells*ScratchCellSize + StackReserved

	// StackSize is the whole per-invocation reservation.
	StackSize = ScratchMemStart
)

// FrameEndOffset locates the window's reserved quadword relative to the
// frame pointer R9. Before invoking a slot the host program must store
// the end-of-packet pointer there, loaded straight from the kernel's
// packet-end field: the verifier only sanctions direct packet loads whose
// range was established against a packet-end-derived register, so a
// bound computed as data+len is useless to a translated body. ctx.len
// stays what classic BPF's len instruction reports.
const FrameEndOffset = -StackSize
