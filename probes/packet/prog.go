package packet

import (
	"github.com/cilium/ebpf/asm"

	"github.com/flowtap/flowtap/filter"
)

const (
	ringbufName = "flowtapPktEvents"
	progName    = "packetFilter"

	// __sk_buff field offsets, from include/uapi/linux/bpf.h.
	skbLen      = 0
	skbProtocol = 16
	skbIfindex  = 40
	skbData     = 76
	skbDataEnd  = 80

	// Ethernet header length, skipped over for l3 filters.
	ethHlen = 14

	// TC_ACT_OK: the probe observes, it never drops traffic.
	tcActOk = 0
)

// Raw match record layout: result u32, len u32, ktime u64, ifindex u32,
// protocol u32.
const pktRecordLen = 24

const (
	// The filter context sits in the slot ABI's reserved stack window,
	// right below the frame pointer.
	ctxOff = -filter.CtxSize

	// The match record reuses reserved stack the slot no longer needs
	// once its verdict is out.
	recBase = ctxOff - pktRecordLen

	// The skb pointer rides out the slot on the stack: the span clobbers
	// r0-r9, r6 included.
	skbSpill = recBase - 8
)

// hostProgram assembles the classifier carrying the filter slot. The slot
// is left unresolved here: the caller patches a body over it with
// filter.Resolve before the program is loaded.
//
// The slot's contract: context pointer in r1, frame pointer in r9, r0-r9
// clobbered across the span, verdict stored into ctx.ret.
func hostProgram(variant filter.Placeholder) asm.Instructions {
	insns := asm.Instructions{
		asm.Mov.Reg(asm.R6, asm.R1),

		asm.LoadMem(asm.R2, asm.R6, skbData, asm.Word),
		asm.LoadMem(asm.R3, asm.R6, skbDataEnd, asm.Word),
		asm.LoadMem(asm.R4, asm.R6, skbLen, asm.Word),
	}

	if variant == filter.L3 {
		// l3 filters see the packet from the network header on. The end
		// pointer is left alone: it bounds the linear data either way.
		insns = append(insns,
			asm.Add.Imm(asm.R2, ethHlen),
			asm.Add.Imm32(asm.R4, -ethHlen),
		)
	}

	insns = append(insns,
		asm.StoreMem(asm.R10, ctxOff+filter.CtxDataOffset, asm.R2, asm.DWord),
		asm.StoreMem(asm.R10, filter.FrameEndOffset, asm.R3, asm.DWord),
		asm.StoreMem(asm.R10, ctxOff+filter.CtxLenOffset, asm.R4, asm.Word),
		asm.StoreImm(asm.R10, ctxOff+filter.CtxRetOffset, 0, asm.Word),

		asm.StoreMem(asm.R10, skbSpill, asm.R6, asm.DWord),

		asm.Mov.Reg(asm.R1, asm.R10),
		asm.Add.Imm(asm.R1, ctxOff),
		asm.Mov.Reg(asm.R9, asm.R10),
	)

	insns = append(insns, filter.Invoke(variant, ctxOff)...)

	insns = append(insns,
		asm.LoadMem(asm.R6, asm.R10, skbSpill, asm.DWord),
		asm.LoadMem(asm.R7, asm.R10, ctxOff+filter.CtxRetOffset, asm.Word),
		asm.JEq.Imm(asm.R7, 0, "pktOut"),

		asm.StoreMem(asm.R10, recBase, asm.R7, asm.Word),
		asm.LoadMem(asm.R8, asm.R6, skbLen, asm.Word),
		asm.StoreMem(asm.R10, recBase+4, asm.R8, asm.Word),
		asm.FnKtimeGetNs.Call(),
		asm.StoreMem(asm.R10, recBase+8, asm.R0, asm.DWord),
		asm.LoadMem(asm.R8, asm.R6, skbIfindex, asm.Word),
		asm.StoreMem(asm.R10, recBase+16, asm.R8, asm.Word),
		asm.LoadMem(asm.R8, asm.R6, skbProtocol, asm.Word),
		asm.StoreMem(asm.R10, recBase+20, asm.R8, asm.Word),

		asm.LoadMapPtr(asm.R1, 0).WithReference(ringbufName),
		asm.Mov.Reg(asm.R2, asm.R10),
		asm.Add.Imm(asm.R2, recBase),
		asm.Mov.Imm(asm.R3, pktRecordLen),
		asm.Mov.Imm(asm.R4, 0),
		asm.FnRingbufOutput.Call(),

		asm.Mov.Imm32(asm.R0, tcActOk).WithSymbol("pktOut"),
		asm.Return(),
	)

	return insns
}

// resolvedProgram builds the classifier and patches the configured filter
// over its slot, falling back to the built-in stub when no expression was
// given. An unresolvable slot fails the whole build; that is the one fatal
// error in the filtering machinery.
func resolvedProgram(variant filter.Placeholder, expression string) (asm.Instructions, error) {
	installed := map[filter.Placeholder]*filter.Program{}

	if expression != "" {
		body, err := filter.FromExpression(expression, variant)
		if err != nil {
			return nil, err
		}
		installed[variant] = body
	}

	return filter.Resolve(hostProgram(variant), installed, filter.DefaultStub())
}
