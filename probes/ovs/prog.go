//go:build linux && ebpf

package ovs

import (
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
)

const (
	ringbufName = "flowtapOvsEvents"

	entryProgName = "flowLookupEntry"
	retProgName   = "flowLookupRet"
)

// Raw record kinds travelling through the ring buffer.
const (
	recordEntry uint32 = iota
	recordRet
)

const (
	entryRecordLen = 8 + 8 + 8 + 5*8
	retRecordLen   = 8 + 8 + 8 + 8
)

// pt_regs field offsets for x86_64, the only architecture the datapath
// boxes we target run on. Pulled from arch/x86/include/asm/ptrace.h.
const (
	ptRegsR8  = 72
	ptRegsAx  = 80
	ptRegsCx  = 88
	ptRegsDx  = 96
	ptRegsSi  = 104
	ptRegsDi  = 112
)

// Entry-side argument-passing locations, in call order.
var entryArgOffsets = [5]int16{ptRegsDi, ptRegsSi, ptRegsDx, ptRegsCx, ptRegsR8}

// recordHeader emits the shared prologue of both programs: kind, thread
// id and timestamp stored into a record being built at r10+base.
//
//	u32 kind; u32 pad; u64 pid_tgid; u64 ktime;
func recordHeader(base int16, kind uint32) asm.Instructions {
	return asm.Instructions{
		asm.StoreImm(asm.R10, base, int64(kind), asm.Word),
		asm.StoreImm(asm.R10, base+4, 0, asm.Word),
		asm.FnGetCurrentPidTgid.Call(),
		asm.StoreMem(asm.R10, base+8, asm.R0, asm.DWord),
		asm.FnKtimeGetNs.Call(),
		asm.StoreMem(asm.R10, base+16, asm.R0, asm.DWord),
	}
}

// ringbufSubmit emits the epilogue pushing the record out; the record sits
// at r10+base and is size bytes long.
func ringbufSubmit(base int16, size int) asm.Instructions {
	return asm.Instructions{
		asm.LoadMapPtr(asm.R1, 0).WithReference(ringbufName),
		asm.Mov.Reg(asm.R2, asm.R10),
		asm.Add.Imm(asm.R2, int32(base)),
		asm.Mov.Imm(asm.R3, int32(size)),
		asm.Mov.Imm(asm.R4, 0),
		asm.FnRingbufOutput.Call(),
		asm.Mov.Imm32(asm.R0, 0),
		asm.Return(),
	}
}

// entryProgram observes the traced function's entry: it snapshots the
// five argument-passing locations so the return side can reach values the
// return context alone doesn't expose.
func entryProgram() asm.Instructions {
	const base = -entryRecordLen

	insns := asm.Instructions{
		// Keep the pt_regs pointer across the helper calls.
		asm.Mov.Reg(asm.R6, asm.R1),
	}
	insns = append(insns, recordHeader(base, recordEntry)...)

	for i, off := range entryArgOffsets {
		insns = append(insns,
			asm.LoadMem(asm.R7, asm.R6, off, asm.DWord),
			asm.StoreMem(asm.R10, base+24+int16(8*i), asm.R7, asm.DWord),
		)
	}

	return append(insns, ringbufSubmit(base, entryRecordLen)...)
}

// retProgram observes the return: just the thread id and the returned
// handle; everything else the hook needs comes out of the correlation
// table.
func retProgram() asm.Instructions {
	const base = -retRecordLen

	insns := asm.Instructions{
		asm.Mov.Reg(asm.R6, asm.R1),
	}
	insns = append(insns, recordHeader(base, recordRet)...)

	insns = append(insns,
		asm.LoadMem(asm.R7, asm.R6, ptRegsAx, asm.DWord),
		asm.StoreMem(asm.R10, base+24, asm.R7, asm.DWord),
	)

	return append(insns, ringbufSubmit(base, retRecordLen)...)
}

// collectionSpec assembles the whole kernel side of the probe in one go:
// no compiled objects to embed, the two programs are small enough to
// write out instruction by instruction.
func collectionSpec(bufferBytes uint32) *ebpf.CollectionSpec {
	return &ebpf.CollectionSpec{
		Maps: map[string]*ebpf.MapSpec{
			ringbufName: {
				Name:       ringbufName,
				Type:       ebpf.RingBuf,
				MaxEntries: bufferBytes,
			},
		},
		Programs: map[string]*ebpf.ProgramSpec{
			entryProgName: {
				Name:         entryProgName,
				Type:         ebpf.Kprobe,
				Instructions: entryProgram(),
				License:      "GPL",
			},
			retProgName: {
				Name:         retProgName,
				Type:         ebpf.Kprobe,
				Instructions: retProgram(),
				License:      "GPL",
			},
		},
	}
}
