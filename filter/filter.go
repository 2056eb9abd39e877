package filter

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf/asm"
	"github.com/cloudflare/cbpfc"
	pcapfilter "github.com/packetcap/go-pcap/filter"
	"golang.org/x/net/bpf"
)

// DefaultMatch is the fixed sentinel returned by the default stub: one
// past the value classic-BPF generated filters report for "match the whole
// packet", so a stubbed slot can be told apart both from a miss (0) and
// from a genuine match-all filter (0x40000).
const DefaultMatch = 0x40001

// ErrOversized is returned when a compiled filter body exceeds the slot's
// instruction budget.
var ErrOversized = errors.New("filter exceeds the maximum allowed size")

// NewProgram wraps hand-assembled instructions into a slot body, holding
// them to the same budget compiled filters are held to.
func NewProgram(insns asm.Instructions) (*Program, error) {
	if len(insns) > MaxInstructions {
		return nil, fmt.Errorf("%d instructions: %w", len(insns), ErrOversized)
	}
	out := make(asm.Instructions, len(insns))
	copy(out, insns)
	return &Program{insns: out}, nil
}

// Program is a filter body ready to be patched over a slot: straight-line
// eBPF honouring the slot's register contract. On entry R1 holds the
// context pointer and R9 the frame pointer; on exit the 32-bit outcome
// sits in R0. Bodies are spliced inline, so they carry no exit
// instructions of their own.
type Program struct {
	insns asm.Instructions
}

// Len returns the body's instruction count.
func (p *Program) Len() int {
	return len(p.insns)
}

// Instructions hands out a copy of the body.
func (p *Program) Instructions() asm.Instructions {
	out := make(asm.Instructions, len(p.insns))
	copy(out, p.insns)
	return out
}

// DefaultStub builds the built-in fallback installed on slots with no user
// filter: it flags every packet with the DefaultMatch sentinel so the host
// program keeps working, visibly, without any real matching logic.
func DefaultStub() *Program {
	return &Program{insns: asm.Instructions{
		asm.Mov.Imm32(asm.R0, DefaultMatch),
	}}
}

// RejectAll builds a filter body that matches nothing.
func RejectAll() *Program {
	return &Program{insns: asm.Instructions{
		asm.Mov.Imm32(asm.R0, 0),
	}}
}

// FromExpression compiles a pcap-style filter expression into a slot body
// for the given variant. The expression is parsed and compiled to classic
// BPF in pure Go, then translated to eBPF; no libpcap is involved. Note
// the expression compiler assumes ethernet framing, so only the L2 variant
// accepts expressions; L3 bodies are built from raw classic BPF through
// FromBPF.
func FromExpression(expr string, p Placeholder) (*Program, error) {
	if p != L2 {
		return nil, fmt.Errorf("%s slots only take raw classic BPF filters", p)
	}

	f := pcapfilter.NewExpression(expr).Compile()

	insns, err := f.Compile()
	if err != nil {
		return nil, fmt.Errorf("couldn't compile the filter expression: %w", err)
	}

	return FromBPF(insns, p)
}

// FromBPF translates a classic BPF filter into a slot body for the given
// variant.
func FromBPF(insns []bpf.Instruction, p Placeholder) (*Program, error) {
	prefix := fmt.Sprintf("pf%s", p)

	// The translated filter reads the packet through start/end pointers
	// which the prologue below derives from the slot context. The result
	// register convention is classic BPF's: 0 is a miss, anything else
	// is the matched length.
	filter, err := cbpfc.ToEBPF(insns, cbpfc.EBPFOpts{
		PacketStart: asm.R2,
		PacketEnd:   asm.R3,
		Result:      asm.R4,
		ResultLabel: prefix + "_res",
		Working:     [4]asm.Register{asm.R5, asm.R6, asm.R7, asm.R8},
		StackOffset: ScratchMemStart,
		LabelPrefix: prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't translate the filter to eBPF: %w", err)
	}

	// The end pointer is filled from the frame's reserved quadword, not
	// derived from ctx.len: only a spilled packet-end pointer lets the
	// verifier accept the translated bounds checks.
	body := asm.Instructions{
		asm.LoadMem(asm.R2, asm.R1, CtxDataOffset, asm.DWord),
		asm.LoadMem(asm.R3, asm.R9, FrameEndOffset, asm.DWord),
	}
	body = append(body, filter...)
	body = append(body, asm.Mov.Reg32(asm.R0, asm.R4).WithSymbol(prefix+"_res"))

	if len(body) > MaxInstructions {
		return nil, fmt.Errorf("%d instructions: %w", len(body), ErrOversized)
	}

	return &Program{insns: body}, nil
}
