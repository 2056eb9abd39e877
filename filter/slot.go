package filter

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cilium/ebpf/asm"
)

// MaxInstructions is the slot's instruction budget: the exact ceiling on
// the number of eBPF instructions an installed filter body may occupy.
const MaxInstructions = 4096

// Placeholder identifies a filter slot variant. The two variants differ in
// the framing the filter operates on and are resolved independently.
type Placeholder uint32

const (
	// L2 filters see the packet from the mac header on.
	L2 Placeholder = 0xdeadbeef

	// L3 filters see the packet from the network header on.
	L3 Placeholder = 0xdeadc0de
)

func (p Placeholder) String() string {
	switch p {
	case L2:
		return "l2"
	case L3:
		return "l3"
	}
	return fmt.Sprintf("unknown(%#x)", uint32(p))
}

// The call immediate is a 32-bit field, so the tags show up sign-extended
// in the instruction stream.
func (p Placeholder) imm() int64 {
	return int64(int32(uint32(p)))
}

var (
	// ErrUnresolved is returned when a program still contains a filter
	// slot for which neither a user filter nor a default stub was
	// supplied. Loading such a program must fail as a whole: running
	// without any matching logic and without an explicit rejection is
	// not acceptable.
	ErrUnresolved = errors.New("unresolved filter slot")

	// ErrCorruptedSlot is returned when a placeholder call is not
	// followed by its full no-op padding region.
	ErrCorruptedSlot = errors.New("corrupted filter slot region")
)

func nop() asm.Instruction {
	// goto +0
	return asm.Instruction{OpCode: asm.OpCode(asm.JumpClass).SetJumpOp(asm.Ja)}
}

func isNop(ins asm.Instruction) bool {
	return ins.OpCode.Class() == asm.JumpClass &&
		ins.OpCode.JumpOp() == asm.Ja &&
		ins.Offset == 0 &&
		ins.Symbol() == ""
}

func isPlaceholderCall(ins asm.Instruction, p Placeholder) bool {
	return ins.OpCode.Class() == asm.JumpClass &&
		ins.OpCode.JumpOp() == asm.Call &&
		ins.Constant == p.imm()
}

// Invoke emits the full filter invocation sequence for the given slot
// variant: a null-context guard, the rewritable span (the placeholder call
// plus MaxInstructions-1 no-ops) and the store of the 32-bit result into
// ctx.ret. On entry to the emitted sequence R1 must hold the context
// pointer and R9 the frame pointer delimiting the filter's scratch window;
// R0-R9 are clobbered across it. ctxOffset is the (negative) offset of the
// context struct from R10.
//
// The builders keep the span label-free so that Resolve can splice a
// filter body over it without disturbing jump resolution: all surrounding
// jumps are symbolic and only resolved when the program is marshaled.
func Invoke(p Placeholder, ctxOffset int16) asm.Instructions {
	skip := fmt.Sprintf("pf_%s_skip", p)
	done := fmt.Sprintf("pf_%s_done", p)

	insns := asm.Instructions{
		asm.JEq.Imm(asm.R1, 0, skip),
		asm.Instruction{
			OpCode:   asm.OpCode(asm.JumpClass).SetJumpOp(asm.Call),
			Constant: p.imm(),
		},
	}
	for i := 0; i < MaxInstructions-1; i++ {
		insns = append(insns, nop())
	}

	insns = append(insns,
		asm.StoreMem(asm.R10, ctxOffset+CtxRetOffset, asm.R0, asm.Word),
		asm.Ja.Label(done),
		asm.StoreImm(asm.R10, ctxOffset+CtxRetOffset, 0, asm.Word).WithSymbol(skip),
		nop().WithSymbol(done),
	)

	return insns
}

// Slots reports the slot variants still present in a program.
func Slots(insns asm.Instructions) []Placeholder {
	found := []Placeholder{}
	for _, ins := range insns {
		for _, p := range []Placeholder{L2, L3} {
			if isPlaceholderCall(ins, p) {
				found = append(found, p)
			}
		}
	}
	return found
}

// Resolve rewrites every filter slot found in insns: slots with an entry
// in installed get that filter's body, the remaining ones fall back to
// def. A slot with neither resolution fails the whole program with
// ErrUnresolved. The span can only be overwritten in place, never grown,
// so bodies longer than the budget were already rejected when the Program
// was built; the unused trailing no-ops are simply dropped here given the
// splice happens before the program is marshaled.
func Resolve(insns asm.Instructions, installed map[Placeholder]*Program, def *Program) (asm.Instructions, error) {
	out := make(asm.Instructions, 0, len(insns))

	for i := 0; i < len(insns); {
		ins := insns[i]

		var slot Placeholder
		for _, p := range []Placeholder{L2, L3} {
			if isPlaceholderCall(ins, p) {
				slot = p
				break
			}
		}

		if slot == 0 {
			out = append(out, ins)
			i++
			continue
		}

		// The no-op padding must be intact: it is what gives us room
		// to patch the body in place.
		if i+MaxInstructions > len(insns) {
			return nil, fmt.Errorf("%s slot at %d: %w", slot, i, ErrCorruptedSlot)
		}
		for j := i + 1; j < i+MaxInstructions; j++ {
			if !isNop(insns[j]) {
				return nil, fmt.Errorf("%s slot at %d: %w", slot, i, ErrCorruptedSlot)
			}
		}

		body := installed[slot]
		if body == nil {
			body = def
		}
		if body == nil {
			return nil, fmt.Errorf("%s slot: %w", slot, ErrUnresolved)
		}

		slog.Debug("resolving filter slot", "slot", slot.String(), "insns", body.Len())

		out = append(out, body.insns...)
		i += MaxInstructions
	}

	return out, nil
}
