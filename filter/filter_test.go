package filter

import (
	"errors"
	"testing"

	"github.com/cilium/ebpf/asm"
	"golang.org/x/net/bpf"
)

func TestDefaultStubSentinel(t *testing.T) {
	stub := DefaultStub()
	if stub.Len() != 1 {
		t.Fatalf("got %d instructions; want 1", stub.Len())
	}

	sentinel := stub.Instructions()[0].Constant
	if sentinel == 0 {
		t.Error("the stub sentinel must be distinguishable from a miss")
	}
	if sentinel == 0x40000 {
		t.Error("the stub sentinel must be distinguishable from a classic match-all")
	}
	if sentinel != DefaultMatch {
		t.Errorf("got %#x; want %#x", sentinel, DefaultMatch)
	}
}

func TestRejectAll(t *testing.T) {
	reject := RejectAll()
	if got := reject.Instructions()[0].Constant; got != 0 {
		t.Errorf("got %#x; want 0", got)
	}
}

func TestNewProgramBudget(t *testing.T) {
	atBudget := make(asm.Instructions, MaxInstructions)
	for i := range atBudget {
		atBudget[i] = asm.Mov.Imm32(asm.R0, 0)
	}
	if _, err := NewProgram(atBudget); err != nil {
		t.Errorf("a body at the budget must load: %v", err)
	}

	over := append(atBudget, asm.Mov.Imm32(asm.R0, 0))
	if _, err := NewProgram(over); !errors.Is(err, ErrOversized) {
		t.Errorf("got %v; want ErrOversized", err)
	}
}

func TestFromExpression(t *testing.T) {
	prog, err := FromExpression("tcp port 80", L2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	insns := prog.Instructions()
	if len(insns) < 4 {
		t.Fatalf("suspiciously short body: %d instructions", len(insns))
	}

	// The prologue picks up the packet pointers: start from the slot
	// context, end from the frame's reserved quadword.
	if insns[0].OpCode.Class() != asm.LdXClass || insns[0].Offset != CtxDataOffset {
		t.Errorf("expected the ctx.data load, got %v", insns[0])
	}
	if insns[1].Src != asm.R9 || insns[1].Offset != FrameEndOffset {
		t.Errorf("expected the packet-end load, got %v", insns[1])
	}

	// Inline bodies must never carry their own exit.
	for i, ins := range insns {
		if ins.OpCode.JumpOp() == asm.Exit {
			t.Errorf("instruction %d is an exit: %v", i, ins)
		}
	}
}

func TestBodiesBoundAgainstThePacketEnd(t *testing.T) {
	prog, err := FromExpression("ip", L2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	insns := prog.Instructions()
	if insns[1].OpCode.Class() != asm.LdXClass || insns[1].Src != asm.R9 || insns[1].Offset != FrameEndOffset {
		t.Fatalf("the bounds register must come from the frame's end slot, got %v", insns[1])
	}

	// ctx.len must never feed the bounds register: a data+len pointer is
	// worthless to the verifier's packet-range tracking.
	for i, ins := range insns {
		if ins.OpCode.Class() == asm.LdXClass && ins.Src == asm.R1 && ins.Offset == CtxLenOffset {
			t.Errorf("instruction %d reads ctx.len: %v", i, ins)
		}
	}
}

func TestFromExpressionGarbage(t *testing.T) {
	if _, err := FromExpression("not really a filter !!", L2); err == nil {
		t.Error("expected a compile error")
	}
}

func TestFromExpressionL3(t *testing.T) {
	// The expression compiler assumes ethernet framing: layer-3 slots
	// only take raw classic BPF.
	if _, err := FromExpression("tcp", L3); err == nil {
		t.Error("expected an error for the l3 variant")
	}
}

func TestFromBPF(t *testing.T) {
	prog, err := FromBPF([]bpf.Instruction{bpf.RetConstant{Val: 0x40000}}, L3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	insns := prog.Instructions()
	last := insns[len(insns)-1]
	if last.Symbol() == "" {
		t.Errorf("expected the labelled result move, got %v", last)
	}
}
