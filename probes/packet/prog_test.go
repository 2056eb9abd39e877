package packet

import (
	"testing"

	"github.com/cilium/ebpf/asm"

	"github.com/flowtap/flowtap/filter"
)

func TestHostProgramCarriesOneSlot(t *testing.T) {
	for _, variant := range []filter.Placeholder{filter.L2, filter.L3} {
		slots := filter.Slots(hostProgram(variant))
		if len(slots) != 1 || slots[0] != variant {
			t.Errorf("got slots %v; want just %s", slots, variant)
		}
	}
}

func TestHostProgramSpillsThePacketEnd(t *testing.T) {
	for _, variant := range []filter.Placeholder{filter.L2, filter.L3} {
		var loaded, spilled bool
		for _, ins := range hostProgram(variant) {
			if ins.OpCode.Class() == asm.LdXClass && ins.Src == asm.R6 && ins.Offset == skbDataEnd {
				loaded = true
			}
			if ins.OpCode.Class() == asm.StXClass && ins.Dst == asm.R10 &&
				ins.Offset == filter.FrameEndOffset && ins.OpCode.Size() == asm.DWord {
				spilled = true
			}
		}

		if !loaded {
			t.Errorf("%s: the host never loads the packet-end field", variant)
		}
		if !spilled {
			t.Errorf("%s: the packet-end pointer never reaches the frame's end slot", variant)
		}
	}
}

func TestHostProgramParksTheSkbAcrossTheSlot(t *testing.T) {
	// The slot clobbers r0-r9, so the skb pointer must be spilled before
	// the invocation and filled back before the record is built.
	for _, variant := range []filter.Placeholder{filter.L2, filter.L3} {
		insns := hostProgram(variant)

		spillAt, fillAt := -1, -1
		for i, ins := range insns {
			if ins.OpCode.Class() == asm.StXClass && ins.Dst == asm.R10 &&
				ins.Offset == skbSpill && ins.OpCode.Size() == asm.DWord {
				spillAt = i
			}
			if ins.OpCode.Class() == asm.LdXClass && ins.Dst == asm.R6 &&
				ins.Src == asm.R10 && ins.Offset == skbSpill {
				fillAt = i
			}
		}

		if spillAt == -1 {
			t.Errorf("%s: the skb pointer is never spilled", variant)
			continue
		}
		if fillAt == -1 {
			t.Errorf("%s: the skb pointer is never filled back", variant)
			continue
		}
		if fillAt <= spillAt {
			t.Errorf("%s: fill at %d precedes spill at %d", variant, fillAt, spillAt)
		}
	}
}

func TestResolvedProgramFallsBackToStub(t *testing.T) {
	insns, err := resolvedProgram(filter.L2, "")
	if err != nil {
		t.Fatalf("couldn't resolve the program: %v", err)
	}

	if left := filter.Slots(insns); len(left) != 0 {
		t.Errorf("slots %v survived resolution", left)
	}

	// The stub's sentinel must have been spliced in.
	found := false
	for _, ins := range insns {
		if ins.Constant == filter.DefaultMatch {
			found = true
			break
		}
	}
	if !found {
		t.Error("the stub's sentinel is nowhere in the resolved program")
	}
}

func TestResolvedProgramWithExpression(t *testing.T) {
	insns, err := resolvedProgram(filter.L2, "tcp port 80")
	if err != nil {
		t.Fatalf("couldn't resolve the program: %v", err)
	}

	if left := filter.Slots(insns); len(left) != 0 {
		t.Errorf("slots %v survived resolution", left)
	}
}

func TestResolvedProgramRejectsGarbageExpressions(t *testing.T) {
	if _, err := resolvedProgram(filter.L2, "not a filter at all!"); err == nil {
		t.Error("a garbage expression must fail the build")
	}
}

func TestResolvedProgramRejectsL3Expressions(t *testing.T) {
	// The expression compiler assumes ethernet framing; l3 slots only
	// take raw classic BPF bodies.
	if _, err := resolvedProgram(filter.L3, "tcp port 80"); err == nil {
		t.Error("an expression on an l3 slot must fail the build")
	}
}

func TestParseVariant(t *testing.T) {
	for raw, want := range map[string]filter.Placeholder{
		"l2": filter.L2,
		"L2": filter.L2,
		"l3": filter.L3,
	} {
		got, ok := ParseVariant(raw)
		if !ok || got != want {
			t.Errorf("ParseVariant(%q) = %v, %v; want %v, true", raw, got, ok, want)
		}
	}

	if _, ok := ParseVariant("l7"); ok {
		t.Error("an unknown variant must not parse")
	}
}
