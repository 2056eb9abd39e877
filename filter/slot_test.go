package filter

import (
	"errors"
	"testing"

	"github.com/cilium/ebpf/asm"
)

const testCtxOffset = -16

func TestSlotLayout(t *testing.T) {
	insns := Invoke(L2, testCtxOffset)

	// Guard, span, result store, jump, miss store, landing nop.
	if want := 1 + MaxInstructions + 4; len(insns) != want {
		t.Fatalf("got %d instructions; want %d", len(insns), want)
	}

	if op := insns[0].OpCode.JumpOp(); op != asm.JEq {
		t.Errorf("expected a null-context guard, got %v", insns[0])
	}

	if !isPlaceholderCall(insns[1], L2) {
		t.Errorf("expected the placeholder call, got %v", insns[1])
	}

	for i := 2; i < 1+MaxInstructions; i++ {
		if !isNop(insns[i]) {
			t.Fatalf("instruction %d: expected padding, got %v", i, insns[i])
		}
	}

	store := insns[1+MaxInstructions]
	if store.OpCode.Class() != asm.StXClass || store.Offset != testCtxOffset+CtxRetOffset {
		t.Errorf("expected the result store into ctx.ret, got %v", store)
	}
}

func TestSlotsReportsVariants(t *testing.T) {
	host := append(Invoke(L2, testCtxOffset), Invoke(L3, testCtxOffset)...)

	got := Slots(host)
	if len(got) != 2 || got[0] != L2 || got[1] != L3 {
		t.Errorf("got %v; want [l2 l3]", got)
	}
}

func TestResolveUnresolvedIsFatal(t *testing.T) {
	for _, p := range []Placeholder{L2, L3} {
		_, err := Resolve(Invoke(p, testCtxOffset), nil, nil)
		if !errors.Is(err, ErrUnresolved) {
			t.Errorf("%s: got %v; want ErrUnresolved", p, err)
		}
	}
}

func TestResolveDefaultStub(t *testing.T) {
	host := Invoke(L2, testCtxOffset)

	resolved, err := Resolve(host, nil, DefaultStub())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The whole span collapses into the single-instruction stub.
	if want := len(host) - MaxInstructions + 1; len(resolved) != want {
		t.Errorf("got %d instructions; want %d", len(resolved), want)
	}

	if left := Slots(resolved); len(left) != 0 {
		t.Errorf("slots left unresolved: %v", left)
	}

	stub := resolved[1]
	if stub.Constant != DefaultMatch {
		t.Errorf("got stub constant %#x; want %#x", stub.Constant, DefaultMatch)
	}
}

func TestResolveUserFilterPerVariant(t *testing.T) {
	body, err := NewProgram(asm.Instructions{asm.Mov.Imm32(asm.R0, 7)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	installed := map[Placeholder]*Program{L2: body}

	resolved, err := Resolve(Invoke(L2, testCtxOffset), installed, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved[1].Constant != 7 {
		t.Errorf("got body constant %d; want 7", resolved[1].Constant)
	}

	// The variants resolve independently: a filter for one does not
	// cover the other.
	if _, err := Resolve(Invoke(L3, testCtxOffset), installed, nil); !errors.Is(err, ErrUnresolved) {
		t.Errorf("got %v; want ErrUnresolved", err)
	}
}

func TestResolveBothVariants(t *testing.T) {
	host := append(Invoke(L2, testCtxOffset), Invoke(L3, testCtxOffset)...)

	body, err := NewProgram(asm.Instructions{asm.Mov.Imm32(asm.R0, 1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resolved, err := Resolve(host, map[Placeholder]*Program{L2: body}, DefaultStub())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if left := Slots(resolved); len(left) != 0 {
		t.Errorf("slots left unresolved: %v", left)
	}
}

func TestResolveCorruptedPadding(t *testing.T) {
	truncated := Invoke(L2, testCtxOffset)[:10]
	if _, err := Resolve(truncated, nil, DefaultStub()); !errors.Is(err, ErrCorruptedSlot) {
		t.Errorf("truncated span: got %v; want ErrCorruptedSlot", err)
	}

	clobbered := Invoke(L2, testCtxOffset)
	clobbered[100] = asm.Mov.Imm32(asm.R0, 0)
	if _, err := Resolve(clobbered, nil, DefaultStub()); !errors.Is(err, ErrCorruptedSlot) {
		t.Errorf("clobbered span: got %v; want ErrCorruptedSlot", err)
	}
}

func TestReloadKeepsLayoutConstants(t *testing.T) {
	// Reloading the host program with a different filter must not move
	// anything: the scratch layout and the slot geometry are build-time
	// constants.
	if StackSize != StackReserved+ScratchCells*ScratchCellSize {
		t.Errorf("scratch region layout drifted: %d", StackSize)
	}
	if StackSize%8 != 0 {
		t.Errorf("scratch region must stay 8-byte aligned, got %d", StackSize)
	}

	first := Invoke(L2, testCtxOffset)
	second := Invoke(L2, testCtxOffset)
	if len(first) != len(second) {
		t.Errorf("slot layout is not stable across emissions: %d vs %d", len(first), len(second))
	}
}
