package ovs

import (
	"fmt"

	"github.com/cilium/ebpf/btf"
)

// FlowLayout locates the fields the hook reads inside the kernel's flow
// object. The offsets move around across kernel versions, so production
// code resolves them from the kernel's own type information instead of
// hardcoding them.
type FlowLayout struct {
	// Offset of the flow id (sw_flow.id) within the flow object.
	ID uint64

	// Offset of the associated actions handle (sw_flow.sf_acts).
	SfActs uint64

	// Offsets of the length discriminator and the identifier proper
	// within the flow id.
	UfidLen uint64
	Ufid    uint64
}

// structMemberOffset recurses into anonymous members: the flow id keeps
// the identifier inside an unnamed union.
func structMemberOffset(s *btf.Struct, name string) (uint64, error) {
	off, ok := memberOffset(s.Members, name)
	if !ok {
		return 0, fmt.Errorf("struct %s has no member %q", s.Name, name)
	}
	return off, nil
}

func memberOffset(members []btf.Member, name string) (uint64, bool) {
	for _, m := range members {
		if m.Name == name {
			return uint64(m.Offset.Bytes()), true
		}
		if m.Name != "" {
			continue
		}
		var nested []btf.Member
		switch t := btf.UnderlyingType(m.Type).(type) {
		case *btf.Struct:
			nested = t.Members
		case *btf.Union:
			nested = t.Members
		default:
			continue
		}
		if off, ok := memberOffset(nested, name); ok {
			return uint64(m.Offset.Bytes()) + off, true
		}
	}
	return 0, false
}

func lookupStruct(spec *btf.Spec, name string) (*btf.Struct, error) {
	var s *btf.Struct
	if err := spec.TypeByName(name, &s); err != nil {
		return nil, fmt.Errorf("couldn't find struct %s: %w", name, err)
	}
	return s, nil
}

// ResolveFlowLayout digs the field offsets out of a BTF spec, typically
// the running kernel's. It fails when the openvswitch types aren't there,
// which is a fine proxy for the datapath module not being available.
func ResolveFlowLayout(spec *btf.Spec) (FlowLayout, error) {
	var l FlowLayout

	flow, err := lookupStruct(spec, "sw_flow")
	if err != nil {
		return l, err
	}

	if l.ID, err = structMemberOffset(flow, "id"); err != nil {
		return l, err
	}
	if l.SfActs, err = structMemberOffset(flow, "sf_acts"); err != nil {
		return l, err
	}

	id, err := lookupStruct(spec, "sw_flow_id")
	if err != nil {
		return l, err
	}
	if l.UfidLen, err = structMemberOffset(id, "ufid_len"); err != nil {
		return l, err
	}
	if l.Ufid, err = structMemberOffset(id, "ufid"); err != nil {
		return l, err
	}

	return l, nil
}

// ResolveKernelFlowLayout resolves the layout against the running kernel.
func ResolveKernelFlowLayout() (FlowLayout, error) {
	spec, err := btf.LoadKernelSpec()
	if err != nil {
		return FlowLayout{}, fmt.Errorf("couldn't load the kernel's type information: %w", err)
	}
	return ResolveFlowLayout(spec)
}
