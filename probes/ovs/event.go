package ovs

import (
	"encoding/json"
	"fmt"
)

// UfidLen is the fixed byte length of a flow's unique identifier.
const UfidLen = 16

// Ufid is the unique flow identifier read from the looked-up flow.
type Ufid [UfidLen / 4]uint32

func (u Ufid) String() string {
	return fmt.Sprintf("%08x-%08x-%08x-%08x", u[0], u[1], u[2], u[3])
}

func (u Ufid) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// ParseUfid parses the dashed hex representation String produces.
func ParseUfid(s string) (Ufid, error) {
	var u Ufid
	if _, err := fmt.Sscanf(s, "%8x-%8x-%8x-%8x", &u[0], &u[1], &u[2], &u[3]); err != nil {
		return u, fmt.Errorf("malformed ufid %q: %w", s, err)
	}
	return u, nil
}

// FlowLookupEvent reports one flow-table lookup that found a flow. Misses
// and untracked calls never produce one. The two hit counters are
// best-effort: an unreadable counter is reported as 0.
type FlowLookupEvent struct {
	// Flow is the kernel handle of the looked-up flow.
	Flow uint64 `json:"flow"`

	// SfActs is the handle of the actions associated with the flow.
	SfActs uint64 `json:"sfActs"`

	Ufid Ufid `json:"ufid"`

	NMaskHit  uint32 `json:"nMaskHit"`
	NCacheHit uint32 `json:"nCacheHit"`
}

func (e *FlowLookupEvent) String() string {
	return fmt.Sprintf("flow %#x ufid %s mask_hit %d cache_hit %d", e.Flow, e.Ufid, e.NMaskHit, e.NCacheHit)
}
