package packet

import "fmt"

// MatchEvent reports one packet the installed filter accepted.
type MatchEvent struct {
	// Result is the filter's verdict: the matched length for compiled
	// filters, or the stub's fixed sentinel.
	Result uint32 `json:"result"`

	// Len is the packet's full length in bytes.
	Len uint32 `json:"len"`

	// Ifindex identifies the interface the packet traversed.
	Ifindex uint32 `json:"ifindex"`

	// Protocol is the frame's ethertype in network byte order, as the
	// kernel exposes it.
	Protocol uint32 `json:"protocol"`
}

func (e MatchEvent) String() string {
	return fmt.Sprintf("match(result=%#x, len=%d, ifindex=%d, proto=%#x)",
		e.Result, e.Len, e.Ifindex, e.Protocol)
}
