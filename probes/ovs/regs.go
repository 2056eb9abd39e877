package ovs

import (
	"errors"
	"time"
)

// ErrNoExtraArg is returned when a return context has nothing stored in
// the requested argument-passing location.
var ErrNoExtraArg = errors.New("extra argument location not captured")

// Extra argument-passing locations consumed by the return hook. The traced
// lookup takes the two hit counters as output pointers, so their values
// are only reachable through the locations captured on entry.
const (
	argNMaskHit  = 3
	argNCacheHit = 4
)

// RetContext is the return-side view of one traced call, supplied by the
// tracing collaborator. The return point only exposes the traced
// function's return value plus a small set of extra values travelling in
// fixed, well-known argument-passing locations; the original call
// parameters are not reachable from here.
type RetContext interface {
	// ThreadID keys the correlation table.
	ThreadID() uint64

	// Ret is the traced function's return value.
	Ret() uint64

	// ExtraArg reads one of the fixed extra argument-passing locations.
	ExtraArg(i int) (uint64, error)

	// Timestamp is the observation time of the return.
	Timestamp() time.Time
}

// MemReader reads kernel memory on behalf of the hook. Reads are fallible
// and every failure is isolated: the hook treats each field it reads as an
// independent optional.
type MemReader interface {
	ReadAt(addr uint64, buf []byte) error
}
