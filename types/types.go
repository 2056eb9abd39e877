package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Module identifies the source module producing an event. Together with a
// Kind it names the section an event travels through on its way to the
// configured backends.
type Module uint8

// Kind identifies the event flavour within a module.
type Kind uint8

const (
	ModuleOvs Module = iota + 1
	ModulePacket
	ModuleReplay
)

const (
	// KindFlowLookupReturn reports the outcome of a kernel flow-table
	// lookup observed at function return.
	KindFlowLookupReturn Kind = iota + 1

	// KindPacketMatch reports a packet accepted by the installed
	// packet filter.
	KindPacketMatch
)

// TODO: Find a way to make this nicer. Maybe init() functions is the
// TODO: way to go?
var (
	moduleMap = map[string]Module{
		"OVS":    ModuleOvs,
		"PACKET": ModulePacket,
		"REPLAY": ModuleReplay,
	}

	eludomMap = map[Module]string{
		ModuleOvs:    "ovs",
		ModulePacket: "packet",
		ModuleReplay: "replay",
	}

	kindMap = map[string]Kind{
		"FLOW_LOOKUP_RETURN": KindFlowLookupReturn,
		"PACKET_MATCH":       KindPacketMatch,
	}

	dnikMap = map[Kind]string{
		KindFlowLookupReturn: "flow_lookup_return",
		KindPacketMatch:      "packet_match",
	}
)

func (m Module) String() string {
	return eludomMap[m]
}

func ParseModule(module string) (Module, bool) {
	m, ok := moduleMap[strings.ToUpper(module)]
	return m, ok
}

func (k Kind) String() string {
	return dnikMap[k]
}

func ParseKind(kind string) (Kind, bool) {
	k, ok := kindMap[strings.ToUpper(kind)]
	return k, ok
}

// Event is the envelope carried from probes to backends. The Payload is
// owned by the receiving backend as soon as the event is handed over.
type Event struct {
	Module  Module
	Kind    Kind
	Ts      time.Time
	Payload any
}

func (e Event) String() string {
	return fmt.Sprintf("%s/%s@%s", e.Module, e.Kind, e.Ts.Format(time.RFC3339Nano))
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Module  string `json:"module"`
		Kind    string `json:"kind"`
		Ts      string `json:"ts"`
		Payload any    `json:"payload"`
	}{
		Module:  e.Module.String(),
		Kind:    e.Kind.String(),
		Ts:      e.Ts.Format(time.RFC3339Nano),
		Payload: e.Payload,
	})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	aux := struct {
		Module  string          `json:"module"`
		Kind    string          `json:"kind"`
		Ts      string          `json:"ts"`
		Payload json.RawMessage `json:"payload"`
	}{}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	m, ok := ParseModule(aux.Module)
	if !ok {
		return fmt.Errorf("unknown module %q", aux.Module)
	}
	k, ok := ParseKind(aux.Kind)
	if !ok {
		return fmt.Errorf("unknown kind %q", aux.Kind)
	}

	ts, err := time.Parse(time.RFC3339Nano, aux.Ts)
	if err != nil {
		return fmt.Errorf("couldn't parse the event's timestamp: %w", err)
	}

	// The concrete payload type is long gone on this side of the wire.
	var payload any
	if len(aux.Payload) != 0 {
		if err := json.Unmarshal(aux.Payload, &payload); err != nil {
			return err
		}
	}

	*e = Event{Module: m, Kind: k, Ts: ts, Payload: payload}

	return nil
}

// Backends consume events produced by the probes.
type Backend interface {
	Init() error
	Run(<-chan struct{}, <-chan Event)
	Cleanup() error
	String() string
}

// Probes produce events: they own whatever kernel-side machinery is needed
// to observe them.
type Probe interface {
	Init() error
	Run(<-chan struct{}, chan<- Event)
	Cleanup() error
	String() string
}
