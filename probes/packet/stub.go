//go:build !linux || !ebpf

package packet

import (
	"github.com/flowtap/flowtap/types"
)

// The probe needs TC classifiers and a ring buffer, so off Linux the stub
// just satisfies the interface.
type PacketProbe struct {
	Config
}

func NewPacketProbe(c *Config) (*PacketProbe, error) {
	p := PacketProbe{Config: *c}
	return &p, nil
}

func (p *PacketProbe) String() string {
	return "packet stub"
}

func (p *PacketProbe) Init() error {
	return nil
}

func (p *PacketProbe) Run(<-chan struct{}, chan<- types.Event) {
}

func (p *PacketProbe) Cleanup() error {
	return nil
}
