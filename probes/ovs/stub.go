//go:build !linux || !ebpf

package ovs

import (
	"github.com/flowtap/flowtap/types"
)

// The probe needs kprobes, a ring buffer and /proc/kcore, none of which
// exist off Linux. The stub just satisfies the interface so the cmd
// wiring compiles everywhere.
type OvsProbe struct {
	Config
}

func NewOvsProbe(c *Config) (*OvsProbe, error) {
	p := OvsProbe{Config: *c}
	return &p, nil
}

func (p *OvsProbe) String() string {
	return "ovs stub"
}

func (p *OvsProbe) Init() error {
	return nil
}

func (p *OvsProbe) Run(<-chan struct{}, chan<- types.Event) {
}

func (p *OvsProbe) Cleanup() error {
	return nil
}
