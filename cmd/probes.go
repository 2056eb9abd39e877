package main

import (
	"fmt"

	"github.com/flowtap/flowtap/probes/ovs"
	"github.com/flowtap/flowtap/probes/packet"
	"github.com/flowtap/flowtap/probes/replay"
	"github.com/flowtap/flowtap/types"
)

func createProbes(c *Config) ([]types.Probe, error) {
	probes := []types.Probe{}

	if c.Probes != nil {
		if c.Probes.Ovs != nil {
			p, err := ovs.NewOvsProbe(c.Probes.Ovs)
			if err != nil {
				return nil, fmt.Errorf("error creating the ovs probe: %w", err)
			}
			probes = append(probes, p)
		}

		if c.Probes.Packet != nil {
			p, err := packet.NewPacketProbe(c.Probes.Packet)
			if err != nil {
				return nil, fmt.Errorf("error creating the packet probe: %w", err)
			}
			probes = append(probes, p)
		}

		if c.Probes.Replay != nil {
			p, err := replay.NewReplayProbe(c.Probes.Replay)
			if err != nil {
				return nil, fmt.Errorf("error creating the replay probe: %w", err)
			}
			probes = append(probes, p)
		}
	}

	return probes, nil
}
