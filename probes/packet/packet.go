//go:build linux && ebpf

package packet

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/josharian/native"
	"github.com/prometheus/procfs"

	"github.com/flowtap/flowtap/sink"
	"github.com/flowtap/flowtap/types"
)

type PacketProbe struct {
	Config

	nl     *NetlinkClient
	coll   *ebpf.Collection
	rd     *ringbuf.Reader
	events *sink.Sink

	// Wallclock instant the kernel's monotonic clock started ticking at.
	boot time.Time
}

func NewPacketProbe(c *Config) (*PacketProbe, error) {
	p := PacketProbe{Config: *c}
	return &p, nil
}

func (p *PacketProbe) String() string {
	return "packet"
}

func (p *PacketProbe) Init() error {
	slog.Debug("initialising the packet probe")

	if p.DiscoverInterfaces {
		if len(p.TargetInterfaces) != 0 {
			slog.Warn("specified target interfaces will be overridden", "originalTargetInterfaces", p.TargetInterfaces)
		}

		targetInterfaces, err := discoverInterfaces()
		if err != nil {
			return fmt.Errorf("couldn't discover target interfaces: %w", err)
		}
		p.TargetInterfaces = targetInterfaces
	}

	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return fmt.Errorf("couldn't open procfs: %w", err)
	}
	stat, err := fs.Stat()
	if err != nil {
		return fmt.Errorf("couldn't read kernel stats: %w", err)
	}
	p.boot = time.Unix(int64(stat.BootTime), 0)

	// Patch the configured filter over the classifier's slot. This is
	// the single load-time-fatal spot: a slot left without a body fails
	// the whole probe.
	insns, err := resolvedProgram(p.Variant, p.Expression)
	if err != nil {
		return fmt.Errorf("couldn't resolve the classifier's filter slot: %w", err)
	}

	coll, err := ebpf.NewCollection(&ebpf.CollectionSpec{
		Maps: map[string]*ebpf.MapSpec{
			ringbufName: {
				Name:       ringbufName,
				Type:       ebpf.RingBuf,
				MaxEntries: p.BufferBytes,
			},
		},
		Programs: map[string]*ebpf.ProgramSpec{
			progName: {
				Name:         progName,
				Type:         ebpf.SchedCLS,
				Instructions: insns,
				License:      "GPL",
			},
		},
	})
	if err != nil {
		return fmt.Errorf("couldn't load the classifier: %w", err)
	}
	p.coll = coll

	nl, err := NewNetlinkClient()
	if err != nil {
		p.Cleanup()
		return fmt.Errorf("error opening the netlink client: %w", err)
	}
	p.nl = nl

	for _, iface := range p.TargetInterfaces {
		if err := p.nl.CreateFilterQdisc(iface); err != nil {
			p.Cleanup()
			return fmt.Errorf("error creating the clsact qdisc for interface %q: %w", iface, err)
		}

		if err := p.nl.AttachClassifier(iface, coll.Programs[progName], p.Egress); err != nil {
			p.Cleanup()
			return fmt.Errorf("error attaching the classifier to %q: %w", iface, err)
		}
	}

	rd, err := ringbuf.NewReader(coll.Maps[ringbufName])
	if err != nil {
		p.Cleanup()
		return fmt.Errorf("couldn't open the ring buffer: %w", err)
	}
	p.rd = rd

	p.events = sink.New(p.SinkCapacity)

	return nil
}

func (p *PacketProbe) Run(done <-chan struct{}, outChan chan<- types.Event) {
	slog.Debug("running the packet probe")

	go p.pump()

	for {
		select {
		case ev, ok := <-p.events.Out():
			if !ok {
				return
			}
			outChan <- ev
		case <-done:
			slog.Debug("cleanly exiting the packet probe")
			return
		}
	}
}

func (p *PacketProbe) pump() {
	for {
		rec, err := p.rd.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return
			}
			slog.Error("error reading the ring buffer", "err", err)
			continue
		}

		raw := rec.RawSample
		if len(raw) < pktRecordLen {
			slog.Error("runt record from the ring buffer", "len", len(raw))
			continue
		}

		slot, ok := p.events.TryReserve(types.ModulePacket, types.KindPacketMatch)
		if !ok {
			continue
		}
		slot.SetTimestamp(p.boot.Add(time.Duration(native.Endian.Uint64(raw[8:]))))

		slot.Submit(&MatchEvent{
			Result:   native.Endian.Uint32(raw),
			Len:      native.Endian.Uint32(raw[4:]),
			Ifindex:  native.Endian.Uint32(raw[16:]),
			Protocol: native.Endian.Uint32(raw[20:]),
		})
	}
}

func (p *PacketProbe) Cleanup() error {
	slog.Debug("cleaning up the packet probe")

	if p.rd != nil {
		p.rd.Close()
	}
	if p.nl != nil {
		p.nl.Close(p.RemoveQdisc)
	}
	if p.coll != nil {
		p.coll.Close()
	}
	if p.events != nil {
		p.events.Close()
	}

	return nil
}
