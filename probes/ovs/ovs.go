//go:build linux && ebpf

package ovs

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/josharian/native"
	"github.com/prometheus/procfs"

	"github.com/flowtap/flowtap/correlate"
	"github.com/flowtap/flowtap/sink"
	"github.com/flowtap/flowtap/types"
)

// entryContext is what the entry-side observer stashes in the correlation
// table: the call's timestamp and a snapshot of the argument-passing
// locations the return side can't reach on its own.
type entryContext struct {
	ktime uint64
	args  [5]uint64
}

// kernelRetCtx adapts one raw return record, plus the matching entry-side
// snapshot, to the hook's view of the traced call.
type kernelRetCtx struct {
	tid  uint64
	rax  uint64
	ts   time.Time
	args [5]uint64

	haveArgs bool
}

func (rc *kernelRetCtx) ThreadID() uint64 { return rc.tid }

func (rc *kernelRetCtx) Ret() uint64 { return rc.rax }

func (rc *kernelRetCtx) ExtraArg(i int) (uint64, error) {
	if !rc.haveArgs || i < 0 || i >= len(rc.args) {
		return 0, ErrNoExtraArg
	}
	return rc.args[i], nil
}

func (rc *kernelRetCtx) Timestamp() time.Time { return rc.ts }

type OvsProbe struct {
	Config

	table  *correlate.Table
	events *sink.Sink
	hook   *ReturnHook
	mem    *Kcore

	coll  *ebpf.Collection
	links []link.Link
	rd    *ringbuf.Reader

	// Wallclock instant the kernel's monotonic clock started ticking at.
	boot time.Time
}

func NewOvsProbe(c *Config) (*OvsProbe, error) {
	p := OvsProbe{Config: *c}
	return &p, nil
}

func (p *OvsProbe) String() string {
	return "ovs"
}

func (p *OvsProbe) Init() error {
	slog.Debug("initialising the ovs probe")

	layout, err := ResolveKernelFlowLayout()
	if err != nil {
		return fmt.Errorf("couldn't resolve the flow layout: %w", err)
	}
	slog.Debug("resolved the flow layout", "layout", layout)

	mem, err := OpenKcore()
	if err != nil {
		return fmt.Errorf("couldn't open kernel memory: %w", err)
	}
	p.mem = mem

	fs, err := procfs.NewDefaultFS()
	if err != nil {
		p.Cleanup()
		return fmt.Errorf("couldn't open procfs: %w", err)
	}
	stat, err := fs.Stat()
	if err != nil {
		p.Cleanup()
		return fmt.Errorf("couldn't read kernel stats: %w", err)
	}
	p.boot = time.Unix(int64(stat.BootTime), 0)

	coll, err := ebpf.NewCollection(collectionSpec(p.BufferBytes))
	if err != nil {
		p.Cleanup()
		return fmt.Errorf("couldn't load the probe programs: %w", err)
	}
	p.coll = coll

	kp, err := link.Kprobe(p.Symbol, coll.Programs[entryProgName], nil)
	if err != nil {
		p.Cleanup()
		return fmt.Errorf("couldn't attach to %s: %w", p.Symbol, err)
	}
	p.links = append(p.links, kp)

	krp, err := link.Kretprobe(p.Symbol, coll.Programs[retProgName], nil)
	if err != nil {
		p.Cleanup()
		return fmt.Errorf("couldn't attach to the return of %s: %w", p.Symbol, err)
	}
	p.links = append(p.links, krp)

	rd, err := ringbuf.NewReader(coll.Maps[ringbufName])
	if err != nil {
		p.Cleanup()
		return fmt.Errorf("couldn't open the ring buffer: %w", err)
	}
	p.rd = rd

	p.table = correlate.New()
	p.events = sink.New(p.SinkCapacity)
	p.hook = NewReturnHook(p.table, p.events, p.mem, layout, slog.Default())

	return nil
}

func (p *OvsProbe) Run(done <-chan struct{}, outChan chan<- types.Event) {
	slog.Debug("running the ovs probe")

	go p.pump()

	for {
		select {
		case ev, ok := <-p.events.Out():
			if !ok {
				return
			}
			outChan <- ev
		case <-done:
			slog.Debug("cleanly exiting the ovs probe")
			return
		}
	}
}

// pump drains the ring buffer and drives records through the correlation
// table and the return hook. It exits when the reader is closed.
func (p *OvsProbe) pump() {
	for {
		rec, err := p.rd.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return
			}
			slog.Error("error reading the ring buffer", "err", err)
			continue
		}
		p.dispatch(rec.RawSample)
	}
}

func (p *OvsProbe) dispatch(raw []byte) {
	if len(raw) < retRecordLen {
		slog.Error("runt record from the ring buffer", "len", len(raw))
		return
	}

	kind := native.Endian.Uint32(raw)
	tid := native.Endian.Uint64(raw[8:])
	ktime := native.Endian.Uint64(raw[16:])

	switch kind {
	case recordEntry:
		if len(raw) < entryRecordLen {
			slog.Error("runt entry record from the ring buffer", "len", len(raw))
			return
		}
		ec := &entryContext{ktime: ktime}
		for i := range ec.args {
			ec.args[i] = native.Endian.Uint64(raw[24+8*i:])
		}
		p.table.Insert(tid, ec)
	case recordRet:
		rc := &kernelRetCtx{
			tid: tid,
			rax: native.Endian.Uint64(raw[24:]),
			ts:  p.boot.Add(time.Duration(ktime)),
		}
		if v, ok := p.table.Peek(tid); ok {
			if ec, ok := v.(*entryContext); ok {
				rc.args = ec.args
				rc.haveArgs = true
			}
		}
		p.hook.Handle(rc)
	default:
		slog.Error("unknown record kind from the ring buffer", "kind", kind)
	}
}

func (p *OvsProbe) Cleanup() error {
	slog.Debug("cleaning up the ovs probe")

	if p.rd != nil {
		p.rd.Close()
	}
	for _, l := range p.links {
		l.Close()
	}
	if p.coll != nil {
		p.coll.Close()
	}
	if p.mem != nil {
		p.mem.Close()
	}
	if p.events != nil {
		p.events.Close()
	}

	return nil
}
