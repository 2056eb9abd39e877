// Package replay feeds pre-recorded flow-lookup events back into the
// pipeline through a named pipe, one per line:
//
//	<ufid> <flow> <sf_acts> <n_mask_hit> <n_cache_hit>
//
// with the ufid in its dashed hex form and the two handles in hex. It's
// meant for exercising the backends on machines without a datapath to
// trace.
package replay

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/flowtap/flowtap/probes/ovs"
	"github.com/flowtap/flowtap/types"
)

type ReplayProbe struct {
	conf Config
}

func NewReplayProbe(c *Config) (*ReplayProbe, error) {
	p := ReplayProbe{conf: *c}
	return &p, nil
}

func (p *ReplayProbe) String() string {
	return "replay"
}

func (p *ReplayProbe) Init() error {
	slog.Debug("initialising the replay probe")

	if _, err := os.Stat(p.conf.PipePath); !errors.Is(err, os.ErrNotExist) {
		slog.Debug("it looks like the named pipe exists!")
		return nil
	}

	if err := syscall.Mkfifo(p.conf.PipePath, 0666); err != nil {
		return fmt.Errorf("couldn't create the named pipe: %w", err)
	}

	return nil
}

func (p *ReplayProbe) Run(done <-chan struct{}, outChan chan<- types.Event) {
	slog.Debug("running the replay probe")

	// Opening the FIFO read-only blocks until a writer shows up, so open
	// it O_RDWR: being a writer ourselves avoids the block. O_NONBLOCK
	// would be the textbook answer but it isn't portable to Darwin.
	pipe, err := os.OpenFile(p.conf.PipePath, os.O_RDWR, os.ModeNamedPipe)
	if err != nil {
		slog.Error("couldn't open the named pipe", "err", err)
		return
	}
	defer pipe.Close()

	// A buffered channel guarantees that we don't loose events even
	// if writes take place at the exact same time
	c := make(chan notify.EventInfo, p.conf.MaxReaders)

	notify.Watch(p.conf.PipePath, c, notify.Write|notify.Remove)
	defer notify.Stop(c)

	buff := make([]byte, p.conf.BuffSize)
	for {
		select {
		case e := <-c:
			switch e.Event() {
			case notify.Write:
				n, err := pipe.Read(buff)
				if err != nil {
					slog.Warn("error reading pipe", "err", err)
				}
				slog.Debug("read pipe", "n", n)
				for i, parsed := range parseEvents(string(buff[:n])) {
					slog.Debug("pushing event onto channel", "i", i)
					outChan <- types.Event{
						Module:  types.ModuleReplay,
						Kind:    types.KindFlowLookupReturn,
						Ts:      time.Now(),
						Payload: parsed,
					}
				}
			case notify.Remove:
				slog.Error("the named pipe was removed from under us!")
				return
			}
		case <-done:
			slog.Debug("cleanly exiting the replay probe")
			return
		}
	}
}

func (p *ReplayProbe) Cleanup() error {
	slog.Debug("cleaning up the replay probe")
	if err := os.Remove(p.conf.PipePath); err != nil {
		return fmt.Errorf("error removing named pipe: %w", err)
	}
	return nil
}

func parseEvents(rawEvents string) []*ovs.FlowLookupEvent {
	rawEventsSlice := strings.Split(rawEvents, "\n")
	events := make([]*ovs.FlowLookupEvent, 0, len(rawEventsSlice))

	// Drop the last entry as it'll always be empty...
	for _, rawEvent := range rawEventsSlice[:len(rawEventsSlice)-1] {
		fields := strings.Fields(rawEvent)
		if len(fields) != 5 {
			slog.Warn("wrong number of fields", "rawEvent", rawEvent)
			continue
		}

		ufid, err := ovs.ParseUfid(fields[0])
		if err != nil {
			slog.Warn("wrong ufid", "ufid", fields[0])
			continue
		}

		flow, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 64)
		if err != nil {
			slog.Warn("wrong flow handle", "flow", fields[1])
			continue
		}

		sfActs, err := strconv.ParseUint(strings.TrimPrefix(fields[2], "0x"), 16, 64)
		if err != nil {
			slog.Warn("wrong sf_acts handle", "sfActs", fields[2])
			continue
		}

		nMaskHit, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			slog.Warn("wrong n_mask_hit", "nMaskHit", fields[3])
			continue
		}

		nCacheHit, err := strconv.ParseUint(fields[4], 10, 32)
		if err != nil {
			slog.Warn("wrong n_cache_hit", "nCacheHit", fields[4])
			continue
		}

		events = append(events, &ovs.FlowLookupEvent{
			Flow:      flow,
			SfActs:    sfActs,
			Ufid:      ufid,
			NMaskHit:  uint32(nMaskHit),
			NCacheHit: uint32(nCacheHit),
		})
	}

	return events
}
