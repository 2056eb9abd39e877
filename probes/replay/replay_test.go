package replay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowtap/flowtap/probes/ovs"
	"github.com/flowtap/flowtap/types"
)

func TestParseEvents(t *testing.T) {
	raw := "00000001-00000002-00000003-00000004 0x1000 0xabcd 7 9\n" +
		"garbage line\n" +
		"00000001-00000002-00000003-00000004 nonsense 0xabcd 7 9\n"

	events := parseEvents(raw)
	if len(events) != 1 {
		t.Fatalf("got %d events; want 1", len(events))
	}

	got := events[0]
	want := &ovs.FlowLookupEvent{
		Flow:      0x1000,
		SfActs:    0xabcd,
		Ufid:      ovs.Ufid{1, 2, 3, 4},
		NMaskHit:  7,
		NCacheHit: 9,
	}
	if *got != *want {
		t.Errorf("got %v; want %v", got, want)
	}
}

func TestReplayThroughPipe(t *testing.T) {
	pipePath := filepath.Join(t.TempDir(), "replay")
	p, err := NewReplayProbe(&Config{
		MaxReaders: 5,
		BuffSize:   1000,
		PipePath:   pipePath,
	})
	if err != nil {
		t.Fatalf("error getting a replay probe: %v", err)
	}
	if err := p.Init(); err != nil {
		t.Fatalf("error initialising the probe: %v", err)
	}
	defer p.Cleanup()

	doneChan := make(chan struct{})
	defer close(doneChan)
	eventChan := make(chan types.Event)
	go p.Run(doneChan, eventChan)

	// Give the probe a bit of time to catch up and open the pipe
	time.Sleep(1 * time.Second)

	pipe, err := os.OpenFile(pipePath, os.O_WRONLY, os.ModeNamedPipe)
	if err != nil {
		t.Fatalf("error opening the pipe: %v", err)
	}
	defer pipe.Close()

	if _, err := pipe.Write([]byte("00000001-00000002-00000003-00000004 0x1000 0xabcd 7 9\n")); err != nil {
		t.Fatalf("error writing to the pipe: %v", err)
	}

	ev := <-eventChan
	if ev.Module != types.ModuleReplay || ev.Kind != types.KindFlowLookupReturn {
		t.Errorf("got %s/%s; want replay/flow_lookup_return", ev.Module, ev.Kind)
	}
	if _, ok := ev.Payload.(*ovs.FlowLookupEvent); !ok {
		t.Errorf("unexpected payload %T", ev.Payload)
	}
}
