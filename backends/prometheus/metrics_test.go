package prometheus

import (
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowtap/flowtap/probes/ovs"
	"github.com/flowtap/flowtap/probes/packet"
	"github.com/flowtap/flowtap/types"
)

func init() {
	logger = slog.New(slog.DiscardHandler)
}

func TestReflection(t *testing.T) {
	x := newMetrics()

	v := reflect.ValueOf(*x)

	for i := 0; i < v.NumField(); i++ {
		vv := v.Field(i).Interface()
		_, ok := vv.(prometheus.Collector)
		if !ok {
			t.Errorf("error casting the interface for %d", i)
		}
	}
}

func TestUpdate(t *testing.T) {
	reg := prometheus.NewRegistry()

	m := newMetrics()
	if err := m.register(reg); err != nil {
		t.Fatalf("error registering the metrics: %v", err)
	}

	m.update(types.Event{
		Module: types.ModuleOvs,
		Kind:   types.KindFlowLookupReturn,
		Ts:     time.Now(),
		Payload: &ovs.FlowLookupEvent{
			Flow:      0x1000,
			Ufid:      ovs.Ufid{1, 2, 3, 4},
			NMaskHit:  7,
			NCacheHit: 9,
		},
	})
	m.update(types.Event{
		Module:  types.ModulePacket,
		Kind:    types.KindPacketMatch,
		Ts:      time.Now(),
		Payload: &packet.MatchEvent{Result: 0x40, Len: 128, Ifindex: 2},
	})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("error gathering the metrics: %v", err)
	}

	got := map[string]bool{}
	for _, f := range families {
		got[f.GetName()] = true
	}

	for _, want := range []string{
		"flowtap_events_total",
		"flowtap_flow_mask_hits",
		"flowtap_flow_cache_hits",
		"flowtap_matched_packets_total",
		"flowtap_matched_bytes_total",
	} {
		if !got[want] {
			t.Errorf("metric %s wasn't exposed", want)
		}
	}
}
