package prometheus

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowtap/flowtap/probes/ovs"
	"github.com/flowtap/flowtap/probes/packet"
	"github.com/flowtap/flowtap/types"
)

type metrics struct {
	// Events counts everything flowing through, keyed by origin.
	Events *prometheus.CounterVec

	// Per-flow lookup statistics. The ufid label bounds cardinality to
	// the number of live datapath flows, which is fine for the deployments
	// we target.
	MaskHits  *prometheus.GaugeVec
	CacheHits *prometheus.GaugeVec

	// Per-interface filter matches.
	MatchedPackets *prometheus.CounterVec
	MatchedBytes   *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowtap_events_total",
			Help: "Events delivered to the backends",
		}, []string{"module", "kind"}),

		MaskHits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flowtap_flow_mask_hits",
			Help: "Mask hits reported by the last lookup of each flow",
		}, []string{"ufid"}),
		CacheHits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flowtap_flow_cache_hits",
			Help: "Cache hits reported by the last lookup of each flow",
		}, []string{"ufid"}),

		MatchedPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowtap_matched_packets_total",
			Help: "Packets accepted by the installed filter",
		}, []string{"ifindex"}),
		MatchedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowtap_matched_bytes_total",
			Help: "Bytes carried by packets accepted by the installed filter",
		}, []string{"ifindex"}),
	}
}

// (Nastily) use reflection to avoid having to manually register everything.
func (m *metrics) register(reg prometheus.Registerer) error {
	v := reflect.ValueOf(*m)

	i := 0
	for i = 0; i < v.NumField(); i++ {
		vv, ok := v.Field(i).Interface().(prometheus.Collector)
		if !ok {
			return fmt.Errorf("error casting the interface for index %d", i)
		}
		if err := reg.Register(vv); err != nil {
			return fmt.Errorf("error registering index %d: %w", i, err)
		}
	}
	logger.Log(context.Background(), types.LevelTrace, "registered collectors", "i", i)

	return nil
}

func (m *metrics) update(ev types.Event) {
	m.Events.With(prometheus.Labels{
		"module": ev.Module.String(),
		"kind":   ev.Kind.String(),
	}).Inc()

	switch payload := ev.Payload.(type) {
	case *ovs.FlowLookupEvent:
		labels := prometheus.Labels{"ufid": payload.Ufid.String()}
		m.MaskHits.With(labels).Set(float64(payload.NMaskHit))
		m.CacheHits.With(labels).Set(float64(payload.NCacheHit))
	case *packet.MatchEvent:
		labels := prometheus.Labels{"ifindex": strconv.FormatUint(uint64(payload.Ifindex), 10)}
		m.MatchedPackets.With(labels).Inc()
		m.MatchedBytes.With(labels).Add(float64(payload.Len))
	}
}
