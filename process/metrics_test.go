package process

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherCounter(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() == name {
			return fam.GetMetric()
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func TestMetrics_RecordSuperstepIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.recordSuperstep("p1")
	m.recordSuperstep("p1")
	m.recordSuperstep("p2")

	byLabel := map[string]float64{}
	for _, metric := range gatherCounter(t, reg, "flowkernel_supersteps_total") {
		for _, lbl := range metric.GetLabel() {
			if lbl.GetName() == "process_id" {
				byLabel[lbl.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	if byLabel["p1"] != 2 || byLabel["p2"] != 1 {
		t.Fatalf("unexpected counter values: %+v", byLabel)
	}
}

func TestMetrics_SetQueueDepthOverwrites(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.setQueueDepth("p1", 5)
	m.setQueueDepth("p1", 2)

	metrics := gatherCounter(t, reg, "flowkernel_queue_depth")
	if len(metrics) != 1 || metrics[0].GetGauge().GetValue() != 2 {
		t.Fatalf("expected queue depth gauge to read 2 after overwrite, got %+v", metrics)
	}
}

func TestMetrics_RecordDispatchObservesLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.recordDispatch("p1", "stepA", "ok", 12*time.Millisecond)

	metrics := gatherCounter(t, reg, "flowkernel_dispatch_latency_ms")
	if len(metrics) != 1 || metrics[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one observed sample, got %+v", metrics)
	}
}

func TestMetrics_NilReceiverIsNoOp(t *testing.T) {
	var m *Metrics
	m.recordSuperstep("p1")
	m.setQueueDepth("p1", 1)
	m.recordDispatch("p1", "s", "ok", time.Millisecond)
	m.recordGroupRelease("p1", "g1")
}
