package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusMetricsRecorderObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusMetricsRecorder(reg)

	rec.Observe(context.Background(), "create_lot", true, 10*time.Millisecond)
	rec.Observe(context.Background(), "create_lot", false, 20*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, fam := range families {
		byName[fam.GetName()] = fam
	}

	counters, ok := byName["qctrack_service_operation_results_total"]
	if !ok {
		t.Fatalf("results counter family missing")
	}
	counts := make(map[string]float64)
	for _, m := range counters.GetMetric() {
		var status string
		for _, lbl := range m.GetLabel() {
			if lbl.GetName() == "status" {
				status = lbl.GetValue()
			}
		}
		counts[status] = m.GetCounter().GetValue()
	}
	if counts["success"] != 1 || counts["error"] != 1 {
		t.Fatalf("counter values = %v, want success=1 error=1", counts)
	}

	histograms, ok := byName["qctrack_service_operation_duration_seconds"]
	if !ok {
		t.Fatalf("duration histogram family missing")
	}
	if got := histograms.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Fatalf("histogram sample count = %d, want 2", got)
	}
}
