package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestSessionStartedAndEndedTrackActiveCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.SessionStarted()
	m.SessionStarted()
	if got := gaugeValue(t, m.ActiveSessions); got != 2 {
		t.Fatalf("expected 2 active sessions, got %v", got)
	}

	m.SessionEnded("finished")
	if got := gaugeValue(t, m.ActiveSessions); got != 1 {
		t.Fatalf("expected 1 active session after one ended, got %v", got)
	}
}

func TestAdmissionCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.Admission(AdmissionAllowed)
	m.Admission(AdmissionDeniedAtCapacity)
	m.Admission(AdmissionDeniedAtCapacity)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() != "synnergy_bootstrap_admission_total" {
			continue
		}
		found = true
		if len(f.GetMetric()) != 2 {
			t.Fatalf("expected 2 distinct outcome label series, got %d", len(f.GetMetric()))
		}
	}
	if !found {
		t.Fatal("expected admission_total metric family to be registered")
	}
}
