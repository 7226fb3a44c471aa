package prommetrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCountsWithKnownLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(registry)

	tags := map[string]string{"operation": "connect", "status": "success", "service_name": "github", "user_id": "dropped"}
	recorder.IncCounter(context.Background(), "integrations.connect.total", 1, tags)
	recorder.IncCounter(context.Background(), "integrations.connect.total", 2, tags)

	vec := recorder.counters["integrations_connect_total"]
	if vec == nil {
		t.Fatalf("expected counter vector to be created")
	}
	got := testutil.ToFloat64(vec.With(recorder.labelValues(tags)))
	if got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
	if count := testutil.CollectAndCount(vec); count != 1 {
		t.Fatalf("expected one series, got %d", count)
	}
}

func TestRecorderHistogramIsRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(registry, WithNamespace("app"))

	recorder.ObserveHistogram(context.Background(), "integrations.refresh.duration_ms", 42, map[string]string{"operation": "refresh"})

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "app_integrations_refresh_duration_ms" {
		t.Fatalf("unexpected families: %v", families)
	}
	if families[0].GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one observation")
	}
}

func TestRecorderReusesCollectorsAcrossInstances(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewRecorder(registry)
	second := NewRecorder(registry)

	first.IncCounter(context.Background(), "integrations.job.start.total", 1, nil)
	second.IncCounter(context.Background(), "integrations.job.start.total", 1, nil)

	got := testutil.ToFloat64(second.counters["integrations_job_start_total"].With(second.labelValues(nil)))
	if got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"integrations.connect.total": "integrations_connect_total",
		"9lives":                     "_9lives",
		"a-b c":                      "a_b_c",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Fatalf("sanitize %q: expected %q, got %q", in, want, got)
		}
	}
}
