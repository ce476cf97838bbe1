package performance

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestProfiler(t *testing.T) {
	profiler := NewProfiler(true)

	op := profiler.Start("test_operation")
	time.Sleep(10 * time.Millisecond)
	if d := op.End(); d < 10*time.Millisecond {
		t.Errorf("End() = %v, want at least 10ms", d)
	}

	metric := profiler.GetMetric("test_operation")
	if metric == nil {
		t.Fatal("Metric not found")
	}

	if metric.Count != 1 {
		t.Errorf("Expected count 1, got %d", metric.Count)
	}

	if metric.MinTime < 10*time.Millisecond {
		t.Errorf("Expected min time >= 10ms, got %v", metric.MinTime)
	}
}

func TestProfilerDisabled(t *testing.T) {
	profiler := NewProfiler(false)

	op := profiler.Start("test_operation")
	if op != nil {
		t.Error("Expected nil operation when profiler disabled")
	}
	op.End()

	profiler.Record("test", 10*time.Millisecond)
	if metric := profiler.GetMetric("test"); metric != nil {
		t.Error("Expected nil metric when profiler disabled")
	}

	profiler.Enable()
	profiler.Record("test", time.Millisecond)
	if metric := profiler.GetMetric("test"); metric == nil {
		t.Error("Expected metric after Enable()")
	}
}

func TestNilProfiler(t *testing.T) {
	var profiler *Profiler

	profiler.Start("noop").End()
	profiler.Record("noop", time.Millisecond)
	profiler.Reset()

	if profiler.IsEnabled() {
		t.Error("nil profiler reports enabled")
	}
	if len(profiler.GetMetrics()) != 0 {
		t.Error("nil profiler returned metrics")
	}
	if snap := profiler.Snapshot(); snap.Metrics == nil {
		t.Error("Snapshot() of nil profiler should have an empty metric list")
	}
}

func TestProfilerMinMaxAverage(t *testing.T) {
	profiler := NewProfiler(true)

	profiler.Record("multi_test", 2*time.Millisecond)
	profiler.Record("multi_test", 4*time.Millisecond)
	profiler.Record("multi_test", 9*time.Millisecond)

	metric := profiler.GetMetric("multi_test")
	if metric == nil {
		t.Fatal("Metric not found")
	}
	if metric.Count != 3 {
		t.Errorf("Expected count 3, got %d", metric.Count)
	}
	if metric.MinTime != 2*time.Millisecond || metric.MaxTime != 9*time.Millisecond {
		t.Errorf("Expected min/max 2ms/9ms, got %v/%v", metric.MinTime, metric.MaxTime)
	}
	if avg := metric.AverageTime(); avg != 5*time.Millisecond {
		t.Errorf("Expected avg 5ms, got %v", avg)
	}
	if metric.LastTime != 9*time.Millisecond {
		t.Errorf("Expected last 9ms, got %v", metric.LastTime)
	}
}

func TestProfilerReport(t *testing.T) {
	profiler := NewProfiler(true)

	profiler.Record(OpUpdateVisible, 10*time.Millisecond)
	profiler.Record(OpGenerateChunk, 20*time.Millisecond)

	report := profiler.Report()
	for _, name := range []string{OpUpdateVisible, OpGenerateChunk} {
		if !strings.Contains(report, name) {
			t.Errorf("Report() missing operation %q", name)
		}
	}

	profiler.Reset()
	if got := profiler.Report(); got != "No performance metrics recorded" {
		t.Errorf("Report() after Reset = %q", got)
	}
}

func TestProfilerJSONReport(t *testing.T) {
	profiler := NewProfiler(true)

	profiler.Record("json_test", 15*time.Millisecond)

	jsonData, err := profiler.JSONReport()
	if err != nil {
		t.Fatalf("Failed to generate JSON report: %v", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(jsonData, &snap); err != nil {
		t.Fatalf("JSONReport() is not valid JSON: %v", err)
	}
	if len(snap.Metrics) != 1 || snap.Metrics[0].AvgMs != 15 {
		t.Errorf("JSONReport() metrics = %+v, want one metric averaging 15ms", snap.Metrics)
	}
}
