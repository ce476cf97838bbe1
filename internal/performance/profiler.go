package performance

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Well-known operation names recorded by the engine.
const (
	OpUpdateVisible = "update_visible"
	OpGenerateChunk = "generate_chunk"
	OpTrimVisible   = "trim_visible"
	OpReseed        = "reseed"
	OpEncodeStars   = "encode_stars"
)

// Profiler tracks timing metrics for named operations.
// A nil *Profiler is valid and records nothing.
type Profiler struct {
	mu        sync.RWMutex
	metrics   map[string]*Metric
	enabled   atomic.Bool
	startTime time.Time
}

// Metric tracks statistics for a specific operation
type Metric struct {
	Name      string
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
	LastTime  time.Duration
	LastCall  time.Time
}

// Operation represents a single timed operation
type Operation struct {
	profiler *Profiler
	name     string
	start    time.Time
}

// NewProfiler creates a new performance profiler
func NewProfiler(enabled bool) *Profiler {
	p := &Profiler{
		metrics:   make(map[string]*Metric),
		startTime: time.Now(),
	}
	p.enabled.Store(enabled)
	return p
}

// Start begins timing an operation. It returns nil when profiling is off;
// calling End on a nil *Operation is a no-op.
func (p *Profiler) Start(name string) *Operation {
	if !p.IsEnabled() {
		return nil
	}
	return &Operation{
		profiler: p,
		name:     name,
		start:    time.Now(),
	}
}

// End completes timing an operation and records the metric
func (o *Operation) End() time.Duration {
	if o == nil {
		return 0
	}
	d := time.Since(o.start)
	o.profiler.Record(o.name, d)
	return d
}

// Record directly records a duration for an operation
func (p *Profiler) Record(name string, duration time.Duration) {
	if !p.IsEnabled() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	metric, exists := p.metrics[name]
	if !exists {
		metric = &Metric{
			Name:    name,
			MinTime: duration,
			MaxTime: duration,
		}
		p.metrics[name] = metric
	}

	metric.Count++
	metric.TotalTime += duration
	metric.LastTime = duration
	metric.LastCall = time.Now()
	metric.MinTime = min(metric.MinTime, duration)
	metric.MaxTime = max(metric.MaxTime, duration)
}

// GetMetric returns a copy of the statistics for one operation, or nil.
func (p *Profiler) GetMetric(name string) *Metric {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.metrics[name]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// GetMetrics returns copies of all metrics ordered by name.
func (p *Profiler) GetMetrics() []Metric {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]Metric, 0, len(p.metrics))
	for _, m := range p.metrics {
		result = append(result, *m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// AverageTime returns the average time for a metric
func (m Metric) AverageTime() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalTime / time.Duration(m.Count)
}

// Reset clears all metrics
func (p *Profiler) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = make(map[string]*Metric)
	p.startTime = time.Now()
}

// Report generates a human-readable performance report
func (p *Profiler) Report() string {
	metrics := p.GetMetrics()
	if len(metrics) == 0 {
		return "No performance metrics recorded"
	}

	p.mu.RLock()
	started := p.startTime
	p.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== Performance Report (since %s) ===\n", started.Format(time.RFC3339))
	fmt.Fprintf(&b, "%-24s %10s %12s %12s %12s %12s\n", "Operation", "Count", "Avg", "Min", "Max", "Last")
	b.WriteString(strings.Repeat("-", 88) + "\n")
	for _, m := range metrics {
		fmt.Fprintf(&b, "%-24s %10d %12s %12s %12s %12s\n",
			m.Name,
			m.Count,
			m.AverageTime().Round(time.Microsecond),
			m.MinTime.Round(time.Microsecond),
			m.MaxTime.Round(time.Microsecond),
			m.LastTime.Round(time.Microsecond),
		)
	}
	fmt.Fprintf(&b, "\nTotal runtime: %s\n", time.Since(started).Round(time.Millisecond))
	return b.String()
}

// LogReport writes one structured record per metric.
func (p *Profiler) LogReport(logger *slog.Logger) {
	for _, m := range p.GetMetrics() {
		logger.Info("performance metric",
			"operation", m.Name,
			"count", m.Count,
			"avg", m.AverageTime(),
			"min", m.MinTime,
			"max", m.MaxTime,
		)
	}
}

// MetricReport is the JSON form of a Metric. Times are in milliseconds.
type MetricReport struct {
	Name    string    `json:"name"`
	Count   int64     `json:"count"`
	TotalMs float64   `json:"total_ms"`
	AvgMs   float64   `json:"avg_ms"`
	MinMs   float64   `json:"min_ms"`
	MaxMs   float64   `json:"max_ms"`
	LastMs  float64   `json:"last_ms"`
	LastRun time.Time `json:"last_call"`
}

// Snapshot is the JSON form of the whole profiler.
type Snapshot struct {
	Enabled   bool           `json:"enabled"`
	StartTime time.Time      `json:"start_time"`
	RuntimeMs float64        `json:"runtime_ms"`
	Metrics   []MetricReport `json:"metrics"`
}

// Snapshot captures every metric.
func (p *Profiler) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{Metrics: []MetricReport{}}
	}
	p.mu.RLock()
	started := p.startTime
	p.mu.RUnlock()

	metrics := p.GetMetrics()
	snap := Snapshot{
		Enabled:   p.IsEnabled(),
		StartTime: started,
		RuntimeMs: millis(time.Since(started)),
		Metrics:   make([]MetricReport, 0, len(metrics)),
	}
	for _, m := range metrics {
		snap.Metrics = append(snap.Metrics, MetricReport{
			Name:    m.Name,
			Count:   m.Count,
			TotalMs: millis(m.TotalTime),
			AvgMs:   millis(m.AverageTime()),
			MinMs:   millis(m.MinTime),
			MaxMs:   millis(m.MaxTime),
			LastMs:  millis(m.LastTime),
			LastRun: m.LastCall,
		})
	}
	return snap
}

// JSONReport generates a JSON performance report
func (p *Profiler) JSONReport() ([]byte, error) {
	return json.MarshalIndent(p.Snapshot(), "", "  ")
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Enable enables profiling
func (p *Profiler) Enable() {
	p.enabled.Store(true)
}

// Disable disables profiling
func (p *Profiler) Disable() {
	p.enabled.Store(false)
}

// IsEnabled returns whether profiling is enabled
func (p *Profiler) IsEnabled() bool {
	return p != nil && p.enabled.Load()
}
