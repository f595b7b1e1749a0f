// Package metrics implements the node core's instrumentation: counters,
// gauges, and aggregate histograms registered by dotted name, with a
// Prometheus-text dump for scrapers and one-shot tools. The surface is
// deliberately small — handles are grabbed once at startup (standard.go)
// and updated on the hot paths; counters and gauges are atomic, while a
// histogram observation takes the histogram's own mutex.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing count.
type Counter struct {
	v atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.v.Add(1) }

// Add increments the counter by n; negative deltas are ignored since the
// count never decreases.
func (c *Counter) Add(n int64) {
	if n > 0 {
		c.v.Add(n)
	}
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.v.Load() }

// Gauge is an instantaneous value that can move both ways.
type Gauge struct {
	v atomic.Int64
}

// Set replaces the gauge's value.
func (g *Gauge) Set(v int64) { g.v.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.v.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.v.Add(-1) }

// Value returns the current value.
func (g *Gauge) Value() int64 { return g.v.Load() }

// Histogram aggregates observed values: count, sum, min, max. Quantiles
// are out of scope; the trie-commit and sync-batch distributions this
// node tracks only need the aggregates.
type Histogram struct {
	mu    sync.Mutex
	count int64
	sum   float64
	min   float64
	max   float64
}

// Observe folds one value into the aggregates.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	if h.count == 0 || v < h.min {
		h.min = v
	}
	if h.count == 0 || v > h.max {
		h.max = v
	}
	h.count++
	h.sum += v
	h.mu.Unlock()
}

// HistogramStats is a point-in-time copy of a histogram's aggregates. An
// empty histogram reports all zeros.
type HistogramStats struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64
}

// Stats returns a consistent snapshot of the aggregates.
func (h *Histogram) Stats() HistogramStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return HistogramStats{}
	}
	return HistogramStats{
		Count: h.count,
		Sum:   h.sum,
		Min:   h.min,
		Max:   h.max,
		Mean:  h.sum / float64(h.count),
	}
}

// Timer records an operation's elapsed wall time, in milliseconds, into a
// Histogram when stopped.
type Timer struct {
	start time.Time
	hist  *Histogram
}

// NewTimer starts a timer that records into h on Stop.
func NewTimer(h *Histogram) *Timer {
	return &Timer{start: time.Now(), hist: h}
}

// Stop folds the elapsed time into the histogram and returns it.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	if t.hist != nil {
		t.hist.Observe(float64(d.Milliseconds()))
	}
	return d
}

// Registry is a name-keyed set of metrics with get-or-create semantics,
// so a handle lookup never returns nil. A name is bound to the kind it
// was first requested as; asking for it again as a different kind panics,
// since that is a wiring bug, not a runtime condition.
type Registry struct {
	mu      sync.Mutex
	entries map[string]any
}

// DefaultRegistry holds the process-wide metrics declared in standard.go.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]any)}
}

func getOrCreate[T any](r *Registry, name string, fresh func() *T) *T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		m, ok := e.(*T)
		if !ok {
			panic(fmt.Sprintf("metrics: %q already registered as %T", name, e))
		}
		return m
	}
	m := fresh()
	r.entries[name] = m
	return m
}

// Counter returns the counter registered under name, creating it if new.
func (r *Registry) Counter(name string) *Counter {
	return getOrCreate(r, name, func() *Counter { return new(Counter) })
}

// Gauge returns the gauge registered under name, creating it if new.
func (r *Registry) Gauge(name string) *Gauge {
	return getOrCreate(r, name, func() *Gauge { return new(Gauge) })
}

// Histogram returns the histogram registered under name, creating it if new.
func (r *Registry) Histogram(name string) *Histogram {
	return getOrCreate(r, name, func() *Histogram { return new(Histogram) })
}

// WriteText dumps every registered metric to w in Prometheus text
// exposition format, names sorted, dots and dashes mapped to underscores
// and prefixed with namespace when one is given. Histograms emit their
// aggregates as _count/_sum/_min/_max/_mean series.
func (r *Registry) WriteText(w io.Writer, namespace string) error {
	r.mu.Lock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	entries := make(map[string]any, len(r.entries))
	for name, e := range r.entries {
		entries[name] = e
	}
	r.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		line := textName(namespace, name)
		var err error
		switch m := entries[name].(type) {
		case *Counter:
			_, err = fmt.Fprintf(w, "# TYPE %s counter\n%s %d\n", line, line, m.Value())
		case *Gauge:
			_, err = fmt.Fprintf(w, "# TYPE %s gauge\n%s %d\n", line, line, m.Value())
		case *Histogram:
			s := m.Stats()
			_, err = fmt.Fprintf(w, "# TYPE %s summary\n%s_count %d\n%s_sum %g\n%s_min %g\n%s_max %g\n%s_mean %g\n",
				line, line, s.Count, line, s.Sum, line, s.Min, line, s.Max, line, s.Mean)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func textName(namespace, name string) string {
	sanitized := strings.NewReplacer(".", "_", "-", "_").Replace(name)
	if namespace == "" {
		return sanitized
	}
	return namespace + "_" + sanitized
}
