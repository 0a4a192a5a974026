// Package metrics provides a lightweight metrics collector that outputs
// text/plain in Prometheus exposition format without requiring the heavy
// prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector.
var Collector = NewMetricsCollector()

// MetricsCollector aggregates named counters.
type MetricsCollector struct {
	counters  sync.Map // name -> *Counter
	startTime time.Time
}

// NewMetricsCollector creates a new collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Counter returns the counter with the given name, creating it on first use.
func (c *MetricsCollector) Counter(name, help string) *Counter {
	if v, ok := c.counters.Load(name); ok {
		return v.(*Counter)
	}
	counter := &Counter{name: name, help: help}
	actual, _ := c.counters.LoadOrStore(name, counter)
	return actual.(*Counter)
}

// Export renders all counters in Prometheus exposition format.
func (c *MetricsCollector) Export() string {
	var counters []*Counter
	c.counters.Range(func(_, v any) bool {
		counters = append(counters, v.(*Counter))
		return true
	})
	sort.Slice(counters, func(i, j int) bool { return counters[i].name < counters[j].name })

	var sb strings.Builder
	for _, counter := range counters {
		if counter.help != "" {
			fmt.Fprintf(&sb, "# HELP %s %s\n", counter.name, counter.help)
		}
		fmt.Fprintf(&sb, "# TYPE %s counter\n", counter.name)
		fmt.Fprintf(&sb, "%s %d\n", counter.name, counter.Value())
	}
	return sb.String()
}
