// Package metrics records the monitor's own health: fetch latency and
// failures against the cache server, decode errors, control actions, session
// cache usage and dashboard traffic.
package metrics

import (
	"time"
)

// Collector records metrics. Labels are passed as alternating name/value
// pairs.
type Collector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer measures one operation.
type Timer interface {
	// Stop returns the elapsed time in seconds.
	Stop() float64
}

// NoOpCollector discards everything. Timers still measure, so callers that
// log durations keep working when metrics are disabled.
type NoOpCollector struct{}

// NewNoOpCollector creates a collector that records nothing.
func NewNoOpCollector() Collector {
	return NoOpCollector{}
}

func (NoOpCollector) IncrementCounter(string, ...string) {}
func (NoOpCollector) RecordHistogram(string, float64, ...string) {}
func (NoOpCollector) RecordGauge(string, float64, ...string) {}
func (NoOpCollector) StartTimer(string) Timer { return newTimer() }

type timer struct {
	start time.Time
}

func newTimer() *timer {
	return &timer{start: time.Now()}
}

func (t *timer) Stop() float64 {
	return time.Since(t.start).Seconds()
}
