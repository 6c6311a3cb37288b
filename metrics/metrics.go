// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package metrics contains helpers for performance metric management inside
// the authorization engine.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Well-known metric names.
const (
	AuthorizeRun        = "biscuit_authorize"
	WorldRun            = "biscuit_world_run"
	WorldIterations     = "biscuit_world_iterations"
	WorldFacts          = "biscuit_world_facts"
	ChecksEvaluated     = "biscuit_checks_evaluated"
	PoliciesEvaluated   = "biscuit_policies_evaluated"
)

// Metrics defines the interface for a collection of engine performance
// metrics.
type Metrics interface {
	Timer(name string) Timer
	Histogram(name string) Histogram
	Counter(name string) Counter
	All() map[string]interface{}
	Clear()
}

// Timer defines the interface for a restartable timer accumulating elapsed
// time.
type Timer interface {
	Value() interface{}
	Int64() int64
	Start()
	Stop() int64
}

// Histogram defines the interface for a histogram of observed values.
type Histogram interface {
	Value() interface{}
	Update(int64)
}

// Counter defines the interface for a monotonic counter.
type Counter interface {
	Value() interface{}
	Incr()
	Add(n uint64)
}

type metrics struct {
	mtx        sync.Mutex
	timers     map[string]Timer
	histograms map[string]Histogram
	counters   map[string]Counter
}

// New returns a new Metrics object.
func New() Metrics {
	m := &metrics{}
	m.Clear()
	return m
}

func (m *metrics) String() string {
	all := m.All()
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := make([]string, 0, len(keys))
	for _, k := range keys {
		buf = append(buf, fmt.Sprintf("%v:%v", k, all[k]))
	}
	return strings.Join(buf, " ")
}

func (m *metrics) Timer(name string) Timer {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	t, ok := m.timers[name]
	if !ok {
		t = &timer{}
		m.timers[name] = t
	}
	return t
}

func (m *metrics) Histogram(name string) Histogram {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	h, ok := m.histograms[name]
	if !ok {
		h = newHistogram()
		m.histograms[name] = h
	}
	return h
}

func (m *metrics) Counter(name string) Counter {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	c, ok := m.counters[name]
	if !ok {
		c = &counter{}
		m.counters[name] = c
	}
	return c
}

func (m *metrics) All() map[string]interface{} {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	result := make(map[string]interface{}, len(m.timers)+len(m.histograms)+len(m.counters))
	for name, t := range m.timers {
		result["timer_"+name+"_ns"] = t.Value()
	}
	for name, h := range m.histograms {
		result["histogram_"+name] = h.Value()
	}
	for name, c := range m.counters {
		result["counter_"+name] = c.Value()
	}
	return result
}

func (m *metrics) Clear() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.timers = map[string]Timer{}
	m.histograms = map[string]Histogram{}
	m.counters = map[string]Counter{}
}

type timer struct {
	mtx   sync.Mutex
	start time.Time
	value int64
}

func (t *timer) Start() {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.start = time.Now()
}

func (t *timer) Stop() int64 {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	delta := time.Since(t.start).Nanoseconds()
	t.value += delta
	return delta
}

func (t *timer) Value() interface{} {
	return t.Int64()
}

func (t *timer) Int64() int64 {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.value
}

type histogram struct {
	hist gometrics.Histogram
}

func newHistogram() Histogram {
	// the same reservoir parameters as the codahale implementation
	return &histogram{hist: gometrics.NewHistogram(gometrics.NewExpDecaySample(1028, 0.015))}
}

func (h *histogram) Update(v int64) {
	h.hist.Update(v)
}

func (h *histogram) Value() interface{} {
	values := map[string]interface{}{}
	snap := h.hist.Snapshot()
	percentiles := snap.Percentiles([]float64{0.5, 0.75, 0.9, 0.95, 0.99, 0.999})
	values["count"] = snap.Count()
	values["min"] = snap.Min()
	values["max"] = snap.Max()
	values["mean"] = snap.Mean()
	values["stddev"] = snap.StdDev()
	values["median"] = percentiles[0]
	values["75%"] = percentiles[1]
	values["90%"] = percentiles[2]
	values["95%"] = percentiles[3]
	values["99%"] = percentiles[4]
	values["99.9%"] = percentiles[5]
	return values
}

type counter struct {
	mtx sync.Mutex
	n   uint64
}

func (c *counter) Incr() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.n++
}

func (c *counter) Add(n uint64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.n += n
}

func (c *counter) Value() interface{} {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.n
}

type noOpMetrics struct{}

type noOpTimer struct{}

type noOpHistogram struct{}

type noOpCounter struct{}

var noOpMetricsInstance = &noOpMetrics{}

// NoOp returns a Metrics implementation that does nothing and costs
// nothing. Used when metrics are expected, but not of interest.
func NoOp() Metrics {
	return noOpMetricsInstance
}

func (*noOpMetrics) Timer(string) Timer             { return noOpTimer{} }
func (*noOpMetrics) Histogram(string) Histogram     { return noOpHistogram{} }
func (*noOpMetrics) Counter(string) Counter         { return noOpCounter{} }
func (*noOpMetrics) All() map[string]interface{}    { return map[string]interface{}{} }
func (*noOpMetrics) Clear()                         {}
func (noOpTimer) Value() interface{}                { return int64(0) }
func (noOpTimer) Int64() int64                      { return 0 }
func (noOpTimer) Start()                            {}
func (noOpTimer) Stop() int64                       { return 0 }
func (noOpHistogram) Value() interface{}            { return nil }
func (noOpHistogram) Update(int64)                  {}
func (noOpCounter) Value() interface{}              { return uint64(0) }
func (noOpCounter) Incr()                           {}
func (noOpCounter) Add(uint64)                      {}
