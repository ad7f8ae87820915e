package metrics

import (
	"sort"
	"strings"
	"sync"
)

// MemorySink keeps the last value of every series in memory. It backs the
// debug endpoint and is handy in tests.
type MemorySink struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *MemorySink) RecordCounter(name string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[seriesKey(name, labels)]++
}

func (m *MemorySink) RecordGauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[seriesKey(name, labels)] = value
}

func (m *MemorySink) RecordHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := seriesKey(name, labels)
	m.histograms[key] = append(m.histograms[key], value)
}

// Counter sums every series of the named counter whose labels include the
// given subset.
func (m *MemorySink) Counter(name string, labels map[string]string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	for key, v := range m.counters {
		if seriesMatches(key, name, labels) {
			total += v
		}
	}
	return total
}

func (m *MemorySink) Gauge(name string, labels map[string]string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.gauges[seriesKey(name, labels)]
	return v, ok
}

func (m *MemorySink) Observations(name string, labels map[string]string) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []float64
	for key, values := range m.histograms {
		if seriesMatches(key, name, labels) {
			out = append(out, values...)
		}
	}
	return out
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}

func seriesMatches(key, name string, labels map[string]string) bool {
	if key != name && !strings.HasPrefix(key, name+"{") {
		return false
	}
	if len(labels) == 0 {
		return true
	}
	body := "," + strings.TrimSuffix(strings.TrimPrefix(key, name+"{"), "}") + ","
	for k, v := range labels {
		if !strings.Contains(body, ","+k+"="+v+",") {
			return false
		}
	}
	return true
}
