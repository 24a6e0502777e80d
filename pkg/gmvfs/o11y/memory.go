package o11y

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsSnapshot is a point-in-time copy of a MemoryProvider's metrics.
// Series keys are the metric name followed by its sorted labels, e.g.
// `gmvfs_commands_sent_total{command=Serialize}`.
type MetricsSnapshot struct {
	Timestamp   time.Time            `json:"timestamp"`
	ServiceName string               `json:"service_name"`
	Counters    map[string]int64     `json:"counters"`
	Histograms  map[string][]float64 `json:"histograms"`
	Gauges      map[string]float64   `json:"gauges"`
}

// MemoryProvider keeps metrics in process. It is safe for concurrent use.
type MemoryProvider struct {
	serviceName string

	counters   sync.Map // map[string]*memoryCounter
	histograms sync.Map // map[string]*memoryHistogram
	gauges     sync.Map // map[string]*memoryGauge
}

// NewMemoryProvider creates an empty in-process metrics provider.
func NewMemoryProvider(serviceName string) *MemoryProvider {
	if serviceName == "" {
		serviceName = "gmvfs"
	}
	return &MemoryProvider{serviceName: serviceName}
}

// Counter returns the counter family with the given name.
func (m *MemoryProvider) Counter(name string) Counter {
	return &memoryCounter{name: name, owner: m}
}

// Histogram returns the histogram family with the given name.
func (m *MemoryProvider) Histogram(name string) Histogram {
	return &memoryHistogram{name: name, owner: m}
}

// Gauge returns the gauge family with the given name.
func (m *MemoryProvider) Gauge(name string) Gauge {
	return &memoryGauge{name: name, owner: m}
}

// CounterValue returns the current value of one counter series.
func (m *MemoryProvider) CounterValue(name string, labels ...Label) int64 {
	if v, ok := m.counters.Load(seriesKey(name, labels)); ok {
		return atomic.LoadInt64(&v.(*int64Cell).value)
	}
	return 0
}

// Snapshot copies every series.
func (m *MemoryProvider) Snapshot() MetricsSnapshot {
	snapshot := MetricsSnapshot{
		Timestamp:   time.Now(),
		ServiceName: m.serviceName,
		Counters:    make(map[string]int64),
		Histograms:  make(map[string][]float64),
		Gauges:      make(map[string]float64),
	}

	m.counters.Range(func(key, value any) bool {
		snapshot.Counters[key.(string)] = atomic.LoadInt64(&value.(*int64Cell).value)
		return true
	})

	m.histograms.Range(func(key, value any) bool {
		cell := value.(*floatsCell)
		cell.mu.RLock()
		snapshot.Histograms[key.(string)] = append([]float64(nil), cell.values...)
		cell.mu.RUnlock()
		return true
	})

	m.gauges.Range(func(key, value any) bool {
		cell := value.(*floatCell)
		cell.mu.RLock()
		snapshot.Gauges[key.(string)] = cell.value
		cell.mu.RUnlock()
		return true
	})

	return snapshot
}

type int64Cell struct {
	value int64
}

type floatsCell struct {
	mu     sync.RWMutex
	values []float64
}

type floatCell struct {
	mu    sync.RWMutex
	value float64
}

type memoryCounter struct {
	name  string
	owner *MemoryProvider
}

func (c *memoryCounter) Add(_ context.Context, value int64, labels ...Label) {
	cell, _ := c.owner.counters.LoadOrStore(seriesKey(c.name, labels), &int64Cell{})
	atomic.AddInt64(&cell.(*int64Cell).value, value)
}

type memoryHistogram struct {
	name  string
	owner *MemoryProvider
}

func (h *memoryHistogram) Record(_ context.Context, value float64, labels ...Label) {
	cell, _ := h.owner.histograms.LoadOrStore(seriesKey(h.name, labels), &floatsCell{})
	fc := cell.(*floatsCell)
	fc.mu.Lock()
	fc.values = append(fc.values, value)
	fc.mu.Unlock()
}

type memoryGauge struct {
	name  string
	owner *MemoryProvider
}

func (g *memoryGauge) Set(_ context.Context, value float64, labels ...Label) {
	cell, _ := g.owner.gauges.LoadOrStore(seriesKey(g.name, labels), &floatCell{})
	fc := cell.(*floatCell)
	fc.mu.Lock()
	fc.value = value
	fc.mu.Unlock()
}

func seriesKey(name string, labels []Label) string {
	if len(labels) == 0 {
		return name
	}

	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.Key + "=" + l.Value
	}
	sort.Strings(parts)

	return name + "{" + strings.Join(parts, ",") + "}"
}
