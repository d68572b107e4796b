// Package metrics keeps in-process counters, gauges and histograms and
// serves them as JSON or Prometheus text.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metric types.
const (
	TypeCounter   = "counter"
	TypeGauge     = "gauge"
	TypeHistogram = "histogram"
)

// historySize bounds the recent observations kept per histogram.
const historySize = 100

// DefaultBuckets are upper bounds in seconds for duration histograms.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Collector 指标收集器
type Collector struct {
	metrics map[string]*Metric
	buckets []float64
	now     func() time.Time
	mu      sync.RWMutex
}

// Metric 指标
type Metric struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Count     uint64            `json:"count,omitempty"`
	Sum       float64           `json:"sum,omitempty"`
	Buckets   []Bucket          `json:"buckets,omitempty"`
	History   []float64         `json:"history,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Bucket counts histogram observations <= UpperBound.
type Bucket struct {
	UpperBound float64 `json:"le"`
	Count      uint64  `json:"count"`
}

// NewCollector 创建指标收集器
func NewCollector() *Collector {
	return &Collector{
		metrics: make(map[string]*Metric),
		buckets: DefaultBuckets,
		now:     time.Now,
	}
}

// IncCounter 增加计数器
func (c *Collector) IncCounter(name string, labels map[string]string) {
	c.AddCounter(name, 1, labels)
}

// AddCounter 增加计数器值
func (c *Collector) AddCounter(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metric := c.metric(name, TypeCounter, labels)
	metric.Value += value
}

// SetGauge 设置仪表值
func (c *Collector) SetGauge(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metric := c.metric(name, TypeGauge, labels)
	metric.Value = value
}

// ObserveHistogram 观察直方图
func (c *Collector) ObserveHistogram(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metric := c.metric(name, TypeHistogram, labels)
	if metric.Buckets == nil {
		metric.Buckets = make([]Bucket, len(c.buckets))
		for i, b := range c.buckets {
			metric.Buckets[i].UpperBound = b
		}
	}
	for i := range metric.Buckets {
		if value <= metric.Buckets[i].UpperBound {
			metric.Buckets[i].Count++
		}
	}
	metric.Count++
	metric.Sum += value
	metric.Value = value
	metric.History = append(metric.History, value)
	if len(metric.History) > historySize {
		metric.History = metric.History[1:]
	}
}

// metric finds or creates the series; caller holds mu.
func (c *Collector) metric(name, typ string, labels map[string]string) *Metric {
	key := buildKey(name, labels)
	metric, exists := c.metrics[key]
	if !exists {
		metric = &Metric{Name: name, Type: typ, Labels: copyLabels(labels)}
		c.metrics[key] = metric
	}
	metric.Timestamp = c.now().Unix()
	return metric
}

// buildKey 构建指标键，标签按名称排序
func buildKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i, k := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%q", k, labels[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func (m *Metric) clone() *Metric {
	cp := *m
	cp.Labels = copyLabels(m.Labels)
	cp.Buckets = append([]Bucket(nil), m.Buckets...)
	cp.History = append([]float64(nil), m.History...)
	return &cp
}

// GetMetrics returns copies of every series keyed by name{labels}.
func (c *Collector) GetMetrics() map[string]*Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]*Metric, len(c.metrics))
	for k, v := range c.metrics {
		result[k] = v.clone()
	}
	return result
}

// GetMetric returns a copy of one series, or nil.
func (c *Collector) GetMetric(name string, labels map[string]string) *Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if metric, ok := c.metrics[buildKey(name, labels)]; ok {
		return metric.clone()
	}
	return nil
}

// Value returns the current value of a counter or gauge, or 0.
func (c *Collector) Value(name string, labels map[string]string) float64 {
	if metric := c.GetMetric(name, labels); metric != nil {
		return metric.Value
	}
	return 0
}

// Reset 重置指标
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = make(map[string]*Metric)
}

// Snapshot 指标快照
type Snapshot struct {
	Timestamp int64     `json:"timestamp"`
	Metrics   []*Metric `json:"metrics"`
}

// TakeSnapshot returns every series sorted by key.
func (c *Collector) TakeSnapshot() Snapshot {
	metrics := c.GetMetrics()
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	snapshot := Snapshot{Timestamp: c.now().Unix(), Metrics: make([]*Metric, 0, len(keys))}
	for _, k := range keys {
		snapshot.Metrics = append(snapshot.Metrics, metrics[k])
	}
	return snapshot
}

// PrometheusFormat renders the text exposition format.
func (c *Collector) PrometheusFormat() string {
	snapshot := c.TakeSnapshot()
	var sb strings.Builder
	typed := make(map[string]bool)

	for _, metric := range snapshot.Metrics {
		if !typed[metric.Name] {
			fmt.Fprintf(&sb, "# TYPE %s %s\n", metric.Name, metric.Type)
			typed[metric.Name] = true
		}
		switch metric.Type {
		case TypeHistogram:
			for _, b := range metric.Buckets {
				fmt.Fprintf(&sb, "%s %d\n", buildKey(metric.Name+"_bucket", withLabel(metric.Labels, "le", formatFloat(b.UpperBound))), b.Count)
			}
			fmt.Fprintf(&sb, "%s %d\n", buildKey(metric.Name+"_bucket", withLabel(metric.Labels, "le", "+Inf")), metric.Count)
			fmt.Fprintf(&sb, "%s %s\n", buildKey(metric.Name+"_sum", metric.Labels), formatFloat(metric.Sum))
			fmt.Fprintf(&sb, "%s %d\n", buildKey(metric.Name+"_count", metric.Labels), metric.Count)
		default:
			fmt.Fprintf(&sb, "%s %s\n", buildKey(metric.Name, metric.Labels), formatFloat(metric.Value))
		}
	}
	return sb.String()
}

func withLabel(labels map[string]string, k, v string) map[string]string {
	out := copyLabels(labels)
	if out == nil {
		out = make(map[string]string, 1)
	}
	out[k] = v
	return out
}

func formatFloat(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
}
