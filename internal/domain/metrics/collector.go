package metrics

import (
	"sort"
	"sync"
	"time"
)

// Metric names recorded by the send workflow
const (
	MetricSendSubmitted    = "send_submitted"
	MetricSendAcknowledged = "send_acknowledged"
	MetricSendResolved     = "send_resolved"
	MetricSendFailed       = "send_failed"
	MetricResponseTime     = "response_time"
)

// Metric represents a single metric measurement
type Metric struct {
	Name      string            `json:"name"`
	Value     int64             `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// SystemMetrics contains aggregated workflow metrics
type SystemMetrics struct {
	AvgResponseTime int64            `json:"avg_response_time"`
	P95ResponseTime int64            `json:"p95_response_time"`
	P99ResponseTime int64            `json:"p99_response_time"`
	ResponseTimes   []int64          `json:"response_times"`
	SendFlow        SendFlow         `json:"send_flow"`
	FailuresByKind  map[string]int64 `json:"failures_by_kind"`
	Timestamp       time.Time        `json:"timestamp"`
}

// SendFlow tracks how many sends reached each workflow state
type SendFlow struct {
	Submitted    int64 `json:"submitted"`
	Acknowledged int64 `json:"acknowledged"`
	Resolved     int64 `json:"resolved"`
	Failed       int64 `json:"failed"`
	InFlight     int64 `json:"in_flight"`
}

// Collector aggregates and provides access to workflow metrics
type Collector struct {
	mu          sync.RWMutex
	metrics     []Metric
	maxMetrics  int
	maxSamples  int
	systemStats *SystemMetrics
	lastUpdate  time.Time
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	c := &Collector{
		maxMetrics: 1000,
		maxSamples: 20,
	}
	c.resetLocked()
	return c
}

func (c *Collector) resetLocked() {
	c.metrics = make([]Metric, 0, c.maxMetrics)
	c.systemStats = &SystemMetrics{
		ResponseTimes:  make([]int64, 0, c.maxSamples),
		FailuresByKind: make(map[string]int64),
		Timestamp:      time.Now(),
	}
	c.lastUpdate = time.Now()
}

// RecordMetric adds a new metric measurement
func (c *Collector) RecordMetric(metric Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metric.Timestamp = time.Now()
	c.metrics = append(c.metrics, metric)

	// Keep only the most recent metrics
	if len(c.metrics) > c.maxMetrics {
		c.metrics = c.metrics[len(c.metrics)-c.maxMetrics:]
	}

	c.updateSystemStats(metric)
}

// RecordSubmitted counts a send entering the workflow
func (c *Collector) RecordSubmitted() {
	c.RecordMetric(Metric{Name: MetricSendSubmitted, Value: 1})
}

// RecordAcknowledged counts a responder handing back an execution handle
func (c *Collector) RecordAcknowledged() {
	c.RecordMetric(Metric{Name: MetricSendAcknowledged, Value: 1})
}

// RecordResolved counts a successful send and its end-to-end duration
func (c *Collector) RecordResolved(duration time.Duration) {
	c.RecordMetric(Metric{Name: MetricSendResolved, Value: 1})
	c.RecordResponseTime(duration, "resolved")
}

// RecordFailed counts a failed send, tagged with the failure kind
func (c *Collector) RecordFailed(kind string, duration time.Duration) {
	c.RecordMetric(Metric{Name: MetricSendFailed, Value: 1, Tags: map[string]string{"kind": kind}})
	c.RecordResponseTime(duration, "failed")
}

// RecordResponseTime records how long a send took to settle
func (c *Collector) RecordResponseTime(duration time.Duration, outcome string) {
	c.RecordMetric(Metric{
		Name:  MetricResponseTime,
		Value: duration.Milliseconds(),
		Tags:  map[string]string{"outcome": outcome},
	})
}

// Snapshot returns a copy of the aggregated metrics
func (c *Collector) Snapshot() SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := *c.systemStats
	out.ResponseTimes = append([]int64{}, c.systemStats.ResponseTimes...)
	out.FailuresByKind = make(map[string]int64, len(c.systemStats.FailuresByKind))
	for k, v := range c.systemStats.FailuresByKind {
		out.FailuresByKind[k] = v
	}
	return out
}

// GetMetrics returns up to limit recent metrics matching the filter, oldest first
func (c *Collector) GetMetrics(filter map[string]string, limit int) []Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var filtered []Metric
	for i := len(c.metrics) - 1; i >= 0 && len(filtered) < limit; i-- {
		if matchesFilter(c.metrics[i], filter) {
			filtered = append(filtered, c.metrics[i])
		}
	}

	// Reverse to get chronological order
	for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	}

	return filtered
}

// updateSystemStats aggregates metrics into system statistics
func (c *Collector) updateSystemStats(metric Metric) {
	now := time.Now()
	flow := &c.systemStats.SendFlow

	switch metric.Name {
	case MetricResponseTime:
		c.systemStats.ResponseTimes = append(c.systemStats.ResponseTimes, metric.Value)
		if len(c.systemStats.ResponseTimes) > c.maxSamples {
			c.systemStats.ResponseTimes = c.systemStats.ResponseTimes[1:]
		}
		c.calculateResponseTimeStats()

	case MetricSendSubmitted:
		flow.Submitted++
		flow.InFlight++

	case MetricSendAcknowledged:
		flow.Acknowledged++

	case MetricSendResolved:
		flow.Resolved++
		flow.InFlight--

	case MetricSendFailed:
		flow.Failed++
		flow.InFlight--
		c.systemStats.FailuresByKind[metric.Tags["kind"]]++
	}

	c.systemStats.Timestamp = now
	c.lastUpdate = now
}

// calculateResponseTimeStats computes avg, p95, p99 from recent response times
func (c *Collector) calculateResponseTimeStats() {
	times := c.systemStats.ResponseTimes
	if len(times) == 0 {
		return
	}

	sorted := append([]int64{}, times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, t := range times {
		sum += t
	}
	c.systemStats.AvgResponseTime = sum / int64(len(times))

	n := len(sorted)
	c.systemStats.P95ResponseTime = sorted[int(float64(n-1)*0.95)]
	c.systemStats.P99ResponseTime = sorted[int(float64(n-1)*0.99)]
}

// matchesFilter checks if a metric matches the given filter criteria
func matchesFilter(metric Metric, filter map[string]string) bool {
	for key, value := range filter {
		if key == "name" {
			if metric.Name != value {
				return false
			}
			continue
		}
		if tagValue, exists := metric.Tags[key]; !exists || tagValue != value {
			return false
		}
	}
	return true
}

// Reset clears all collected metrics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// GetLastUpdateTime returns when metrics were last updated
func (c *Collector) GetLastUpdateTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}
