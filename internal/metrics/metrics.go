// Package metrics collects and exposes partition command interpreter
// observability data.
//
// # Design rationale
//
// Two metric stores coexist in this package:
//
//  1. The in-process Metrics struct (per-partition counters + time series),
//     served as JSON by JSONHandler. cmd/partitiond does not mount
//     JSONHandler; its admin server's /metrics route serves Prometheus.
//  2. A Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems (Grafana, Alertmanager, etc.).
//
// Keeping both allows the dashboard to work without a Prometheus sidecar
// while still supporting enterprise monitoring stacks.
//
// # Concurrency — hot path
//
// RecordCommand is called from a partition's apply loop on every command
// and must be as fast as possible. It uses atomic increments for global
// counters and dispatches a lightweight event onto a buffered channel
// (tsChan) for the time-series worker to process asynchronously. This
// avoids holding any lock on the hot path.
//
// The per-partition PartitionMetrics struct also uses atomic operations
// exclusively; the sync.Map that stores the per-partition entries is
// read-heavy and write-once-per-new-partition, which is the ideal use case
// for sync.Map.
//
// # Invariants
//
//   - TotalCommands == SuccessCommands + FailedCommands (maintained by
//     RecordCommand).
//   - The time-series ring buffer holds at most timeSeriesBucketCount buckets
//     (24 * 60 = 1440 for the last 24 hours at 1-minute granularity).
//   - tsChan capacity is 8192 events; events dropped when full are counted
//     in tsDroppedEvents for observability.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	timeSeriesBucketDuration = time.Minute
	timeSeriesBucketCount    = 24 * 60
)

// TimeSeriesBucket stores metrics for a single time bucket
type TimeSeriesBucket struct {
	Timestamp    time.Time
	Commands     int64
	Errors       int64
	TotalLatency int64
	Count        int64 // for calculating avg
}

// Metrics collects and exposes partition command interpreter metrics
type Metrics struct {
	// Command metrics
	TotalCommands  atomic.Int64
	SuccessCommands atomic.Int64
	FailedCommands atomic.Int64

	// Latency metrics (in milliseconds, one OnApply call)
	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64

	// Invocation lifecycle metrics
	InvocationsStarted atomic.Int64
	InvocationsEnded   atomic.Int64
	Kills              atomic.Int64
	Cancels            atomic.Int64
	Suspensions        atomic.Int64
	Resumptions        atomic.Int64

	// Per-partition metrics
	partitionMetrics sync.Map // partitionID -> *PartitionMetrics

	// Time-series data (minute buckets for last 24 hours)
	timeSeriesMu    sync.RWMutex
	timeSeries      []*TimeSeriesBucket
	tsChan          chan timeSeriesEvent
	tsDroppedEvents atomic.Int64

	startTime time.Time
}

// timeSeriesEvent is sent over a channel to avoid write-lock contention on the hot path
type timeSeriesEvent struct {
	durationMs int64
	isError    bool
}

// PartitionMetrics tracks metrics for a single partition
type PartitionMetrics struct {
	Commands    atomic.Int64
	Successes   atomic.Int64
	Failures    atomic.Int64
	Kills       atomic.Int64
	Cancels     atomic.Int64
	TotalMs     atomic.Int64
	MinMs       atomic.Int64
	MaxMs       atomic.Int64
}

// Global metrics instance
var global = &Metrics{startTime: time.Now()}

func init() {
	global.MinLatencyMs.Store(int64(^uint64(0) >> 1)) // Max int64
	global.tsChan = make(chan timeSeriesEvent, 8192)
	global.initTimeSeries()
	go global.processTimeSeriesLoop()
}

// initTimeSeries initializes minute-level buckets for the last 24 hours.
func (m *Metrics) initTimeSeries() {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)
	m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
	for i := 0; i < timeSeriesBucketCount; i++ {
		m.timeSeries[i] = &TimeSeriesBucket{
			Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
		}
	}
}

// Global returns the global metrics instance
func Global() *Metrics {
	return global
}

// StartTime returns the time when the metrics system was initialized
func StartTime() time.Time {
	return global.startTime
}

// RecordCommand records one applied command's outcome and duration.
func (m *Metrics) RecordCommand(partitionID, kind string, durationMs int64, success bool) {
	m.TotalCommands.Add(1)

	if success {
		m.SuccessCommands.Add(1)
	} else {
		m.FailedCommands.Add(1)
	}

	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	// Per-partition metrics
	pm := m.getPartitionMetrics(partitionID)
	pm.Commands.Add(1)
	if success {
		pm.Successes.Add(1)
	} else {
		pm.Failures.Add(1)
	}
	pm.TotalMs.Add(durationMs)
	updateMin(&pm.MinMs, durationMs)
	updateMax(&pm.MaxMs, durationMs)

	// Time series recording
	m.recordTimeSeries(durationMs, !success)

	// Prometheus bridge
	RecordPrometheusCommand(partitionID, kind, durationMs, success)
}

// recordTimeSeries enqueues a time-series event for async processing,
// avoiding a write-lock on the hot command-apply path.
func (m *Metrics) recordTimeSeries(durationMs int64, isError bool) {
	select {
	case m.tsChan <- timeSeriesEvent{durationMs: durationMs, isError: isError}:
	default:
		m.tsDroppedEvents.Add(1)
	}
}

// processTimeSeriesLoop drains tsChan and applies events under a write lock.
func (m *Metrics) processTimeSeriesLoop() {
	for evt := range m.tsChan {
		m.applyTimeSeriesEvent(evt.durationMs, evt.isError)
	}
}

// applyTimeSeriesEvent updates the time-series buckets (must be called from a single goroutine).
func (m *Metrics) applyTimeSeriesEvent(durationMs int64, isError bool) {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)

	// Check if we need to rotate buckets
	if len(m.timeSeries) > 0 {
		lastBucket := m.timeSeries[len(m.timeSeries)-1]
		bucketsDiff := int(now.Sub(lastBucket.Timestamp) / timeSeriesBucketDuration)

		if bucketsDiff > 0 {
			if bucketsDiff >= timeSeriesBucketCount {
				m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
				for i := 0; i < timeSeriesBucketCount; i++ {
					m.timeSeries[i] = &TimeSeriesBucket{
						Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
					}
				}
			} else {
				m.timeSeries = m.timeSeries[bucketsDiff:]
				for i := 0; i < bucketsDiff; i++ {
					m.timeSeries = append(m.timeSeries, &TimeSeriesBucket{
						Timestamp: lastBucket.Timestamp.Add(time.Duration(i+1) * timeSeriesBucketDuration),
					})
				}
			}
		}
	}

	// Record to current bucket
	if len(m.timeSeries) > 0 {
		bucket := m.timeSeries[len(m.timeSeries)-1]
		bucket.Commands++
		bucket.TotalLatency += durationMs
		bucket.Count++
		if isError {
			bucket.Errors++
		}
	}
}

// RecordInvocationStarted records an invocation being dispatched to an invoker.
func (m *Metrics) RecordInvocationStarted(partitionID, service string) {
	m.InvocationsStarted.Add(1)
	RecordPrometheusInvocationStarted(partitionID, service)
}

// RecordInvocationEnded records an invocation reaching a terminal state.
func (m *Metrics) RecordInvocationEnded(partitionID, service, status string, durationMs int64) {
	m.InvocationsEnded.Add(1)
	RecordPrometheusInvocationEnded(partitionID, service, status, durationMs)
}

// RecordKill records an invocation terminated by Kill.
func (m *Metrics) RecordKill(partitionID, service string) {
	m.Kills.Add(1)
	m.getPartitionMetrics(partitionID).Kills.Add(1)
	RecordPrometheusKill(partitionID, service)
}

// RecordCancel records an invocation terminated by Cancel.
func (m *Metrics) RecordCancel(partitionID, service string) {
	m.Cancels.Add(1)
	m.getPartitionMetrics(partitionID).Cancels.Add(1)
	RecordPrometheusCancel(partitionID, service)
}

// RecordSuspension records an invocation suspending awaiting completions.
func (m *Metrics) RecordSuspension(partitionID, service string) {
	m.Suspensions.Add(1)
	RecordPrometheusSuspension(partitionID, service)
}

// RecordResumption records a suspended invocation resuming.
func (m *Metrics) RecordResumption(partitionID, service string) {
	m.Resumptions.Add(1)
	RecordPrometheusResumption(partitionID, service)
}

func (m *Metrics) getPartitionMetrics(partitionID string) *PartitionMetrics {
	if v, ok := m.partitionMetrics.Load(partitionID); ok {
		return v.(*PartitionMetrics)
	}

	pm := &PartitionMetrics{}
	pm.MinMs.Store(int64(^uint64(0) >> 1))
	actual, _ := m.partitionMetrics.LoadOrStore(partitionID, pm)
	return actual.(*PartitionMetrics)
}

// GetPartitionMetrics returns the metrics for a specific partition (or nil if none recorded yet)
func (m *Metrics) GetPartitionMetrics(partitionID string) *PartitionMetrics {
	if v, ok := m.partitionMetrics.Load(partitionID); ok {
		return v.(*PartitionMetrics)
	}
	return nil
}

// Snapshot returns a point-in-time snapshot of all metrics
func (m *Metrics) Snapshot() map[string]interface{} {
	total := m.TotalCommands.Load()
	avgLatency := float64(0)
	if total > 0 {
		avgLatency = float64(m.TotalLatencyMs.Load()) / float64(total)
	}

	minLatency := m.MinLatencyMs.Load()
	if minLatency == int64(^uint64(0)>>1) {
		minLatency = 0
	}

	result := map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"commands": map[string]interface{}{
			"total":   total,
			"success": m.SuccessCommands.Load(),
			"failed":  m.FailedCommands.Load(),
		},
		"latency_ms": map[string]interface{}{
			"avg": avgLatency,
			"min": minLatency,
			"max": m.MaxLatencyMs.Load(),
		},
		"invocations": map[string]interface{}{
			"started":     m.InvocationsStarted.Load(),
			"ended":       m.InvocationsEnded.Load(),
			"kills":       m.Kills.Load(),
			"cancels":     m.Cancels.Load(),
			"suspensions": m.Suspensions.Load(),
			"resumptions": m.Resumptions.Load(),
		},
		"ts_dropped_events": m.tsDroppedEvents.Load(),
	}

	return result
}

// PartitionStats returns per-partition metrics
func (m *Metrics) PartitionStats() map[string]interface{} {
	result := make(map[string]interface{})

	m.partitionMetrics.Range(func(key, value interface{}) bool {
		partitionID := key.(string)
		pm := value.(*PartitionMetrics)

		total := pm.Commands.Load()
		avgMs := float64(0)
		if total > 0 {
			avgMs = float64(pm.TotalMs.Load()) / float64(total)
		}

		minMs := pm.MinMs.Load()
		if minMs == int64(^uint64(0)>>1) {
			minMs = 0
		}

		result[partitionID] = map[string]interface{}{
			"commands":  total,
			"successes": pm.Successes.Load(),
			"failures":  pm.Failures.Load(),
			"kills":     pm.Kills.Load(),
			"cancels":   pm.Cancels.Load(),
			"avg_ms":    avgMs,
			"min_ms":    minMs,
			"max_ms":    pm.MaxMs.Load(),
		}
		return true
	})

	return result
}

// JSONHandler returns an HTTP handler that exposes metrics in JSON format
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		result := m.Snapshot()
		result["partitions"] = m.PartitionStats()
		json.NewEncoder(w).Encode(result)
	})
}

// TimeSeries returns minute-level time-series data for the last 24 hours.
func (m *Metrics) TimeSeries() []map[string]interface{} {
	m.timeSeriesMu.RLock()
	defer m.timeSeriesMu.RUnlock()

	result := make([]map[string]interface{}, len(m.timeSeries))
	for i, bucket := range m.timeSeries {
		avgDuration := float64(0)
		if bucket.Count > 0 {
			avgDuration = float64(bucket.TotalLatency) / float64(bucket.Count)
		}
		result[i] = map[string]interface{}{
			"timestamp":    bucket.Timestamp.Format(time.RFC3339),
			"commands":     bucket.Commands,
			"errors":       bucket.Errors,
			"avg_duration": avgDuration,
		}
	}
	return result
}

// TimeSeriesHandler returns an HTTP handler for time-series metrics
func (m *Metrics) TimeSeriesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.TimeSeries())
	})
}

// Helper functions

func updateMin(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value >= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}
