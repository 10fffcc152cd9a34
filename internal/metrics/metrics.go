// Package metrics collects and exposes the daemon's runtime observability
// data.
//
// # Design rationale
//
// Two metric stores coexist in this package:
//
//  1. The in-process Metrics struct (per-command counters + time series)
//     for the lightweight JSON /metrics endpoint used by status tooling.
//  2. A Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems (Grafana, Alertmanager, etc.).
//
// Keeping both allows a bare `dxd status` call to work without a
// Prometheus sidecar while still supporting real monitoring stacks.
//
// # Concurrency - hot path
//
// RecordDispatch is called from the daemon's IPC handler on every command execution
// and must be as fast as possible. It uses atomic increments for global
// counters and dispatches a lightweight event onto a buffered channel
// (tsChan) for the time-series worker to process asynchronously. This
// avoids holding any lock on the hot path.
//
// The per-command CommandMetrics struct also uses atomic operations
// exclusively; the sync.Map that stores the per-command entries is
// read-heavy and write-once-per-new-command, which is the ideal use case
// for sync.Map.
//
// # Invariants
//
//   - TotalDispatches == SuccessDispatches + FailedDispatches.
//   - The time-series ring buffer holds at most timeSeriesBucketCount
//     buckets (24 * 60 = 1440 for the last 24 hours at 1-minute
//     granularity).
//   - tsChan capacity is 8192 events; events dropped when full are
//     counted in tsDroppedEvents for observability.
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

// TimeSeriesBucket stores metrics for a single time bucket.
type TimeSeriesBucket struct {
	Timestamp    time.Time
	Dispatches   int64
	Errors       int64
	TotalLatency int64
	Count        int64 // for calculating avg
}

// Metrics collects and exposes daemon runtime metrics.
type Metrics struct {
	// Registry dispatch metrics
	TotalDispatches  atomic.Int64
	SuccessDispatches atomic.Int64
	FailedDispatches atomic.Int64

	// Latency metrics (in milliseconds)
	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64

	// Coalescer metrics
	DebounceTriggers atomic.Int64 // raw Trigger() calls
	DebounceFires    atomic.Int64 // actual fn invocations after coalescing

	// Tiered compilation metrics
	TierPromotions      atomic.Int64
	TierDeoptimizations atomic.Int64
	CompilationFailures atomic.Int64

	// Task queue metrics
	TasksEnqueued atomic.Int64
	TasksDeduped  atomic.Int64
	TasksPopped   atomic.Int64

	// Check-run metrics
	ChecksRun      atomic.Int64
	CheckScoreSum  atomic.Int64
	CheckDurationTotalMs atomic.Int64

	// Per-command metrics
	cmdMetrics sync.Map // name -> *CommandMetrics

	// Time-series data (minute buckets for last 24 hours)
	timeSeriesMu    sync.RWMutex
	timeSeries      []*TimeSeriesBucket
	tsChan          chan timeSeriesEvent
	tsDroppedEvents atomic.Int64

	startTime time.Time
}

// timeSeriesEvent is sent over a channel to avoid write-lock contention
// on the hot path.
type timeSeriesEvent struct {
	durationMs int64
	isError    bool
}

// CommandMetrics tracks metrics for a single registered command.
type CommandMetrics struct {
	Dispatches atomic.Int64
	Successes  atomic.Int64
	Failures   atomic.Int64
	TotalMs    atomic.Int64
	MinMs      atomic.Int64
	MaxMs      atomic.Int64
}

// Global metrics instance.
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

// Global returns the global metrics instance.
func Global() *Metrics {
	return global
}

// StartTime returns the time when the metrics system was initialized.
func StartTime() time.Time {
	return global.startTime
}

// RecordDispatch records a command dispatch result.
func (m *Metrics) RecordDispatch(name string, durationMs int64, success bool) {
	m.TotalDispatches.Add(1)
	if success {
		m.SuccessDispatches.Add(1)
	} else {
		m.FailedDispatches.Add(1)
	}

	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	cm := m.getCommandMetrics(name)
	cm.Dispatches.Add(1)
	if success {
		cm.Successes.Add(1)
	} else {
		cm.Failures.Add(1)
	}
	cm.TotalMs.Add(durationMs)
	updateMin(&cm.MinMs, durationMs)
	updateMax(&cm.MaxMs, durationMs)

	m.recordTimeSeries(durationMs, !success)
	RecordPrometheusDispatch(name, durationMs, success)
}

// recordTimeSeries enqueues a time-series event for async processing,
// avoiding a write-lock on the hot dispatch path.
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

// applyTimeSeriesEvent updates the time-series buckets (must be called
// from a single goroutine).
func (m *Metrics) applyTimeSeriesEvent(durationMs int64, isError bool) {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)

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

	if len(m.timeSeries) > 0 {
		bucket := m.timeSeries[len(m.timeSeries)-1]
		bucket.Dispatches++
		bucket.TotalLatency += durationMs
		bucket.Count++
		if isError {
			bucket.Errors++
		}
	}
}

// RecordDebounceTrigger records a raw Trigger() call on the coalescer.
func (m *Metrics) RecordDebounceTrigger() {
	m.DebounceTriggers.Add(1)
	RecordPrometheusDebounceTrigger()
}

// RecordDebounceFire records a coalesced fire actually reaching its callback.
func (m *Metrics) RecordDebounceFire() {
	m.DebounceFires.Add(1)
	RecordPrometheusDebounceFire()
}

// RecordTierPromotion records a function crossing a tier threshold.
func (m *Metrics) RecordTierPromotion(tier string) {
	m.TierPromotions.Add(1)
	RecordPrometheusTierPromotion(tier)
}

// RecordTierDeoptimization records a function being reset to Interpreter.
func (m *Metrics) RecordTierDeoptimization() {
	m.TierDeoptimizations.Add(1)
	RecordPrometheusTierDeoptimization()
}

// RecordCompilationFailure records a failed Compile call.
func (m *Metrics) RecordCompilationFailure() {
	m.CompilationFailures.Add(1)
	RecordPrometheusCompilationFailure()
}

// RecordTaskEnqueued records a task being pushed onto the task queue.
func (m *Metrics) RecordTaskEnqueued(deduped bool) {
	m.TasksEnqueued.Add(1)
	if deduped {
		m.TasksDeduped.Add(1)
	}
	RecordPrometheusTaskEnqueued(deduped)
}

// RecordTaskPopped records a task being popped off the task queue.
func (m *Metrics) RecordTaskPopped() {
	m.TasksPopped.Add(1)
	RecordPrometheusTaskPopped()
}

// SetTaskQueueDepth reports the current task queue length to Prometheus.
func (m *Metrics) SetTaskQueueDepth(depth int) {
	RecordPrometheusQueueDepth(depth)
}

// RecordCheckRun records a completed check task's score and duration.
func (m *Metrics) RecordCheckRun(score int, durationMs int64) {
	m.ChecksRun.Add(1)
	m.CheckScoreSum.Add(int64(score))
	m.CheckDurationTotalMs.Add(durationMs)
	RecordPrometheusCheckRun(score, durationMs)
}

func (m *Metrics) getCommandMetrics(name string) *CommandMetrics {
	if v, ok := m.cmdMetrics.Load(name); ok {
		return v.(*CommandMetrics)
	}
	cm := &CommandMetrics{}
	cm.MinMs.Store(int64(^uint64(0) >> 1))
	actual, _ := m.cmdMetrics.LoadOrStore(name, cm)
	return actual.(*CommandMetrics)
}

// GetCommandMetrics returns the metrics for a specific command (or nil
// if none recorded yet).
func (m *Metrics) GetCommandMetrics(name string) *CommandMetrics {
	if v, ok := m.cmdMetrics.Load(name); ok {
		return v.(*CommandMetrics)
	}
	return nil
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() map[string]interface{} {
	total := m.TotalDispatches.Load()
	avgLatency := float64(0)
	if total > 0 {
		avgLatency = float64(m.TotalLatencyMs.Load()) / float64(total)
	}

	minLatency := m.MinLatencyMs.Load()
	if minLatency == int64(^uint64(0)>>1) {
		minLatency = 0
	}

	checksRun := m.ChecksRun.Load()
	avgScore := float64(0)
	if checksRun > 0 {
		avgScore = float64(m.CheckScoreSum.Load()) / float64(checksRun)
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"dispatches": map[string]interface{}{
			"total":   total,
			"success": m.SuccessDispatches.Load(),
			"failed":  m.FailedDispatches.Load(),
		},
		"latency_ms": map[string]interface{}{
			"avg": avgLatency,
			"min": minLatency,
			"max": m.MaxLatencyMs.Load(),
		},
		"debounce": map[string]interface{}{
			"triggers": m.DebounceTriggers.Load(),
			"fires":    m.DebounceFires.Load(),
		},
		"tier": map[string]interface{}{
			"promotions":      m.TierPromotions.Load(),
			"deoptimizations": m.TierDeoptimizations.Load(),
			"compile_failures": m.CompilationFailures.Load(),
		},
		"task_queue": map[string]interface{}{
			"enqueued": m.TasksEnqueued.Load(),
			"deduped":  m.TasksDeduped.Load(),
			"popped":   m.TasksPopped.Load(),
		},
		"checks": map[string]interface{}{
			"run":       checksRun,
			"avg_score": avgScore,
		},
		"ts_dropped_events": m.tsDroppedEvents.Load(),
	}
}

// CommandStats returns per-command metrics.
func (m *Metrics) CommandStats() map[string]interface{} {
	result := make(map[string]interface{})

	m.cmdMetrics.Range(func(key, value interface{}) bool {
		name := key.(string)
		cm := value.(*CommandMetrics)

		total := cm.Dispatches.Load()
		avgMs := float64(0)
		if total > 0 {
			avgMs = float64(cm.TotalMs.Load()) / float64(total)
		}

		minMs := cm.MinMs.Load()
		if minMs == int64(^uint64(0)>>1) {
			minMs = 0
		}

		result[name] = map[string]interface{}{
			"dispatches": total,
			"successes":  cm.Successes.Load(),
			"failures":   cm.Failures.Load(),
			"avg_ms":     avgMs,
			"min_ms":     minMs,
			"max_ms":     cm.MaxMs.Load(),
		}
		return true
	})

	return result
}

// JSONHandler returns an HTTP handler that exposes metrics in JSON format.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		result := m.Snapshot()
		result["commands"] = m.CommandStats()
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
			"dispatches":   bucket.Dispatches,
			"errors":       bucket.Errors,
			"avg_duration": avgDuration,
		}
	}
	return result
}

// TimeSeriesHandler returns an HTTP handler for time-series metrics.
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
