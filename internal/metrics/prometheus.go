package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for the daemon's metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Registry dispatch
	dispatchesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	// Debounce coalescer
	debounceTriggersTotal prometheus.Counter
	debounceFiresTotal    prometheus.Counter

	// Tiered compilation
	tierPromotionsTotal      *prometheus.CounterVec
	tierDeoptimizationsTotal prometheus.Counter
	compilationFailuresTotal prometheus.Counter

	// Task queue
	tasksEnqueuedTotal *prometheus.CounterVec
	tasksPoppedTotal   prometheus.Counter
	queueDepth         prometheus.Gauge

	// Check runs
	checkRunsTotal    prometheus.Counter
	checkScore        prometheus.Histogram
	checkDurationMs   prometheus.Histogram

	// Circuit breaker (set through SetCircuitBreakerState and RecordCircuitBreakerTrip)
	circuitBreakerState      *prometheus.GaugeVec
	circuitBreakerTripsTotal *prometheus.CounterVec

	uptime prometheus.GaugeFunc
}

// Default histogram buckets for dispatch duration (in milliseconds).
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		dispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Total number of registry command dispatches",
			},
			[]string{"command", "status"},
		),

		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_milliseconds",
				Help:      "Duration of registry command dispatches in milliseconds",
				Buckets:   buckets,
			},
			[]string{"command"},
		),

		debounceTriggersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "debounce_triggers_total",
				Help:      "Total raw change-coalescer triggers observed",
			},
		),

		debounceFiresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "debounce_fires_total",
				Help:      "Total coalesced fires actually dispatched",
			},
		),

		tierPromotionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tier_promotions_total",
				Help:      "Total tier promotions by destination tier",
			},
			[]string{"tier"},
		),

		tierDeoptimizationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tier_deoptimizations_total",
				Help:      "Total tier deoptimizations back to Interpreter",
			},
		),

		compilationFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compilation_failures_total",
				Help:      "Total failed tiered-compilation requests",
			},
		),

		tasksEnqueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_enqueued_total",
				Help:      "Total task queue pushes, split by whether they deduped an existing task",
			},
			[]string{"deduped"},
		),

		tasksPoppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_popped_total",
				Help:      "Total tasks popped off the task queue for processing",
			},
		),

		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "task_queue_depth",
				Help:      "Current number of tasks waiting in the task queue",
			},
		),

		checkRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "check_runs_total",
				Help:      "Total completed check tasks",
			},
		),

		checkScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_score",
				Help:      "Distribution of check-result health scores",
				Buckets:   []float64{0, 100, 200, 300, 400, 450, 480, 500},
			},
		),

		checkDurationMs: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_milliseconds",
				Help:      "Duration of check task execution in milliseconds",
				Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
			},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"function"},
		),

		circuitBreakerTripsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total circuit breaker state transitions",
			},
			[]string{"function", "to_state"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the daemon started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.dispatchesTotal,
		pm.dispatchDuration,
		pm.debounceTriggersTotal,
		pm.debounceFiresTotal,
		pm.tierPromotionsTotal,
		pm.tierDeoptimizationsTotal,
		pm.compilationFailuresTotal,
		pm.tasksEnqueuedTotal,
		pm.tasksPoppedTotal,
		pm.queueDepth,
		pm.checkRunsTotal,
		pm.checkScore,
		pm.checkDurationMs,
		pm.circuitBreakerState,
		pm.circuitBreakerTripsTotal,
		pm.uptime,
	)

	promMetrics = pm
}

// RecordPrometheusDispatch records a command dispatch in Prometheus collectors.
func RecordPrometheusDispatch(command string, durationMs int64, success bool) {
	if promMetrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	promMetrics.dispatchesTotal.WithLabelValues(command, status).Inc()
	promMetrics.dispatchDuration.WithLabelValues(command).Observe(float64(durationMs))
}

// RecordPrometheusDebounceTrigger records a raw coalescer trigger.
func RecordPrometheusDebounceTrigger() {
	if promMetrics == nil {
		return
	}
	promMetrics.debounceTriggersTotal.Inc()
}

// RecordPrometheusDebounceFire records a coalesced fire.
func RecordPrometheusDebounceFire() {
	if promMetrics == nil {
		return
	}
	promMetrics.debounceFiresTotal.Inc()
}

// RecordPrometheusTierPromotion records a tier promotion.
func RecordPrometheusTierPromotion(tier string) {
	if promMetrics == nil {
		return
	}
	promMetrics.tierPromotionsTotal.WithLabelValues(tier).Inc()
}

// RecordPrometheusTierDeoptimization records a tier deoptimization.
func RecordPrometheusTierDeoptimization() {
	if promMetrics == nil {
		return
	}
	promMetrics.tierDeoptimizationsTotal.Inc()
}

// RecordPrometheusCompilationFailure records a failed compile request.
func RecordPrometheusCompilationFailure() {
	if promMetrics == nil {
		return
	}
	promMetrics.compilationFailuresTotal.Inc()
}

// RecordPrometheusTaskEnqueued records a task queue push.
func RecordPrometheusTaskEnqueued(deduped bool) {
	if promMetrics == nil {
		return
	}
	label := "false"
	if deduped {
		label = "true"
	}
	promMetrics.tasksEnqueuedTotal.WithLabelValues(label).Inc()
}

// RecordPrometheusTaskPopped records a task queue pop.
func RecordPrometheusTaskPopped() {
	if promMetrics == nil {
		return
	}
	promMetrics.tasksPoppedTotal.Inc()
}

// RecordPrometheusQueueDepth sets the current task queue depth gauge.
func RecordPrometheusQueueDepth(depth int) {
	if promMetrics == nil {
		return
	}
	promMetrics.queueDepth.Set(float64(depth))
}

// RecordPrometheusCheckRun records a completed check task.
func RecordPrometheusCheckRun(score int, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.checkRunsTotal.Inc()
	promMetrics.checkScore.Observe(float64(score))
	promMetrics.checkDurationMs.Observe(float64(durationMs))
}

// SetCircuitBreakerState sets the circuit breaker state gauge for a function.
// state: 0=closed, 1=open, 2=half_open.
func SetCircuitBreakerState(funcName string, state int) {
	if promMetrics == nil {
		return
	}
	promMetrics.circuitBreakerState.WithLabelValues(funcName).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker state transition.
func RecordCircuitBreakerTrip(funcName, toState string) {
	if promMetrics == nil {
		return
	}
	promMetrics.circuitBreakerTripsTotal.WithLabelValues(funcName, toState).Inc()
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors).
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
