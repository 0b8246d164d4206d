package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for the partition command
// interpreter and its surrounding services.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	commandsTotal       *prometheus.CounterVec
	effectsEmittedTotal *prometheus.CounterVec
	invocationsStarted  *prometheus.CounterVec
	invocationsEnded    *prometheus.CounterVec
	killsTotal          *prometheus.CounterVec
	cancelsTotal        *prometheus.CounterVec
	suspensionsTotal    *prometheus.CounterVec
	resumptionsTotal    *prometheus.CounterVec
	journalEntriesTotal *prometheus.CounterVec

	// Histograms
	commandApplyDuration *prometheus.HistogramVec
	invocationDuration   *prometheus.HistogramVec

	// Gauges
	uptime           prometheus.GaugeFunc
	inboxDepth       *prometheus.GaugeVec
	outboxDepth      *prometheus.GaugeVec
	lockedObjects    prometheus.Gauge
	activeInvokers   prometheus.Gauge
	leaderPartitions prometheus.Gauge

	// Storage / replication
	storageWriteLatency *prometheus.HistogramVec
	raftAppliedIndex    *prometheus.GaugeVec
}

// Default histogram buckets for command-apply latency (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if buckets == nil || len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	// Register default Go and process collectors
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of commands applied by a partition, by kind and outcome",
			},
			[]string{"partition", "kind", "outcome"},
		),

		effectsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "effects_emitted_total",
				Help:      "Total number of effects emitted while applying commands, by kind",
			},
			[]string{"partition", "kind"},
		),

		invocationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_started_total",
				Help:      "Total number of invocations dispatched to an invoker",
			},
			[]string{"partition", "service"},
		),

		invocationsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_ended_total",
				Help:      "Total number of invocations that reached a terminal state",
			},
			[]string{"partition", "service", "status"},
		),

		killsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocation_kills_total",
				Help:      "Total number of invocations terminated by Kill",
			},
			[]string{"partition", "service"},
		),

		cancelsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocation_cancels_total",
				Help:      "Total number of invocations terminated by Cancel",
			},
			[]string{"partition", "service"},
		),

		suspensionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocation_suspensions_total",
				Help:      "Total number of times an invocation suspended awaiting completions",
			},
			[]string{"partition", "service"},
		),

		resumptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocation_resumptions_total",
				Help:      "Total number of times a suspended invocation resumed",
			},
			[]string{"partition", "service"},
		),

		journalEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "journal_entries_total",
				Help:      "Total number of journal entries appended, by entry type",
			},
			[]string{"partition", "entry_type"},
		),

		commandApplyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_apply_duration_milliseconds",
				Help:      "Duration of a single OnApply call in milliseconds",
				Buckets:   buckets,
			},
			[]string{"partition", "kind"},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Wall-clock duration of an invocation from Invoked to terminal state",
				Buckets:   buckets,
			},
			[]string{"partition", "service", "status"},
		),

		inboxDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inbox_depth",
				Help:      "Current inbox depth by virtual object",
			},
			[]string{"partition", "service"},
		),

		outboxDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_depth",
				Help:      "Current outbox depth by partition",
			},
			[]string{"partition"},
		),

		lockedObjects: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "locked_virtual_objects",
				Help:      "Number of virtual objects currently holding a lock",
			},
		),

		activeInvokers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_invoker_sessions",
				Help:      "Number of invoker sessions currently streaming journal entries",
			},
		),

		leaderPartitions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "leader_partitions",
				Help:      "Number of partitions for which this process holds leadership",
			},
		),

		storageWriteLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_write_latency_milliseconds",
				Help:      "Latency of committing an effect batch to storage",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"partition"},
		),

		raftAppliedIndex: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "raft_applied_index",
				Help:      "Last log index applied by a partition's replication group",
			},
			[]string{"partition"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the process started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.commandsTotal,
		pm.effectsEmittedTotal,
		pm.invocationsStarted,
		pm.invocationsEnded,
		pm.killsTotal,
		pm.cancelsTotal,
		pm.suspensionsTotal,
		pm.resumptionsTotal,
		pm.journalEntriesTotal,
		pm.commandApplyDuration,
		pm.invocationDuration,
		pm.uptime,
		pm.inboxDepth,
		pm.outboxDepth,
		pm.lockedObjects,
		pm.activeInvokers,
		pm.leaderPartitions,
		pm.storageWriteLatency,
		pm.raftAppliedIndex,
	)

	promMetrics = pm
}

// RecordPrometheusCommand records one applied command and the duration OnApply took.
func RecordPrometheusCommand(partition, kind string, durationMs int64, ok bool) {
	if promMetrics == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	promMetrics.commandsTotal.WithLabelValues(partition, kind, outcome).Inc()
	promMetrics.commandApplyDuration.WithLabelValues(partition, kind).Observe(float64(durationMs))
}

// RecordPrometheusEffect records one effect emitted while applying a command.
func RecordPrometheusEffect(partition, kind string) {
	if promMetrics == nil {
		return
	}
	promMetrics.effectsEmittedTotal.WithLabelValues(partition, kind).Inc()
}

// RecordPrometheusInvocationStarted records an invocation being dispatched to an invoker.
func RecordPrometheusInvocationStarted(partition, service string) {
	if promMetrics == nil {
		return
	}
	promMetrics.invocationsStarted.WithLabelValues(partition, service).Inc()
}

// RecordPrometheusInvocationEnded records an invocation reaching a terminal state.
func RecordPrometheusInvocationEnded(partition, service, status string, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.invocationsEnded.WithLabelValues(partition, service, status).Inc()
	promMetrics.invocationDuration.WithLabelValues(partition, service, status).Observe(float64(durationMs))
}

// RecordPrometheusKill records an invocation terminated by Kill.
func RecordPrometheusKill(partition, service string) {
	if promMetrics == nil {
		return
	}
	promMetrics.killsTotal.WithLabelValues(partition, service).Inc()
}

// RecordPrometheusCancel records an invocation terminated by Cancel.
func RecordPrometheusCancel(partition, service string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cancelsTotal.WithLabelValues(partition, service).Inc()
}

// RecordPrometheusSuspension records an invocation suspending awaiting completions.
func RecordPrometheusSuspension(partition, service string) {
	if promMetrics == nil {
		return
	}
	promMetrics.suspensionsTotal.WithLabelValues(partition, service).Inc()
}

// RecordPrometheusResumption records a suspended invocation resuming.
func RecordPrometheusResumption(partition, service string) {
	if promMetrics == nil {
		return
	}
	promMetrics.resumptionsTotal.WithLabelValues(partition, service).Inc()
}

// RecordPrometheusJournalEntry records a journal entry append by entry type.
func RecordPrometheusJournalEntry(partition, entryType string) {
	if promMetrics == nil {
		return
	}
	promMetrics.journalEntriesTotal.WithLabelValues(partition, entryType).Inc()
}

// SetInboxDepth sets the current inbox depth gauge for a virtual object.
func SetInboxDepth(partition, service string, depth int) {
	if promMetrics == nil {
		return
	}
	promMetrics.inboxDepth.WithLabelValues(partition, service).Set(float64(depth))
}

// SetOutboxDepth sets the current outbox depth gauge for a partition.
func SetOutboxDepth(partition string, depth int) {
	if promMetrics == nil {
		return
	}
	promMetrics.outboxDepth.WithLabelValues(partition).Set(float64(depth))
}

// SetLockedObjects sets the count of currently locked virtual objects.
func SetLockedObjects(count int) {
	if promMetrics == nil {
		return
	}
	promMetrics.lockedObjects.Set(float64(count))
}

// SetActiveInvokers sets the count of active invoker sessions.
func SetActiveInvokers(count int) {
	if promMetrics == nil {
		return
	}
	promMetrics.activeInvokers.Set(float64(count))
}

// SetLeaderPartitions sets the count of partitions this process leads.
func SetLeaderPartitions(count int) {
	if promMetrics == nil {
		return
	}
	promMetrics.leaderPartitions.Set(float64(count))
}

// RecordPrometheusStorageWrite records the latency of committing an effect batch.
func RecordPrometheusStorageWrite(partition string, durationMs float64) {
	if promMetrics == nil {
		return
	}
	promMetrics.storageWriteLatency.WithLabelValues(partition).Observe(durationMs)
}

// SetRaftAppliedIndex sets the last applied replication log index for a partition.
func SetRaftAppliedIndex(partition string, index uint64) {
	if promMetrics == nil {
		return
	}
	promMetrics.raftAppliedIndex.WithLabelValues(partition).Set(float64(index))
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors)
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
