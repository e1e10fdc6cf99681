package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "browsy"

// serverStatuses lists the values SetServerStatus may be called with
var serverStatuses = []string{"stopped", "starting", "running", "error"}

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	operationTotal    *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	upstreamErrors    *prometheus.CounterVec

	serverStatus   *prometheus.GaugeVec
	serverStarts   *prometheus.CounterVec
	startDuration  prometheus.Histogram
	healthChecks   *prometheus.CounterVec
	activeSessions prometheus.Gauge

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	rpcRequestsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "queue_size",
					Help:      "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "enqueue_total",
					Help:      "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "dequeue_total",
					Help:      "Total task completions by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "task_duration_seconds",
					Help:      "Task execution duration in seconds by lane.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			operationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "operation_total",
					Help:      "Total browsy operations by operation and status.",
				},
				[]string{"operation", "status"},
			),
			operationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "operation_duration_seconds",
					Help:      "Browsy operation duration in seconds by operation.",
					Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
				},
				[]string{"operation"},
			),
			upstreamErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "upstream_errors_total",
					Help:      "Non-2xx responses from the browsy server by operation.",
				},
				[]string{"operation"},
			),
			serverStatus: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "server_status",
					Help:      "Browsy server status (1 for the current status, 0 otherwise).",
				},
				[]string{"status"},
			),
			serverStarts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "server_starts_total",
					Help:      "Browsy server start attempts by result.",
				},
				[]string{"result"},
			),
			startDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "server_start_duration_seconds",
					Help:      "Time from start request to ready or failure.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			healthChecks: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "health_checks_total",
					Help:      "Periodic health probes by result.",
				},
				[]string{"result"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "active_sessions",
					Help:      "Current number of tracked agent sessions.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_execution_total",
					Help:      "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "tool_execution_duration_seconds",
					Help:      "Tool execution duration in seconds by tool.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			rpcRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "rpc_requests_total",
					Help:      "Gateway RPC requests by method and status.",
				},
				[]string{"method", "status"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.operationTotal,
			m.operationDuration,
			m.upstreamErrors,
			m.serverStatus,
			m.serverStarts,
			m.startDuration,
			m.healthChecks,
			m.activeSessions,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.rpcRequestsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	m.dequeueTotal.WithLabelValues(lane, statusLabel(success)).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

// RecordOperation counts one dispatched operation. status is "ok", "upstream_error"
// or a bridge error code.
func RecordOperation(operation, status string, duration time.Duration) {
	m := getMetrics()
	m.operationTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if status == "upstream_error" {
		m.upstreamErrors.WithLabelValues(operation).Inc()
	}
}

// SetServerStatus sets the status gauge to 1 for status and 0 for the others
func SetServerStatus(status string) {
	m := getMetrics()
	for _, s := range serverStatuses {
		value := 0.0
		if s == status {
			value = 1.0
		}
		m.serverStatus.WithLabelValues(s).Set(value)
	}
}

func RecordServerStart(result string, duration time.Duration) {
	m := getMetrics()
	m.serverStarts.WithLabelValues(result).Inc()
	m.startDuration.Observe(duration.Seconds())
}

func RecordHealthCheck(success bool) {
	getMetrics().healthChecks.WithLabelValues(statusLabel(success)).Inc()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordRPCRequest(method string, success bool) {
	getMetrics().rpcRequestsTotal.WithLabelValues(method, statusLabel(success)).Inc()
}
