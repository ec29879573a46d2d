package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/s3fs-fuse/bucketfs/internal/fserr"
)

// Recorder receives filesystem operation outcomes.
type Recorder interface {
	RecordOperation(operation, container string, err error, duration time.Duration)
	RecordObjectSize(operation string, size int64)
}

// Manager defines the interface for metrics management
type Manager interface {
	Recorder

	RecordHTTPRequest(method, route string, status int, duration time.Duration)

	// Handler serves the registry in the Prometheus exposition format.
	Handler() http.Handler
}

// Config configures the metrics manager.
type Config struct {
	Enable    bool
	Namespace string
}

// metricsManager implements the Manager interface using Prometheus
type metricsManager struct {
	registry *prometheus.Registry

	operationsTotal     *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	objectSizeBytes     *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a Prometheus-backed manager, or a no-op one when
// metrics are disabled.
func NewManager(cfg Config) Manager {
	if !cfg.Enable {
		return &noopManager{}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "bucketfs"
	}

	m := &metricsManager{registry: prometheus.NewRegistry()}
	namespace := cfg.Namespace

	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vfs",
			Name:      "operations_total",
			Help:      "Total number of filesystem operations by outcome",
		},
		[]string{"operation", "container", "outcome"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vfs",
			Name:      "operation_duration_seconds",
			Help:      "Filesystem operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	m.objectSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vfs",
			Name:      "object_size_bytes",
			Help:      "Size of objects read or written",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 10), // 1KB to 512MB
		},
		[]string{"operation"},
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.objectSizeBytes,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Outcome is the label value for err: "ok" or the failure kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return fserr.KindOf(err).String()
}

func (m *metricsManager) RecordOperation(operation, container string, err error, duration time.Duration) {
	m.operationsTotal.WithLabelValues(operation, container, Outcome(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *metricsManager) RecordObjectSize(operation string, size int64) {
	m.objectSizeBytes.WithLabelValues(operation).Observe(float64(size))
}

func (m *metricsManager) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *metricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// noopManager discards everything.
type noopManager struct{}

func (n *noopManager) RecordOperation(operation, container string, err error, duration time.Duration) {
}
func (n *noopManager) RecordObjectSize(operation string, size int64) {}
func (n *noopManager) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
}

func (n *noopManager) Handler() http.Handler {
	return http.NotFoundHandler()
}

// Noop returns a Manager that records nothing.
func Noop() Manager {
	return &noopManager{}
}
