// Package metrics provides Prometheus metrics for the gateway core.
package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "routegw"
	subsystem = "gateway"
)

// GatewayMetrics holds all gateway-level Prometheus metrics. They mirror
// the in-memory analytics aggregate; unlike the aggregate they are
// monotonic and survive analytics resets.
type GatewayMetrics struct {
	RequestsTotal          *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec
	ErrorsTotal            *prometheus.CounterVec
	AuthTotal              *prometheus.CounterVec
	RateLimitTotal         *prometheus.CounterVec
	HealthChecksTotal      *prometheus.CounterVec
	HealthyInstances       *prometheus.GaugeVec
	InstancesTotal         *prometheus.GaugeVec
}

var (
	gatewayMetricsInstance *GatewayMetrics
	gatewayMetricsOnce     sync.Once
)

// NewGatewayMetrics creates a new GatewayMetrics instance with all
// metrics registered via promauto (default global registry).
func NewGatewayMetrics() *GatewayMetrics {
	return &GatewayMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total number of requests recorded by route",
			},
			[]string{"route", "method", "status_code"},
		),
		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Request latency as reported by the transport",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "errors_total",
				Help:      "Total number of recorded errors by type",
			},
			[]string{"route", "error_type"},
		),
		AuthTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "auth_total",
				Help:      "Total number of recorded auth outcomes",
			},
			[]string{"method", "result"},
		),
		RateLimitTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ratelimit_total",
				Help:      "Total number of recorded rate-limit outcomes",
			},
			[]string{"result"},
		),
		HealthChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "health_checks_total",
				Help:      "Total number of health probes by result",
			},
			[]string{"service", "result"},
		),
		HealthyInstances: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "healthy_instances",
				Help:      "Number of healthy instances per service",
			},
			[]string{"service"},
		),
		InstancesTotal: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "instances_total",
				Help:      "Number of registered instances per service",
			},
			[]string{"service"},
		),
	}
}

// GetGatewayMetrics returns the singleton gateway metrics instance.
func GetGatewayMetrics() *GatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayMetricsInstance = NewGatewayMetrics()
	})
	return gatewayMetricsInstance
}

// MustRegister registers all collectors with the given registry.
// AlreadyRegisteredError is silently ignored so that gateway instances
// recreated in one process do not panic.
func (m *GatewayMetrics) MustRegister(registry *prometheus.Registry) {
	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			if !isAlreadyRegistered(err) {
				panic(err)
			}
		}
	}
}

// RecordRequest records a completed request.
func (m *GatewayMetrics) RecordRequest(route, method string, statusCode int, latency time.Duration) {
	sc := strconv.Itoa(statusCode)
	m.RequestsTotal.WithLabelValues(route, method, sc).Inc()
	m.RequestDurationSeconds.WithLabelValues(route, method).Observe(latency.Seconds())
}

// RecordError records a request error by type.
func (m *GatewayMetrics) RecordError(route, errorType string) {
	m.ErrorsTotal.WithLabelValues(route, errorType).Inc()
}

// RecordAuth records an authentication outcome.
func (m *GatewayMetrics) RecordAuth(method string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.AuthTotal.WithLabelValues(method, result).Inc()
}

// RecordRateLimit records a rate-limit outcome.
func (m *GatewayMetrics) RecordRateLimit(blocked bool) {
	result := "allowed"
	if blocked {
		result = "blocked"
	}
	m.RateLimitTotal.WithLabelValues(result).Inc()
}

// RecordHealthCheck records the outcome of a single health probe.
func (m *GatewayMetrics) RecordHealthCheck(service string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.HealthChecksTotal.WithLabelValues(service, result).Inc()
}

// SetInstanceCounts records the healthy/total instance gauges for a service.
func (m *GatewayMetrics) SetInstanceCounts(service string, healthy, total int) {
	m.HealthyInstances.WithLabelValues(service).Set(float64(healthy))
	m.InstancesTotal.WithLabelValues(service).Set(float64(total))
}

// collectors returns all metric collectors for registration.
func (m *GatewayMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RequestsTotal,
		m.RequestDurationSeconds,
		m.ErrorsTotal,
		m.AuthTotal,
		m.RateLimitTotal,
		m.HealthChecksTotal,
		m.HealthyInstances,
		m.InstancesTotal,
	}
}

// isAlreadyRegistered returns true if the error indicates the collector
// was already registered with the registry.
func isAlreadyRegistered(err error) bool {
	var are prometheus.AlreadyRegisteredError
	return errors.As(err, &are)
}
