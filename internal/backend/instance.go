// Package backend provides the service pool, load balancing, and health
// monitoring for the gateway core.
package backend

import (
	"strings"
	"sync/atomic"
	"time"
)

// DefaultHealthCheckPath is appended to an instance URL when no explicit
// health check URL is configured.
const DefaultHealthCheckPath = "/health"

// Instance is one concrete network endpoint implementing a named service.
// A service may have several instances for horizontal scaling. Instances
// are never deregistered; the pool only grows for the process lifetime.
type Instance struct {
	Service        string `json:"service"`
	URL            string `json:"url"`
	Weight         int    `json:"weight"`
	HealthCheckURL string `json:"healthCheckUrl"`

	healthy      atomic.Bool
	lastCheck    atomic.Int64 // unix nanos; 0 = never probed
	requests     atomic.Int64
	failures     atomic.Int64
	totalLatency atomic.Int64 // milliseconds
}

// NewInstance creates an instance for a service. Weight below 1 is
// normalized to 1. A missing health check URL defaults to url + "/health".
// New instances start healthy so that selection works before the first
// probe completes.
func NewInstance(service, url string, weight int, healthCheckURL string) *Instance {
	if weight < 1 {
		weight = 1
	}
	if healthCheckURL == "" {
		healthCheckURL = strings.TrimSuffix(url, "/") + DefaultHealthCheckPath
	}

	inst := &Instance{
		Service:        service,
		URL:            url,
		Weight:         weight,
		HealthCheckURL: healthCheckURL,
	}
	inst.healthy.Store(true)
	return inst
}

// Healthy reports whether the instance passed its last health probe.
func (i *Instance) Healthy() bool {
	return i.healthy.Load()
}

// SetHealthy sets the health flag. Only the health monitor flips this;
// balancing strategies never do.
func (i *Instance) SetHealthy(healthy bool) {
	i.healthy.Store(healthy)
}

// LastHealthCheck returns the time of the last probe and whether the
// instance has ever been probed.
func (i *Instance) LastHealthCheck() (time.Time, bool) {
	ns := i.lastCheck.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// markChecked records the probe timestamp.
func (i *Instance) markChecked(t time.Time) {
	i.lastCheck.Store(t.UnixNano())
}

// RecordResult updates the per-instance request accounting. The calling
// transport invokes this after each dispatched request.
func (i *Instance) RecordResult(latency time.Duration, failed bool) {
	i.requests.Add(1)
	i.totalLatency.Add(latency.Milliseconds())
	if failed {
		i.failures.Add(1)
	}
}

// RequestCount returns the number of requests dispatched to the instance.
func (i *Instance) RequestCount() int64 {
	return i.requests.Load()
}

// ErrorCount returns the number of failed requests.
func (i *Instance) ErrorCount() int64 {
	return i.failures.Load()
}

// TotalLatency returns the accumulated request latency.
func (i *Instance) TotalLatency() time.Duration {
	return time.Duration(i.totalLatency.Load()) * time.Millisecond
}

// Stats is a point-in-time copy of instance state for introspection.
type Stats struct {
	Service        string    `json:"service"`
	URL            string    `json:"url"`
	Weight         int       `json:"weight"`
	Healthy        bool      `json:"healthy"`
	LastCheckedAt  time.Time `json:"lastCheckedAt"`
	Checked        bool      `json:"checked"`
	RequestCount   int64     `json:"requestCount"`
	ErrorCount     int64     `json:"errorCount"`
	TotalLatencyMs int64     `json:"totalLatencyMs"`
}

// Stats returns a snapshot of the instance.
func (i *Instance) Stats() Stats {
	checkedAt, checked := i.LastHealthCheck()
	return Stats{
		Service:        i.Service,
		URL:            i.URL,
		Weight:         i.Weight,
		Healthy:        i.Healthy(),
		LastCheckedAt:  checkedAt,
		Checked:        checked,
		RequestCount:   i.RequestCount(),
		ErrorCount:     i.ErrorCount(),
		TotalLatencyMs: i.totalLatency.Load(),
	}
}
