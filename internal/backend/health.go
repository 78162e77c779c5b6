package backend

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/vvoronin/routegw/internal/metrics"
	"github.com/vvoronin/routegw/internal/observability"
	"github.com/vvoronin/routegw/internal/util"
)

// Health check default configuration constants.
const (
	// DefaultProbeTimeout bounds each individual health probe.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultProbeInterval is the interval between health sweeps.
	DefaultProbeInterval = 30 * time.Second
)

// ServiceHealth summarizes one service after a sweep.
type ServiceHealth struct {
	Service  string `json:"service"`
	Healthy  int    `json:"healthy"`
	Total    int    `json:"total"`
	FailOpen bool   `json:"failOpen"`
}

// HealthSummary is published to subscribers after every full sweep.
// FailOpen on a service means selection is currently returning unhealthy
// instances to avoid a total outage.
type HealthSummary struct {
	CheckedAt time.Time       `json:"checkedAt"`
	Healthy   int             `json:"healthy"`
	Unhealthy int             `json:"unhealthy"`
	Services  []ServiceHealth `json:"services"`
}

// SweepFunc is called with the summary after each completed sweep.
type SweepFunc func(HealthSummary)

// HealthMonitor periodically probes every registered instance of every
// service in the pool and flips the instance health flags consumed by
// the load balancer. Probes run concurrently with per-instance error
// isolation; a hung instance cannot stall the rest of the sweep beyond
// its own timeout.
type HealthMonitor struct {
	pool     *Pool
	client   *http.Client
	interval time.Duration
	logger   observability.Logger
	onSweep  SweepFunc
	prom     *metrics.GatewayMetrics

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// MonitorOption is a functional option for configuring the monitor.
type MonitorOption func(*HealthMonitor)

// WithMonitorLogger sets the logger for the monitor.
func WithMonitorLogger(logger observability.Logger) MonitorOption {
	return func(m *HealthMonitor) {
		m.logger = logger
	}
}

// WithProbeClient sets the HTTP client used for probes. Mainly for tests.
func WithProbeClient(client *http.Client) MonitorOption {
	return func(m *HealthMonitor) {
		m.client = client
	}
}

// WithProbeTimeout sets the per-probe timeout.
func WithProbeTimeout(timeout time.Duration) MonitorOption {
	return func(m *HealthMonitor) {
		m.client.Timeout = timeout
	}
}

// WithSweepCallback sets the callback invoked after each sweep.
func WithSweepCallback(fn SweepFunc) MonitorOption {
	return func(m *HealthMonitor) {
		m.onSweep = fn
	}
}

// NewHealthMonitor creates a monitor over the pool. A non-positive
// interval falls back to the default.
func NewHealthMonitor(pool *Pool, interval time.Duration, opts ...MonitorOption) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	m := &HealthMonitor{
		pool:     pool,
		client:   &http.Client{Timeout: DefaultProbeTimeout},
		interval: interval,
		logger:   observability.NopLogger(),
		prom:     metrics.GetGatewayMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the probe loop with an immediate first sweep. Calling
// Start while the monitor is already running is a no-op, so at most one
// timer is armed at any time.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.stoppedCh = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("starting health monitor",
		observability.Duration("interval", m.interval),
	)

	go m.run(ctx)
}

// Stop cancels the probe loop. Calling Stop when the monitor is not
// running is a no-op.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh, stoppedCh := m.stopCh, m.stoppedCh
	m.mu.Unlock()

	close(stopCh)
	<-stoppedCh

	m.logger.Info("health monitor stopped")
}

// IsRunning reports whether the probe loop is active.
func (m *HealthMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// run is the main probe loop.
func (m *HealthMonitor) run(ctx context.Context) {
	m.mu.Lock()
	stopCh, stoppedCh := m.stopCh, m.stoppedCh
	m.mu.Unlock()

	defer close(stoppedCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep probes every instance of every service concurrently, waits for
// all probes, then publishes the summary.
func (m *HealthMonitor) sweep(ctx context.Context) {
	instances := m.pool.AllInstances()

	var wg sync.WaitGroup
	for _, inst := range instances {
		wg.Add(1)
		go func(inst *Instance) {
			defer wg.Done()
			m.probe(ctx, inst)
		}(inst)
	}
	wg.Wait()

	summary := m.summarize(time.Now())
	if m.onSweep != nil {
		m.onSweep(summary)
	}
}

// probe issues one bounded-timeout GET against the instance health URL
// and flips the health flag on the outcome. Probe failures are converted
// into healthy=false and never propagate out of the sweep.
func (m *HealthMonitor) probe(ctx context.Context, inst *Instance) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	healthy := false
	defer func() {
		wasHealthy := inst.Healthy()
		inst.SetHealthy(healthy)
		inst.markChecked(time.Now())
		m.prom.RecordHealthCheck(inst.Service, healthy)

		if wasHealthy && !healthy {
			m.logger.Warn("instance became unhealthy",
				observability.String("service", inst.Service),
				observability.String("url", inst.URL),
			)
		} else if !wasHealthy && healthy {
			m.logger.Info("instance became healthy",
				observability.String("service", inst.Service),
				observability.String("url", inst.URL),
			)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inst.HealthCheckURL, http.NoBody)
	if err != nil {
		m.logger.Debug("health probe request failed",
			observability.String("url", inst.HealthCheckURL),
			observability.Error(err),
		)
		return
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug("health probe failed",
			observability.String("url", inst.HealthCheckURL),
			observability.Error(&util.ProbeError{Instance: inst.URL, Cause: err}),
		)
		return
	}
	defer resp.Body.Close()

	healthy = resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
	if !healthy {
		m.logger.Debug("health probe returned non-success status",
			observability.String("url", inst.HealthCheckURL),
			observability.Int("status", resp.StatusCode),
		)
	}
}

// summarize builds the per-service health summary and updates the
// instance gauges.
func (m *HealthMonitor) summarize(at time.Time) HealthSummary {
	summary := HealthSummary{CheckedAt: at}

	for _, service := range m.pool.Services() {
		instances := m.pool.Instances(service)
		sh := ServiceHealth{Service: service, Total: len(instances)}
		for _, inst := range instances {
			if inst.Healthy() {
				sh.Healthy++
			}
		}
		sh.FailOpen = sh.Healthy == 0 && sh.Total > 0
		summary.Healthy += sh.Healthy
		summary.Unhealthy += sh.Total - sh.Healthy
		summary.Services = append(summary.Services, sh)

		m.prom.SetInstanceCounts(service, sh.Healthy, sh.Total)

		if sh.FailOpen {
			m.logger.Warn("service has no healthy instances, selection is failing open",
				observability.String("service", service),
				observability.Int("instances", sh.Total),
			)
		}
	}

	return summary
}
