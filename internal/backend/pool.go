package backend

import (
	"sync"
	"sync/atomic"

	"github.com/vvoronin/routegw/internal/metrics"
	"github.com/vvoronin/routegw/internal/observability"
	"github.com/vvoronin/routegw/internal/util"
)

// InstanceOptions carries the optional fields of an instance registration.
type InstanceOptions struct {
	Weight         int
	HealthCheckURL string
}

// Pool stores named services, each with an ordered list of weighted
// instances, and selects an instance per call using a strategy. Round-
// robin counters are per-service fields of the pool instance, not
// process-wide state, so multiple gateways in one process stay
// independent.
type Pool struct {
	mu       sync.RWMutex
	services map[string][]*Instance
	order    []string
	counters map[string]*atomic.Uint64
	logger   observability.Logger
	prom     *metrics.GatewayMetrics
}

// PoolOption is a functional option for configuring the pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the logger for the pool.
func WithPoolLogger(logger observability.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool creates an empty service pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		services: make(map[string][]*Instance),
		counters: make(map[string]*atomic.Uint64),
		logger:   observability.NopLogger(),
		prom:     metrics.GetGatewayMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register appends an instance to the named service. Registering the
// same service name repeatedly models horizontal scaling of one logical
// service.
func (p *Pool) Register(service, url string, opts InstanceOptions) (*Instance, error) {
	if service == "" {
		return nil, util.NewValidationError("service name is required")
	}
	if url == "" {
		return nil, util.NewValidationError("instance url is required")
	}

	inst := NewInstance(service, url, opts.Weight, opts.HealthCheckURL)

	p.mu.Lock()
	if _, ok := p.services[service]; !ok {
		p.order = append(p.order, service)
		p.counters[service] = &atomic.Uint64{}
	}
	p.services[service] = append(p.services[service], inst)
	total := len(p.services[service])
	p.mu.Unlock()

	p.prom.SetInstanceCounts(service, p.countHealthy(service), total)

	p.logger.Info("registered service instance",
		observability.String("service", service),
		observability.String("url", url),
		observability.Int("weight", inst.Weight),
		observability.Int("instances", total),
	)

	return inst, nil
}

// Select picks an instance of the named service using the strategy.
// Unknown services return nil. When no instance is healthy the pool
// fails open and returns the first registered instance regardless of
// health; routing to a known-broken backend is preferred over a total
// outage, and the health summary flags the condition to operators.
// Strategies never mutate health.
func (p *Pool) Select(service string, strategy Strategy) *Instance {
	p.mu.RLock()
	instances := p.services[service]
	counter := p.counters[service]
	p.mu.RUnlock()

	if len(instances) == 0 {
		return nil
	}

	healthy := healthyInstances(instances)
	if len(healthy) == 0 {
		return instances[0]
	}

	switch strategy {
	case StrategyWeighted:
		return selectWeighted(healthy)
	case StrategyLeastConnections:
		return selectLeastConnections(healthy)
	case StrategyRandom:
		return healthy[secureRandomInt(len(healthy))]
	default:
		return selectRoundRobin(healthy, counter)
	}
}

// First returns the first registered instance of the service, or nil.
// Used when load balancing is disabled.
func (p *Pool) First(service string) *Instance {
	p.mu.RLock()
	defer p.mu.RUnlock()

	instances := p.services[service]
	if len(instances) == 0 {
		return nil
	}
	return instances[0]
}

// Instances returns a snapshot of the instance list for a service.
func (p *Pool) Instances(service string) []*Instance {
	p.mu.RLock()
	defer p.mu.RUnlock()

	instances := p.services[service]
	out := make([]*Instance, len(instances))
	copy(out, instances)
	return out
}

// Services returns all service names in registration order.
func (p *Pool) Services() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// AllInstances returns every registered instance across services, in
// service registration order.
func (p *Pool) AllInstances() []*Instance {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Instance
	for _, name := range p.order {
		out = append(out, p.services[name]...)
	}
	return out
}

// countHealthy returns the number of healthy instances of a service.
func (p *Pool) countHealthy(service string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, inst := range p.services[service] {
		if inst.Healthy() {
			n++
		}
	}
	return n
}

// healthyInstances filters to instances with a true health flag.
func healthyInstances(instances []*Instance) []*Instance {
	healthy := make([]*Instance, 0, len(instances))
	for _, inst := range instances {
		if inst.Healthy() {
			healthy = append(healthy, inst)
		}
	}
	return healthy
}

// selectRoundRobin cycles through the healthy subset. The counter
// increments on every selection and is never reset for the process
// lifetime.
func selectRoundRobin(healthy []*Instance, counter *atomic.Uint64) *Instance {
	if counter == nil {
		return healthy[0]
	}
	idx := counter.Add(1) - 1
	return healthy[idx%uint64(len(healthy))]
}

// selectWeighted draws a uniform value in [0, totalWeight) and walks the
// healthy subset in registration order subtracting weights.
func selectWeighted(healthy []*Instance) *Instance {
	totalWeight := 0
	for _, inst := range healthy {
		totalWeight += inst.Weight
	}
	if totalWeight <= 0 {
		return healthy[0]
	}

	r := secureRandomInt(totalWeight)
	for _, inst := range healthy {
		r -= inst.Weight
		if r < 0 {
			return inst
		}
	}
	return healthy[len(healthy)-1]
}

// selectLeastConnections returns the healthy instance with the lowest
// request count, ties broken by encounter order.
func selectLeastConnections(healthy []*Instance) *Instance {
	var selected *Instance
	minRequests := int64(-1)

	for _, inst := range healthy {
		n := inst.RequestCount()
		if minRequests < 0 || n < minRequests {
			minRequests = n
			selected = inst
		}
	}
	return selected
}
