// Package gateway composes the route registry, service pool, health
// monitor, and analytics recorder behind one facade and publishes
// lifecycle notifications to subscribers.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/vvoronin/routegw/internal/analytics"
	"github.com/vvoronin/routegw/internal/backend"
	"github.com/vvoronin/routegw/internal/config"
	"github.com/vvoronin/routegw/internal/observability"
	"github.com/vvoronin/routegw/internal/router"
	"github.com/vvoronin/routegw/internal/util"
)

// Gateway is the facade over the gateway core. All state is owned by
// the instance; several gateways in one process stay independent.
type Gateway struct {
	cfg      *config.Config
	logger   observability.Logger
	registry *router.Registry
	pool     *backend.Pool
	monitor  *backend.HealthMonitor
	recorder *analytics.Recorder
	events   observers

	monitorOpts []backend.MonitorOption

	mu         sync.Mutex
	strategies map[string]backend.Strategy
	shutdown   bool
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway and its components.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMonitorOptions appends options for the health monitor, mainly to
// inject a probe client in tests.
func WithMonitorOptions(opts ...backend.MonitorOption) Option {
	return func(g *Gateway) {
		g.monitorOpts = append(g.monitorOpts, opts...)
	}
}

// New creates a gateway from the configuration. A nil cfg uses defaults.
func New(cfg *config.Config, opts ...Option) *Gateway {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.Normalize()

	g := &Gateway{
		cfg:        cfg,
		logger:     observability.NopLogger(),
		strategies: make(map[string]backend.Strategy),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.registry = router.NewRegistry(cfg.DefaultVersion, cfg.MaxRetries,
		router.WithRegistryLogger(g.logger))
	g.pool = backend.NewPool(backend.WithPoolLogger(g.logger))
	g.recorder = analytics.NewRecorder(analytics.WithRecorderLogger(g.logger))

	monitorOpts := append([]backend.MonitorOption{
		backend.WithMonitorLogger(g.logger),
		backend.WithSweepCallback(g.onSweep),
	}, g.monitorOpts...)
	g.monitor = backend.NewHealthMonitor(g.pool,
		time.Duration(cfg.HealthCheckInterval), monitorOpts...)

	return g
}

// Config returns the gateway configuration.
func (g *Gateway) Config() *config.Config {
	return g.cfg
}

// RegisterRoute validates and stores a route. With versioning disabled
// every route lands on the default version so registration and
// resolution agree.
func (g *Gateway) RegisterRoute(pattern string, opts router.RouteOptions) (*router.Route, error) {
	if !g.cfg.EnableVersioning {
		opts.Version = g.cfg.DefaultVersion
	}
	return g.registry.Register(pattern, opts)
}

// RegisterInstance appends an instance to the named service.
func (g *Gateway) RegisterInstance(service, url string, opts backend.InstanceOptions) (*backend.Instance, error) {
	return g.pool.Register(service, url, opts)
}

// FindRoute resolves an incoming request to a registered route. With
// versioning disabled the requested version is ignored in favor of the
// default.
func (g *Gateway) FindRoute(method, path, version string) (*router.Route, error) {
	if !g.cfg.EnableVersioning {
		version = g.cfg.DefaultVersion
	}
	return g.registry.Resolve(method, path, version)
}

// SelectInstance picks a backend instance for the service. With load
// balancing disabled it always returns the first registered instance.
// An unknown service is a ServiceNotFoundError.
func (g *Gateway) SelectInstance(service string, strategy backend.Strategy) (*backend.Instance, error) {
	var inst *backend.Instance
	if g.cfg.EnableLoadBalancing {
		inst = g.pool.Select(service, strategy)
	} else {
		inst = g.pool.First(service)
	}
	if inst == nil {
		return nil, util.NewServiceNotFoundError(service)
	}
	return inst, nil
}

// SetStrategy sets the default balancing strategy for a service.
func (g *Gateway) SetStrategy(service string, strategy backend.Strategy) {
	g.mu.Lock()
	g.strategies[service] = strategy
	g.mu.Unlock()
}

// StrategyFor returns the default strategy configured for a service,
// round-robin when none was set.
func (g *Gateway) StrategyFor(service string) backend.Strategy {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.strategies[service]
}

// Select picks a backend instance for the service using its configured
// default strategy.
func (g *Gateway) Select(service string) (*backend.Instance, error) {
	return g.SelectInstance(service, g.StrategyFor(service))
}

// RecordRequest records one completed request and then publishes a
// request event. The event is delivered strictly after the analytics
// mutation is visible. With analytics disabled this is a no-op.
func (g *Gateway) RecordRequest(route, method string, status int, latency time.Duration, err error) {
	if !g.cfg.EnableAnalytics {
		return
	}

	g.recorder.RecordRequest(route, method, status, latency, err)

	event := newEvent(EventRequest)
	event.Request = &RequestEvent{
		Route:   route,
		Method:  method,
		Status:  status,
		Latency: latency,
	}
	if err != nil {
		event.Request.Error = err.Error()
	}
	g.events.publish(event)
}

// RecordAuth records a reported authentication outcome. No-op with
// analytics disabled.
func (g *Gateway) RecordAuth(method string, success bool) {
	if !g.cfg.EnableAnalytics {
		return
	}
	g.recorder.RecordAuth(method, success)
}

// RecordRateLimit records a reported rate-limit outcome. No-op with
// analytics disabled.
func (g *Gateway) RecordRateLimit(ip, user string, blocked bool) {
	if !g.cfg.EnableAnalytics {
		return
	}
	g.recorder.RecordRateLimit(ip, user, blocked)
}

// Analytics returns a point-in-time snapshot of the recorder.
func (g *Gateway) Analytics() analytics.Snapshot {
	return g.recorder.Snapshot()
}

// ResetAnalytics zeroes the analytics aggregate. Routes and service
// instances are untouched.
func (g *Gateway) ResetAnalytics() {
	g.recorder.Reset()
}

// Routes returns a snapshot of all registered routes.
func (g *Gateway) Routes() []*router.Route {
	return g.registry.List()
}

// Services returns all registered service names.
func (g *Gateway) Services() []string {
	return g.pool.Services()
}

// Instances returns a snapshot of the instances of a service.
func (g *Gateway) Instances(service string) []*backend.Instance {
	return g.pool.Instances(service)
}

// StartHealthChecks launches the health probe loop. Idempotent.
func (g *Gateway) StartHealthChecks(ctx context.Context) {
	g.monitor.Start(ctx)
}

// StopHealthChecks stops the probe loop. Safe when not running.
func (g *Gateway) StopHealthChecks() {
	g.monitor.Stop()
}

// HealthChecksRunning reports whether the probe loop is active.
func (g *Gateway) HealthChecksRunning() bool {
	return g.monitor.IsRunning()
}

// Subscribe registers a subscriber for gateway events and returns a
// handle for Unsubscribe.
func (g *Gateway) Subscribe(fn Subscriber) string {
	return g.events.add(fn)
}

// Unsubscribe detaches a subscriber by its handle.
func (g *Gateway) Unsubscribe(id string) {
	g.events.remove(id)
}

// ReloadRoutes atomically replaces the route table from declarative
// route configuration. Service instances are not touched; the pool has
// no deregistration.
func (g *Gateway) ReloadRoutes(routes []config.RouteConfig) error {
	g.registry.Clear()
	for _, rc := range routes {
		if _, err := g.RegisterRoute(rc.Pattern, routeOptions(rc)); err != nil {
			return err
		}
	}
	g.logger.Info("route table reloaded",
		observability.Int("routes", g.registry.Len()),
	)
	return nil
}

// ApplyFileConfig registers the routes and services declared in a
// configuration file. Used once at startup.
func (g *Gateway) ApplyFileConfig(fc *config.FileConfig) error {
	for _, sc := range fc.Services {
		g.SetStrategy(sc.Name, backend.ParseStrategy(sc.Strategy))
		for _, ic := range sc.Instances {
			if _, err := g.RegisterInstance(sc.Name, ic.URL, backend.InstanceOptions{
				Weight:         ic.Weight,
				HealthCheckURL: ic.HealthCheckURL,
			}); err != nil {
				return err
			}
		}
	}
	for _, rc := range fc.Routes {
		if _, err := g.RegisterRoute(rc.Pattern, routeOptions(rc)); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops the health monitor and detaches all subscribers. Safe
// to call repeatedly; after the first call no background timer remains
// armed.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	already := g.shutdown
	g.shutdown = true
	g.mu.Unlock()

	g.monitor.Stop()
	g.events.clear()

	if !already {
		g.logger.Info("gateway shut down")
	}
}

// onSweep converts a health summary into a healthCheck event.
func (g *Gateway) onSweep(summary backend.HealthSummary) {
	event := newEvent(EventHealthCheck)
	event.Health = &summary
	g.events.publish(event)
}

// routeOptions maps declarative route configuration to registration
// options.
func routeOptions(rc config.RouteConfig) router.RouteOptions {
	return router.RouteOptions{
		Service:      rc.Service,
		Method:       rc.Method,
		Version:      rc.Version,
		RequiresAuth: rc.RequiresAuth,
		LoadBalance:  rc.LoadBalance,
		Retries:      rc.Retries,
		Timeout:      time.Duration(rc.Timeout),
	}
}
