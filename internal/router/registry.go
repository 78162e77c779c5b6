package router

import (
	"strings"
	"sync"
	"time"

	"github.com/vvoronin/routegw/internal/observability"
	"github.com/vvoronin/routegw/internal/util"
)

// MethodAll is the wildcard method that matches every HTTP method.
const MethodAll = "ALL"

// DefaultRouteTimeout is the default per-route upstream timeout.
const DefaultRouteTimeout = 30 * time.Second

// Route binds (method, version, pattern) to a named backend service.
// Routes are immutable after registration; re-registering the same key
// overwrites the previous definition.
type Route struct {
	Pattern      string        `json:"pattern"`
	Service      string        `json:"service"`
	Method       string        `json:"method"`
	Version      string        `json:"version"`
	RequiresAuth bool          `json:"requiresAuth"`
	LoadBalance  bool          `json:"loadBalance"`
	Retries      int           `json:"retries"`
	Timeout      time.Duration `json:"timeout"`

	matcher *Matcher
}

// Matcher returns the compiled path matcher for the route pattern.
func (r *Route) Matcher() *Matcher {
	return r.matcher
}

// RouteOptions carries the optional fields of a route registration.
// Nil pointer fields receive registry defaults.
type RouteOptions struct {
	Service      string
	Method       string
	Version      string
	RequiresAuth *bool
	LoadBalance  *bool
	Retries      *int
	Timeout      time.Duration
}

// routeKey is the identity key of a registered route.
type routeKey struct {
	method  string
	version string
	pattern string
}

// Registry stores registered routes and resolves incoming requests to
// route definitions. Resolution scans in registration order, so
// overlapping templates must be registered most-specific-first; the
// registry does not reorder.
type Registry struct {
	defaultVersion string
	defaultRetries int

	mu     sync.RWMutex
	byKey  map[routeKey]*Route
	routes []*Route
	logger observability.Logger
}

// RegistryOption is a functional option for configuring the registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger for the registry.
func WithRegistryLogger(logger observability.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a route registry with the given defaults for
// version and retry count.
func NewRegistry(defaultVersion string, defaultRetries int, opts ...RegistryOption) *Registry {
	r := &Registry{
		defaultVersion: defaultVersion,
		defaultRetries: defaultRetries,
		byKey:          make(map[routeKey]*Route),
		logger:         observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates and stores a route. Missing optional fields default
// to: method "ALL", the registry's default version, requiresAuth true,
// retries = registry default, timeout 30s.
func (r *Registry) Register(pattern string, opts RouteOptions) (*Route, error) {
	if pattern == "" {
		return nil, util.NewValidationError("route pattern is required")
	}
	if opts.Service == "" {
		return nil, util.NewValidationError("route service is required")
	}

	matcher, err := Compile(pattern)
	if err != nil {
		return nil, err
	}

	route := &Route{
		Pattern:      pattern,
		Service:      opts.Service,
		Method:       MethodAll,
		Version:      r.defaultVersion,
		RequiresAuth: true,
		LoadBalance:  true,
		Retries:      r.defaultRetries,
		Timeout:      DefaultRouteTimeout,
		matcher:      matcher,
	}

	if opts.Method != "" {
		route.Method = strings.ToUpper(opts.Method)
	}
	if opts.Version != "" {
		route.Version = opts.Version
	}
	if opts.RequiresAuth != nil {
		route.RequiresAuth = *opts.RequiresAuth
	}
	if opts.LoadBalance != nil {
		route.LoadBalance = *opts.LoadBalance
	}
	if opts.Retries != nil {
		route.Retries = *opts.Retries
	}
	if opts.Timeout > 0 {
		route.Timeout = opts.Timeout
	}

	key := routeKey{method: route.Method, version: route.Version, pattern: route.Pattern}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[key]; ok {
		// Overwrite in place, preserving registration order.
		for i, rt := range r.routes {
			if rt == existing {
				r.routes[i] = route
				break
			}
		}
	} else {
		r.routes = append(r.routes, route)
	}
	r.byKey[key] = route

	r.logger.Info("registered route",
		observability.String("pattern", route.Pattern),
		observability.String("method", route.Method),
		observability.String("version", route.Version),
		observability.String("service", route.Service),
	)

	return route, nil
}

// Resolve maps an incoming (method, path, version) to a registered route.
// Lookup order: exact (method, version, path), exact ("ALL", version,
// path), then a registration-order scan over pattern matches. A miss
// returns a RouteNotFoundError.
func (r *Registry) Resolve(method, path, version string) (*Route, error) {
	method = strings.ToUpper(method)
	if version == "" {
		version = r.defaultVersion
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if route, ok := r.byKey[routeKey{method: method, version: version, pattern: path}]; ok {
		return route, nil
	}
	if route, ok := r.byKey[routeKey{method: MethodAll, version: version, pattern: path}]; ok {
		return route, nil
	}

	for _, route := range r.routes {
		if route.Method != method && route.Method != MethodAll {
			continue
		}
		if route.Version != version {
			continue
		}
		if route.matcher.Matches(path) {
			return route, nil
		}
	}

	return nil, util.NewRouteNotFoundError(method, path, version)
}

// List returns a stable snapshot of all registered routes in
// registration order.
func (r *Registry) List() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]*Route, len(r.routes))
	copy(routes, r.routes)
	return routes
}

// Len returns the number of registered routes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Clear removes all registered routes. Used by config reload before the
// new route table is registered.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes = r.routes[:0]
	r.byKey = make(map[routeKey]*Route)
}
