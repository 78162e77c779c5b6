package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvoronin/routegw/internal/backend"
	"github.com/vvoronin/routegw/internal/config"
	"github.com/vvoronin/routegw/internal/router"
	"github.com/vvoronin/routegw/internal/util"
)

func newTestGateway(t *testing.T, mutate func(*config.Config)) *Gateway {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	gw := New(cfg)
	t.Cleanup(gw.Shutdown)
	return gw
}

func TestGateway_RegisterAndFindRoute(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, nil)
	_, err := gw.RegisterRoute("/api/users/:id", router.RouteOptions{Service: "users", Method: "GET"})
	require.NoError(t, err)

	route, err := gw.FindRoute("GET", "/api/users/42", "v1")
	require.NoError(t, err)
	assert.Equal(t, "users", route.Service)

	_, err = gw.FindRoute("GET", "/nope", "v1")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestGateway_VersioningDisabled(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(cfg *config.Config) {
		cfg.EnableVersioning = false
	})

	// Registration under any version lands on the default version, and
	// resolution ignores the requested version.
	_, err := gw.RegisterRoute("/api/users", router.RouteOptions{Service: "users", Version: "v9"})
	require.NoError(t, err)

	route, err := gw.FindRoute("GET", "/api/users", "v3")
	require.NoError(t, err)
	assert.Equal(t, "v1", route.Version)
}

func TestGateway_SelectInstance(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, nil)
	_, err := gw.RegisterInstance("users", "http://10.0.0.1:8080", backend.InstanceOptions{})
	require.NoError(t, err)

	inst, err := gw.SelectInstance("users", backend.StrategyRoundRobin)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8080", inst.URL)
}

func TestGateway_SelectInstance_UnknownService(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, nil)
	_, err := gw.SelectInstance("ghost", backend.StrategyRoundRobin)
	require.Error(t, err)

	var notFound *util.ServiceNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestGateway_LoadBalancingDisabled(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(cfg *config.Config) {
		cfg.EnableLoadBalancing = false
	})
	_, err := gw.RegisterInstance("users", "http://10.0.0.1:8080", backend.InstanceOptions{})
	require.NoError(t, err)
	_, err = gw.RegisterInstance("users", "http://10.0.0.2:8080", backend.InstanceOptions{})
	require.NoError(t, err)

	// Every selection returns the first registered instance.
	for i := 0; i < 5; i++ {
		inst, err := gw.SelectInstance("users", backend.StrategyRoundRobin)
		require.NoError(t, err)
		assert.Equal(t, "http://10.0.0.1:8080", inst.URL)
	}
}

func TestGateway_Strategies(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, nil)
	assert.Equal(t, backend.StrategyRoundRobin, gw.StrategyFor("users"))

	gw.SetStrategy("users", backend.StrategyWeighted)
	assert.Equal(t, backend.StrategyWeighted, gw.StrategyFor("users"))
}

func TestGateway_RecordRequest_PublishesAfterMutation(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, nil)

	var events []Event
	gw.Subscribe(func(event Event) {
		// The analytics mutation must be visible before delivery.
		snap := gw.Analytics()
		assert.Equal(t, int64(1), snap.Requests.Total)
		events = append(events, event)
	})

	gw.RecordRequest("/api/users", "GET", 200, 50*time.Millisecond, nil)

	require.Len(t, events, 1)
	assert.Equal(t, EventRequest, events[0].Type)
	assert.NotEmpty(t, events[0].ID)
	require.NotNil(t, events[0].Request)
	assert.Equal(t, "/api/users", events[0].Request.Route)
	assert.Equal(t, 200, events[0].Request.Status)
}

func TestGateway_AnalyticsDisabled(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(cfg *config.Config) {
		cfg.EnableAnalytics = false
	})

	delivered := 0
	gw.Subscribe(func(Event) { delivered++ })

	gw.RecordRequest("/a", "GET", 200, time.Millisecond, nil)
	gw.RecordAuth("jwt", true)
	gw.RecordRateLimit("10.0.0.1", "alice", true)

	snap := gw.Analytics()
	assert.Equal(t, int64(0), snap.Requests.Total)
	assert.Equal(t, int64(0), snap.Auth.Total)
	assert.Equal(t, int64(0), snap.RateLimit.Total)
	assert.Equal(t, 0, delivered)
}

func TestGateway_Unsubscribe(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, nil)

	delivered := 0
	id := gw.Subscribe(func(Event) { delivered++ })

	gw.RecordRequest("/a", "GET", 200, time.Millisecond, nil)
	gw.Unsubscribe(id)
	gw.RecordRequest("/a", "GET", 200, time.Millisecond, nil)

	assert.Equal(t, 1, delivered)
}

func TestGateway_ResetAnalytics_KeepsRoutesAndInstances(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, nil)
	_, err := gw.RegisterRoute("/api/users", router.RouteOptions{Service: "users"})
	require.NoError(t, err)
	_, err = gw.RegisterInstance("users", "http://10.0.0.1:8080", backend.InstanceOptions{})
	require.NoError(t, err)
	gw.RecordRequest("/api/users", "GET", 200, time.Millisecond, nil)

	gw.ResetAnalytics()

	assert.Equal(t, int64(0), gw.Analytics().Requests.Total)
	assert.Len(t, gw.Routes(), 1)
	assert.Len(t, gw.Instances("users"), 1)
}

func TestGateway_HealthCheckLifecycle(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(cfg *config.Config) {
		cfg.HealthCheckInterval = config.Duration(time.Hour)
	})

	gw.StartHealthChecks(context.Background())
	gw.StartHealthChecks(context.Background())
	assert.True(t, gw.HealthChecksRunning())

	gw.StopHealthChecks()
	assert.False(t, gw.HealthChecksRunning())
	gw.StopHealthChecks()
}

func TestGateway_Shutdown_Idempotent(t *testing.T) {
	t.Parallel()

	gw := New(config.DefaultConfig())
	gw.StartHealthChecks(context.Background())

	delivered := 0
	gw.Subscribe(func(Event) { delivered++ })

	gw.Shutdown()
	assert.False(t, gw.HealthChecksRunning())

	// Subscribers are detached.
	gw.RecordRequest("/a", "GET", 200, time.Millisecond, nil)
	assert.Equal(t, 0, delivered)

	gw.Shutdown()
}

func TestGateway_ReloadRoutes(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, nil)
	_, err := gw.RegisterRoute("/old", router.RouteOptions{Service: "old"})
	require.NoError(t, err)

	err = gw.ReloadRoutes([]config.RouteConfig{
		{Pattern: "/new", Service: "new"},
	})
	require.NoError(t, err)

	routes := gw.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, "/new", routes[0].Pattern)
}

func TestGateway_ApplyFileConfig(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, nil)
	err := gw.ApplyFileConfig(&config.FileConfig{
		Routes: []config.RouteConfig{
			{Pattern: "/api/users/:id", Service: "users", Method: "GET"},
		},
		Services: []config.ServiceConfig{
			{
				Name:     "users",
				Strategy: "weighted",
				Instances: []config.InstanceConfig{
					{URL: "http://10.0.0.1:8080", Weight: 2},
					{URL: "http://10.0.0.2:8080"},
				},
			},
		},
	})
	require.NoError(t, err)

	assert.Len(t, gw.Routes(), 1)
	assert.Len(t, gw.Instances("users"), 2)
	assert.Equal(t, backend.StrategyWeighted, gw.StrategyFor("users"))

	inst, err := gw.Select("users")
	require.NoError(t, err)
	assert.NotNil(t, inst)
}
