package router

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvoronin/routegw/internal/util"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry("v1", 3)
}

func TestRegistry_Register_Defaults(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	route, err := r.Register("/api/users", RouteOptions{Service: "users"})
	require.NoError(t, err)

	assert.Equal(t, MethodAll, route.Method)
	assert.Equal(t, "v1", route.Version)
	assert.True(t, route.RequiresAuth)
	assert.True(t, route.LoadBalance)
	assert.Equal(t, 3, route.Retries)
	assert.Equal(t, 30*time.Second, route.Timeout)
}

func TestRegistry_Register_Overrides(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	noAuth := false
	retries := 5
	route, err := r.Register("/api/public", RouteOptions{
		Service:      "public",
		Method:       "get",
		Version:      "v2",
		RequiresAuth: &noAuth,
		Retries:      &retries,
		Timeout:      10 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, "GET", route.Method)
	assert.Equal(t, "v2", route.Version)
	assert.False(t, route.RequiresAuth)
	assert.Equal(t, 5, route.Retries)
	assert.Equal(t, 10*time.Second, route.Timeout)
}

func TestRegistry_Register_Validation(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)

	_, err := r.Register("", RouteOptions{Service: "users"})
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	_, err = r.Register("/api/users", RouteOptions{})
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}

func TestRegistry_Register_OverwriteSameKey(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Register("/api/users", RouteOptions{Service: "users"})
	require.NoError(t, err)
	_, err = r.Register("/api/users", RouteOptions{Service: "users-v2"})
	require.NoError(t, err)

	assert.Equal(t, 1, r.Len())

	route, err := r.Resolve("GET", "/api/users", "v1")
	require.NoError(t, err)
	assert.Equal(t, "users-v2", route.Service)
}

func TestRegistry_Resolve_ExactMethod(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Register("/api/users", RouteOptions{Service: "users", Method: "GET"})
	require.NoError(t, err)

	route, err := r.Resolve("get", "/api/users", "v1")
	require.NoError(t, err)
	assert.Equal(t, "users", route.Service)

	_, err = r.Resolve("POST", "/api/users", "v1")
	assert.Error(t, err)
}

func TestRegistry_Resolve_MethodAllFallback(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Register("/api/users", RouteOptions{Service: "users"})
	require.NoError(t, err)

	for _, method := range []string{"GET", "POST", "DELETE"} {
		route, err := r.Resolve(method, "/api/users", "v1")
		require.NoError(t, err)
		assert.Equal(t, "users", route.Service)
	}
}

func TestRegistry_Resolve_PatternScan(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Register("/api/users/:id", RouteOptions{Service: "users", Method: "GET"})
	require.NoError(t, err)

	route, err := r.Resolve("GET", "/api/users/123", "v1")
	require.NoError(t, err)
	assert.Equal(t, "/api/users/:id", route.Pattern)

	_, err = r.Resolve("GET", "/api/users/123/posts", "v1")
	assert.Error(t, err)
}

func TestRegistry_Resolve_RegistrationOrderWins(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Register("/api/users/:id", RouteOptions{Service: "specific"})
	require.NoError(t, err)
	_, err = r.Register("/api/users/*", RouteOptions{Service: "catchall"})
	require.NoError(t, err)

	route, err := r.Resolve("GET", "/api/users/123", "v1")
	require.NoError(t, err)
	assert.Equal(t, "specific", route.Service)
}

func TestRegistry_Resolve_VersionIsolation(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Register("/api/users", RouteOptions{Service: "users-v1", Version: "v1"})
	require.NoError(t, err)
	_, err = r.Register("/api/users", RouteOptions{Service: "users-v2", Version: "v2"})
	require.NoError(t, err)

	v1, err := r.Resolve("GET", "/api/users", "v1")
	require.NoError(t, err)
	assert.Equal(t, "users-v1", v1.Service)

	v2, err := r.Resolve("GET", "/api/users", "v2")
	require.NoError(t, err)
	assert.Equal(t, "users-v2", v2.Service)

	// Empty version falls back to the registry default.
	def, err := r.Resolve("GET", "/api/users", "")
	require.NoError(t, err)
	assert.Equal(t, "users-v1", def.Service)
}

func TestRegistry_Resolve_NotFound(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Resolve("GET", "/nope", "v1")
	require.Error(t, err)

	var notFound *util.RouteNotFoundError
	assert.True(t, errors.As(err, &notFound))
	assert.ErrorIs(t, err, util.ErrNotFound)
	assert.Equal(t, "/nope", notFound.Path)
}

func TestRegistry_List_Snapshot(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Register("/a", RouteOptions{Service: "a"})
	require.NoError(t, err)
	_, err = r.Register("/b", RouteOptions{Service: "b"})
	require.NoError(t, err)

	routes := r.List()
	require.Len(t, routes, 2)
	assert.Equal(t, "/a", routes[0].Pattern)
	assert.Equal(t, "/b", routes[1].Pattern)

	// Mutating the snapshot does not affect the registry.
	routes[0] = nil
	assert.NotNil(t, r.List()[0])
}

func TestRegistry_Clear(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Register("/a", RouteOptions{Service: "a"})
	require.NoError(t, err)

	r.Clear()
	assert.Equal(t, 0, r.Len())

	_, err = r.Resolve("GET", "/a", "v1")
	assert.Error(t, err)
}
