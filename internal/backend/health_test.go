package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// healthToggle is an httptest backend whose health endpoint can be
// flipped between 200 and 503.
type healthToggle struct {
	mu sync.Mutex
	ok bool
}

func (h *healthToggle) set(ok bool) {
	h.mu.Lock()
	h.ok = ok
	h.mu.Unlock()
}

func (h *healthToggle) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	ok := h.ok
	h.mu.Unlock()
	if ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

func TestHealthMonitor_SweepFlipsHealth(t *testing.T) {
	t.Parallel()

	toggle := &healthToggle{ok: true}
	srv := httptest.NewServer(toggle)
	defer srv.Close()

	p := NewPool()
	inst, err := p.Register("users", srv.URL, InstanceOptions{})
	require.NoError(t, err)

	m := NewHealthMonitor(p, time.Minute)
	m.sweep(context.Background())
	assert.True(t, inst.Healthy())

	_, checked := inst.LastHealthCheck()
	assert.True(t, checked)

	toggle.set(false)
	m.sweep(context.Background())
	assert.False(t, inst.Healthy())

	toggle.set(true)
	m.sweep(context.Background())
	assert.True(t, inst.Healthy())
}

func TestHealthMonitor_UnreachableInstance(t *testing.T) {
	t.Parallel()

	p := NewPool()
	inst, err := p.Register("users", "http://127.0.0.1:1", InstanceOptions{})
	require.NoError(t, err)
	require.True(t, inst.Healthy())

	m := NewHealthMonitor(p, time.Minute, WithProbeTimeout(time.Second))
	m.sweep(context.Background())
	assert.False(t, inst.Healthy())
}

func TestHealthMonitor_OneFailureDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	toggle := &healthToggle{ok: true}
	srv := httptest.NewServer(toggle)
	defer srv.Close()

	p := NewPool()
	bad, err := p.Register("users", "http://127.0.0.1:1", InstanceOptions{})
	require.NoError(t, err)
	good, err := p.Register("users", srv.URL, InstanceOptions{})
	require.NoError(t, err)

	m := NewHealthMonitor(p, time.Minute, WithProbeTimeout(time.Second))
	m.sweep(context.Background())

	assert.False(t, bad.Healthy())
	assert.True(t, good.Healthy())
}

func TestHealthMonitor_SweepSummary(t *testing.T) {
	t.Parallel()

	toggle := &healthToggle{ok: true}
	srv := httptest.NewServer(toggle)
	defer srv.Close()

	p := NewPool()
	_, err := p.Register("users", srv.URL, InstanceOptions{})
	require.NoError(t, err)
	_, err = p.Register("orders", "http://127.0.0.1:1", InstanceOptions{})
	require.NoError(t, err)

	var got HealthSummary
	m := NewHealthMonitor(p, time.Minute,
		WithProbeTimeout(time.Second),
		WithSweepCallback(func(s HealthSummary) { got = s }),
	)
	m.sweep(context.Background())

	require.Len(t, got.Services, 2)
	assert.Equal(t, 1, got.Healthy)
	assert.Equal(t, 1, got.Unhealthy)

	assert.Equal(t, "users", got.Services[0].Service)
	assert.False(t, got.Services[0].FailOpen)

	assert.Equal(t, "orders", got.Services[1].Service)
	assert.True(t, got.Services[1].FailOpen)
}

func TestHealthMonitor_StartIsIdempotent(t *testing.T) {
	t.Parallel()

	toggle := &healthToggle{ok: true}
	srv := httptest.NewServer(toggle)
	defer srv.Close()

	p := NewPool()
	_, err := p.Register("users", srv.URL, InstanceOptions{})
	require.NoError(t, err)

	m := NewHealthMonitor(p, time.Minute)

	m.Start(context.Background())
	m.Start(context.Background())
	assert.True(t, m.IsRunning())

	// A single Stop joins the single loop; a second Stop is a no-op.
	m.Stop()
	assert.False(t, m.IsRunning())
	m.Stop()
}

func TestHealthMonitor_StopWhenIdle(t *testing.T) {
	t.Parallel()

	m := NewHealthMonitor(NewPool(), time.Minute)
	assert.False(t, m.IsRunning())
	m.Stop()
}

func TestHealthMonitor_StartRunsImmediateSweep(t *testing.T) {
	t.Parallel()

	toggle := &healthToggle{ok: false}
	srv := httptest.NewServer(toggle)
	defer srv.Close()

	p := NewPool()
	inst, err := p.Register("users", srv.URL, InstanceOptions{})
	require.NoError(t, err)
	require.True(t, inst.Healthy())

	m := NewHealthMonitor(p, time.Hour)
	m.Start(context.Background())
	defer m.Stop()

	assert.Eventually(t, func() bool {
		return !inst.Healthy()
	}, 3*time.Second, 10*time.Millisecond)
}
