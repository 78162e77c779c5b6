package util

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigError(t *testing.T) {
	t.Parallel()

	err := NewConfigError("maxRetries", "must not be negative")
	assert.Contains(t, err.Error(), "maxRetries")
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationError("bad route")
	err.AddField("pattern", "is required")
	assert.Contains(t, err.Error(), "pattern")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRouteNotFoundError(t *testing.T) {
	t.Parallel()

	err := NewRouteNotFoundError("GET", "/nope", "v1")
	assert.Contains(t, err.Error(), "/nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceNotFoundError(t *testing.T) {
	t.Parallel()

	err := NewServiceNotFoundError("users")
	assert.Contains(t, err.Error(), "users")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrBackendUnavail)
}

func TestProbeError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := &ProbeError{Instance: "http://10.0.0.1:8080", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrBackendUnavail)
}

func TestTimeoutError(t *testing.T) {
	t.Parallel()

	err := NewTimeoutError("upstream call", 5*time.Second)
	assert.Contains(t, err.Error(), "upstream call")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestErrorType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", ErrorType(nil))
	assert.Equal(t, "timeout", ErrorType(NewTimeoutError("call", time.Second)))
	assert.Equal(t, "probe_failure", ErrorType(&ProbeError{Instance: "a"}))
	assert.Equal(t, "route_not_found", ErrorType(NewRouteNotFoundError("GET", "/x", "v1")))
	assert.Equal(t, "service_unavailable", ErrorType(NewServiceNotFoundError("users")))
	assert.Equal(t, "backend_unavailable", ErrorType(ErrBackendUnavail))
	assert.Equal(t, "timeout", ErrorType(fmt.Errorf("wrapped: %w", ErrTimeout)))
	assert.Equal(t, "internal", ErrorType(errors.New("boom")))
}
