// Package util provides shared utility types for the gateway core.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNotFound.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., ConfigError, RouteNotFoundError). Each
//     type implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
package util

import (
	"errors"
	"fmt"
	"time"
)

// Common sentinel errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrTimeout        = errors.New("timeout")
	ErrBackendUnavail = errors.New("backend unavailable")
	ErrConfigInvalid  = errors.New("invalid configuration")
)

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Fields  map[string]string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s (fields: %v)", e.Message, e.Fields)
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	if target == ErrInvalidInput {
		return true
	}
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message, Fields: make(map[string]string)}
}

// AddField adds a field error.
func (e *ValidationError) AddField(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// RouteNotFoundError indicates no registered route matched a request.
type RouteNotFoundError struct {
	Method  string
	Path    string
	Version string
}

// Error implements the error interface.
func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("no route found for %s %s (version %s)", e.Method, e.Path, e.Version)
}

// Is checks if the error matches the target.
func (e *RouteNotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	_, ok := target.(*RouteNotFoundError)
	return ok
}

// NewRouteNotFoundError creates a new RouteNotFoundError.
func NewRouteNotFoundError(method, path, version string) *RouteNotFoundError {
	return &RouteNotFoundError{Method: method, Path: path, Version: version}
}

// ServiceNotFoundError indicates a named service has no registered instances.
type ServiceNotFoundError struct {
	Service string
}

// Error implements the error interface.
func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("service not registered: %s", e.Service)
}

// Is checks if the error matches the target.
func (e *ServiceNotFoundError) Is(target error) bool {
	if target == ErrNotFound || target == ErrBackendUnavail {
		return true
	}
	_, ok := target.(*ServiceNotFoundError)
	return ok
}

// NewServiceNotFoundError creates a new ServiceNotFoundError.
func NewServiceNotFoundError(service string) *ServiceNotFoundError {
	return &ServiceNotFoundError{Service: service}
}

// ProbeError represents a failed health probe against an instance.
type ProbeError struct {
	Instance string
	Status   int
	Cause    error
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("health probe failed for %s: %v", e.Instance, e.Cause)
	}
	return fmt.Sprintf("health probe failed for %s: status %d", e.Instance, e.Status)
}

// Unwrap returns the underlying error.
func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ProbeError) Is(target error) bool {
	if target == ErrBackendUnavail {
		return true
	}
	_, ok := target.(*ProbeError)
	return ok || errors.Is(e.Cause, target)
}

// TimeoutError represents a timeout error.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
	Cause     error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %v during %s", e.Duration, e.Operation)
}

// Unwrap returns the underlying error.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if target == ErrTimeout {
		return true
	}
	_, ok := target.(*TimeoutError)
	return ok || errors.Is(e.Cause, target)
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{Operation: operation, Duration: duration}
}

// ErrorType classifies an error into a stable bucket name used by the
// analytics recorder and metrics labels.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return "timeout"
	}

	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return "probe_failure"
	}

	var routeErr *RouteNotFoundError
	if errors.As(err, &routeErr) {
		return "route_not_found"
	}

	var svcErr *ServiceNotFoundError
	if errors.As(err, &svcErr) {
		return "service_unavailable"
	}

	if errors.Is(err, ErrBackendUnavail) {
		return "backend_unavailable"
	}

	if errors.Is(err, ErrTimeout) {
		return "timeout"
	}

	return "internal"
}
