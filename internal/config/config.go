// Package config provides configuration management for the gateway core.
// Runtime options come from a flat Config struct; routes and services can be
// declared in a YAML file loaded through LoadFile.
package config

import (
	"time"

	"github.com/vvoronin/routegw/internal/util"
)

// Default configuration values.
const (
	DefaultVersion             = "v1"
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = 1 * time.Second
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultHealthCheckTimeout  = 5 * time.Second
	DefaultRouteTimeout        = 30 * time.Second
	DefaultAdminAddr           = ":8081"
)

// Config holds all runtime settings for the gateway core.
type Config struct {
	// ServiceName identifies this gateway instance in logs and metrics.
	ServiceName string `json:"serviceName" yaml:"serviceName"`

	// Feature toggles
	EnableAnalytics     bool `json:"enableAnalytics" yaml:"enableAnalytics"`
	EnableLoadBalancing bool `json:"enableLoadBalancing" yaml:"enableLoadBalancing"`
	EnableVersioning    bool `json:"enableVersioning" yaml:"enableVersioning"`

	// Routing defaults
	DefaultVersion string `json:"defaultVersion" yaml:"defaultVersion"`

	// Retry settings surfaced to the calling transport; the core itself
	// only uses MaxRetries as the default for Route.Retries.
	MaxRetries int      `json:"maxRetries" yaml:"maxRetries"`
	RetryDelay Duration `json:"retryDelay" yaml:"retryDelay"`

	// Health check settings
	HealthCheckInterval Duration `json:"healthCheckInterval" yaml:"healthCheckInterval"`
	HealthCheckTimeout  Duration `json:"healthCheckTimeout" yaml:"healthCheckTimeout"`

	// Admin server settings
	AdminEnabled bool   `json:"adminEnabled" yaml:"adminEnabled"`
	AdminAddr    string `json:"adminAddr" yaml:"adminAddr"`

	// Observability - Logging
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFormat string `json:"logFormat" yaml:"logFormat"`
	LogOutput string `json:"logOutput" yaml:"logOutput"`

	// Observability - Metrics
	MetricsEnabled bool   `json:"metricsEnabled" yaml:"metricsEnabled"`
	MetricsPath    string `json:"metricsPath" yaml:"metricsPath"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:         "routegw",
		EnableAnalytics:     true,
		EnableLoadBalancing: true,
		EnableVersioning:    true,
		DefaultVersion:      DefaultVersion,
		MaxRetries:          DefaultMaxRetries,
		RetryDelay:          Duration(DefaultRetryDelay),
		HealthCheckInterval: Duration(DefaultHealthCheckInterval),
		HealthCheckTimeout:  Duration(DefaultHealthCheckTimeout),
		AdminEnabled:        true,
		AdminAddr:           DefaultAdminAddr,
		LogLevel:            "info",
		LogFormat:           "json",
		LogOutput:           "stdout",
		MetricsEnabled:      true,
		MetricsPath:         "/metrics",
	}
}

// Normalize fills zero values with defaults so a partially specified
// configuration behaves predictably.
func (c *Config) Normalize() {
	if c.DefaultVersion == "" {
		c.DefaultVersion = DefaultVersion
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = Duration(DefaultRetryDelay)
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = Duration(DefaultHealthCheckInterval)
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = Duration(DefaultHealthCheckTimeout)
	}
	if c.AdminAddr == "" {
		c.AdminAddr = DefaultAdminAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.LogOutput == "" {
		c.LogOutput = "stdout"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return util.NewConfigError("maxRetries", "must not be negative")
	}
	if c.RetryDelay < 0 {
		return util.NewConfigError("retryDelay", "must not be negative")
	}
	if c.HealthCheckInterval < 0 {
		return util.NewConfigError("healthCheckInterval", "must not be negative")
	}
	if c.HealthCheckTimeout < 0 {
		return util.NewConfigError("healthCheckTimeout", "must not be negative")
	}

	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return util.NewConfigError("logLevel", "must be one of debug, info, warn, error")
	}

	validFormats := map[string]bool{"": true, "json": true, "console": true}
	if !validFormats[c.LogFormat] {
		return util.NewConfigError("logFormat", "must be json or console")
	}

	return nil
}
