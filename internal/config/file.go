package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vvoronin/routegw/internal/util"
)

// FileConfig is the top-level structure of a declarative gateway
// configuration file: runtime options plus route and service definitions.
type FileConfig struct {
	Gateway  Config          `yaml:"gateway" json:"gateway"`
	Routes   []RouteConfig   `yaml:"routes" json:"routes"`
	Services []ServiceConfig `yaml:"services" json:"services"`
}

// RouteConfig declares a single route binding. Optional fields are
// pointers so that "absent" and "explicit false/zero" are distinguishable
// during defaulting.
type RouteConfig struct {
	Pattern      string   `yaml:"pattern" json:"pattern"`
	Service      string   `yaml:"service" json:"service"`
	Method       string   `yaml:"method,omitempty" json:"method,omitempty"`
	Version      string   `yaml:"version,omitempty" json:"version,omitempty"`
	RequiresAuth *bool    `yaml:"requiresAuth,omitempty" json:"requiresAuth,omitempty"`
	LoadBalance  *bool    `yaml:"loadBalance,omitempty" json:"loadBalance,omitempty"`
	Retries      *int     `yaml:"retries,omitempty" json:"retries,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ServiceConfig declares a named service with its instances and an
// optional default balancing strategy.
type ServiceConfig struct {
	Name      string           `yaml:"name" json:"name"`
	Strategy  string           `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Instances []InstanceConfig `yaml:"instances" json:"instances"`
}

// InstanceConfig declares a single service instance.
type InstanceConfig struct {
	URL            string `yaml:"url" json:"url"`
	Weight         int    `yaml:"weight,omitempty" json:"weight,omitempty"`
	HealthCheckURL string `yaml:"healthCheckUrl,omitempty" json:"healthCheckUrl,omitempty"`
}

// LoadFile loads and parses a YAML gateway configuration file.
func LoadFile(path string) (*FileConfig, error) {
	if path == "" {
		return nil, util.NewConfigError("path", "config file path is empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, util.NewConfigError("path", fmt.Sprintf("config file does not exist: %s", path))
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, util.NewConfigError("path", fmt.Sprintf("config path is a directory: %s", path))
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	cfg.Gateway.Normalize()

	return &cfg, nil
}

// LoadAndValidateFile loads a YAML config file and validates it.
func LoadAndValidateFile(path string) (*FileConfig, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the file configuration.
func (c *FileConfig) Validate() error {
	if err := c.Gateway.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Services))
	for i, svc := range c.Services {
		if svc.Name == "" {
			return util.NewConfigError(fmt.Sprintf("services[%d].name", i), "service name is required")
		}
		if seen[svc.Name] {
			return util.NewConfigError(fmt.Sprintf("services[%d].name", i), fmt.Sprintf("duplicate service: %s", svc.Name))
		}
		seen[svc.Name] = true

		if len(svc.Instances) == 0 {
			return util.NewConfigError(fmt.Sprintf("services[%d].instances", i), "at least one instance is required")
		}
		for j, inst := range svc.Instances {
			if inst.URL == "" {
				return util.NewConfigError(fmt.Sprintf("services[%d].instances[%d].url", i, j), "instance url is required")
			}
			if inst.Weight < 0 {
				return util.NewConfigError(fmt.Sprintf("services[%d].instances[%d].weight", i, j), "weight must not be negative")
			}
		}
	}

	for i, rt := range c.Routes {
		if rt.Pattern == "" {
			return util.NewConfigError(fmt.Sprintf("routes[%d].pattern", i), "route pattern is required")
		}
		if rt.Service == "" {
			return util.NewConfigError(fmt.Sprintf("routes[%d].service", i), "route service is required")
		}
		if rt.Service != "" && len(c.Services) > 0 && !seen[rt.Service] {
			return util.NewConfigError(fmt.Sprintf("routes[%d].service", i), fmt.Sprintf("unknown service: %s", rt.Service))
		}
	}

	return nil
}
