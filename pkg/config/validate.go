package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rhuss/werkstatt/pkg/api"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Sandbox.Name) == "" {
		errs = append(errs, fmt.Errorf("sandbox.name is required"))
	}
	if c.Sandbox.MemoryMB <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.memory_mb must be > 0, got %d", c.Sandbox.MemoryMB))
	}
	for i, p := range c.Sandbox.Ports {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("sandbox.ports[%d].name is required", i))
		}
		if p.Target <= 0 || p.Target > 65535 {
			errs = append(errs, fmt.Errorf("sandbox.ports[%d].target must be in 1..65535, got %d", i, p.Target))
		}
	}

	switch c.Sandbox.Backend {
	case "controlplane":
		if c.Sandbox.APIURL == "" {
			errs = append(errs, fmt.Errorf("sandbox.api_url is required when sandbox.backend is \"controlplane\""))
		}
	case "kubernetes":
		if c.Kubernetes.Template == "" {
			errs = append(errs, fmt.Errorf("kubernetes.template is required when sandbox.backend is \"kubernetes\""))
		}
		if c.Kubernetes.GatewayPort <= 0 {
			errs = append(errs, fmt.Errorf("kubernetes.gateway_port must be > 0, got %d", c.Kubernetes.GatewayPort))
		}
	default:
		errs = append(errs, fmt.Errorf("sandbox.backend must be \"controlplane\" or \"kubernetes\", got %q", c.Sandbox.Backend))
	}

	if c.Preview.Name == "" {
		errs = append(errs, fmt.Errorf("preview.name is required"))
	}
	if c.Preview.Port <= 0 {
		errs = append(errs, fmt.Errorf("preview.port must be > 0, got %d", c.Preview.Port))
	}

	if !strings.HasPrefix(c.Gateway.Path, "/") {
		errs = append(errs, fmt.Errorf("gateway.path must start with \"/\", got %q", c.Gateway.Path))
	}
	if c.Gateway.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.call_timeout must be > 0"))
	}
	if c.Gateway.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("gateway.max_attempts must be >= 1, got %d", c.Gateway.MaxAttempts))
	}

	switch c.Model.Provider {
	case "openai", "litellm":
		// valid
	default:
		errs = append(errs, fmt.Errorf("model.provider must be \"openai\" or \"litellm\", got %q", c.Model.Provider))
	}
	if c.Model.BaseURL == "" {
		errs = append(errs, fmt.Errorf("model.base_url is required"))
	}

	if c.Agent.MaxTurns <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_turns must be > 0, got %d", c.Agent.MaxTurns))
	}
	if c.Agent.MaxConsecutiveToolFailures <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_consecutive_tool_failures must be > 0, got %d", c.Agent.MaxConsecutiveToolFailures))
	}
	if c.Agent.MaxParallelTools <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_parallel_tools must be > 0, got %d", c.Agent.MaxParallelTools))
	}

	return errors.Join(errs...)
}

// ValidateCredentials checks that every credential a run needs is
// present. It returns an *api.Error of kind config naming all missing
// settings, so callers can fail before any network call.
func (c *Config) ValidateCredentials() error {
	var missing []string

	if c.Sandbox.Backend == "controlplane" && c.Sandbox.APIKey == "" {
		missing = append(missing, "sandbox.api_key (BL_API_KEY)")
	}
	if c.Gateway.Token == "" {
		missing = append(missing, "gateway.token (BL_API_KEY)")
	}
	if c.Model.Provider == "openai" && c.Model.APIKey == "" {
		missing = append(missing, "model.api_key (OPENAI_API_KEY)")
	}

	if len(missing) == 0 {
		return nil
	}
	return api.NewConfigError("missing credentials: " + strings.Join(missing, ", "))
}
