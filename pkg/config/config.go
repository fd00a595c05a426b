// Package config provides unified configuration for werkstatt.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (WERKSTATT_ prefix)
//  4. Legacy env var mapping (BL_API_KEY, OPENAI_API_KEY, ...)
//  5. File reference resolution (_file suffix fields)
//  6. Validation
//
// Credentials are checked separately by ValidateCredentials so that the
// CLI can report a ConfigError before touching the network.
package config

import (
	"time"

	"github.com/rhuss/werkstatt/pkg/logging"
)

// Config holds all configuration for a werkstatt run.
type Config struct {
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Kubernetes    KubernetesConfig    `yaml:"kubernetes"`
	Preview       PreviewConfig       `yaml:"preview"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Model         ModelConfig         `yaml:"model"`
	Agent         AgentConfig         `yaml:"agent"`
	Logging       logging.Settings    `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// SandboxConfig describes the sandbox to create or reuse and the
// provisioning backend that hosts it.
type SandboxConfig struct {
	Backend       string        `yaml:"backend"` // "controlplane" or "kubernetes", default: "controlplane"
	Name          string        `yaml:"name"`
	Image         string        `yaml:"image"`
	MemoryMB      int           `yaml:"memory_mb"`
	Ports         []PortConfig  `yaml:"ports"`
	APIURL        string        `yaml:"api_url"`
	APIKey        string        `yaml:"api_key"`
	APIKeyFile    string        `yaml:"api_key_file"` // _file variant for api_key
	Workspace     string        `yaml:"workspace"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`  // default: 3m
	RequestRate   float64       `yaml:"request_rate"`   // requests per second towards api_url, default: 5
	RetryAttempts int           `yaml:"retry_attempts"` // transient failure retries, default: 3
}

// PortConfig declares one internal sandbox port.
type PortConfig struct {
	Name     string `yaml:"name"`
	Target   int    `yaml:"target"`
	Protocol string `yaml:"protocol"`
}

// KubernetesConfig holds settings for the agent-sandbox backend.
type KubernetesConfig struct {
	Namespace     string `yaml:"namespace"` // default: "default"
	Template      string `yaml:"template"`  // SandboxTemplate name, default: "werkstatt-nextjs"
	GatewayPort   int    `yaml:"gateway_port"`
	PreviewDomain string `yaml:"preview_domain"`
	Context       string `yaml:"context"` // kubeconfig context, empty means current
}

// PreviewConfig describes the public preview endpoint.
type PreviewConfig struct {
	Name    string            `yaml:"name"`
	Port    int               `yaml:"port"`
	Public  bool              `yaml:"public"`
	Headers map[string]string `yaml:"headers"` // response headers, CORS policy
}

// GatewayConfig holds tool gateway settings.
type GatewayConfig struct {
	Path        string        `yaml:"path"` // default: "/mcp"
	Token       string        `yaml:"token"`
	TokenFile   string        `yaml:"token_file"`   // _file variant for token
	CallTimeout time.Duration `yaml:"call_timeout"` // default: 2m
	MaxAttempts int           `yaml:"max_attempts"` // default: 2
}

// ModelConfig holds model backend settings.
type ModelConfig struct {
	Provider     string            `yaml:"provider"` // "openai" or "litellm", default: "openai"
	BaseURL      string            `yaml:"base_url"`
	APIKey       string            `yaml:"api_key"`
	APIKeyFile   string            `yaml:"api_key_file"` // _file variant for api_key
	Model        string            `yaml:"model"`
	MaxTokens    int               `yaml:"max_tokens"`
	Timeout      time.Duration     `yaml:"timeout"`
	ModelMapping map[string]string `yaml:"model_mapping"` // litellm only
}

// AgentConfig bounds the control loop.
type AgentConfig struct {
	MaxTurns                   int    `yaml:"max_turns"`                     // default: 50
	MaxConsecutiveToolFailures int    `yaml:"max_consecutive_tool_failures"` // default: 3
	MaxParallelTools           int    `yaml:"max_parallel_tools"`            // default: 4
	ProjectDir                 string `yaml:"project_dir"`                   // default: "/blaxel/app"
	Instructions               string `yaml:"instructions"`                  // text/template, empty selects the built-in one
	SystemPrompt               string `yaml:"system_prompt"`
}

// ObservabilityConfig holds instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics settings. The CLI is short
// lived, so metrics are written to a textfile at exit instead of served.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Sandbox: SandboxConfig{
			Backend:  "controlplane",
			Name:     "my-nextjs-sandbox",
			Image:    "blaxel/nextjs:latest",
			MemoryMB: 4096,
			Ports: []PortConfig{
				{Name: "preview", Target: 3000, Protocol: "HTTP"},
			},
			APIURL:        "https://api.blaxel.ai/v0",
			ReadyTimeout:  3 * time.Minute,
			RequestRate:   5,
			RetryAttempts: 3,
		},
		Kubernetes: KubernetesConfig{
			Namespace:   "default",
			Template:    "werkstatt-nextjs",
			GatewayPort: 8080,
		},
		Preview: PreviewConfig{
			Name:   "nextjs-app-preview",
			Port:   3000,
			Public: true,
			Headers: map[string]string{
				"Access-Control-Allow-Origin":      "*",
				"Access-Control-Allow-Methods":     "GET, POST, PUT, DELETE, OPTIONS, PATCH",
				"Access-Control-Allow-Headers":     "Content-Type, Authorization, X-Requested-With",
				"Access-Control-Allow-Credentials": "true",
				"Access-Control-Max-Age":           "86400",
				"Vary":                             "Origin",
			},
		},
		Gateway: GatewayConfig{
			Path:        "/mcp",
			CallTimeout: 2 * time.Minute,
			MaxAttempts: 2,
		},
		Model: ModelConfig{
			Provider:  "openai",
			BaseURL:   "https://api.openai.com",
			Model:     "gpt-4.1",
			MaxTokens: 4096,
			Timeout:   120 * time.Second,
		},
		Agent: AgentConfig{
			MaxTurns:                   50,
			MaxConsecutiveToolFailures: 3,
			MaxParallelTools:           4,
			ProjectDir:                 "/blaxel/app",
		},
		Logging: logging.Settings{
			Level: "INFO",
		},
	}
}
