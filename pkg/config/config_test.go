package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/werkstatt/pkg/api"
)

// clearEnv blanks every variable the loader reads so the host
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"WERKSTATT_CONFIG", "BL_API_KEY", "BLAXEL_API_KEY", "BL_WORKSPACE", "BLAXEL_WORKSPACE_ID",
		"OPENAI_API_KEY", "WERKSTATT_SANDBOX_BACKEND", "WERKSTATT_SANDBOX_NAME", "WERKSTATT_SANDBOX_IMAGE",
		"WERKSTATT_SANDBOX_API_URL", "WERKSTATT_SANDBOX_API_KEY", "WERKSTATT_GATEWAY_TOKEN",
		"WERKSTATT_GATEWAY_CALL_TIMEOUT", "WERKSTATT_MODEL_PROVIDER", "WERKSTATT_MODEL_BASE_URL",
		"WERKSTATT_MODEL_API_KEY", "WERKSTATT_MODEL", "WERKSTATT_MAX_TURNS", "WERKSTATT_KUBERNETES_NAMESPACE",
		"WERKSTATT_LOG_LEVEL", "WERKSTATT_DEBUG", "WERKSTATT_METRICS_TEXTFILE",
	} {
		t.Setenv(name, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Sandbox.Name != "my-nextjs-sandbox" {
		t.Errorf("default sandbox.name = %q, want \"my-nextjs-sandbox\"", cfg.Sandbox.Name)
	}
	if cfg.Sandbox.Image != "blaxel/nextjs:latest" {
		t.Errorf("default sandbox.image = %q, want \"blaxel/nextjs:latest\"", cfg.Sandbox.Image)
	}
	if cfg.Sandbox.MemoryMB != 4096 {
		t.Errorf("default sandbox.memory_mb = %d, want 4096", cfg.Sandbox.MemoryMB)
	}
	if len(cfg.Sandbox.Ports) != 1 || cfg.Sandbox.Ports[0].Target != 3000 {
		t.Errorf("default sandbox.ports = %+v, want one port targeting 3000", cfg.Sandbox.Ports)
	}
	if cfg.Preview.Name != "nextjs-app-preview" {
		t.Errorf("default preview.name = %q, want \"nextjs-app-preview\"", cfg.Preview.Name)
	}
	if cfg.Preview.Headers["Access-Control-Max-Age"] != "86400" {
		t.Errorf("default CORS max-age = %q, want \"86400\"", cfg.Preview.Headers["Access-Control-Max-Age"])
	}
	if cfg.Gateway.Path != "/mcp" {
		t.Errorf("default gateway.path = %q, want \"/mcp\"", cfg.Gateway.Path)
	}
	if cfg.Agent.MaxTurns != 50 {
		t.Errorf("default agent.max_turns = %d, want 50", cfg.Agent.MaxTurns)
	}
	if cfg.Agent.MaxConsecutiveToolFailures != 3 {
		t.Errorf("default agent.max_consecutive_tool_failures = %d, want 3", cfg.Agent.MaxConsecutiveToolFailures)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearEnv(t)
	yamlContent := `
sandbox:
  backend: kubernetes
  name: demo
  image: example/node:22
  memory_mb: 2048
  ports:
    - name: web
      target: 8080
      protocol: HTTP
kubernetes:
  namespace: agents
  template: node-template
  gateway_port: 9000
  preview_domain: preview.example.com
preview:
  name: web-preview
  port: 8080
gateway:
  token: tok-123
  call_timeout: 30s
  max_attempts: 3
model:
  provider: litellm
  base_url: http://localhost:4000
  model: anthropic/claude-sonnet-4-5
  model_mapping:
    sonnet: anthropic/claude-sonnet-4-5
agent:
  max_turns: 10
  max_parallel_tools: 2
logging:
  level: DEBUG
  subsystems: sandbox,engine
`

	cfg, err := Load(writeTemp(t, "config-*.yaml", yamlContent))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Sandbox.Backend != "kubernetes" {
		t.Errorf("sandbox.backend = %q, want \"kubernetes\"", cfg.Sandbox.Backend)
	}
	if cfg.Sandbox.MemoryMB != 2048 {
		t.Errorf("sandbox.memory_mb = %d, want 2048", cfg.Sandbox.MemoryMB)
	}
	if len(cfg.Sandbox.Ports) != 1 || cfg.Sandbox.Ports[0].Name != "web" {
		t.Errorf("sandbox.ports = %+v, want [web]", cfg.Sandbox.Ports)
	}
	if cfg.Kubernetes.Namespace != "agents" {
		t.Errorf("kubernetes.namespace = %q, want \"agents\"", cfg.Kubernetes.Namespace)
	}
	if cfg.Gateway.CallTimeout != 30*time.Second {
		t.Errorf("gateway.call_timeout = %v, want 30s", cfg.Gateway.CallTimeout)
	}
	if cfg.Model.ModelMapping["sonnet"] != "anthropic/claude-sonnet-4-5" {
		t.Errorf("model.model_mapping = %v", cfg.Model.ModelMapping)
	}
	if cfg.Agent.MaxTurns != 10 {
		t.Errorf("agent.max_turns = %d, want 10", cfg.Agent.MaxTurns)
	}
	// Unset fields keep their defaults.
	if cfg.Agent.MaxConsecutiveToolFailures != 3 {
		t.Errorf("agent.max_consecutive_tool_failures = %d, want 3", cfg.Agent.MaxConsecutiveToolFailures)
	}
	if cfg.Logging.Subsystems != "sandbox,engine" {
		t.Errorf("logging.subsystems = %q, want \"sandbox,engine\"", cfg.Logging.Subsystems)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	yamlContent := `
model:
  model: from-yaml
`
	t.Setenv("WERKSTATT_MODEL", "from-env")
	t.Setenv("WERKSTATT_MAX_TURNS", "7")
	t.Setenv("WERKSTATT_DEBUG", "all")

	cfg, err := Load(writeTemp(t, "config-*.yaml", yamlContent))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Model.Model != "from-env" {
		t.Errorf("model.model = %q, want \"from-env\"", cfg.Model.Model)
	}
	if cfg.Agent.MaxTurns != 7 {
		t.Errorf("agent.max_turns = %d, want 7", cfg.Agent.MaxTurns)
	}
	if cfg.Logging.Subsystems != "all" {
		t.Errorf("logging.subsystems = %q, want \"all\"", cfg.Logging.Subsystems)
	}
}

func TestLegacyEnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("BL_API_KEY", "bl-key")
	t.Setenv("BLAXEL_WORKSPACE_ID", "ws-1")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := Load(writeTemp(t, "config-*.yaml", ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Sandbox.APIKey != "bl-key" {
		t.Errorf("sandbox.api_key = %q, want \"bl-key\"", cfg.Sandbox.APIKey)
	}
	if cfg.Gateway.Token != "bl-key" {
		t.Errorf("gateway.token = %q, want sandbox key as fallback", cfg.Gateway.Token)
	}
	if cfg.Sandbox.Workspace != "ws-1" {
		t.Errorf("sandbox.workspace = %q, want \"ws-1\"", cfg.Sandbox.Workspace)
	}
	if cfg.Model.APIKey != "sk-openai" {
		t.Errorf("model.api_key = %q, want \"sk-openai\"", cfg.Model.APIKey)
	}
	if err := cfg.ValidateCredentials(); err != nil {
		t.Errorf("ValidateCredentials() = %v, want nil", err)
	}
}

func TestStructuredEnvWinsOverLegacy(t *testing.T) {
	clearEnv(t)
	t.Setenv("BL_API_KEY", "legacy")
	t.Setenv("WERKSTATT_SANDBOX_API_KEY", "structured")

	cfg, err := Load(writeTemp(t, "config-*.yaml", ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Sandbox.APIKey != "structured" {
		t.Errorf("sandbox.api_key = %q, want \"structured\"", cfg.Sandbox.APIKey)
	}
}

func TestFileReference(t *testing.T) {
	clearEnv(t)
	secretFile := writeTemp(t, "secret-*.txt", "  sk-from-file-123  \n")
	yamlContent := "model:\n  api_key_file: " + secretFile + "\ngateway:\n  token_file: " + secretFile + "\n"

	cfg, err := Load(writeTemp(t, "config-*.yaml", yamlContent))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model.APIKey != "sk-from-file-123" {
		t.Errorf("model.api_key = %q, want \"sk-from-file-123\"", cfg.Model.APIKey)
	}
	if cfg.Gateway.Token != "sk-from-file-123" {
		t.Errorf("gateway.token = %q, want \"sk-from-file-123\"", cfg.Gateway.Token)
	}
}

func TestFileReferenceMissingFile(t *testing.T) {
	clearEnv(t)
	yamlContent := "sandbox:\n  api_key_file: /nonexistent/secret\n"

	_, err := Load(writeTemp(t, "config-*.yaml", yamlContent))
	if err == nil {
		t.Fatal("expected error for missing secret file")
	}
	if !strings.Contains(err.Error(), "sandbox.api_key_file") {
		t.Errorf("error should name the field, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"empty name", func(c *Config) { c.Sandbox.Name = " " }, "sandbox.name is required"},
		{"zero memory", func(c *Config) { c.Sandbox.MemoryMB = 0 }, "sandbox.memory_mb"},
		{"bad port", func(c *Config) { c.Sandbox.Ports[0].Target = 70000 }, "sandbox.ports[0].target"},
		{"unknown backend", func(c *Config) { c.Sandbox.Backend = "docker" }, "sandbox.backend"},
		{"kubernetes without template", func(c *Config) {
			c.Sandbox.Backend = "kubernetes"
			c.Kubernetes.Template = ""
		}, "kubernetes.template"},
		{"relative gateway path", func(c *Config) { c.Gateway.Path = "mcp" }, "gateway.path"},
		{"unknown provider", func(c *Config) { c.Model.Provider = "vllm" }, "model.provider"},
		{"zero failure cap", func(c *Config) { c.Agent.MaxConsecutiveToolFailures = 0 }, "agent.max_consecutive_tool_failures"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateCredentialsMissing(t *testing.T) {
	cfg := Defaults()

	err := cfg.ValidateCredentials()
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if api.KindOf(err) != api.ErrorKindConfig {
		t.Errorf("KindOf = %q, want config", api.KindOf(err))
	}
	for _, want := range []string{"sandbox.api_key", "gateway.token", "model.api_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err.Error(), want)
		}
	}
}

func TestValidateCredentialsKubernetesNeedsNoAPIKey(t *testing.T) {
	cfg := Defaults()
	cfg.Sandbox.Backend = "kubernetes"
	cfg.Gateway.Token = "tok"
	cfg.Model.APIKey = "sk"

	if err := cfg.ValidateCredentials(); err != nil {
		t.Errorf("ValidateCredentials() = %v, want nil", err)
	}
}

func TestDiscoverConfigFileFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeTemp(t, "config-*.yaml", "")
	t.Setenv("WERKSTATT_CONFIG", path)

	if got := discoverConfigFile(""); got != path {
		t.Errorf("discoverConfigFile() = %q, want %q", got, path)
	}
	if got := discoverConfigFile("/explicit.yaml"); got != "/explicit.yaml" {
		t.Errorf("explicit path should win, got %q", got)
	}
}

func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		t.Fatalf("writing temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing temp file: %v", err)
	}
	return f.Name()
}
