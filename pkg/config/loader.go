package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, WERKSTATT_CONFIG env, ./werkstatt.yaml, /etc/werkstatt/config.yaml)
//  3. Environment variable overrides, including legacy names
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// The gateway accepts the same credential as the provisioning API
	// unless a dedicated token is configured.
	if cfg.Gateway.Token == "" {
		cfg.Gateway.Token = cfg.Sandbox.APIKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. WERKSTATT_CONFIG environment variable
// 3. ./werkstatt.yaml in the current directory
// 4. /etc/werkstatt/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("WERKSTATT_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"werkstatt.yaml",
		"/etc/werkstatt/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields.
// WERKSTATT_* names win over the legacy names used by the Blaxel tooling.
func applyEnvOverrides(cfg *Config) {
	// Legacy names first so the structured names can override them.
	if v := firstEnv("BL_API_KEY", "BLAXEL_API_KEY"); v != "" {
		cfg.Sandbox.APIKey = v
	}
	if v := firstEnv("BL_WORKSPACE", "BLAXEL_WORKSPACE_ID"); v != "" {
		cfg.Sandbox.Workspace = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}

	if v := os.Getenv("WERKSTATT_SANDBOX_BACKEND"); v != "" {
		cfg.Sandbox.Backend = v
	}
	if v := os.Getenv("WERKSTATT_SANDBOX_NAME"); v != "" {
		cfg.Sandbox.Name = v
	}
	if v := os.Getenv("WERKSTATT_SANDBOX_IMAGE"); v != "" {
		cfg.Sandbox.Image = v
	}
	if v := os.Getenv("WERKSTATT_SANDBOX_API_URL"); v != "" {
		cfg.Sandbox.APIURL = v
	}
	if v := os.Getenv("WERKSTATT_SANDBOX_API_KEY"); v != "" {
		cfg.Sandbox.APIKey = v
	}
	if v := os.Getenv("WERKSTATT_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	if v := os.Getenv("WERKSTATT_GATEWAY_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Gateway.CallTimeout = d
		}
	}
	if v := os.Getenv("WERKSTATT_MODEL_PROVIDER"); v != "" {
		cfg.Model.Provider = v
	}
	if v := os.Getenv("WERKSTATT_MODEL_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("WERKSTATT_MODEL_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("WERKSTATT_MODEL"); v != "" {
		cfg.Model.Model = v
	}
	if v := os.Getenv("WERKSTATT_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxTurns = n
		}
	}
	if v := os.Getenv("WERKSTATT_KUBERNETES_NAMESPACE"); v != "" {
		cfg.Kubernetes.Namespace = v
	}
	if v := os.Getenv("WERKSTATT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WERKSTATT_DEBUG"); v != "" {
		cfg.Logging.Subsystems = v
	}
	if v := os.Getenv("WERKSTATT_METRICS_TEXTFILE"); v != "" {
		cfg.Observability.Metrics.Textfile = v
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		field string
		file  string
		value *string
	}{
		{"sandbox.api_key_file", cfg.Sandbox.APIKeyFile, &cfg.Sandbox.APIKey},
		{"gateway.token_file", cfg.Gateway.TokenFile, &cfg.Gateway.Token},
		{"model.api_key_file", cfg.Model.APIKeyFile, &cfg.Model.APIKey},
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.field, err)
		}
		*ref.value = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
