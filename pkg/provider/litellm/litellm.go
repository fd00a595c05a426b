// Package litellm implements provider.Provider for LiteLLM proxy servers.
// LiteLLM exposes an OpenAI-compatible Chat Completions API, so this adapter
// delegates all HTTP communication to the shared openaicompat.Client and adds
// model mapping, which lets provider-prefixed ids such as
// "anthropic/claude-sonnet-4" route through the proxy.
package litellm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/werkstatt/pkg/provider"
	"github.com/rhuss/werkstatt/pkg/provider/openaicompat"
)

// Config holds configuration for the LiteLLM provider adapter.
type Config struct {
	// BaseURL is the LiteLLM proxy URL (e.g., "http://localhost:4000").
	BaseURL string

	// APIKey for LiteLLM authentication (optional).
	APIKey string

	// Timeout for non-streaming requests. Defaults to 120s.
	Timeout time.Duration

	// ModelMapping maps requested model names to LiteLLM model identifiers.
	// For example: {"claude": "anthropic/claude-sonnet-4"}. Models not in
	// the map pass through unchanged.
	ModelMapping map[string]string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider implements provider.Provider for LiteLLM proxy servers.
type Provider struct {
	client *openaicompat.Client
}

// Ensure Provider implements provider.Provider at compile time.
var _ provider.Provider = (*Provider)(nil)

// New creates a new Provider with the given configuration.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("litellm: BaseURL is required")
	}

	opts := openaicompat.Options{
		Provider:   "litellm",
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
	}
	if len(cfg.ModelMapping) > 0 {
		mapping := cfg.ModelMapping
		opts.ModelMapper = func(model string) string {
			if mapped, ok := mapping[model]; ok {
				return mapped
			}
			return model
		}
	}

	return &Provider{client: openaicompat.NewClient(opts)}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "litellm"
}

// Capabilities returns what this provider supports.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true, ToolCalling: true}
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	return p.client.Complete(ctx, req)
}

// Stream implements provider.Provider.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	return p.client.Stream(ctx, req)
}

// Close releases provider resources.
func (p *Provider) Close() error {
	return p.client.Close()
}
