// Package openai implements provider.Provider for the OpenAI Chat
// Completions API and any server that speaks it.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/werkstatt/pkg/provider"
	"github.com/rhuss/werkstatt/pkg/provider/openaicompat"
)

// Config holds configuration for the OpenAI provider adapter.
type Config struct {
	// BaseURL is the API URL (e.g., "https://api.openai.com").
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Timeout for non-streaming requests. Defaults to 120s.
	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider talks to an OpenAI-compatible endpoint.
type Provider struct {
	client *openaicompat.Client
}

// Ensure Provider implements provider.Provider at compile time.
var _ provider.Provider = (*Provider)(nil)

// New creates a new Provider. BaseURL is required.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: BaseURL is required")
	}
	return &Provider{
		client: openaicompat.NewClient(openaicompat.Options{
			Provider:   "openai",
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
			Logger:     cfg.Logger,
		}),
	}, nil
}

// Name returns "openai".
func (p *Provider) Name() string { return "openai" }

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
