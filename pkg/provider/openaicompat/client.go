package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/logging"
	"github.com/rhuss/werkstatt/pkg/observability"
	"github.com/rhuss/werkstatt/pkg/provider"
)

// Options configures a Client.
type Options struct {
	// Provider labels metrics and logs (e.g., "openai").
	Provider string

	BaseURL string
	APIKey  string

	// Timeout bounds non-streaming requests. Defaults to 120s. Streams
	// are bounded by their context only.
	Timeout time.Duration

	// HTTPClient supplies the base transport. Optional.
	HTTPClient *http.Client

	// ModelMapper transforms the model name before it is sent to the
	// backend. If nil, the model name is used as-is.
	ModelMapper func(string) string

	Logger *slog.Logger
}

// Client performs HTTP requests against an OpenAI-compatible Chat
// Completions backend.
type Client struct {
	provider    string
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	modelMapper func(string) string
	log         *slog.Logger
}

// NewClient creates a new Client for an OpenAI-compatible backend.
func NewClient(opts Options) *Client {
	// Accept base URLs with or without the /v1 suffix.
	baseURL := strings.TrimSuffix(strings.TrimRight(opts.BaseURL, "/"), "/v1")

	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Provider == "" {
		opts.Provider = "openai"
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var base http.RoundTripper
	if opts.HTTPClient != nil {
		base = opts.HTTPClient.Transport
	}

	return &Client{
		provider: opts.Provider,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: observability.InstrumentTransport(opts.Provider, base),
		},
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		modelMapper: opts.ModelMapper,
		log:         log,
	}
}

// Complete performs non-streaming inference against the Chat Completions endpoint.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req
	reqCopy.Stream = false
	model := c.mapModel(reqCopy.Model)
	reqCopy.Model = model

	start := time.Now()
	resp, err := c.complete(ctx, &reqCopy)
	c.record(model, start, err)
	if err != nil {
		return nil, err
	}
	c.recordUsage(model, &resp.Usage)
	return resp, nil
}

func (c *Client) complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	httpReq, err := c.newChatRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, api.NewModelError("failed to parse backend response", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, api.NewModelError("backend returned no choices", nil)
	}
	return TranslateResponse(&chatResp), nil
}

// Stream performs streaming inference against the Chat Completions endpoint.
// The returned channel is closed when the stream completes, errors, or the
// context is cancelled.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	reqCopy := *req
	reqCopy.Stream = true
	model := c.mapModel(reqCopy.Model)
	reqCopy.Model = model

	start := time.Now()
	httpReq, err := c.newChatRequest(ctx, &reqCopy)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	// A stream can legitimately outlive any fixed timeout; the context
	// controls its lifetime instead.
	streamClient := &http.Client{Transport: c.httpClient.Transport}

	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		mapped := MapNetworkError(err)
		c.record(model, start, mapped)
		return nil, mapped
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		mapped := MapHTTPError(httpResp)
		c.record(model, start, mapped)
		return nil, mapped
	}

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		res := ParseSSEStream(ctx, httpResp.Body, ch, c.log)
		c.record(model, start, res.Err)
		c.recordUsage(model, res.Usage)
		c.log.Debug("stream finished", "model", model, "finish_reason", res.FinishReason, "duration", time.Since(start))
	}()

	return ch, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) newChatRequest(ctx context.Context, req *provider.Request) (*http.Request, error) {
	body, err := json.Marshal(chatRequest(req))
	if err != nil {
		return nil, api.NewModelError("failed to marshal request", err)
	}
	if logging.TraceEnabled(c.log) {
		logging.Trace(c.log, "chat request", "body", logging.Truncate(string(body), 2000))
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewModelError("failed to create HTTP request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return httpReq, nil
}

func (c *Client) mapModel(model string) string {
	if c.modelMapper != nil {
		return c.modelMapper(model)
	}
	return model
}

func (c *Client) record(model string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.ProviderRequestsTotal.WithLabelValues(c.provider, model, status).Inc()
	observability.ProviderLatency.WithLabelValues(c.provider, model).Observe(time.Since(start).Seconds())
	if err != nil {
		c.log.Warn("model request failed", "model", model, "error", err)
	}
}

func (c *Client) recordUsage(model string, u *provider.Usage) {
	if u == nil {
		return
	}
	observability.ProviderTokensTotal.WithLabelValues(c.provider, model, "input").Add(float64(u.InputTokens))
	observability.ProviderTokensTotal.WithLabelValues(c.provider, model, "output").Add(float64(u.OutputTokens))
}
