package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rhuss/werkstatt/pkg/observability"
	"github.com/rhuss/werkstatt/pkg/sandbox"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	APIKey    string
	Workspace string

	// RequestRate limits requests per second. Zero disables the limit.
	RequestRate float64

	// HTTPClient is the base client. Its transport is wrapped with
	// metrics; nil selects a client with a 30s timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client is a sandbox.Backend talking to the hosted control plane.
type Client struct {
	baseURL    string
	apiKey     string
	workspace  string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// Ensure Client implements sandbox.Backend at compile time.
var _ sandbox.Backend = (*Client)(nil)

// New creates a control plane client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("control plane base URL is required")
	}
	if opts.APIKey == "" {
		return nil, errors.New("control plane API key is required")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	var base http.RoundTripper
	if opts.HTTPClient != nil {
		*httpClient = *opts.HTTPClient
		base = opts.HTTPClient.Transport
	}
	httpClient.Transport = observability.InstrumentTransport("controlplane", base)

	limit := rate.Inf
	if opts.RequestRate > 0 {
		limit = rate.Limit(opts.RequestRate)
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		workspace:  opts.Workspace,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		log:        log,
	}, nil
}

// Name returns "controlplane".
func (c *Client) Name() string { return "controlplane" }

// GetSandbox implements sandbox.Backend.
func (c *Client) GetSandbox(ctx context.Context, name string) (*sandbox.Sandbox, error) {
	var res sandboxResource
	if err := c.do(ctx, http.MethodGet, "/sandboxes/"+url.PathEscape(name), nil, &res); err != nil {
		return nil, fmt.Errorf("get sandbox %q: %w", name, err)
	}
	return toSandbox(&res), nil
}

// CreateSandbox implements sandbox.Backend.
func (c *Client) CreateSandbox(ctx context.Context, d sandbox.Descriptor) (*sandbox.Sandbox, error) {
	req := &sandboxResource{
		Metadata: metadata{Name: d.Name},
		Spec: sandboxSpec{Runtime: runtimeSpec{
			Image:  d.Image,
			Memory: d.MemoryMB,
			Ports:  toPortSpecs(d.Ports),
		}},
	}
	var res sandboxResource
	if err := c.do(ctx, http.MethodPost, "/sandboxes", req, &res); err != nil {
		return nil, fmt.Errorf("create sandbox %q: %w", d.Name, err)
	}
	return toSandbox(&res), nil
}

// GetPreview implements sandbox.Backend.
func (c *Client) GetPreview(ctx context.Context, sandboxName, preview string) (*sandbox.PreviewEndpoint, error) {
	path := "/sandboxes/" + url.PathEscape(sandboxName) + "/previews/" + url.PathEscape(preview)
	var res previewResource
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, fmt.Errorf("get preview %q: %w", preview, err)
	}
	return toPreview(&res), nil
}

// CreatePreview implements sandbox.Backend.
func (c *Client) CreatePreview(ctx context.Context, sandboxName string, spec sandbox.PreviewSpec) (*sandbox.PreviewEndpoint, error) {
	req := &previewResource{
		Metadata: metadata{Name: spec.Name},
		Spec: previewSpec{
			Port:            spec.Port,
			Public:          spec.Public,
			ResponseHeaders: spec.ResponseHeaders,
		},
	}
	var res previewResource
	path := "/sandboxes/" + url.PathEscape(sandboxName) + "/previews"
	if err := c.do(ctx, http.MethodPost, path, req, &res); err != nil {
		return nil, fmt.Errorf("create preview %q: %w", spec.Name, err)
	}
	return toPreview(&res), nil
}

// do sends one request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	observability.RateLimitWaitSeconds.WithLabelValues("controlplane").Observe(time.Since(waitStart).Seconds())

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.workspace != "" {
		req.Header.Set(WorkspaceHeader, c.workspace)
	}

	c.log.Debug("control plane request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("control plane request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapHTTPError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// mapHTTPError converts an error response to an error wrapping the
// matching sandbox sentinel. Unlisted statuses stay transient.
func mapHTTPError(status int, body []byte) error {
	msg := extractErrorMessage(body)

	var sentinel error
	switch status {
	case http.StatusNotFound:
		sentinel = sandbox.ErrNotFound
	case http.StatusConflict:
		sentinel = sandbox.ErrAlreadyExists
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = sandbox.ErrUnauthorized
	case http.StatusPaymentRequired:
		sentinel = sandbox.ErrQuotaExceeded
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		sentinel = sandbox.ErrInvalid
	}

	if sentinel == nil {
		return fmt.Errorf("control plane returned HTTP %d: %s", status, msg)
	}
	return fmt.Errorf("%w: HTTP %d: %s", sentinel, status, msg)
}

func extractErrorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		if er.Message != "" {
			return er.Message
		}
		if er.Error != "" {
			return er.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
