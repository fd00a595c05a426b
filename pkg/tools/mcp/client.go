package mcp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rhuss/werkstatt/pkg/observability"
	"github.com/rhuss/werkstatt/pkg/tools"
)

// Dialer opens MCP gateway sessions.
type Dialer struct {
	opts Options
}

// Ensure Dialer implements tools.Dialer at compile time.
var _ tools.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer with the given options.
func NewDialer(opts Options) *Dialer {
	return &Dialer{opts: opts.withDefaults()}
}

// Dial connects to the gateway at endpoint, authenticating every request
// with token, and performs the MCP handshake.
func (d *Dialer) Dial(ctx context.Context, endpoint, token string) (tools.Session, error) {
	transport, err := d.createTransport(endpoint, token)
	if err != nil {
		return nil, err
	}
	return d.Connect(ctx, transport)
}

// Connect performs the MCP handshake over an existing transport. Tests use
// it with in-memory transports.
func (d *Dialer) Connect(ctx context.Context, transport mcp.Transport) (*Session, error) {
	client := mcp.NewClient(
		&mcp.Implementation{
			Name:    d.opts.ClientName,
			Version: d.opts.ClientVersion,
		},
		&mcp.ClientOptions{
			Capabilities: &mcp.ClientCapabilities{},
		},
	)

	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to tool gateway: %w", err)
	}

	observability.GatewaySessionsActive.Inc()
	d.opts.Logger.Debug("gateway session opened")
	return newSession(cs, d.opts), nil
}

// createTransport creates an MCP transport for endpoint.
func (d *Dialer) createTransport(endpoint, token string) (mcp.Transport, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("gateway endpoint is empty")
	}
	if token == "" {
		return nil, fmt.Errorf("gateway token is empty")
	}

	httpClient := d.buildHTTPClient(token)

	switch d.opts.Transport {
	case "sse":
		return &mcp.SSEClientTransport{
			Endpoint:   endpoint,
			HTTPClient: httpClient,
		}, nil

	case "streamable-http":
		return &mcp.StreamableClientTransport{
			Endpoint:   endpoint,
			HTTPClient: httpClient,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported transport type %q", d.opts.Transport)
	}
}

// buildHTTPClient returns an HTTP client whose transport chain is
// auth headers -> metrics -> base transport.
func (d *Dialer) buildHTTPClient(token string) *http.Client {
	var base http.RoundTripper
	client := &http.Client{}
	if d.opts.HTTPClient != nil {
		*client = *d.opts.HTTPClient
		base = d.opts.HTTPClient.Transport
	}

	client.Transport = &authAwareTransport{
		base:         observability.InstrumentTransport("gateway", base),
		headers:      d.opts.Headers,
		authProvider: &BearerAuth{Token: token},
	}
	return client
}
