package mcp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options configures a Dialer.
type Options struct {
	// ClientName and ClientVersion identify werkstatt in the MCP handshake.
	ClientName    string
	ClientVersion string

	// Transport is "streamable-http" (default) or "sse".
	Transport string

	// Headers are added to every request, e.g. a workspace header.
	Headers map[string]string

	// CallTimeout bounds a single tool call attempt. Default: 2m.
	CallTimeout time.Duration

	// MaxAttempts bounds attempts per tool call on transient transport
	// failures. Default: 1 (no retry).
	MaxAttempts int

	// HTTPClient is the base client. Its transport is wrapped with auth
	// and metrics; nil selects http.DefaultTransport.
	HTTPClient *http.Client

	// NewBackOff returns the retry schedule between attempts.
	// Default: exponential starting at 250ms.
	NewBackOff func() backoff.BackOff

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ClientName == "" {
		o.ClientName = "werkstatt"
	}
	if o.ClientVersion == "" {
		o.ClientVersion = "dev"
	}
	if o.Transport == "" {
		o.Transport = "streamable-http"
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 2 * time.Minute
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	if o.NewBackOff == nil {
		o.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}
