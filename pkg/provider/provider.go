package provider

import "context"

// Provider abstracts a language model backend. A Request carries the
// whole conversation and the available tools; the backend answers with
// text, tool calls, or both.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// They must not retry a submission on their own: a repeated request may
// repeat side effects of the tools it triggers.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "litellm").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() Capabilities

	// Complete performs non-streaming inference.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream performs streaming inference. The returned channel receives
	// Event values and is closed by the provider when the stream
	// completes or errors.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
