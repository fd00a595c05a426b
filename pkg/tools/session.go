package tools

import (
	"context"
	"errors"

	"github.com/rhuss/werkstatt/pkg/api"
)

// Session is an open, authenticated connection to a tool gateway.
type Session interface {
	// DiscoverTools enumerates the gateway's tools. Every returned
	// capability carries a normalized parameter schema.
	DiscoverTools(ctx context.Context) ([]Capability, error)

	// Invoke calls one tool and returns its text output. Failures are
	// reported as *api.ToolInvocationError.
	Invoke(ctx context.Context, call api.ToolCall) (string, error)

	// Close releases the underlying transport. Calls after the first
	// are no-ops.
	Close() error
}

// Dialer opens gateway sessions.
type Dialer interface {
	Dial(ctx context.Context, endpoint, token string) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, endpoint, token string) (Session, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, endpoint, token string) (Session, error) {
	return f(ctx, endpoint, token)
}

// ToolResult is the outcome of one tool call, ready to be appended to
// the conversation.
type ToolResult struct {
	// CallID matches the originating api.ToolCall.ID.
	CallID string

	// Name is the tool that was called.
	Name string

	// Output is the tool output, or the error message when IsError is set.
	Output string

	IsError   bool
	ErrorKind api.ToolErrorKind
}

// ResultFromError turns the outcome of Session.Invoke into a ToolResult.
// Errors that are not tool invocation errors are classified as transport
// failures.
func ResultFromError(call api.ToolCall, output string, err error) ToolResult {
	if err == nil {
		return ToolResult{CallID: call.ID, Name: call.Name, Output: output}
	}

	kind := api.ToolErrorTransport
	var te *api.ToolInvocationError
	if errors.As(err, &te) {
		kind = te.Kind
	}
	return ToolResult{
		CallID:    call.ID,
		Name:      call.Name,
		Output:    err.Error(),
		IsError:   true,
		ErrorKind: kind,
	}
}
