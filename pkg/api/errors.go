package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a fatal failure of a run.
type ErrorKind string

const (
	// ErrorKindConfig is a missing or invalid required setting. Raised
	// before any network call.
	ErrorKindConfig ErrorKind = "config"

	// ErrorKindProvision is a failure to create or look up the sandbox
	// or its preview endpoint.
	ErrorKindProvision ErrorKind = "provision"

	// ErrorKindDiscovery is a failure to connect to the tool gateway or
	// to enumerate its tools.
	ErrorKindDiscovery ErrorKind = "discovery"

	// ErrorKindModel is a failure of the model backend to produce a decision.
	ErrorKindModel ErrorKind = "model"

	// ErrorKindCanceled means the run was interrupted by its caller.
	ErrorKindCanceled ErrorKind = "canceled"

	// ErrorKindToolInvocation marks tool failures. A single failure is
	// fed back to the model; the run ends with this kind only once the
	// consecutive failure cap is reached.
	ErrorKindToolInvocation ErrorKind = "tool_invocation"
)

// Error is a classified, fatal error. Op names the operation that failed
// (e.g. "sandbox.ensure") and Err carries the underlying cause.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s error in %s: %s", e.Kind, e.Op, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigError creates an Error for a missing or invalid setting.
func NewConfigError(message string) *Error {
	return &Error{
		Kind:    ErrorKindConfig,
		Message: message,
	}
}

// NewProvisionError creates an Error for a failed provisioning operation.
func NewProvisionError(op string, err error) *Error {
	return &Error{
		Kind: ErrorKindProvision,
		Op:   op,
		Err:  err,
	}
}

// NewDiscoveryError creates an Error for a failed gateway connection or
// tool listing.
func NewDiscoveryError(op string, err error) *Error {
	return &Error{
		Kind: ErrorKindDiscovery,
		Op:   op,
		Err:  err,
	}
}

// NewModelError creates an Error for a model backend failure.
func NewModelError(message string, err error) *Error {
	return &Error{
		Kind:    ErrorKindModel,
		Message: message,
		Err:     err,
	}
}

// NewCanceledError creates an Error for a run interrupted during op.
func NewCanceledError(op string, err error) *Error {
	return &Error{
		Kind: ErrorKindCanceled,
		Op:   op,
		Err:  err,
	}
}

// ToolErrorKind classifies a failed tool invocation.
type ToolErrorKind string

const (
	// ToolErrorTransport means the request never produced a result: the
	// connection failed, the call timed out or the gateway answered with a
	// protocol error.
	ToolErrorTransport ToolErrorKind = "transport"

	// ToolErrorRejected means the tool ran and reported a failure.
	ToolErrorRejected ToolErrorKind = "tool_rejected"

	// ToolErrorUnknownTool means the model asked for a tool that was not
	// discovered on the gateway.
	ToolErrorUnknownTool ToolErrorKind = "unknown_tool"
)

// ToolInvocationError is a recoverable tool failure. The control loop
// feeds it back to the model as a tool result instead of aborting.
type ToolInvocationError struct {
	Kind   ToolErrorKind
	Tool   string
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *ToolInvocationError) Error() string {
	detail := e.Detail
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("tool %q failed (%s): %s", e.Tool, e.Kind, detail)
}

// Unwrap returns the underlying cause.
func (e *ToolInvocationError) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of err, or "" if err is not classified.
func KindOf(err error) ErrorKind {
	var te *ToolInvocationError
	if errors.As(err, &te) {
		return ErrorKindToolInvocation
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRecoverable reports whether err should be fed back to the model
// rather than terminating the run.
func IsRecoverable(err error) bool {
	var te *ToolInvocationError
	return errors.As(err, &te)
}
