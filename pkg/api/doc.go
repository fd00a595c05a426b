// Package api defines the types shared by every werkstatt component.
//
// It holds the error taxonomy used across the run ([Error],
// [ToolInvocationError]), the append-only conversation state handed to the
// model backend ([Conversation]), the output event variants produced by the
// agent control loop ([Event]) and identifier generation.
//
// Events are a closed set of concrete types. Consumers switch on the
// dynamic type instead of probing optional fields:
//
//	switch ev := ev.(type) {
//	case api.TextFragment:
//	case api.ToolCallRequested:
//	case api.ToolResult:
//	case api.Completion:
//	case api.Failure:
//	}
//
// The package performs no I/O.
package api
