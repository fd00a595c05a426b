// Package mcp implements the tool gateway session over the Model Context
// Protocol, using the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk).
//
// A Dialer opens one streamable-HTTP session per sandbox. Every request
// carries the caller's bearer token; the token is never read from
// anywhere but the Dial arguments. Discovered tool schemas are normalized
// with tools.NormalizeSchema before they leave the package, and tool
// failures are reported as *api.ToolInvocationError so the control loop
// can feed them back to the model.
package mcp
