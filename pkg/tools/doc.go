// Package tools defines the tool capability types used by the agent
// control loop and the contract a tool gateway session implements.
//
// A gateway is dialed once per run. Its capabilities are discovered once,
// normalized with NormalizeSchema and collected into a CapabilitySet that
// stays fixed for the rest of the run. Tool calls requested by the model
// are checked against that set with Filter before dispatch; calls for
// unknown tools become error results instead of network requests.
//
// The MCP implementation of Session lives in the mcp subpackage.
package tools
