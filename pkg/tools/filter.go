package tools

import (
	"strings"

	"github.com/rhuss/werkstatt/pkg/api"
)

// FilterResult holds the outcome of checking tool calls against the
// discovered capabilities.
type FilterResult struct {
	// Rejected contains unknown_tool results to feed back to the model,
	// keyed by the call's position in the request. Call IDs are not
	// unique enough to key on: backends may repeat them.
	Rejected map[int]ToolResult
}

// Allowed reports whether the call at index i names a discovered tool.
func (f FilterResult) Allowed(i int) bool {
	_, rejected := f.Rejected[i]
	return !rejected
}

// Filter checks each call against the set. Calls naming a tool that was
// not discovered are rejected with an unknown_tool result listing the
// available tools.
func (s *CapabilitySet) Filter(calls []api.ToolCall) FilterResult {
	var result FilterResult
	for i, call := range calls {
		if _, ok := s.Lookup(call.Name); ok {
			continue
		}
		if result.Rejected == nil {
			result.Rejected = make(map[int]ToolResult)
		}
		err := &api.ToolInvocationError{
			Kind:   api.ToolErrorUnknownTool,
			Tool:   call.Name,
			Detail: "tool is not available; available tools: " + strings.Join(s.order, ", "),
		}
		result.Rejected[i] = ResultFromError(call, "", err)
	}
	return result
}
