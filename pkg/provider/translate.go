package provider

import (
	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/tools"
)

// BuildMessages converts conversation turns to backend messages.
func BuildMessages(turns []api.Turn) []Message {
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		m := Message{Role: string(t.Role)}
		switch t.Role {
		case api.RoleAssistant:
			// Assistant turns that only carry tool calls send null content.
			if t.Content != "" {
				m.Content = t.Content
			}
			for _, tc := range t.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, ToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		case api.RoleTool:
			m.Content = t.Content
			m.ToolCallID = t.ToolCallID
		default:
			m.Content = t.Content
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// BuildTools converts discovered capabilities to tool definitions. The
// capability schemas are expected to be normalized already.
func BuildTools(caps []tools.Capability) []Tool {
	out := make([]Tool, 0, len(caps))
	for _, c := range caps {
		out = append(out, Tool{
			Type: "function",
			Function: FunctionDef{
				Name:        c.Name,
				Description: c.Description,
				Parameters:  c.Parameters,
			},
		})
	}
	return out
}
