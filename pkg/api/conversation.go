package api

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the model. Arguments is the
// raw JSON object produced by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Turn is a single entry of the conversation.
//
// Assistant turns carry text and/or ToolCalls. Tool turns carry the
// output of one call in Content, correlated by ToolCallID.
type Turn struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
	IsError    bool
}

// Conversation is the ordered, append-only history of a run.
type Conversation struct {
	turns []Turn
}

// NewConversation creates a conversation seeded with the given turns.
func NewConversation(turns ...Turn) *Conversation {
	c := &Conversation{}
	for _, t := range turns {
		c.Append(t)
	}
	return c
}

// Append adds a turn at the end of the conversation.
func (c *Conversation) Append(t Turn) {
	if len(t.ToolCalls) > 0 {
		t.ToolCalls = append([]ToolCall(nil), t.ToolCalls...)
	}
	c.turns = append(c.turns, t)
}

// Turns returns a copy of the history.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// PendingToolCalls returns the tool calls of the last assistant turn that
// have no matching tool turn yet.
func (c *Conversation) PendingToolCalls() []ToolCall {
	last := -1
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Role == RoleAssistant {
			last = i
			break
		}
	}
	if last < 0 {
		return nil
	}

	answered := make(map[string]bool)
	for _, t := range c.turns[last+1:] {
		if t.Role == RoleTool {
			answered[t.ToolCallID] = true
		}
	}

	var pending []ToolCall
	for _, tc := range c.turns[last].ToolCalls {
		if !answered[tc.ID] {
			pending = append(pending, tc)
		}
	}
	return pending
}
