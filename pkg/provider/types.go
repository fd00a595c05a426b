package provider

import (
	"encoding/json"

	"github.com/rhuss/werkstatt/pkg/api"
)

// Capabilities declares what features the backend supports.
type Capabilities struct {
	// Streaming indicates whether the provider supports streaming responses.
	Streaming bool

	// ToolCalling indicates whether the provider supports function/tool calls.
	ToolCalling bool
}

// Request is the backend-facing request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message is one message in the backend's conversation format.
type Message struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool call entry in an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and arguments for a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is a tool definition offered to the model.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef holds a function definition for tool use.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Usage holds token counts of one request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// FinishReason says why the model stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
)

// Response is the backend's complete answer to one Request.
type Response struct {
	Model        string
	Text         string
	ToolCalls    []api.ToolCall
	FinishReason FinishReason
	Usage        Usage
}

// EventType classifies a streaming event from the backend.
type EventType int

const (
	EventTextDelta     EventType = iota // Incremental text content
	EventToolCallDelta                  // Incremental tool call arguments
	EventToolCallDone                   // Tool call complete
	EventDone                           // Stream finished
	EventError                          // Stream error
)

// Event is a single streaming event from the backend.
type Event struct {
	Type EventType

	// Delta contains incremental text or argument data.
	Delta string

	// ToolCallIndex identifies which tool call this event relates to.
	ToolCallIndex int

	// ToolCall is populated on EventToolCallDone.
	ToolCall *api.ToolCall

	// FinishReason is populated on EventDone.
	FinishReason FinishReason

	// Usage is populated on EventDone when the backend reports it.
	Usage *Usage

	// Err is populated on EventError.
	Err error
}
