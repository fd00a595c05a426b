package openaicompat

import "github.com/rhuss/werkstatt/pkg/provider"

// chatRequest builds the /v1/chat/completions body for req. Streaming
// requests ask for usage in the final chunk.
func chatRequest(req *provider.Request) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      req.Stream,
		Messages:    make([]ChatMessage, 0, len(req.Messages)),
	}
	if req.Stream {
		cr.StreamOptions = &ChatStreamOptions{IncludeUsage: true}
	}
	for _, m := range req.Messages {
		cr.Messages = append(cr.Messages, chatMessage(m))
	}
	for _, t := range req.Tools {
		cr.Tools = append(cr.Tools, ChatTool{
			Type:     t.Type,
			Function: ChatFunctionDef(t.Function),
		})
	}
	return cr
}

func chatMessage(m provider.Message) ChatMessage {
	cm := ChatMessage{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
	for _, tc := range m.ToolCalls {
		cm.ToolCalls = append(cm.ToolCalls, ChatToolCall{
			ID:       tc.ID,
			Type:     tc.Type,
			Function: ChatFunctionCall(tc.Function),
		})
	}
	return cm
}
