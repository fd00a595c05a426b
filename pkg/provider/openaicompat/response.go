package openaicompat

import (
	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/provider"
)

// TranslateResponse converts a ChatCompletionResponse into a provider.Response.
// Only choices[0] is used.
func TranslateResponse(resp *ChatCompletionResponse) *provider.Response {
	pr := &provider.Response{Model: resp.Model}
	if resp.Usage != nil {
		pr.Usage = toUsage(resp.Usage)
	}

	if len(resp.Choices) == 0 {
		return pr
	}
	choice := resp.Choices[0]
	pr.FinishReason = provider.FinishReason(choice.FinishReason)
	pr.Text = ExtractContentString(choice.Message.Content)

	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = api.NewCallID()
		}
		pr.ToolCalls = append(pr.ToolCalls, api.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return pr
}

// ExtractContentString returns the message content if it is a plain string.
func ExtractContentString(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	return ""
}

func toUsage(u *ChatUsage) provider.Usage {
	return provider.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}
