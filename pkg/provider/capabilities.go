package provider

import "github.com/rhuss/werkstatt/pkg/api"

// ValidateCapabilities checks whether req can be served by a provider
// with caps. It returns a model error naming the unsupported feature.
func ValidateCapabilities(caps Capabilities, req *Request) error {
	if req.Stream && !caps.Streaming {
		return api.NewModelError("the configured provider does not support streaming responses", nil)
	}
	if len(req.Tools) > 0 && !caps.ToolCalling {
		return api.NewModelError("the configured provider does not support tool calling", nil)
	}
	return nil
}
