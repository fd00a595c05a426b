// Package openaicompat provides shared code for any OpenAI-compatible
// Chat Completions backend: request serialization, response parsing, SSE
// chunk streaming with tool call argument buffering, and error mapping.
//
// Provider adapters (openai, litellm) wrap the Client from this package.
package openaicompat
