// Package provider defines the interface the agent loop uses to reach a
// language model backend. Adapters (openai, litellm) speak the backend's
// protocol internally; the loop only sees Request, Response and Event.
package provider
