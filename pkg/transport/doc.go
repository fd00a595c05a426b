// Package transport provides the HTTP middleware chain shared by
// werkstatt's local development servers (gateway-stub,
// mock-controlplane and mock-model).
//
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID) and structured request logging via log/slog. Chain
// composes them around any http.Handler:
//
//	h := transport.Chain(
//		transport.RequestID(),
//		transport.Logging(log),
//		transport.Recovery(log),
//	)(mux)
package transport
