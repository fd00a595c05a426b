package sandbox

import "context"

// Backend is a sandbox hosting system.
//
// Get methods return an error wrapping ErrNotFound when the resource does
// not exist. Create methods return an error wrapping ErrAlreadyExists when
// a resource with the same name was created concurrently.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	GetSandbox(ctx context.Context, name string) (*Sandbox, error)
	CreateSandbox(ctx context.Context, d Descriptor) (*Sandbox, error)

	GetPreview(ctx context.Context, sandbox, preview string) (*PreviewEndpoint, error)
	CreatePreview(ctx context.Context, sandbox string, spec PreviewSpec) (*PreviewEndpoint, error)
}
