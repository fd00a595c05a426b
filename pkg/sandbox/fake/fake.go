// Package fake provides an in-memory sandbox.Backend for tests and
// offline development.
package fake

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rhuss/werkstatt/pkg/sandbox"
)

// Backend is an in-memory sandbox backend. Sandboxes become ready after
// PendingPolls lookups, which lets tests exercise readiness polling.
type Backend struct {
	// BaseURL is the URL prefix given to sandboxes; the sandbox name is
	// appended as a path segment unless URLFor is set.
	BaseURL string

	// URLFor overrides the URL of a sandbox.
	URLFor func(name string) string

	// PreviewURLFor overrides the URL of a preview.
	PreviewURLFor func(sandbox, preview string) string

	// PendingPolls is the number of GetSandbox calls a new sandbox stays
	// pending for.
	PendingPolls int

	// Fail, when set, is consulted before every operation; a non-nil
	// return value is returned as the operation's error.
	Fail func(op string) error

	mu        sync.Mutex
	sandboxes map[string]*entry
	previews  map[string]map[string]*sandbox.PreviewEndpoint
	calls     map[string]int
}

type entry struct {
	sb      sandbox.Sandbox
	pending int
}

var _ sandbox.Backend = (*Backend)(nil)

// New creates an empty fake backend.
func New() *Backend {
	return &Backend{
		BaseURL:   "http://sandbox.local",
		sandboxes: make(map[string]*entry),
		previews:  make(map[string]map[string]*sandbox.PreviewEndpoint),
		calls:     make(map[string]int),
	}
}

// Name returns "fake".
func (b *Backend) Name() string { return "fake" }

// Seed stores an existing sandbox.
func (b *Backend) Seed(sb sandbox.Sandbox) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sandboxes[sb.Name] = &entry{sb: sb}
}

// Calls returns how often op was invoked ("get_sandbox", "create_sandbox",
// "get_preview", "create_preview").
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// GetSandbox implements sandbox.Backend.
func (b *Backend) GetSandbox(ctx context.Context, name string) (*sandbox.Sandbox, error) {
	if err := b.begin(ctx, "get_sandbox"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.sandboxes[name]
	if !ok {
		return nil, fmt.Errorf("sandbox %q: %w", name, sandbox.ErrNotFound)
	}
	if e.pending > 0 {
		e.pending--
		if e.pending == 0 {
			e.sb.Status = sandbox.StatusReady
			e.sb.URL = b.urlFor(name)
		}
	}
	return cloneSandbox(e.sb), nil
}

// CreateSandbox implements sandbox.Backend.
func (b *Backend) CreateSandbox(ctx context.Context, d sandbox.Descriptor) (*sandbox.Sandbox, error) {
	if err := b.begin(ctx, "create_sandbox"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sandboxes[d.Name]; ok {
		return nil, fmt.Errorf("sandbox %q: %w", d.Name, sandbox.ErrAlreadyExists)
	}
	e := &entry{
		sb: sandbox.Sandbox{
			Name:     d.Name,
			Image:    d.Image,
			MemoryMB: d.MemoryMB,
			Ports:    slices.Clone(d.Ports),
			Status:   sandbox.StatusReady,
			URL:      b.urlFor(d.Name),
		},
		pending: b.PendingPolls,
	}
	if e.pending > 0 {
		e.sb.Status = sandbox.StatusPending
		e.sb.URL = ""
	}
	b.sandboxes[d.Name] = e
	return cloneSandbox(e.sb), nil
}

// GetPreview implements sandbox.Backend.
func (b *Backend) GetPreview(ctx context.Context, sandboxName, preview string) (*sandbox.PreviewEndpoint, error) {
	if err := b.begin(ctx, "get_preview"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	pv, ok := b.previews[sandboxName][preview]
	if !ok {
		return nil, fmt.Errorf("preview %q of sandbox %q: %w", preview, sandboxName, sandbox.ErrNotFound)
	}
	out := *pv
	out.ResponseHeaders = maps.Clone(pv.ResponseHeaders)
	return &out, nil
}

// CreatePreview implements sandbox.Backend.
func (b *Backend) CreatePreview(ctx context.Context, sandboxName string, spec sandbox.PreviewSpec) (*sandbox.PreviewEndpoint, error) {
	if err := b.begin(ctx, "create_preview"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sandboxes[sandboxName]; !ok {
		return nil, fmt.Errorf("sandbox %q: %w", sandboxName, sandbox.ErrNotFound)
	}
	if _, ok := b.previews[sandboxName][spec.Name]; ok {
		return nil, fmt.Errorf("preview %q: %w", spec.Name, sandbox.ErrAlreadyExists)
	}
	if b.previews[sandboxName] == nil {
		b.previews[sandboxName] = make(map[string]*sandbox.PreviewEndpoint)
	}

	url := fmt.Sprintf("https://%s-%s.preview.local", spec.Name, sandboxName)
	if b.PreviewURLFor != nil {
		url = b.PreviewURLFor(sandboxName, spec.Name)
	}
	pv := &sandbox.PreviewEndpoint{
		Name:            spec.Name,
		Port:            spec.Port,
		Public:          spec.Public,
		URL:             url,
		ResponseHeaders: maps.Clone(spec.ResponseHeaders),
	}
	b.previews[sandboxName][spec.Name] = pv

	out := *pv
	out.ResponseHeaders = maps.Clone(pv.ResponseHeaders)
	return &out, nil
}

func (b *Backend) begin(ctx context.Context, op string) error {
	b.mu.Lock()
	b.calls[op]++
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Fail != nil {
		return b.Fail(op)
	}
	return nil
}

func (b *Backend) urlFor(name string) string {
	if b.URLFor != nil {
		return b.URLFor(name)
	}
	return b.BaseURL + "/" + name
}

func cloneSandbox(sb sandbox.Sandbox) *sandbox.Sandbox {
	sb.Ports = slices.Clone(sb.Ports)
	return &sb
}
