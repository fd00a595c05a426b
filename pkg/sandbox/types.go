package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

// Port is an internal sandbox port.
type Port struct {
	Name     string `json:"name"`
	Target   int    `json:"target"`
	Protocol string `json:"protocol"`
}

// Descriptor describes the sandbox a run needs. Name is the idempotency key.
type Descriptor struct {
	Name     string
	Image    string
	MemoryMB int
	Ports    []Port
}

// Validate checks the descriptor's input constraints.
func (d Descriptor) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("sandbox name is required"))
	}
	if d.Image == "" {
		errs = append(errs, errors.New("sandbox image is required"))
	}
	if d.MemoryMB <= 0 {
		errs = append(errs, fmt.Errorf("sandbox memory must be > 0, got %d", d.MemoryMB))
	}
	seen := make(map[string]bool, len(d.Ports))
	for i, p := range d.Ports {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("port %d: name is required", i))
		} else if seen[p.Name] {
			errs = append(errs, fmt.Errorf("port %d: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
		if p.Target <= 0 || p.Target > 65535 {
			errs = append(errs, fmt.Errorf("port %q: target must be in 1..65535, got %d", p.Name, p.Target))
		}
	}
	return errors.Join(errs...)
}

// Status is the lifecycle state reported by a backend.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Sandbox is a sandbox as reported by a backend.
type Sandbox struct {
	Name     string
	Image    string
	MemoryMB int
	Ports    []Port

	// URL is the sandbox's base network address. It may be empty until
	// the sandbox is ready.
	URL    string
	Status Status
}

// HasPort reports whether the sandbox declares a port with target.
func (s *Sandbox) HasPort(target int) bool {
	for _, p := range s.Ports {
		if p.Target == target {
			return true
		}
	}
	return false
}

// PreviewSpec describes a public preview endpoint. Name is the
// idempotency key within a sandbox.
type PreviewSpec struct {
	Name            string
	Port            int
	Public          bool
	ResponseHeaders map[string]string
}

// Validate checks the preview spec's input constraints.
func (p PreviewSpec) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, errors.New("preview name is required"))
	}
	if p.Port <= 0 || p.Port > 65535 {
		errs = append(errs, fmt.Errorf("preview port must be in 1..65535, got %d", p.Port))
	}
	return errors.Join(errs...)
}

// PreviewEndpoint is a public URL bound to one sandbox port. It is
// informational and read-only after creation.
type PreviewEndpoint struct {
	Name            string
	Port            int
	Public          bool
	URL             string
	ResponseHeaders map[string]string
}

// Handle is a ready sandbox returned by Provisioner.Ensure.
type Handle struct {
	Name    string
	URL     string
	Image   string
	Ports   []Port
	Backend string
}

// Endpoint derives the URL of a service inside the sandbox, such as the
// tool gateway at "/mcp".
func (h *Handle) Endpoint(path string) string {
	if path == "" {
		return h.URL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(h.URL, "/") + path
}
