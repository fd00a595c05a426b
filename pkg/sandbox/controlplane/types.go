// Package controlplane implements sandbox.Backend against the hosted
// sandbox control plane REST API.
//
// Resources:
//
//	GET  /sandboxes/{name}
//	POST /sandboxes
//	GET  /sandboxes/{name}/previews/{preview}
//	POST /sandboxes/{name}/previews
//
// Requests authenticate with a bearer API key and, when configured, name
// the workspace in the X-Blaxel-Workspace header. Handler serves the same
// API from any sandbox.Backend for local development.
package controlplane

import "github.com/rhuss/werkstatt/pkg/sandbox"

// WorkspaceHeader names the workspace a request acts in.
const WorkspaceHeader = "X-Blaxel-Workspace"

// Wire status values of a sandbox.
const (
	statusDeployed    = "DEPLOYED"
	statusDeploying   = "DEPLOYING"
	statusFailed      = "FAILED"
	statusTerminated  = "TERMINATED"
	statusDeactivated = "DEACTIVATED"
)

type metadata struct {
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	Workspace string `json:"workspace,omitempty"`
}

type portSpec struct {
	Name     string `json:"name"`
	Target   int    `json:"target"`
	Protocol string `json:"protocol,omitempty"`
}

type runtimeSpec struct {
	Image  string     `json:"image"`
	Memory int        `json:"memory"`
	Ports  []portSpec `json:"ports,omitempty"`
}

type sandboxSpec struct {
	Runtime runtimeSpec `json:"runtime"`
}

type sandboxResource struct {
	Metadata metadata    `json:"metadata"`
	Spec     sandboxSpec `json:"spec"`
	Status   string      `json:"status,omitempty"`
}

type previewSpec struct {
	Port            int               `json:"port"`
	Public          bool              `json:"public"`
	URL             string            `json:"url,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
}

type previewResource struct {
	Metadata metadata    `json:"metadata"`
	Spec     previewSpec `json:"spec"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func toSandbox(r *sandboxResource) *sandbox.Sandbox {
	sb := &sandbox.Sandbox{
		Name:     r.Metadata.Name,
		Image:    r.Spec.Runtime.Image,
		MemoryMB: r.Spec.Runtime.Memory,
		URL:      r.Metadata.URL,
		Status:   toStatus(r.Status),
	}
	for _, p := range r.Spec.Runtime.Ports {
		sb.Ports = append(sb.Ports, sandbox.Port{Name: p.Name, Target: p.Target, Protocol: p.Protocol})
	}
	return sb
}

func fromSandbox(sb *sandbox.Sandbox) *sandboxResource {
	r := &sandboxResource{
		Metadata: metadata{Name: sb.Name, URL: sb.URL},
		Spec: sandboxSpec{Runtime: runtimeSpec{
			Image:  sb.Image,
			Memory: sb.MemoryMB,
			Ports:  toPortSpecs(sb.Ports),
		}},
		Status: statusDeploying,
	}
	switch sb.Status {
	case sandbox.StatusReady:
		r.Status = statusDeployed
	case sandbox.StatusFailed:
		r.Status = statusFailed
	}
	return r
}

func toPortSpecs(ports []sandbox.Port) []portSpec {
	out := make([]portSpec, 0, len(ports))
	for _, p := range ports {
		out = append(out, portSpec{Name: p.Name, Target: p.Target, Protocol: p.Protocol})
	}
	return out
}

func toStatus(s string) sandbox.Status {
	switch s {
	case statusDeployed:
		return sandbox.StatusReady
	case statusFailed, statusTerminated, statusDeactivated:
		return sandbox.StatusFailed
	default:
		return sandbox.StatusPending
	}
}

func toPreview(r *previewResource) *sandbox.PreviewEndpoint {
	return &sandbox.PreviewEndpoint{
		Name:            r.Metadata.Name,
		Port:            r.Spec.Port,
		Public:          r.Spec.Public,
		URL:             r.Spec.URL,
		ResponseHeaders: r.Spec.ResponseHeaders,
	}
}

func fromPreview(p *sandbox.PreviewEndpoint) *previewResource {
	return &previewResource{
		Metadata: metadata{Name: p.Name},
		Spec: previewSpec{
			Port:            p.Port,
			Public:          p.Public,
			URL:             p.URL,
			ResponseHeaders: p.ResponseHeaders,
		},
	}
}
