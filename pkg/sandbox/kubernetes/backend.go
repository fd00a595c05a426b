// Package kubernetes implements sandbox.Backend on agent-sandbox
// SandboxClaim resources. A claim named after the sandbox is the
// idempotency record; the descriptor and previews are kept as claim
// annotations, and readiness comes from the Sandbox the controller
// creates for the claim.
package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/werkstatt/pkg/sandbox"
)

// Annotation keys on the SandboxClaim.
const (
	annotationPrefix  = "werkstatt.dev/"
	annotationImage   = annotationPrefix + "image"
	annotationMemory  = annotationPrefix + "memory-mb"
	annotationPorts   = annotationPrefix + "ports"
	annotationPreview = annotationPrefix + "preview."
	labelManagedBy    = "app.kubernetes.io/managed-by"
)

// Options configures a Backend.
type Options struct {
	Namespace string
	Template  string

	// GatewayPort is the sandbox service port that serves the tool gateway.
	GatewayPort int

	// PreviewDomain, when set, gives previews the URL
	// https://<preview>-<sandbox>.<domain>. Otherwise previews use the
	// sandbox service address directly.
	PreviewDomain string

	Logger *slog.Logger
}

// Backend provisions sandboxes through SandboxClaims.
type Backend struct {
	client client.Client
	opts   Options
	log    *slog.Logger
}

var _ sandbox.Backend = (*Backend)(nil)

// New creates a backend on an existing controller-runtime client.
func New(c client.Client, opts Options) *Backend {
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	if opts.GatewayPort == 0 {
		opts.GatewayPort = 8080
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Backend{client: c, opts: opts, log: log}
}

// NewFromKubeconfig builds a client from the kubeconfig (or in-cluster
// config) and returns a backend using it. An empty kubeContext selects
// the current context.
func NewFromKubeconfig(kubeContext string, opts Options) (*Backend, error) {
	restConfig, err := ctrlconfig.GetConfigWithContext(kubeContext)
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}
	scheme, err := NewScheme()
	if err != nil {
		return nil, err
	}
	c, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return New(c, opts), nil
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// Name returns "kubernetes".
func (b *Backend) Name() string { return "kubernetes" }

// GetSandbox implements sandbox.Backend.
func (b *Backend) GetSandbox(ctx context.Context, name string) (*sandbox.Sandbox, error) {
	claim, err := b.getClaim(ctx, name)
	if err != nil {
		return nil, err
	}

	sb, err := sandboxFromClaim(claim)
	if err != nil {
		return nil, err
	}

	fqdn, ready, err := b.sandboxState(ctx, name)
	if err != nil {
		return nil, err
	}
	if ready {
		sb.Status = sandbox.StatusReady
		sb.URL = fmt.Sprintf("http://%s:%d", fqdn, b.opts.GatewayPort)
	}
	return sb, nil
}

// CreateSandbox implements sandbox.Backend. The returned sandbox is
// pending until the controller reports the Sandbox ready.
func (b *Backend) CreateSandbox(ctx context.Context, d sandbox.Descriptor) (*sandbox.Sandbox, error) {
	ports, err := json.Marshal(d.Ports)
	if err != nil {
		return nil, fmt.Errorf("encode ports: %w", err)
	}

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      d.Name,
			Namespace: b.opts.Namespace,
			Labels:    map[string]string{labelManagedBy: "werkstatt"},
			Annotations: map[string]string{
				annotationImage:  d.Image,
				annotationMemory: strconv.Itoa(d.MemoryMB),
				annotationPorts:  string(ports),
			},
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{
				Name: b.opts.Template,
			},
		},
	}

	if err := b.client.Create(ctx, claim); err != nil {
		return nil, fmt.Errorf("create SandboxClaim %q: %w", d.Name, mapError(err))
	}
	b.log.Debug("created SandboxClaim", "name", d.Name, "namespace", b.opts.Namespace, "template", b.opts.Template)

	return &sandbox.Sandbox{
		Name:     d.Name,
		Image:    d.Image,
		MemoryMB: d.MemoryMB,
		Ports:    d.Ports,
		Status:   sandbox.StatusPending,
	}, nil
}

// GetPreview implements sandbox.Backend.
func (b *Backend) GetPreview(ctx context.Context, sandboxName, preview string) (*sandbox.PreviewEndpoint, error) {
	claim, err := b.getClaim(ctx, sandboxName)
	if err != nil {
		return nil, err
	}
	raw, ok := claim.Annotations[annotationPreview+preview]
	if !ok {
		return nil, fmt.Errorf("preview %q of sandbox %q: %w", preview, sandboxName, sandbox.ErrNotFound)
	}
	var rec previewRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode preview %q: %w", preview, err)
	}
	return &sandbox.PreviewEndpoint{
		Name:            preview,
		Port:            rec.Port,
		Public:          rec.Public,
		URL:             rec.URL,
		ResponseHeaders: rec.ResponseHeaders,
	}, nil
}

// previewRecord is the JSON stored in a preview annotation.
type previewRecord struct {
	Port            int               `json:"port"`
	Public          bool              `json:"public"`
	URL             string            `json:"url"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
}

// CreatePreview implements sandbox.Backend by recording the preview on
// the claim. Concurrent writers are detected through the claim's
// resource version.
func (b *Backend) CreatePreview(ctx context.Context, sandboxName string, spec sandbox.PreviewSpec) (*sandbox.PreviewEndpoint, error) {
	claim, err := b.getClaim(ctx, sandboxName)
	if err != nil {
		return nil, err
	}
	key := annotationPreview + spec.Name
	if _, ok := claim.Annotations[key]; ok {
		return nil, fmt.Errorf("preview %q: %w", spec.Name, sandbox.ErrAlreadyExists)
	}

	url, err := b.previewURL(ctx, sandboxName, spec)
	if err != nil {
		return nil, err
	}
	pv := &sandbox.PreviewEndpoint{
		Name:            spec.Name,
		Port:            spec.Port,
		Public:          spec.Public,
		URL:             url,
		ResponseHeaders: maps.Clone(spec.ResponseHeaders),
	}
	data, err := json.Marshal(previewRecord{
		Port:            pv.Port,
		Public:          pv.Public,
		URL:             pv.URL,
		ResponseHeaders: pv.ResponseHeaders,
	})
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}

	if claim.Annotations == nil {
		claim.Annotations = make(map[string]string)
	}
	claim.Annotations[key] = string(data)
	if err := b.client.Update(ctx, claim); err != nil {
		return nil, fmt.Errorf("record preview %q: %w", spec.Name, mapError(err))
	}
	b.log.Debug("recorded preview", "sandbox", sandboxName, "preview", spec.Name, "url", url)
	return pv, nil
}

func (b *Backend) previewURL(ctx context.Context, sandboxName string, spec sandbox.PreviewSpec) (string, error) {
	if b.opts.PreviewDomain != "" {
		return fmt.Sprintf("https://%s-%s.%s", spec.Name, sandboxName, strings.TrimPrefix(b.opts.PreviewDomain, ".")), nil
	}
	fqdn, ready, err := b.sandboxState(ctx, sandboxName)
	if err != nil {
		return "", err
	}
	if !ready {
		return "", fmt.Errorf("sandbox %q: %w", sandboxName, sandbox.ErrNotReady)
	}
	return fmt.Sprintf("http://%s:%d", fqdn, spec.Port), nil
}

func (b *Backend) getClaim(ctx context.Context, name string) (*extensionsv1alpha1.SandboxClaim, error) {
	claim := &extensionsv1alpha1.SandboxClaim{}
	key := types.NamespacedName{Name: name, Namespace: b.opts.Namespace}
	if err := b.client.Get(ctx, key, claim); err != nil {
		return nil, fmt.Errorf("get SandboxClaim %q: %w", name, mapError(err))
	}
	return claim, nil
}

// sandboxState reports the Sandbox's service FQDN and whether it is
// ready. A Sandbox the controller has not created yet is not ready.
func (b *Backend) sandboxState(ctx context.Context, name string) (string, bool, error) {
	sb := &sandboxv1alpha1.Sandbox{}
	key := types.NamespacedName{Name: name, Namespace: b.opts.Namespace}
	if err := b.client.Get(ctx, key, sb); err != nil {
		if apierrors.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get Sandbox %q: %w", name, mapError(err))
	}
	if !isReady(sb) || sb.Status.ServiceFQDN == "" {
		return "", false, nil
	}
	return sb.Status.ServiceFQDN, true, nil
}

func sandboxFromClaim(claim *extensionsv1alpha1.SandboxClaim) (*sandbox.Sandbox, error) {
	sb := &sandbox.Sandbox{
		Name:   claim.Name,
		Image:  claim.Annotations[annotationImage],
		Status: sandbox.StatusPending,
	}
	if v := claim.Annotations[annotationMemory]; v != "" {
		mb, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("claim %q: invalid %s annotation %q", claim.Name, annotationMemory, v)
		}
		sb.MemoryMB = mb
	}
	if v := claim.Annotations[annotationPorts]; v != "" {
		if err := json.Unmarshal([]byte(v), &sb.Ports); err != nil {
			return nil, fmt.Errorf("claim %q: invalid %s annotation: %w", claim.Name, annotationPorts, err)
		}
	}
	return sb, nil
}

// isReady checks if the Sandbox has a Ready condition set to True.
func isReady(sb *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sb.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// mapError wraps API errors with the matching sandbox sentinel.
// Conflicts and server errors stay transient.
func mapError(err error) error {
	switch {
	case apierrors.IsNotFound(err):
		return fmt.Errorf("%w: %w", sandbox.ErrNotFound, err)
	case apierrors.IsAlreadyExists(err):
		return fmt.Errorf("%w: %w", sandbox.ErrAlreadyExists, err)
	case apierrors.IsUnauthorized(err), apierrors.IsForbidden(err):
		return fmt.Errorf("%w: %w", sandbox.ErrUnauthorized, err)
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return fmt.Errorf("%w: %w", sandbox.ErrInvalid, err)
	default:
		return err
	}
}
