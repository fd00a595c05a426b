package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/observability"
)

// Options configures a Provisioner.
type Options struct {
	// ReadyTimeout bounds the wait for a pending sandbox. Default: 3m.
	ReadyTimeout time.Duration

	// PollInterval is the readiness polling interval. Default: 1s.
	PollInterval time.Duration

	// Attempts bounds backend calls on transient failures. Default: 3.
	Attempts int

	// NewBackOff returns the retry schedule. Default: exponential from 500ms.
	NewBackOff func() backoff.BackOff

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 3 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Attempts < 1 {
		o.Attempts = 3
	}
	if o.NewBackOff == nil {
		o.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Provisioner ensures sandboxes and preview endpoints exist.
type Provisioner struct {
	backend Backend
	opts    Options
	log     *slog.Logger
}

// New creates a Provisioner on top of backend.
func New(backend Backend, opts Options) *Provisioner {
	opts = opts.withDefaults()
	return &Provisioner{
		backend: backend,
		opts:    opts,
		log:     opts.Logger.With("backend", backend.Name()),
	}
}

// Ensure returns a handle to a ready sandbox named d.Name, creating it
// if it does not exist. An existing sandbox is reused as long as it runs
// the same image and declares the requested ports.
func (p *Provisioner) Ensure(ctx context.Context, d Descriptor) (*Handle, error) {
	const op = "sandbox.ensure"
	start := time.Now()
	defer func() {
		observability.ProvisionDuration.WithLabelValues(p.backend.Name(), "ensure").Observe(time.Since(start).Seconds())
	}()

	if err := d.Validate(); err != nil {
		return nil, &api.Error{Kind: api.ErrorKindConfig, Op: op, Err: err}
	}

	sb, created, err := p.getOrCreateSandbox(ctx, d)
	if err != nil {
		return nil, api.NewProvisionError(op, err)
	}
	if !created {
		if err := checkCompatible(d, sb); err != nil {
			return nil, api.NewProvisionError(op, err)
		}
		p.log.Info("reusing existing sandbox", "name", sb.Name, "status", sb.Status)
	} else {
		p.log.Info("created sandbox", "name", sb.Name, "image", d.Image)
	}

	sb, err = p.waitForReady(ctx, sb)
	if err != nil {
		return nil, api.NewProvisionError(op, err)
	}

	return &Handle{
		Name:    sb.Name,
		URL:     sb.URL,
		Image:   sb.Image,
		Ports:   slices.Clone(sb.Ports),
		Backend: p.backend.Name(),
	}, nil
}

// EnsurePreview returns the preview endpoint named spec.Name on the
// sandbox behind h, creating it if it does not exist. An existing preview
// bound to a different port is an error.
func (p *Provisioner) EnsurePreview(ctx context.Context, h *Handle, spec PreviewSpec) (*PreviewEndpoint, error) {
	const op = "sandbox.ensure_preview"
	start := time.Now()
	defer func() {
		observability.ProvisionDuration.WithLabelValues(p.backend.Name(), "ensure_preview").Observe(time.Since(start).Seconds())
	}()

	if err := spec.Validate(); err != nil {
		return nil, &api.Error{Kind: api.ErrorKindConfig, Op: op, Err: err}
	}
	if len(h.Ports) > 0 && !slices.ContainsFunc(h.Ports, func(pt Port) bool { return pt.Target == spec.Port }) {
		return nil, &api.Error{
			Kind: api.ErrorKindConfig,
			Op:   op,
			Err:  fmt.Errorf("preview port %d is not declared on sandbox %q", spec.Port, h.Name),
		}
	}

	var preview *PreviewEndpoint
	err := p.retry(ctx, func() error {
		pv, err := p.backend.GetPreview(ctx, h.Name, spec.Name)
		p.observe("get_preview", err)
		if err == nil {
			preview = pv
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		pv, err = p.backend.CreatePreview(ctx, h.Name, spec)
		p.observe("create_preview", err)
		if err != nil {
			// ErrAlreadyExists means a creation race was lost; the next
			// attempt reads the winner.
			return err
		}
		p.log.Info("created preview", "sandbox", h.Name, "preview", spec.Name, "port", spec.Port)
		preview = pv
		return nil
	})
	if err != nil {
		return nil, api.NewProvisionError(op, err)
	}

	if preview.Port != 0 && preview.Port != spec.Port {
		return nil, api.NewProvisionError(op, fmt.Errorf("preview %q is bound to port %d, want %d: %w",
			spec.Name, preview.Port, spec.Port, ErrIncompatible))
	}
	if preview.URL == "" {
		return nil, api.NewProvisionError(op, fmt.Errorf("preview %q has no public URL", spec.Name))
	}
	return preview, nil
}

// getOrCreateSandbox looks the sandbox up by name and creates it when
// absent. created reports whether this call created it.
func (p *Provisioner) getOrCreateSandbox(ctx context.Context, d Descriptor) (sb *Sandbox, created bool, err error) {
	err = p.retry(ctx, func() error {
		existing, err := p.backend.GetSandbox(ctx, d.Name)
		p.observe("get_sandbox", err)
		if err == nil {
			sb, created = existing, false
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		fresh, err := p.backend.CreateSandbox(ctx, d)
		p.observe("create_sandbox", err)
		if err != nil {
			// ErrAlreadyExists is retried: the next attempt reuses the
			// sandbox a concurrent caller created.
			return err
		}
		sb, created = fresh, true
		return nil
	})
	return sb, created, err
}

// waitForReady polls the sandbox until it reports ready with a URL, it
// fails, or ReadyTimeout expires.
func (p *Provisioner) waitForReady(ctx context.Context, sb *Sandbox) (*Sandbox, error) {
	if sb.Status == StatusReady && sb.URL != "" {
		return sb, nil
	}
	if sb.Status == StatusFailed {
		return nil, fmt.Errorf("sandbox %q is in failed state", sb.Name)
	}

	p.log.Debug("waiting for sandbox", "name", sb.Name, "status", sb.Status)
	deadline := time.After(p.opts.ReadyTimeout)
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for sandbox %q: %w", sb.Name, ctx.Err())
		case <-deadline:
			return nil, fmt.Errorf("sandbox %q did not become ready within %s: %w", sb.Name, p.opts.ReadyTimeout, ErrNotReady)
		case <-ticker.C:
			current, err := p.backend.GetSandbox(ctx, sb.Name)
			p.observe("get_sandbox", err)
			if err != nil {
				if IsPermanent(err) {
					return nil, err
				}
				p.log.Debug("polling sandbox", "name", sb.Name, "error", err)
				continue
			}
			switch {
			case current.Status == StatusFailed:
				return nil, fmt.Errorf("sandbox %q is in failed state", sb.Name)
			case current.Status == StatusReady && current.URL != "":
				return current, nil
			}
		}
	}
}

// retry runs fn with bounded attempts, stopping early on permanent errors.
func (p *Provisioner) retry(ctx context.Context, fn func() error) error {
	op := func() error {
		err := fn()
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(p.opts.NewBackOff(), uint64(p.opts.Attempts-1)),
		ctx,
	)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		p.log.Warn("provisioning call failed, retrying", "wait", wait, "error", err)
	})
}

func (p *Provisioner) observe(operation string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrAlreadyExists):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	observability.ProvisionOperationsTotal.WithLabelValues(p.backend.Name(), operation, outcome).Inc()
}

// checkCompatible rejects reuse of a sandbox that runs a different image
// or lacks a requested port.
func checkCompatible(d Descriptor, sb *Sandbox) error {
	if sb.Image != "" && sb.Image != d.Image {
		return fmt.Errorf("sandbox %q runs image %q, want %q: %w", d.Name, sb.Image, d.Image, ErrIncompatible)
	}
	if len(sb.Ports) == 0 {
		return nil
	}
	for _, want := range d.Ports {
		if !sb.HasPort(want.Target) {
			return fmt.Errorf("sandbox %q does not expose port %d (%s): %w", d.Name, want.Target, want.Name, ErrIncompatible)
		}
	}
	return nil
}
