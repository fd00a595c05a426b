package sandbox_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/sandbox"
	"github.com/rhuss/werkstatt/pkg/sandbox/fake"
)

func testDescriptor() sandbox.Descriptor {
	return sandbox.Descriptor{
		Name:     "my-nextjs-sandbox",
		Image:    "blaxel/nextjs:latest",
		MemoryMB: 4096,
		Ports:    []sandbox.Port{{Name: "preview", Target: 3000, Protocol: "HTTP"}},
	}
}

func testPreview() sandbox.PreviewSpec {
	return sandbox.PreviewSpec{
		Name:            "nextjs-app-preview",
		Port:            3000,
		Public:          true,
		ResponseHeaders: map[string]string{"Access-Control-Allow-Origin": "*"},
	}
}

func newProvisioner(b sandbox.Backend) *sandbox.Provisioner {
	return sandbox.New(b, sandbox.Options{
		ReadyTimeout: time.Second,
		PollInterval: time.Millisecond,
		Attempts:     3,
		NewBackOff:   func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) },
	})
}

func TestEnsureIsIdempotent(t *testing.T) {
	b := fake.New()
	p := newProvisioner(b)
	ctx := context.Background()

	first, err := p.Ensure(ctx, testDescriptor())
	if err != nil {
		t.Fatalf("first Ensure() error: %v", err)
	}
	second, err := p.Ensure(ctx, testDescriptor())
	if err != nil {
		t.Fatalf("second Ensure() error: %v", err)
	}

	if first.Name != second.Name || first.URL != second.URL {
		t.Errorf("handles differ: %+v vs %+v", first, second)
	}
	if n := b.Calls("create_sandbox"); n != 1 {
		t.Errorf("create_sandbox called %d times, want 1", n)
	}
	if first.Backend != "fake" {
		t.Errorf("backend = %q, want fake", first.Backend)
	}
}

func TestEnsureWaitsForReady(t *testing.T) {
	b := fake.New()
	b.PendingPolls = 3
	p := newProvisioner(b)

	h, err := p.Ensure(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if h.URL == "" {
		t.Error("handle should carry the sandbox URL once ready")
	}
	if n := b.Calls("get_sandbox"); n < 4 {
		t.Errorf("get_sandbox called %d times, expected polling", n)
	}
}

func TestEnsureReadyTimeout(t *testing.T) {
	b := fake.New()
	b.PendingPolls = 1 << 30
	p := sandbox.New(b, sandbox.Options{ReadyTimeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	_, err := p.Ensure(context.Background(), testDescriptor())
	if !errors.Is(err, sandbox.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if api.KindOf(err) != api.ErrorKindProvision {
		t.Errorf("kind = %q, want provision", api.KindOf(err))
	}
}

func TestEnsureReusesCompatibleSandbox(t *testing.T) {
	b := fake.New()
	b.Seed(sandbox.Sandbox{
		Name:   "my-nextjs-sandbox",
		Image:  "blaxel/nextjs:latest",
		Ports:  []sandbox.Port{{Name: "preview", Target: 3000}},
		Status: sandbox.StatusReady,
		URL:    "http://existing",
	})

	h, err := newProvisioner(b).Ensure(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if h.URL != "http://existing" {
		t.Errorf("URL = %q, want the existing sandbox", h.URL)
	}
	if n := b.Calls("create_sandbox"); n != 0 {
		t.Errorf("create_sandbox called %d times, want 0", n)
	}
}

func TestEnsureRejectsIncompatibleSandbox(t *testing.T) {
	tests := []struct {
		name     string
		existing sandbox.Sandbox
	}{
		{"different image", sandbox.Sandbox{Name: "my-nextjs-sandbox", Image: "python:3.12", Status: sandbox.StatusReady, URL: "http://x"}},
		{"missing port", sandbox.Sandbox{
			Name: "my-nextjs-sandbox", Image: "blaxel/nextjs:latest",
			Ports:  []sandbox.Port{{Name: "api", Target: 8080}},
			Status: sandbox.StatusReady, URL: "http://x",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := fake.New()
			b.Seed(tt.existing)

			_, err := newProvisioner(b).Ensure(context.Background(), testDescriptor())
			if !errors.Is(err, sandbox.ErrIncompatible) {
				t.Fatalf("expected ErrIncompatible, got %v", err)
			}
			if api.KindOf(err) != api.ErrorKindProvision {
				t.Errorf("kind = %q, want provision", api.KindOf(err))
			}
			if b.Calls("create_sandbox") != 0 {
				t.Error("an incompatible sandbox must not be recreated")
			}
		})
	}
}

func TestEnsureFailedSandbox(t *testing.T) {
	b := fake.New()
	b.Seed(sandbox.Sandbox{Name: "my-nextjs-sandbox", Image: "blaxel/nextjs:latest", Status: sandbox.StatusFailed})

	_, err := newProvisioner(b).Ensure(context.Background(), testDescriptor())
	if api.KindOf(err) != api.ErrorKindProvision {
		t.Fatalf("expected provision error, got %v", err)
	}
}

func TestEnsureRetriesTransientErrors(t *testing.T) {
	b := fake.New()
	failures := 2
	b.Fail = func(op string) error {
		if op == "get_sandbox" && failures > 0 {
			failures--
			return errors.New("502 bad gateway")
		}
		return nil
	}

	if _, err := newProvisioner(b).Ensure(context.Background(), testDescriptor()); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if n := b.Calls("create_sandbox"); n != 1 {
		t.Errorf("create_sandbox called %d times, want 1", n)
	}
}

func TestEnsureGivesUpAfterAttempts(t *testing.T) {
	b := fake.New()
	b.Fail = func(op string) error { return errors.New("connection refused") }

	_, err := newProvisioner(b).Ensure(context.Background(), testDescriptor())
	if api.KindOf(err) != api.ErrorKindProvision {
		t.Fatalf("expected provision error, got %v", err)
	}
	if n := b.Calls("get_sandbox"); n != 3 {
		t.Errorf("get_sandbox called %d times, want 3", n)
	}
}

func TestEnsureDoesNotRetryQuota(t *testing.T) {
	b := fake.New()
	b.Fail = func(op string) error {
		if op == "create_sandbox" {
			return fmt.Errorf("workspace limit reached: %w", sandbox.ErrQuotaExceeded)
		}
		return nil
	}

	_, err := newProvisioner(b).Ensure(context.Background(), testDescriptor())
	if !errors.Is(err, sandbox.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if n := b.Calls("create_sandbox"); n != 1 {
		t.Errorf("create_sandbox called %d times, want 1", n)
	}
}

func TestEnsureHandlesCreationRace(t *testing.T) {
	b := fake.New()
	raced := false
	b.Fail = func(op string) error {
		if op == "create_sandbox" && !raced {
			raced = true
			// Another process creates the sandbox first.
			b.Seed(sandbox.Sandbox{
				Name: "my-nextjs-sandbox", Image: "blaxel/nextjs:latest",
				Status: sandbox.StatusReady, URL: "http://winner",
			})
			return sandbox.ErrAlreadyExists
		}
		return nil
	}

	h, err := newProvisioner(b).Ensure(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if h.URL != "http://winner" {
		t.Errorf("URL = %q, want the concurrently created sandbox", h.URL)
	}
}

func TestEnsureValidatesDescriptor(t *testing.T) {
	b := fake.New()
	d := testDescriptor()
	d.Name = ""
	d.MemoryMB = -1

	_, err := newProvisioner(b).Ensure(context.Background(), d)
	if api.KindOf(err) != api.ErrorKindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
	if b.Calls("get_sandbox") != 0 {
		t.Error("no backend call expected for an invalid descriptor")
	}
}

func TestEnsureCancelled(t *testing.T) {
	b := fake.New()
	b.PendingPolls = 1 << 30
	p := sandbox.New(b, sandbox.Options{ReadyTimeout: time.Minute, PollInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := p.Ensure(ctx, testDescriptor())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEnsurePreviewIsIdempotent(t *testing.T) {
	b := fake.New()
	p := newProvisioner(b)
	ctx := context.Background()

	h, err := p.Ensure(ctx, testDescriptor())
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}

	first, err := p.EnsurePreview(ctx, h, testPreview())
	if err != nil {
		t.Fatalf("EnsurePreview() error: %v", err)
	}
	second, err := p.EnsurePreview(ctx, h, testPreview())
	if err != nil {
		t.Fatalf("second EnsurePreview() error: %v", err)
	}

	if first.URL == "" || first.URL != second.URL {
		t.Errorf("preview URLs differ or empty: %q vs %q", first.URL, second.URL)
	}
	if n := b.Calls("create_preview"); n != 1 {
		t.Errorf("create_preview called %d times, want 1", n)
	}
	if first.ResponseHeaders["Access-Control-Allow-Origin"] != "*" {
		t.Errorf("CORS headers lost: %v", first.ResponseHeaders)
	}
}

func TestEnsurePreviewPortCollision(t *testing.T) {
	b := fake.New()
	p := newProvisioner(b)
	ctx := context.Background()

	d := testDescriptor()
	d.Ports = append(d.Ports, sandbox.Port{Name: "api", Target: 8080})
	h, err := p.Ensure(ctx, d)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if _, err := p.EnsurePreview(ctx, h, testPreview()); err != nil {
		t.Fatalf("EnsurePreview() error: %v", err)
	}

	other := testPreview()
	other.Port = 8080
	_, err = p.EnsurePreview(ctx, h, other)
	if !errors.Is(err, sandbox.ErrIncompatible) {
		t.Fatalf("expected ErrIncompatible, got %v", err)
	}
}

func TestEnsurePreviewUndeclaredPort(t *testing.T) {
	b := fake.New()
	p := newProvisioner(b)
	ctx := context.Background()

	h, err := p.Ensure(ctx, testDescriptor())
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}

	spec := testPreview()
	spec.Port = 9999
	_, err = p.EnsurePreview(ctx, h, spec)
	if api.KindOf(err) != api.ErrorKindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
	if b.Calls("get_preview") != 0 {
		t.Error("no backend call expected for an undeclared port")
	}
}

func TestHandleEndpoint(t *testing.T) {
	tests := []struct {
		url, path, want string
	}{
		{"https://sbx.example.com", "/mcp", "https://sbx.example.com/mcp"},
		{"https://sbx.example.com/", "/mcp", "https://sbx.example.com/mcp"},
		{"https://sbx.example.com", "mcp", "https://sbx.example.com/mcp"},
		{"https://sbx.example.com", "", "https://sbx.example.com"},
	}
	for _, tt := range tests {
		h := &sandbox.Handle{URL: tt.url}
		if got := h.Endpoint(tt.path); got != tt.want {
			t.Errorf("Endpoint(%q) on %q = %q, want %q", tt.path, tt.url, got, tt.want)
		}
	}
}

func TestDescriptorValidate(t *testing.T) {
	d := testDescriptor()
	d.Ports = append(d.Ports, sandbox.Port{Name: "preview", Target: 0})

	err := d.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"duplicate name", "target must be"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err.Error(), want)
		}
	}
}
