package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockAuthn struct {
	result Result
}

func (m *mockAuthn) Authenticate(context.Context, *http.Request) Result {
	return m.result
}

func okHandler(t *testing.T, gotSubject *string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := IdentityFromContext(r.Context()); id != nil && gotSubject != nil {
			*gotSubject = id.Subject
		}
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, method, path string, headers map[string]string) int {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestChainVoting(t *testing.T) {
	yes := &mockAuthn{result: Result{Decision: Yes, Identity: &Identity{Subject: "alice"}}}
	no := &mockAuthn{result: Result{Decision: No, Err: ErrUnauthenticated}}
	abstain := &mockAuthn{result: Result{Decision: Abstain}}

	tests := []struct {
		name     string
		chain    Chain
		decision Decision
		subject  string
	}{
		{"first yes wins", Chain{Authenticators: []Authenticator{abstain, yes, no}, DefaultDecision: No}, Yes, "alice"},
		{"first no wins", Chain{Authenticators: []Authenticator{no, yes}, DefaultDecision: Yes}, No, ""},
		{"all abstain, default no", Chain{Authenticators: []Authenticator{abstain}, DefaultDecision: No}, No, ""},
		{"all abstain, default yes", Chain{Authenticators: []Authenticator{abstain}, DefaultDecision: Yes}, Yes, "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
			if got.Decision != tt.decision {
				t.Fatalf("decision = %v, want %v", got.Decision, tt.decision)
			}
			if tt.subject != "" && got.Identity.Subject != tt.subject {
				t.Errorf("subject = %q, want %q", got.Identity.Subject, tt.subject)
			}
		})
	}
}

func TestMiddlewareBypassEndpoint(t *testing.T) {
	h := Middleware(&Chain{DefaultDecision: No}, nil, DefaultBypassEndpoints, nil)(okHandler(t, nil))
	if code := serve(h, "GET", "/healthz", nil); code != http.StatusOK {
		t.Errorf("bypass endpoint: status = %d, want 200", code)
	}
}

func TestMiddlewareRejects(t *testing.T) {
	h := Middleware(&Chain{DefaultDecision: No}, nil, DefaultBypassEndpoints, nil)(okHandler(t, nil))
	if code := serve(h, "POST", "/sandboxes", nil); code != http.StatusUnauthorized {
		t.Errorf("no auth: status = %d, want 401", code)
	}
}

func TestMiddlewarePassesIdentity(t *testing.T) {
	chain := &Chain{Authenticators: []Authenticator{
		&mockAuthn{result: Result{Decision: Yes, Identity: &Identity{Subject: "alice"}}},
	}}
	var subject string
	h := Middleware(chain, nil, nil, nil)(okHandler(t, &subject))

	if code := serve(h, "GET", "/sandboxes/demo", nil); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if subject != "alice" {
		t.Errorf("subject = %q, want alice", subject)
	}
}

func TestMiddlewareWorkspace(t *testing.T) {
	chain := &Chain{Authenticators: []Authenticator{
		&mockAuthn{result: Result{Decision: Yes, Identity: &Identity{Subject: "alice", Workspace: "team-a"}}},
	}}
	h := Middleware(chain, nil, nil, nil)(okHandler(t, nil))

	if code := serve(h, "GET", "/", map[string]string{WorkspaceHeader: "team-a"}); code != http.StatusOK {
		t.Errorf("own workspace: status = %d, want 200", code)
	}
	if code := serve(h, "GET", "/", map[string]string{WorkspaceHeader: "team-b"}); code != http.StatusForbidden {
		t.Errorf("other workspace: status = %d, want 403", code)
	}
	if code := serve(h, "GET", "/", nil); code != http.StatusOK {
		t.Errorf("no workspace header: status = %d, want 200", code)
	}
}

func TestMiddlewareEmptySubject(t *testing.T) {
	chain := &Chain{Authenticators: []Authenticator{
		&mockAuthn{result: Result{Decision: Yes, Identity: &Identity{}}},
	}}
	h := Middleware(chain, nil, nil, nil)(okHandler(t, nil))
	if code := serve(h, "GET", "/", nil); code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", code)
	}
}

func TestMiddlewareRateLimit(t *testing.T) {
	chain := &Chain{DefaultDecision: Yes}
	h := Middleware(chain, NewSubjectLimiter(0.001, 2), nil, nil)(okHandler(t, nil))

	for i := range 2 {
		if code := serve(h, "GET", "/", nil); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, code)
		}
	}
	if code := serve(h, "GET", "/", nil); code != http.StatusTooManyRequests {
		t.Errorf("third request: status = %d, want 429", code)
	}
}

func TestSubjectLimiterUnlimited(t *testing.T) {
	l := NewSubjectLimiter(0, 1)
	for range 100 {
		if err := l.Allow(context.Background(), &Identity{Subject: "bob"}); err != nil {
			t.Fatalf("Allow() = %v, want nil", err)
		}
	}
}
