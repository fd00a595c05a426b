package mcp

import (
	"context"
	"fmt"
	"net/http"
)

// AuthProvider supplies authentication headers for gateway requests.
type AuthProvider interface {
	// GetHeaders returns the HTTP headers to include in gateway requests.
	GetHeaders(ctx context.Context) (map[string]string, error)
}

// BearerAuth authenticates with a static bearer token.
type BearerAuth struct {
	Token string
}

// GetHeaders returns the Authorization header.
func (a *BearerAuth) GetHeaders(_ context.Context) (map[string]string, error) {
	if a.Token == "" {
		return nil, fmt.Errorf("no bearer token configured")
	}
	return map[string]string{"Authorization": "Bearer " + a.Token}, nil
}

// authAwareTransport is an http.RoundTripper that adds static headers and
// dynamically obtained auth headers to every request.
type authAwareTransport struct {
	base         http.RoundTripper
	headers      map[string]string
	authProvider AuthProvider
}

func (t *authAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())

	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	// Auth headers win over static headers.
	if t.authProvider != nil {
		authHeaders, err := t.authProvider.GetHeaders(req.Context())
		if err != nil {
			return nil, fmt.Errorf("getting auth headers: %w", err)
		}
		for k, v := range authHeaders {
			req.Header.Set(k, v)
		}
	}

	return t.base.RoundTrip(req)
}
