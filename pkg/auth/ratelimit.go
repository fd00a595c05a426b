package auth

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether an identity may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// SubjectLimiter keeps one token bucket per subject.
type SubjectLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewSubjectLimiter allows perSecond requests per subject with the given
// burst. A non-positive rate disables limiting.
func NewSubjectLimiter(perSecond float64, burst int) *SubjectLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &SubjectLimiter{
		limit:   limit,
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports ErrTooManyRequests when the subject's bucket is empty.
func (l *SubjectLimiter) Allow(_ context.Context, identity *Identity) error {
	l.mu.Lock()
	b, ok := l.buckets[identity.Subject]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[identity.Subject] = b
	}
	l.mu.Unlock()

	if !b.Allow() {
		return ErrTooManyRequests
	}
	return nil
}
