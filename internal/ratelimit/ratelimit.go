// Package ratelimit provides one token bucket per portal, shared by every
// worker assigned to that portal, following spec.md §5's "one bucket per
// portal" shared-resource policy. The bucket pattern (a map keyed by name
// guarding a *rate.Limiter, built lazily on first use) is grounded in
// cuemby-warren's ingress middleware.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Registry hands out a *rate.Limiter per portal name, creating it lazily
// with the portal's configured rpm/burst on first request.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*rate.Limiter)}
}

// Limiter returns the limiter for portalName, creating one refilled at
// rpm/60 tokens per second with the given burst if it doesn't exist yet.
// Subsequent calls for the same portal return the same limiter regardless
// of the rpm/burst arguments passed.
func (r *Registry) Limiter(portalName string, rpm, burst int) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[portalName]; ok {
		return l
	}
	if rpm < 1 {
		rpm = 1
	}
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
	r.limiters[portalName] = l
	return l
}

// Wait blocks until a token for portalName is available or ctx is
// cancelled. Workers call this at the rate-limit-token suspension point
// named in spec.md §5.
func (r *Registry) Wait(ctx context.Context, portalName string, rpm, burst int) error {
	return r.Limiter(portalName, rpm, burst).Wait(ctx)
}
