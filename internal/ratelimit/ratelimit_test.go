package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterReusedForSamePortal(t *testing.T) {
	r := NewRegistry()
	a := r.Limiter("HP", 60, 5)
	b := r.Limiter("HP", 120, 20)
	require.Same(t, a, b, "second call must reuse the first limiter, ignoring new rpm/burst")
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	r := NewRegistry()
	// Burst of 1 at a very low rate so the second Wait call blocks.
	l := r.Limiter("SLOW", 1, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Wait(ctx, "SLOW", 1, 1)
	require.Error(t, err)
}

func TestDistinctPortalsGetDistinctLimiters(t *testing.T) {
	r := NewRegistry()
	a := r.Limiter("PORTAL_A", 60, 5)
	b := r.Limiter("PORTAL_B", 60, 5)
	require.NotSame(t, a, b)
}
