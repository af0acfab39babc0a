package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishAndReceive(t *testing.T) {
	b := NewBus(4)
	b.Publish(LogEvent("w1", "info", "hello"))

	ev := <-b.Events()
	require.Equal(t, KindLog, ev.Kind)
	require.Equal(t, "hello", ev.Message)

	stats := b.Stats()
	require.Equal(t, int64(1), stats.Delivered)
	require.Equal(t, int64(0), stats.Dropped)
}

func TestPublishNeverBlocksOnFullBus(t *testing.T) {
	b := NewBus(2)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(ProgressEvent("w1", "dept", i, 100))
		}
		close(done)
	}()

	select {
	case <-done:
	default:
	}
	<-done // completes without blocking the test (no consumer draining)

	stats := b.Stats()
	require.True(t, stats.Dropped > 0, "expected drops once bus saturates")
	require.Equal(t, 2, stats.Capacity)
}

func TestErrorEventsSurviveOverflow(t *testing.T) {
	b := NewBus(1)
	b.Publish(ErrorEvent("w1", "captcha_required", "detected"))
	// Filling further should not evict the queued error.
	b.Publish(LogEvent("w1", "info", "noise"))
	b.Publish(LogEvent("w1", "info", "more noise"))

	ev := <-b.Events()
	require.Equal(t, KindError, ev.Kind)
}

func TestStatsDepth(t *testing.T) {
	b := NewBus(8)
	b.Publish(LogEvent("w1", "info", "a"))
	b.Publish(LogEvent("w1", "info", "b"))

	stats := b.Stats()
	require.Equal(t, 2, stats.Depth)
}
