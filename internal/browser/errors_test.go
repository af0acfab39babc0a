package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyNilIsNil(t *testing.T) {
	require.NoError(t, Classify(KindTransient, nil))
}

func TestKindOfRoundTrips(t *testing.T) {
	err := Classify(KindCaptcha, errors.New("login wall"))
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindCaptcha, kind)
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(Classify(KindTransient, errors.New("timeout"))))
	require.True(t, IsRetryable(Classify(KindStaleElement, errors.New("stale"))))
	require.False(t, IsRetryable(Classify(KindFatal, errors.New("nope"))))
	require.False(t, IsRetryable(errors.New("unclassified")))
}

func TestClassifyNavErrorTimeout(t *testing.T) {
	require.Equal(t, KindTransient, classifyNavError(context.DeadlineExceeded))
	require.Equal(t, KindTransient, classifyNavError(errors.New("navigation timeout exceeded")))
	require.Equal(t, KindStaleElement, classifyNavError(errors.New("element is stale")))
	require.Equal(t, KindFatal, classifyNavError(errors.New("unknown protocol error")))
}
