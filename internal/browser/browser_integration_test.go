//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tenderwatch/scoutd/internal/browser"
)

// These tests require a real Chrome/Chromium binary and are excluded from
// the default test run; invoke with -tags=integration.

func TestSessionNavigateAndScript(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "<html><body><h1 id=\"h\">hi</h1></body></html>")
	}))
	defer ts.Close()

	cfg := browser.DefaultConfig()
	cfg.NavigationTimeoutMs = 10000
	cfg.DownloadRoot = t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := browser.Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Navigate(ctx, ts.URL, "#h"))

	val, err := s.Script(ctx, `() => document.getElementById('h').innerText`)
	require.NoError(t, err)
	require.Equal(t, "hi", val.String())
}

func TestSessionMarkPoisonedAfterRepeatedFailures(t *testing.T) {
	cfg := browser.DefaultConfig()
	cfg.NavigationTimeoutMs = 500
	cfg.DownloadRoot = t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := browser.Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 3; i++ {
		_ = s.Navigate(ctx, "http://127.0.0.1:1", "")
	}
	require.True(t, s.Poisoned())
}
