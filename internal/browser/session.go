// Package browser owns one browser instance per Session, each with its
// own download directory and a guaranteed-release lifecycle, trimmed
// from the teacher's internal/browser/session_manager.go (which tracked
// many sessions under one shared *rod.Browser) down to spec.md §4.2's
// one-Session-per-worker shape: C5's Worker Pool owns exactly one Session
// per worker for that worker's whole lifetime, so there is no multi-
// session registry here — just open/navigate/script/screenshot/close.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/tenderwatch/scoutd/internal/logging"
)

// Config controls how a Session's underlying browser is launched.
type Config struct {
	DebuggerURL         string
	Launch              []string
	Headless            bool
	ViewportWidth       int
	ViewportHeight      int
	NavigationTimeoutMs int
	DownloadRoot        string
}

// DefaultConfig returns the production browser configuration.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
		DownloadRoot:        "./data/downloads",
	}
}

// IsHeadless reports the headless setting.
func (c Config) IsHeadless() bool { return c.Headless }

// NavigationTimeout returns the configured navigation timeout, defaulting
// to 30s when unset.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// Session owns one browser instance and one dedicated download directory.
// A poisoned Session must be discarded (Close) and replaced; it must
// never be reused for a further department.
type Session struct {
	ID          string
	cfg         Config
	browser     *rod.Browser
	page        *rod.Page
	downloadDir string
	poisoned    atomic.Bool
	failures    atomic.Int32
}

// Open launches (or connects to) a browser, creates a scoped download
// directory, and opens a blank page. Callers must defer Close to
// guarantee the browser and download directory are released even if a
// later step panics.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	id := uuid.NewString()

	downloadDir := filepath.Join(cfg.DownloadRoot, id)
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return nil, Classify(KindFatal, fmt.Errorf("create download dir: %w", err))
	}

	controlURL := cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.IsHeadless())
		if len(cfg.Launch) > 0 {
			l = l.Bin(cfg.Launch[0])
			for _, rawFlag := range cfg.Launch[1:] {
				name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
				if hasVal {
					l = l.Set(flags.Flag(name), val)
				} else {
					l = l.Set(flags.Flag(name))
				}
			}
		}
		url, err := l.Launch()
		if err != nil {
			os.RemoveAll(downloadDir)
			return nil, Classify(KindFatal, fmt.Errorf("launch browser: %w", err))
		}
		controlURL = url
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		os.RemoveAll(downloadDir)
		return nil, Classify(KindTransient, fmt.Errorf("connect browser: %w", err))
	}

	p, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		os.RemoveAll(downloadDir)
		return nil, Classify(KindTransient, fmt.Errorf("open blank page: %w", err))
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.ViewportWidth,
			Height:            cfg.ViewportHeight,
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		}).Call(p); err != nil {
			logging.Get(logging.CategoryBrowser).Warn("session %s: set viewport: %v", id, err)
		}
	}

	return &Session{
		ID:          id,
		cfg:         cfg,
		browser:     b,
		page:        p,
		downloadDir: downloadDir,
	}, nil
}

// Close releases the browser and removes the session's download
// directory. Safe to call multiple times; best-effort (errors logged,
// never returned — spec.md §4.2's guaranteed-release discipline means
// Close itself cannot fail the caller's cleanup path).
func (s *Session) Close() {
	log := logging.Get(logging.CategoryBrowser)
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			log.Warn("session %s: close browser: %v", s.ID, err)
		}
	}
	if s.downloadDir != "" {
		if err := os.RemoveAll(s.downloadDir); err != nil {
			log.Warn("session %s: remove download dir: %v", s.ID, err)
		}
	}
}

// Poisoned reports whether this Session has been marked unusable.
func (s *Session) Poisoned() bool { return s.poisoned.Load() }

// MarkPoisoned flags the Session as unusable; the Worker Pool must
// discard and replace it rather than assign further departments to it.
func (s *Session) MarkPoisoned() { s.poisoned.Store(true) }

// DownloadDir returns the session's scoped download directory.
func (s *Session) DownloadDir() string { return s.downloadDir }

// Page exposes the underlying rod.Page for Skill implementations that
// need capabilities beyond Navigate/Script/Screenshot (e.g. pagination
// clicks). Skills must not close or replace this page directly.
func (s *Session) Page() *rod.Page { return s.page }
