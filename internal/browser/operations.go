package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/tenderwatch/scoutd/internal/logging"
)

// consecutivePoisonThreshold is how many navigation failures in a row
// mark a Session poisoned (spec.md §4.2 "repeated unresponsive page").
const consecutivePoisonThreshold = 3

// Navigate loads url and, if waitForSelector is non-empty, waits for
// that selector to appear before returning. Failures are classified by
// classifyNavError: timeouts and cancellation are transient, stale-element
// errors are KindStaleElement, and anything else is fatal for this
// department.
func (s *Session) Navigate(ctx context.Context, url, waitForSelector string) error {
	page := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout())

	if err := page.Navigate(url); err != nil {
		s.recordFailure()
		return Classify(classifyNavError(err), fmt.Errorf("navigate %s: %w", url, err))
	}

	if err := page.WaitLoad(); err != nil {
		s.recordFailure()
		return Classify(classifyNavError(err), fmt.Errorf("wait load %s: %w", url, err))
	}

	if waitForSelector != "" {
		if _, err := page.Element(waitForSelector); err != nil {
			s.recordFailure()
			return Classify(classifyNavError(err), fmt.Errorf("wait for %q: %w", waitForSelector, err))
		}
	}

	s.resetFailures()
	return nil
}

// Script evaluates js in-page with args bound as the function's
// arguments, returning the decoded JSON value. Used by the Portal
// Skill's batched-extraction fast path.
func (s *Session) Script(ctx context.Context, js string, args ...interface{}) (gson.JSON, error) {
	res, err := s.page.Context(ctx).Eval(js, args...)
	if err != nil {
		s.recordFailure()
		return gson.JSON{}, Classify(KindTransient, fmt.Errorf("eval script: %w", err))
	}
	s.resetFailures()
	return res.Value, nil
}

// Screenshot writes a best-effort PNG screenshot to path. Failures are
// logged, never returned — spec.md §4.2 requires screenshot failures to
// never propagate to the caller.
func (s *Session) Screenshot(path string) {
	data, err := s.page.Screenshot(true, nil)
	if err != nil {
		logging.Get(logging.CategoryBrowser).Warn("session %s: screenshot: %v", s.ID, err)
		return
	}
	if err := writeFile(path, data); err != nil {
		logging.Get(logging.CategoryBrowser).Warn("session %s: write screenshot %s: %v", s.ID, path, err)
	}
}

// Click clicks the element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		s.recordFailure()
		return Classify(classifyNavError(err), fmt.Errorf("find %q: %w", selector, err))
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		s.recordFailure()
		return Classify(KindTransient, fmt.Errorf("click %q: %w", selector, err))
	}
	s.resetFailures()
	return nil
}

func (s *Session) recordFailure() {
	s.failures.Add(1)
	if s.failures.Load() >= consecutivePoisonThreshold {
		s.MarkPoisoned()
	}
}

func (s *Session) resetFailures() {
	s.failures.Store(0)
}

// classifyNavError maps a rod/CDP error to a Kind. Context deadline or
// cancellation, and messages mentioning a timeout or a canceled context,
// are transient; messages mentioning a stale element are
// KindStaleElement; everything else is treated as fatal for the current
// department (the Extraction Engine decides whether to retry at the
// department level).
func classifyNavError(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "context canceled") {
		return KindTransient
	}
	if strings.Contains(msg, "stale") {
		return KindStaleElement
	}
	return KindFatal
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
