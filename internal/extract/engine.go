// Package extract implements the Extraction Engine (C4): applying one
// Portal Skill to one Browser Session for one department, per spec.md
// §4.3's algorithm exactly, including the oversized-department ceiling
// and the changed-closing-date accounting. Its typed DepartmentResult
// return value follows the teacher's "typed result values at capability
// boundaries" design note, itself patterned on spawn_queue.go's
// SpawnResult.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/tenderwatch/scoutd/internal/browser"
	"github.com/tenderwatch/scoutd/internal/logging"
	"github.com/tenderwatch/scoutd/internal/model"
	"github.com/tenderwatch/scoutd/internal/normalize"
	"github.com/tenderwatch/scoutd/internal/ratelimit"
	"github.com/tenderwatch/scoutd/internal/skill"
)

// SkipSnapshot is the live-tender skip set: normalized tender id →
// normalized closing-date text, as returned by Datastore's
// get_live_skip_snapshot (spec.md §4.5/§4.7).
type SkipSnapshot map[string]string

// Config tunes engine-level behavior independent of any one Skill.
type Config struct {
	OpenDepartmentRetries int
	DepartmentRowCeiling  int
	PortalRPM             int
	PortalBurst           int
}

// DefaultConfig returns the engine defaults named in spec.md §4.3/§4.4.
func DefaultConfig() Config {
	return Config{
		OpenDepartmentRetries: 3,
		DepartmentRowCeiling:  15000,
		PortalRPM:             30,
		PortalBurst:           5,
	}
}

// Engine runs departments end-to-end against one Session using one Skill.
type Engine struct {
	cfg     Config
	limiter *ratelimit.Registry
}

// NewEngine constructs an Engine sharing limiter across every department
// it runs (limiter buckets are per-portal, shared by every worker on that
// portal per spec.md §5).
func NewEngine(cfg Config, limiter *ratelimit.Registry) *Engine {
	return &Engine{cfg: cfg, limiter: limiter}
}

// RunDepartment executes spec.md §4.3's algorithm for one department and
// returns a DepartmentResult — never an error for ordinary scraping
// failures, which are instead recorded inside the result so the caller
// (Worker Pool / Orchestrator) can continue with the rest of the run.
func (e *Engine) RunDepartment(
	ctx context.Context,
	sk skill.Skill,
	session *browser.Session,
	portalName string,
	dept model.Department,
	skipSnapshot SkipSnapshot,
	changedThisRun map[model.TenderKey]struct{},
) model.DepartmentResult {
	log := logging.Get(logging.CategoryExtract)
	start := time.Now()
	result := model.DepartmentResult{Department: dept}

	opened, err := e.openWithRetries(ctx, sk, session, dept)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("open department %s: %w", dept.Name, err))
		result.Duration = time.Since(start)
		return result
	}
	if !opened {
		result.Errors = append(result.Errors, fmt.Errorf("could not open department %s", dept.Name))
		result.Duration = time.Since(start)
		return result
	}

	tenderIDs, err := sk.ExtractTenderIDs(ctx, session)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("extract tender ids %s: %w", dept.Name, err))
		result.Duration = time.Since(start)
		return result
	}
	result.Expected = len(tenderIDs)

	if result.Expected == 0 {
		result.Duration = time.Since(start)
		return result
	}

	if e.cfg.DepartmentRowCeiling > 0 && result.Expected > e.cfg.DepartmentRowCeiling {
		log.Warn("department %s: %d rows exceeds ceiling %d, skipping", dept.Name, result.Expected, e.cfg.DepartmentRowCeiling)
		result.Reason = "oversized"
		result.Duration = time.Since(start)
		return result
	}

	for _, rawID := range tenderIDs {
		normID := normalize.NormalizeTenderID(rawID)
		if normalize.IsInvalidTenderID(normID) {
			continue
		}

		if ctx.Err() != nil {
			break // cancellation observed at this suspension point
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, portalName, e.cfg.PortalRPM, e.cfg.PortalBurst); err != nil {
				break
			}
		}

		details, err := sk.ExtractTenderDetails(ctx, session, normID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("extract details %s/%s: %w", dept.Name, normID, err))
			continue
		}
		if details == nil {
			result.SoftMiss++
			continue
		}

		key := model.TenderKey{PortalNorm: normalize.NormalizePortalName(portalName), TenderIDNorm: normID}
		prevClosing, known := skipSnapshot[normID]
		closingNorm := normalize.NormalizePortalName(details.ClosingAtText) // trim+lowercase used as a stable text comparison

		switch {
		case known && prevClosing == closingNorm:
			result.SkippedExisting++
			continue
		case known && prevClosing != closingNorm:
			if _, already := changedThisRun[key]; !already {
				changedThisRun[key] = struct{}{}
				result.ChangedClosing++
			}
		}

		result.Tenders = append(result.Tenders, *details)
		result.Extracted++
	}

	result.Duration = time.Since(start)
	return result
}

func (e *Engine) openWithRetries(ctx context.Context, sk skill.Skill, session *browser.Session, dept model.Department) (bool, error) {
	retries := e.cfg.OpenDepartmentRetries
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		ok, err := sk.OpenDepartment(ctx, session, dept)
		if err == nil {
			return ok, nil
		}
		lastErr = err
		if !browser.IsRetryable(err) {
			return false, err
		}
	}
	return false, lastErr
}
