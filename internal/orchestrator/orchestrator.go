// Package orchestrator drives the Portal Orchestrator (C6): the
// per-portal lifecycle state machine of spec.md §4.5, generalizing the
// teacher's internal/core/shard_manager.go + internal/core/shards/
// manager.go state-transition-via-method-call style (where a manager
// holds a map of named agents and drives them through a lifecycle) to a
// single portal run driving a Worker Pool through preflight, delta
// computation, scraping, and finalization.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tenderwatch/scoutd/internal/browser"
	"github.com/tenderwatch/scoutd/internal/checkpoint"
	"github.com/tenderwatch/scoutd/internal/clock"
	"github.com/tenderwatch/scoutd/internal/events"
	"github.com/tenderwatch/scoutd/internal/extract"
	"github.com/tenderwatch/scoutd/internal/logging"
	"github.com/tenderwatch/scoutd/internal/model"
	"github.com/tenderwatch/scoutd/internal/ratelimit"
	"github.com/tenderwatch/scoutd/internal/skill"
	"github.com/tenderwatch/scoutd/internal/store"
	"github.com/tenderwatch/scoutd/internal/worker"
)

// State names the per-portal lifecycle state, literally the nodes in
// spec.md §4.5's diagram.
type State string

const (
	StateIdle                 State = "idle"
	StatePreflight            State = "preflight"
	StateFetchingDepartments  State = "fetching_departments"
	StateComputingDelta       State = "computing_delta"
	StateScheduling           State = "scheduling"
	StateScraping             State = "scraping"
	StateFinalizing           State = "finalizing"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
	StateCancelled            State = "cancelled"
)

// DepartmentListMode selects spec.md §4.5's quick-vs-full department-list
// policy.
type DepartmentListMode string

const (
	DepartmentListQuick DepartmentListMode = "quick"
	DepartmentListFull  DepartmentListMode = "full"
)

// Config tunes one Orchestrator instance; most fields pass straight
// through to the components it wires together.
type Config struct {
	ScopeMode             model.RunScopeMode
	DepartmentListMode    DepartmentListMode
	Workers               int
	QueueSize             int
	OpenDepartmentRetries int
	DepartmentRowCeiling  int
	PortalRPM             int
	PortalBurst           int
	CheckpointDir         string
	CheckpointInterval    time.Duration
	FinalSweepCap         int
	BackupRoot            string
	Retention             store.RetentionConfig
	DryRun                bool // preflight + delta only, no extraction (SPEC_FULL §4 supplement)
}

// DefaultConfig mirrors internal/config's defaults for the orchestration
// knobs (spec.md §4.3/§4.4/§4.5/§4.7).
func DefaultConfig() Config {
	return Config{
		ScopeMode:             model.ScopeOnlyNew,
		DepartmentListMode:    DepartmentListQuick,
		Workers:               2,
		QueueSize:             256,
		OpenDepartmentRetries: 3,
		DepartmentRowCeiling:  15000,
		PortalRPM:             30,
		PortalBurst:           5,
		CheckpointDir:         "./data/checkpoints",
		CheckpointInterval:    checkpoint.DefaultInterval,
		FinalSweepCap:         2000,
		BackupRoot:            "./data/backups",
		Retention:             store.DefaultRetention(),
	}
}

// SessionFactory opens a Browser Session for preflight or for a Worker
// Pool member.
type SessionFactory func(ctx context.Context) (*browser.Session, error)

// Orchestrator wires one Datastore, one Skill Registry, one event bus,
// and one rate-limit Registry to drive Runs for any number of portals
// (sequentially; spec.md's scope is one Run per RunPortal call).
type Orchestrator struct {
	DS             *store.Datastore
	Skills         *skill.Registry
	Bus            *events.Bus
	Limiter        *ratelimit.Registry
	SessionFactory SessionFactory
	Clock          clock.Clock

	// ReachabilityCheck overrides preflight's HTTP reachability probe;
	// nil uses a real HTTP HEAD request. Tests substitute a fake so
	// preflight doesn't depend on network access.
	ReachabilityCheck func(ctx context.Context, baseURL string) error
}

// Result is RunPortal's return value: the finalized Run row plus every
// DepartmentResult produced, for CLI reporting.
type Result struct {
	Run               model.Run
	DepartmentResults []model.DepartmentResult
	State             State
}

// RunPortal drives portal through the full lifecycle state machine and
// returns once the run reaches a terminal state (completed/failed/
// cancelled). A fatal-configuration error returns before any Run row is
// created, per spec.md §4.3's "Fail fast before preflight" rule.
func (o *Orchestrator) RunPortal(ctx context.Context, portal model.Portal, cfg Config) (Result, error) {
	log := logging.Get(logging.CategoryPortal)
	state := StateIdle
	defer func() { log.Debug("portal %s: last lifecycle state entered: %s", portal.Name, state) }()

	if portal.Name == "" || portal.BaseURL == "" {
		return Result{State: StateFailed}, browser.Classify(browser.KindFatalConfig,
			fmt.Errorf("portal config invalid: name and base_url are required"))
	}

	sk, err := o.Skills.Build(portal)
	if err != nil {
		return Result{State: StateFailed}, fmt.Errorf("build skill: %w", err)
	}

	o.Bus.Publish(events.LogEvent("orchestrator", "info", fmt.Sprintf("starting run for portal %s", portal.Name)))

	state = StatePreflight
	runID, resumed, cp, err := o.preflight(ctx, portal, cfg)
	if err != nil {
		if ctx.Err() != nil {
			o.Bus.Publish(events.CompleteEvent("orchestrator", "run cancelled"))
			return Result{State: StateCancelled}, nil
		}
		o.Bus.Publish(events.ErrorEvent("orchestrator", "preflight", err.Error()))
		return Result{State: StateFailed}, fmt.Errorf("preflight: %w", err)
	}
	log.Info("portal %s: run %d started (resumed=%v)", portal.Name, runID, resumed)

	var priorProcessed []string
	var priorCounters model.Counters
	var priorTenders []model.Tender
	if resumed && cp != nil {
		priorProcessed = cp.ProcessedDepartmentNamesNorm
		priorCounters = cp.Counters
		priorTenders = cp.AllTenderDetails
	}

	state = StateFetchingDepartments
	preflightSession, err := o.SessionFactory(ctx)
	if err != nil {
		o.finalizeFailed(ctx, runID, err)
		return Result{State: StateFailed}, fmt.Errorf("open preflight session: %w", err)
	}
	depts, err := sk.ListDepartments(ctx, preflightSession)
	preflightSession.Close()
	if err != nil {
		o.finalizeFailed(ctx, runID, err)
		return Result{State: StateFailed}, fmt.Errorf("list departments: %w", err)
	}
	o.Bus.Publish(events.Event{Kind: events.KindLog, WorkerID: "orchestrator", Level: "info",
		Message: fmt.Sprintf("%d departments loaded for %s", len(depts), portal.Name)})

	if len(priorProcessed) > 0 {
		before := len(depts)
		depts = unprocessedDepartments(depts, priorProcessed)
		log.Info("portal %s: resume skips %d already-processed departments", portal.Name, before-len(depts))
	}

	state = StateComputingDelta
	nowIST := clock.NowIST(o.clockOrDefault())
	skipSnapshot, err := o.DS.GetLiveSkipSnapshot(ctx, portal.Name, nowIST)
	if err != nil {
		o.finalizeFailed(ctx, runID, err)
		return Result{State: StateFailed}, fmt.Errorf("get live skip snapshot: %w", err)
	}

	visit, deferred, err := o.selectDepartments(ctx, portal, depts, cfg)
	if err != nil {
		o.finalizeFailed(ctx, runID, err)
		return Result{State: StateFailed}, fmt.Errorf("compute department delta: %w", err)
	}

	if cfg.DryRun {
		o.Bus.Publish(events.CompleteEvent("orchestrator", fmt.Sprintf("dry-run: %d to visit, %d deferred", len(visit), len(deferred))))
		_ = o.DS.FinalizeRun(ctx, runID, model.RunCancelled, fmt.Errorf("dry-run: no extraction performed"))
		return Result{State: StateCancelled}, nil
	}

	state = StateScheduling
	engine := extract.NewEngine(extract.Config{
		OpenDepartmentRetries: cfg.OpenDepartmentRetries,
		DepartmentRowCeiling:  cfg.DepartmentRowCeiling,
		PortalRPM:             cfg.PortalRPM,
		PortalBurst:           cfg.PortalBurst,
	}, o.Limiter)
	pool := worker.New(worker.Config{Workers: cfg.Workers, QueueSize: cfg.QueueSize}, sk, engine, o.SessionFactory, o.Bus, portal.Name)

	saver := &checkpoint.Saver{Dir: cfg.CheckpointDir, Interval: cfg.CheckpointInterval, DS: o.DS}
	saverCtx, cancelSaver := context.WithCancel(ctx)
	go saver.Run(saverCtx, func() checkpoint.Snapshot {
		return snapshotWithPrior(portal.Name, runID, pool.Snapshot(), priorProcessed, priorCounters, priorTenders)
	})

	state = StateScraping
	results := pool.Run(ctx, visit, skipSnapshot)
	cancelSaver()

	state = StateFinalizing
	if len(deferred) > 0 && ctx.Err() == nil {
		sweepCap := cfg.FinalSweepCap
		if sweepCap <= 0 || sweepCap > len(deferred) {
			sweepCap = len(deferred)
		}
		sweepResults := pool.Run(ctx, deferred[:sweepCap], skipSnapshot)
		results = append(results, sweepResults...)
		if sweepCap < len(deferred) {
			log.Warn("portal %s: final verification sweep capped at %d of %d deferred departments", portal.Name, sweepCap, len(deferred))
		}
	}

	finalSnap := snapshotWithPrior(portal.Name, runID, results, priorProcessed, priorCounters, priorTenders)
	counters, allTenders := finalSnap.Counters, finalSnap.AllTenderDetails
	if err := saver.Flush(ctx, finalSnap); err != nil {
		log.Warn("portal %s: final checkpoint flush failed: %v", portal.Name, err)
	}

	if ctx.Err() != nil {
		o.DS.FinalizeRun(ctx, runID, model.RunCancelled, ctx.Err())
		o.Bus.Publish(events.CompleteEvent("orchestrator", "run cancelled"))
		return Result{Run: runFrom(runID, portal.Name, cfg.ScopeMode, counters, model.RunCancelled), DepartmentResults: results, State: StateCancelled}, nil
	}

	status := model.RunCompleted
	var finalErr error
	for _, r := range results {
		if len(r.Errors) > 0 && r.Reason != "oversized" {
			status = model.RunFailed
			finalErr = r.Errors[0]
		}
	}
	if err := o.DS.FinalizeRun(ctx, runID, status, finalErr); err != nil {
		log.Warn("portal %s: finalize_run failed: %v", portal.Name, err)
	}

	if status == model.RunCompleted {
		saver.Delete(portal.Name)
		o.DS.BackupAll(cfg.BackupRoot, cfg.Retention, time.Now())
		o.Bus.Publish(events.CompleteEvent("orchestrator", fmt.Sprintf("portal %s completed: %+v", portal.Name, counters)))
		return Result{Run: runFrom(runID, portal.Name, cfg.ScopeMode, counters, status), DepartmentResults: results, State: StateCompleted}, nil
	}

	o.Bus.Publish(events.ErrorEvent("orchestrator", "run_failed", fmt.Sprintf("%v", finalErr)))
	return Result{Run: runFrom(runID, portal.Name, cfg.ScopeMode, counters, status), DepartmentResults: results, State: StateFailed}, finalErr
}

func (o *Orchestrator) clockOrDefault() clock.Clock {
	if o.Clock != nil {
		return o.Clock
	}
	return clock.System{}
}

// preflight loads any existing checkpoint, adopts it if its run_id is
// still live, otherwise begins a fresh run and verifies reachability with
// a cheap HTTP probe. A plain HTTP check (rather than a full browser
// Session, which the Worker Pool opens per-department anyway) keeps
// preflight fast and avoids paying a browser launch just to discover a
// portal is down. On resume the loaded checkpoint is returned too, so
// RunPortal can skip already-processed departments and reseed its
// accumulator (spec.md §4.5 Resume rule) instead of starting over.
func (o *Orchestrator) preflight(ctx context.Context, portal model.Portal, cfg Config) (runID int64, resumed bool, cp *model.Checkpoint, err error) {
	saver := &checkpoint.Saver{Dir: cfg.CheckpointDir}
	cp, err = saver.Load(portal.Name)
	if err != nil {
		return 0, false, nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp != nil {
		status, err := o.DS.GetRunStatus(ctx, cp.RunID)
		if err == nil && status == model.RunRunning {
			return cp.RunID, true, cp, nil
		}
	}

	if err := o.reachabilityCheck(ctx, portal.BaseURL); err != nil {
		return 0, false, nil, fmt.Errorf("portal unreachable: %w", err)
	}

	newID, err := o.DS.BeginRun(ctx, portal.Name, cfg.ScopeMode)
	if err != nil {
		return 0, false, nil, fmt.Errorf("begin_run: %w", err)
	}
	return newID, false, nil, nil
}

func (o *Orchestrator) reachabilityCheck(ctx context.Context, baseURL string) error {
	if o.ReachabilityCheck != nil {
		return o.ReachabilityCheck(ctx, baseURL)
	}
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, runID int64, cause error) {
	if runID == 0 {
		return
	}
	_ = o.DS.FinalizeRun(ctx, runID, model.RunFailed, cause)
}

// snapshotWithPrior builds a checkpoint.Snapshot from this run's results so
// far plus whatever a resumed run's prior checkpoint already had banked,
// so neither the progress a crash interrupted nor the progress made since
// resuming is ever dropped (spec.md §4.5 Resume rule).
func snapshotWithPrior(portalName string, runID int64, results []model.DepartmentResult, priorProcessed []string, priorCounters model.Counters, priorTenders []model.Tender) checkpoint.Snapshot {
	counters, tenders := aggregate(results)
	counters = mergeCounters(priorCounters, counters)

	allTenders := make([]model.Tender, 0, len(priorTenders)+len(tenders))
	allTenders = append(allTenders, priorTenders...)
	allTenders = append(allTenders, tenders...)

	processed := make([]string, 0, len(priorProcessed)+len(results))
	processed = append(processed, priorProcessed...)
	processed = append(processed, processedDepartmentNames(results)...)

	return checkpoint.Snapshot{
		PortalName:                   portalName,
		RunID:                        runID,
		ProcessedDepartmentNamesNorm: processed,
		AllTenderDetails:             allTenders,
		Counters:                     counters,
	}
}

func processedDepartmentNames(results []model.DepartmentResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Department.NameNorm())
	}
	return names
}

// unprocessedDepartments drops any department already recorded as processed
// in a resumed checkpoint, so RunPortal doesn't re-visit it from scratch.
func unprocessedDepartments(depts []model.Department, processedNorm []string) []model.Department {
	if len(processedNorm) == 0 {
		return depts
	}
	seen := make(map[string]struct{}, len(processedNorm))
	for _, n := range processedNorm {
		seen[n] = struct{}{}
	}
	out := make([]model.Department, 0, len(depts))
	for _, d := range depts {
		if _, done := seen[d.NameNorm()]; done {
			continue
		}
		out = append(out, d)
	}
	return out
}

func mergeCounters(a, b model.Counters) model.Counters {
	return model.Counters{
		ExpectedTotalTenders:    a.ExpectedTotalTenders + b.ExpectedTotalTenders,
		ExtractedTotalTenders:   a.ExtractedTotalTenders + b.ExtractedTotalTenders,
		SkippedExistingTotal:    a.SkippedExistingTotal + b.SkippedExistingTotal,
		ChangedClosingDateCount: a.ChangedClosingDateCount + b.ChangedClosingDateCount,
	}
}

func aggregate(results []model.DepartmentResult) (model.Counters, []model.Tender) {
	var counters model.Counters
	var tenders []model.Tender
	for _, r := range results {
		counters.ExpectedTotalTenders += r.Expected
		counters.ExtractedTotalTenders += r.Extracted
		counters.SkippedExistingTotal += r.SkippedExisting
		counters.ChangedClosingDateCount += r.ChangedClosing
		tenders = append(tenders, r.Tenders...)
	}
	return counters, tenders
}

func runFrom(runID int64, portalName string, scopeMode model.RunScopeMode, counters model.Counters, status model.RunStatus) model.Run {
	return model.Run{
		ID:                      runID,
		PortalName:              portalName,
		ScopeMode:               scopeMode,
		Status:                  status,
		ExpectedTotalTenders:    counters.ExpectedTotalTenders,
		ExtractedTotalTenders:   counters.ExtractedTotalTenders,
		SkippedExistingTotal:    counters.SkippedExistingTotal,
		ChangedClosingDateCount: counters.ChangedClosingDateCount,
	}
}
