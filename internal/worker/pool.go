// Package worker implements the Worker Pool (C5): W goroutines, each
// owning one Browser Session for the pool's whole lifetime, consuming
// Department tasks from a single bounded FIFO channel. Restart-on-crash
// and pool-shrink-on-repeated-poisoning bookkeeping generalizes the
// teacher's internal/core/shards/spawn_queue.go worker-restart discipline
// from a priority queue into this fixed-size session-owning shape.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tenderwatch/scoutd/internal/browser"
	"github.com/tenderwatch/scoutd/internal/events"
	"github.com/tenderwatch/scoutd/internal/extract"
	"github.com/tenderwatch/scoutd/internal/logging"
	"github.com/tenderwatch/scoutd/internal/model"
	"github.com/tenderwatch/scoutd/internal/skill"
)

// maxConsecutivePoisonings is the spec.md §4.4 "a worker that crashes is
// restarted up to 2 times; a third failure marks the Session poisoned
// and shrinks the pool" rule.
const maxConsecutivePoisonings = 3

// SessionFactory opens a fresh Browser Session for a worker. Called once
// at worker startup and again whenever a worker's Session is discarded
// as poisoned.
type SessionFactory func(ctx context.Context) (*browser.Session, error)

// Config tunes the pool's size and queue depth.
type Config struct {
	Workers   int // [1,8] per spec.md §4.4
	QueueSize int
}

// Pool runs Department tasks against one Skill across Workers parallel
// Browser Sessions.
type Pool struct {
	cfg            Config
	skill          skill.Skill
	engine         *extract.Engine
	sessionFactory SessionFactory
	bus            *events.Bus
	portalName     string

	mu      sync.Mutex
	results []model.DepartmentResult

	changedMu   sync.Mutex
	changedSeen map[model.TenderKey]struct{}

	activeWorkers atomic.Int32
}

// New constructs a Pool. The Pool creates and owns the per-run changed-key
// set; it and the skipSnapshot given to Run are passed through to every
// RunDepartment call so the changed-closing-date count is deduped across
// the whole run, not per worker.
func New(cfg Config, sk skill.Skill, engine *extract.Engine, sessionFactory SessionFactory, bus *events.Bus, portalName string) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Workers > 8 {
		cfg.Workers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Pool{
		cfg:            cfg,
		skill:          sk,
		engine:         engine,
		sessionFactory: sessionFactory,
		bus:            bus,
		portalName:     portalName,
		changedSeen:    make(map[model.TenderKey]struct{}),
	}
}

// Run enqueues departments in the given order (spec.md §4.4: no
// pre-shuffling, departments visited in portal order) and blocks until
// every worker has drained the queue or ctx is cancelled — the
// "completion barrier" the calling (orchestrator) thread suspends on.
func (p *Pool) Run(ctx context.Context, departments []model.Department, skipSnapshot extract.SkipSnapshot) []model.DepartmentResult {
	log := logging.Get(logging.CategoryWorker)

	// Run is called once per visit pass (the initial visit, then again for
	// the final verification sweep) against the same Pool, so tasks and
	// results must be reset on every call rather than only at New().
	tasks := make(chan model.Department, p.cfg.QueueSize)
	p.mu.Lock()
	p.results = nil
	p.mu.Unlock()

	go func() {
		for _, d := range departments {
			select {
			case tasks <- d:
			case <-ctx.Done():
				close(tasks)
				return
			}
		}
		close(tasks)
	}()

	var g errgroup.Group
	for i := 0; i < p.cfg.Workers; i++ {
		id := fmt.Sprintf("w%d", i)
		g.Go(func() error {
			p.activeWorkers.Add(1)
			defer p.activeWorkers.Add(-1)
			return p.runWorker(ctx, id, tasks, skipSnapshot)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("worker pool: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results
}

// Snapshot returns a copy of the results collected so far, safe to call
// concurrently with an in-flight Run — the Checkpoint Saver's SnapshotFunc
// calls this every tick.
func (p *Pool) Snapshot() []model.DepartmentResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.DepartmentResult, len(p.results))
	copy(out, p.results)
	return out
}

// runWorker drives one worker's lifetime: open a Session, process tasks
// until the queue drains or ctx cancels, restarting on panic up to
// maxConsecutivePoisonings-1 times before giving up on this worker slot
// (the pool shrinks by one).
func (p *Pool) runWorker(ctx context.Context, id string, tasks chan model.Department, skipSnapshot extract.SkipSnapshot) error {
	log := logging.Get(logging.CategoryWorker)

	session, err := p.sessionFactory(ctx)
	if err != nil {
		p.bus.Publish(events.ErrorEvent(id, "session_open", err.Error()))
		return fmt.Errorf("worker %s: open session: %w", id, err)
	}
	defer session.Close()

	consecutivePoisonings := 0
	for {
		select {
		case dept, ok := <-tasks:
			if !ok {
				p.bus.Publish(events.CompleteEvent(id, "queue drained"))
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}

			if session.Poisoned() {
				session.Close()
				fresh, err := p.sessionFactory(ctx)
				if err != nil {
					consecutivePoisonings++
					if consecutivePoisonings >= maxConsecutivePoisonings {
						log.Error("worker %s: session poisoned %d times, shrinking pool", id, consecutivePoisonings)
						return fmt.Errorf("worker %s: repeated poisoning: %w", id, err)
					}
					continue
				}
				session = fresh
			}

			result := p.processTaskRecovering(ctx, id, session, dept, skipSnapshot)

			p.mu.Lock()
			p.results = append(p.results, result)
			p.mu.Unlock()

			p.bus.Publish(events.ProgressEvent(id, dept.Name, result.Extracted, result.Expected))
			p.bus.Publish(events.HeartbeatEvent(id, "department:"+dept.Name))

			if session.Poisoned() {
				consecutivePoisonings++
				if consecutivePoisonings >= maxConsecutivePoisonings {
					log.Error("worker %s: session poisoned %d times, shrinking pool", id, consecutivePoisonings)
					return fmt.Errorf("worker %s: session poisoned %d times in a row", id, consecutivePoisonings)
				}
			} else {
				consecutivePoisonings = 0
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// processTaskRecovering runs one department, converting a panic in the
// Skill/Session call chain into a poisoned session plus a DepartmentResult
// carrying the recovered error, instead of crashing the worker goroutine.
func (p *Pool) processTaskRecovering(ctx context.Context, workerID string, session *browser.Session, dept model.Department, skipSnapshot extract.SkipSnapshot) (result model.DepartmentResult) {
	defer func() {
		if r := recover(); r != nil {
			session.MarkPoisoned()
			result = model.DepartmentResult{
				Department: dept,
				Errors:     []error{fmt.Errorf("panic in department %s: %v", dept.Name, r)},
			}
			p.bus.Publish(events.ErrorEvent(workerID, "panic", fmt.Sprintf("%v", r)))
		}
	}()

	// Held for the whole call: RunDepartment reads and writes changedSeen.
	p.changedMu.Lock()
	defer p.changedMu.Unlock()

	return p.engine.RunDepartment(ctx, p.skill, session, p.portalName, dept, skipSnapshot, p.changedSeen)
}
