// Package skill defines the Portal Skill contract (C2) and a Registry
// mapping skill_id to a concrete implementation, generalizing the
// teacher's polymorphic shard-factory pattern
// (internal/core/shards/manager.go RegisterShard/factories) from shard
// types to portal families: adding a new portal family means registering
// a new Skill, not adding branches to a monolithic scraper.
package skill

import (
	"context"
	"fmt"
	"sync"

	"github.com/tenderwatch/scoutd/internal/browser"
	"github.com/tenderwatch/scoutd/internal/model"
)

// Skill encapsulates all portal-specific extraction knowledge behind a
// fixed capability set (spec.md §4.1).
type Skill interface {
	// ListDepartments returns the portal's departments in deterministic,
	// portal-table order. May use an HTTP+HTML fast path or a driven
	// browser, transparently to the caller.
	ListDepartments(ctx context.Context, session *browser.Session) ([]model.Department, error)

	// OpenDepartment navigates to dept's tender list page. ok is false
	// if the department could not be opened (not itself an error worth
	// surfacing past the Extraction Engine's retry loop).
	OpenDepartment(ctx context.Context, session *browser.Session, dept model.Department) (bool, error)

	// ExtractTenderIDs returns every tender id shown for the currently
	// open department, traversing pagination and deduplicating within
	// the page set.
	ExtractTenderIDs(ctx context.Context, session *browser.Session) ([]string, error)

	// ExtractTenderDetails returns the full record for tenderID, or nil
	// (not an error) if the row vanished mid-scrape ("soft miss").
	ExtractTenderDetails(ctx context.Context, session *browser.Session, tenderID string) (*model.Tender, error)

	// DetectFastChange is an optional cheap check (HEAD/hash) reporting
	// whether the department list is known to have changed since the
	// last run. An "unknown" result must never block a run.
	DetectFastChange(ctx context.Context, portal model.Portal) (ChangeStatus, error)
}

// ChangeStatus is the result of a Skill's cheap change-detection probe.
type ChangeStatus string

const (
	ChangeChanged   ChangeStatus = "changed"
	ChangeUnchanged ChangeStatus = "unchanged"
	ChangeUnknown   ChangeStatus = "unknown"
)

// Factory constructs a Skill instance from a Portal's configuration.
type Factory func(portal model.Portal) (Skill, error)

// Registry maps skill_id to a Factory, mirroring the teacher's
// ShardManager.RegisterShard/factories map.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds factory under skillID, overwriting any prior
// registration for the same id.
func (r *Registry) Register(skillID string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[skillID] = factory
}

// Build constructs the Skill for portal.SkillID. Returns a fatal-config
// error (spec.md §7) if no factory is registered for that id.
func (r *Registry) Build(portal model.Portal) (Skill, error) {
	r.mu.RLock()
	factory, ok := r.factories[portal.SkillID]
	r.mu.RUnlock()
	if !ok {
		return nil, browser.Classify(browser.KindFatalConfig,
			fmt.Errorf("no skill registered for skill_id %q (portal %q)", portal.SkillID, portal.Name))
	}
	return factory(portal)
}

// List returns the registered skill ids, for diagnostics/list-portals.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	return ids
}
