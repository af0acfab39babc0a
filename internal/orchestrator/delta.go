package orchestrator

import (
	"context"

	"github.com/tenderwatch/scoutd/internal/model"
)

// selectDepartments implements spec.md §4.5's department-list quick-vs-
// full policy: quick mode visits only departments that are new or whose
// observed tender count differs from what's currently persisted; full
// mode visits every department. Either way it returns a second list
// ("deferred") of departments quick mode would otherwise skip entirely,
// bounded later by cfg.FinalSweepCap as the final verification sweep.
//
// There is no dedicated department_snapshot table in this schema (spec.md
// §4.7 names only runs/tenders); the previous run's observed count is
// instead derived from the live tenders table via
// Datastore.GetDepartmentTenderCounts, which is equivalent for the
// purpose quick delta serves (detecting departments whose content grew)
// without a separate snapshot table to keep in sync.
func (o *Orchestrator) selectDepartments(ctx context.Context, portal model.Portal, depts []model.Department, cfg Config) (visit, deferred []model.Department, err error) {
	if cfg.DepartmentListMode == DepartmentListFull {
		return depts, nil, nil
	}

	prevCounts, err := o.DS.GetDepartmentTenderCounts(ctx, portal.Name)
	if err != nil {
		return nil, nil, err
	}

	for _, d := range depts {
		prev, known := prevCounts[d.NameNorm()]
		switch {
		case !known:
			visit = append(visit, d)
		case d.TenderCount != nil && *d.TenderCount != prev:
			visit = append(visit, d)
		default:
			deferred = append(deferred, d)
		}
	}
	return visit, deferred, nil
}
