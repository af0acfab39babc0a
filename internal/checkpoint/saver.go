// Package checkpoint implements the Checkpoint Saver (C7): a single
// background ticker per active Run providing crash-safe incremental
// durability with bounded data loss (spec.md §4.6). The atomic
// temp-file+rename write is grounded on the teacher's cmd/nerd/
// cmd_init_scan.go writeFacts path (write to path+".tmp", then
// os.Rename, cleaning up the temp file on failure).
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tenderwatch/scoutd/internal/logging"
	"github.com/tenderwatch/scoutd/internal/model"
	"github.com/tenderwatch/scoutd/internal/store"
)

// Snapshot is a point-in-time copy of a Run's accumulator, taken by the
// Orchestrator and handed to the Saver each tick.
type Snapshot struct {
	PortalName                  string
	RunID                       int64
	ProcessedDepartmentNamesNorm []string
	AllTenderDetails            []model.Tender
	Counters                    model.Counters
}

// SnapshotFunc is called once per tick to obtain the current accumulator
// state. It must be safe to call concurrently with the orchestrator's own
// writes (the orchestrator is expected to guard its accumulator with a
// mutex and return a copy).
type SnapshotFunc func() Snapshot

// Saver ticks every Interval, writing a durable checkpoint file and
// upserting its tenders into the Datastore.
type Saver struct {
	Dir      string // e.g. "./data/checkpoints"
	Interval time.Duration
	DS       *store.Datastore
}

// DefaultInterval is spec.md §4.6's default flush period.
const DefaultInterval = 120 * time.Second

// Run drives the ticker until ctx is cancelled. It never returns an error;
// per-tick failures are logged and retried on the next tick, per spec.md
// §4.6 step 5.
func (s *Saver) Run(ctx context.Context, snapshot SnapshotFunc) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := logging.Get(logging.CategoryCheckpoint)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.flush(ctx, snapshot()); err != nil {
				log.Warn("checkpoint flush failed, retrying next tick: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Flush performs one flush immediately (used for the orchestrator's final
// flush-before-finalize, in addition to the ticked background flushes).
func (s *Saver) Flush(ctx context.Context, snap Snapshot) error {
	return s.flush(ctx, snap)
}

func (s *Saver) flush(ctx context.Context, snap Snapshot) error {
	if err := s.writeFile(snap); err != nil {
		return fmt.Errorf("write checkpoint file: %w", err)
	}

	if s.DS != nil {
		if _, err := s.DS.ReplaceRunTenders(ctx, snap.RunID, snap.PortalName, snap.AllTenderDetails); err != nil {
			return fmt.Errorf("replace run tenders: %w", err)
		}
		if err := s.DS.UpdateRunProgress(ctx, snap.RunID, snap.Counters); err != nil {
			return fmt.Errorf("update run progress: %w", err)
		}
	}
	return nil
}

// writeFile performs the atomic temp-file+rename durability step.
func (s *Saver) writeFile(snap Snapshot) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.Marshal(toModelCheckpoint(snap))
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	path := s.pathFor(snap.PortalName)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func toModelCheckpoint(snap Snapshot) model.Checkpoint {
	return model.Checkpoint{
		PortalName:                   snap.PortalName,
		RunID:                        snap.RunID,
		SavedAtISO:                   time.Now(),
		ProcessedDepartmentNamesNorm: snap.ProcessedDepartmentNamesNorm,
		AllTenderDetails:             snap.AllTenderDetails,
		Counters:                     snap.Counters,
	}
}

// Load reads a portal's checkpoint file, if any. A missing file is not an
// error: it returns (nil, nil) so callers can treat "no checkpoint" as the
// common case of starting fresh.
func (s *Saver) Load(portalName string) (*model.Checkpoint, error) {
	data, err := os.ReadFile(s.pathFor(portalName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes a portal's checkpoint file on clean finalization. A
// missing file is not an error.
func (s *Saver) Delete(portalName string) error {
	err := os.Remove(s.pathFor(portalName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

func (s *Saver) pathFor(portalName string) string {
	slug := slugify(portalName)
	return filepath.Join(s.Dir, slug+"_checkpoint.json")
}

func slugify(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
