package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tenderwatch/scoutd/internal/browser"
	"github.com/tenderwatch/scoutd/internal/csvconfig"
	"github.com/tenderwatch/scoutd/internal/events"
	"github.com/tenderwatch/scoutd/internal/orchestrator"
	"github.com/tenderwatch/scoutd/internal/ratelimit"
	"github.com/tenderwatch/scoutd/internal/skill"
	"github.com/tenderwatch/scoutd/internal/skill/nic"
	"github.com/tenderwatch/scoutd/internal/store"
)

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run <portal>",
	Short: "Run one full scrape for the named portal (spec.md §4.5)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPortal(cmd.Context(), args[0], dryRun)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <portal>",
	Short: "Resume the named portal's in-progress run from its last checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Orchestrator.RunPortal's preflight step already adopts a live
		// checkpoint automatically (spec.md §4.5's resume rule); resume
		// is a distinct verb purely to make operator intent explicit.
		return runPortal(cmd.Context(), args[0], false)
	},
}

func runPortal(ctx context.Context, portalName string, isDryRun bool) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	portals, err := csvconfig.Load(cfg.PortalsFile)
	if err != nil {
		return fmt.Errorf("load portals: %w", err)
	}
	portal, ok := csvconfig.FindByName(portals, portalName)
	if !ok {
		return fmt.Errorf("portal %q not found in %s", portalName, cfg.PortalsFile)
	}

	ds, err := store.Open(cfg.Datastore.Path, nil)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer ds.Close()

	registry := skill.NewRegistry()
	registry.Register("nic", nic.Factory(nic.Config{
		JSBatchThreshold: cfg.Scrape.JSBatchThreshold,
		JSBatchSize:      cfg.Scrape.JSBatchSize,
	}))

	bus := events.NewBus(events.DefaultCapacity)
	go printEvents(bus)

	dataRoot := filepath.Dir(cfg.Datastore.Path)

	browserCfg := browser.DefaultConfig()
	browserCfg.NavigationTimeoutMs = cfg.Scrape.NavigationTimeoutMs
	browserCfg.DownloadRoot = filepath.Join(dataRoot, "downloads")

	o := &orchestrator.Orchestrator{
		DS:      ds,
		Skills:  registry,
		Bus:     bus,
		Limiter: ratelimit.NewRegistry(),
		SessionFactory: func(ctx context.Context) (*browser.Session, error) {
			return browser.Open(ctx, browserCfg)
		},
	}

	ocfg := orchestrator.DefaultConfig()
	ocfg.Workers = cfg.Scrape.Workers
	ocfg.OpenDepartmentRetries = cfg.Scrape.RetriesPerDepartment
	ocfg.DepartmentRowCeiling = cfg.Scrape.DepartmentRowCeiling
	ocfg.FinalSweepCap = cfg.Scrape.FinalSweepCap
	ocfg.CheckpointDir = filepath.Join(dataRoot, "checkpoints")
	ocfg.CheckpointInterval = time.Duration(cfg.Checkpoint.IntervalSeconds) * time.Second
	ocfg.BackupRoot = cfg.Datastore.BackupDir
	ocfg.Retention = store.RetentionConfig{
		Daily:   cfg.Backup.Retention.Daily,
		Weekly:  cfg.Backup.Retention.Weekly,
		Monthly: cfg.Backup.Retention.Monthly,
		Yearly:  cfg.Backup.Retention.Yearly,
	}
	ocfg.DryRun = isDryRun
	if portal.RateLimitRPM > 0 {
		ocfg.PortalRPM = portal.RateLimitRPM
	} else {
		ocfg.PortalRPM = cfg.RateLimit.DefaultRPM
	}
	ocfg.PortalBurst = cfg.RateLimit.DefaultBurst

	result, err := o.RunPortal(ctx, portal, ocfg)
	bus.Close()
	if err != nil {
		return fmt.Errorf("portal %s: %w", portal.Name, err)
	}
	fmt.Printf("portal %s: %s (expected=%d extracted=%d skipped=%d changed=%d)\n",
		portal.Name, result.State,
		result.Run.ExpectedTotalTenders, result.Run.ExtractedTotalTenders,
		result.Run.SkippedExistingTotal, result.Run.ChangedClosingDateCount)
	if result.State == orchestrator.StateFailed {
		return fmt.Errorf("run failed for portal %s", portal.Name)
	}
	return nil
}

// printEvents drains the bus to stderr, the CLI's equivalent of the
// teacher's chat UI status line, until the bus is closed.
func printEvents(bus *events.Bus) {
	for ev := range bus.Events() {
		switch ev.Kind {
		case events.KindLog:
			fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", ev.Level, ev.WorkerID, ev.Message)
		case events.KindProgress:
			fmt.Fprintf(os.Stderr, "[progress] %s/%s: %d/%d\n", ev.WorkerID, ev.Dept, ev.Current, ev.Total)
		case events.KindComplete:
			fmt.Fprintf(os.Stderr, "[done] %s: %s\n", ev.WorkerID, ev.Summary)
		case events.KindError:
			fmt.Fprintf(os.Stderr, "[error] %s/%s: %s\n", ev.WorkerID, ev.ErrKind, ev.Detail)
		}
	}
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute delta only; skip extraction (SPEC_FULL §4 supplement)")
}
