// Package store implements the Datastore (C8): a modernc.org/sqlite-backed
// persistence layer enforcing strict tender dedup, the live skip snapshot
// delta logic feeds on, run bookkeeping, and tiered backups. Schema setup
// and PRAGMA tuning are adapted from the teacher's internal/store/
// local_core.go NewLocalStore (single-writer connection pool, WAL mode,
// directory auto-create), re-targeted from its knowledge/vector tables to
// spec.md §4.7's runs/tenders schema.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tenderwatch/scoutd/internal/clock"
	"github.com/tenderwatch/scoutd/internal/logging"
	"github.com/tenderwatch/scoutd/internal/model"
	"github.com/tenderwatch/scoutd/internal/normalize"
)

// Datastore is the Run/Tender persistence boundary. The zero value is not
// usable; construct with Open.
type Datastore struct {
	db     *sql.DB
	path   string
	mu     sync.Mutex // serializes writer operations; many readers tolerated by db/sql pool
	clock  clock.Clock
}

// Open creates the database directory if needed, opens the SQLite file,
// applies PRAGMA tuning, and ensures the schema exists.
func Open(path string, c clock.Clock) (*Datastore, error) {
	log := logging.Get(logging.CategoryStore)

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create datastore directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline, matching the teacher's LocalStore
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("datastore: pragma %q failed: %v", pragma, err)
		}
	}

	if c == nil {
		c = clock.System{}
	}
	ds := &Datastore{db: db, path: path, clock: c}
	if err := ds.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return ds, nil
}

// Close releases the underlying connection.
func (d *Datastore) Close() error {
	return d.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	portal_name TEXT NOT NULL,
	scope_mode TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	completed_at DATETIME,
	status TEXT NOT NULL,
	expected_total_tenders INTEGER NOT NULL DEFAULT 0,
	extracted_total_tenders INTEGER NOT NULL DEFAULT 0,
	skipped_existing_total INTEGER NOT NULL DEFAULT 0,
	changed_closing_date_count INTEGER NOT NULL DEFAULT 0,
	output_file_path TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_portal ON runs(portal_name);

CREATE TABLE IF NOT EXISTS tenders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER,
	portal_name TEXT NOT NULL,
	department_name TEXT,
	tender_id_extracted TEXT NOT NULL,
	title_ref TEXT,
	organisation_chain TEXT,
	published_at_text TEXT,
	closing_at_text TEXT,
	opening_at_text TEXT,
	emd_amount_text TEXT,
	emd_amount_numeric REAL,
	tender_value_text TEXT,
	direct_url TEXT,
	status_url TEXT,
	lifecycle_status TEXT NOT NULL DEFAULT 'active',
	raw_json TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tenders_portal_id
	ON tenders(LOWER(TRIM(portal_name)), UPPER(TRIM(tender_id_extracted)));
CREATE INDEX IF NOT EXISTS idx_tenders_portal_closing
	ON tenders(portal_name, closing_at_text);
`

func (d *Datastore) initSchema() error {
	_, err := d.db.Exec(schemaSQL)
	return err
}

// BeginRun inserts a new runs row with status=running and returns its id.
func (d *Datastore) BeginRun(ctx context.Context, portalName string, scopeMode model.RunScopeMode) (int64, error) {
	now := d.clock.Now()
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO runs (portal_name, scope_mode, started_at, status) VALUES (?, ?, ?, ?)`,
		portalName, string(scopeMode), now, string(model.RunRunning))
	if err != nil {
		return 0, fmt.Errorf("begin_run: %w", err)
	}
	return res.LastInsertId()
}

// GetRunStatus returns a run row's status, used by the Orchestrator's
// resume rule to decide whether a checkpoint's run_id is still live.
func (d *Datastore) GetRunStatus(ctx context.Context, runID int64) (model.RunStatus, error) {
	var status string
	err := d.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, runID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("get_run_status: %w", err)
	}
	return model.RunStatus(status), nil
}

// GetDepartmentTenderCounts returns, per department_name, the count of
// non-archived persisted tenders for portalName. The Orchestrator's quick
// department-delta policy compares this against each freshly-fetched
// Department's TenderCount to decide whether a department can be skipped
// entirely (spec.md §4.5 "Department-list quick-vs-full policy").
func (d *Datastore) GetDepartmentTenderCounts(ctx context.Context, portalName string) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT department_name, COUNT(*)
		FROM tenders
		WHERE portal_name = ? AND lifecycle_status != 'archived'
		GROUP BY department_name
	`, portalName)
	if err != nil {
		return nil, fmt.Errorf("get_department_tender_counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		out[normalize.NormalizeDepartmentName(name)] = count
	}
	return out, rows.Err()
}

// GetLiveSkipSnapshot returns the authoritative delta input: normalized
// tender id -> normalized closing_at_text, for every persisted tender of
// portalName whose parsed closing date is in the future of nowIST, or
// whose closing_at_text fails to parse at all (conservative inclusion per
// spec.md §4.5).
func (d *Datastore) GetLiveSkipSnapshot(ctx context.Context, portalName string, nowIST time.Time) (map[string]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT tender_id_extracted, closing_at_text FROM tenders WHERE portal_name = ? AND lifecycle_status != 'archived'`,
		portalName)
	if err != nil {
		return nil, fmt.Errorf("get_live_skip_snapshot: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var tenderID, closingText string
		if err := rows.Scan(&tenderID, &closingText); err != nil {
			return nil, err
		}
		parsed, ok := normalize.ParseClosingDate(closingText)
		if !ok || parsed.After(nowIST) {
			out[normalize.NormalizeTenderID(tenderID)] = normalize.NormalizePortalName(closingText)
		}
	}
	return out, rows.Err()
}

// ReplaceResult reports replace_run_tenders' bookkeeping.
type ReplaceResult struct {
	Inserted      int
	Updated       int
	SkippedInvalid int
}

// ReplaceRunTenders upserts rows into tenders on the (portal, tender id)
// unique key, associates them with runID, and dedups same-key rows within
// the batch (keeping the last), all inside one transaction — spec.md
// §4.7's replace_run_tenders contract.
func (d *Datastore) ReplaceRunTenders(ctx context.Context, runID int64, portalName string, tenders []model.Tender) (ReplaceResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result ReplaceResult
	dedup := make(map[string]model.Tender, len(tenders))
	order := make([]string, 0, len(tenders))
	for _, t := range tenders {
		norm := normalize.NormalizeTenderID(t.TenderIDExtracted)
		if normalize.IsInvalidTenderID(norm) {
			result.SkippedInvalid++
			continue
		}
		if _, exists := dedup[norm]; !exists {
			order = append(order, norm)
		}
		dedup[norm] = t
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("replace_run_tenders: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := d.clock.Now()
	for _, norm := range order {
		t := dedup[norm]
		rawJSON, _ := json.Marshal(t)

		res, err := tx.ExecContext(ctx, `
			UPDATE tenders SET
				run_id = ?, department_name = ?, title_ref = ?, organisation_chain = ?,
				published_at_text = ?, closing_at_text = ?, opening_at_text = ?,
				emd_amount_text = ?, emd_amount_numeric = ?, tender_value_text = ?,
				direct_url = ?, status_url = ?, lifecycle_status = ?, raw_json = ?,
				updated_at = ?
			WHERE LOWER(TRIM(portal_name)) = LOWER(TRIM(?)) AND UPPER(TRIM(tender_id_extracted)) = UPPER(TRIM(?))
		`, runID, t.DepartmentName, t.TitleRef, t.OrganisationChain,
			t.PublishedAtText, t.ClosingAtText, t.OpeningAtText,
			t.EMDAmountText, t.EMDAmountNumeric, t.TenderValueText,
			t.DirectURL, t.StatusURL, lifecycleOrDefault(t.LifecycleStatus), string(rawJSON),
			now, portalName, t.TenderIDExtracted)
		if err != nil {
			return result, fmt.Errorf("replace_run_tenders: update %s: %w", norm, err)
		}
		affected, _ := res.RowsAffected()
		if affected > 0 {
			result.Updated++
			continue
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO tenders (
				run_id, portal_name, department_name, tender_id_extracted, title_ref,
				organisation_chain, published_at_text, closing_at_text, opening_at_text,
				emd_amount_text, emd_amount_numeric, tender_value_text, direct_url,
				status_url, lifecycle_status, raw_json, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, portalName, t.DepartmentName, t.TenderIDExtracted, t.TitleRef,
			t.OrganisationChain, t.PublishedAtText, t.ClosingAtText, t.OpeningAtText,
			t.EMDAmountText, t.EMDAmountNumeric, t.TenderValueText, t.DirectURL,
			t.StatusURL, lifecycleOrDefault(t.LifecycleStatus), string(rawJSON), now, now)
		if err != nil {
			return result, fmt.Errorf("replace_run_tenders: insert %s: %w", norm, err)
		}
		result.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("replace_run_tenders: commit: %w", err)
	}
	return result, nil
}

func lifecycleOrDefault(s model.LifecycleStatus) string {
	if s == "" {
		return string(model.LifecycleActive)
	}
	return string(s)
}

// UpdateRunProgress applies a partial, monotone counter update to a run row.
func (d *Datastore) UpdateRunProgress(ctx context.Context, runID int64, counters model.Counters) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE runs SET
			expected_total_tenders = ?,
			extracted_total_tenders = ?,
			skipped_existing_total = ?,
			changed_closing_date_count = ?
		WHERE id = ?
	`, counters.ExpectedTotalTenders, counters.ExtractedTotalTenders, counters.SkippedExistingTotal, counters.ChangedClosingDateCount, runID)
	if err != nil {
		return fmt.Errorf("update_run_progress: %w", err)
	}
	return nil
}

// FinalizeRun sets completed_at/status/error_message on a run row.
func (d *Datastore) FinalizeRun(ctx context.Context, runID int64, status model.RunStatus, runErr error) error {
	now := d.clock.Now()
	var errMsg sql.NullString
	if runErr != nil {
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := d.db.ExecContext(ctx,
		`UPDATE runs SET completed_at = ?, status = ?, error_message = ? WHERE id = ?`,
		now, string(status), errMsg, runID)
	if err != nil {
		return fmt.Errorf("finalize_run: %w", err)
	}
	return nil
}

// Path returns the datastore's backing file path (used by the backup tiers).
func (d *Datastore) Path() string { return d.path }
