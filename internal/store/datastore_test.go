package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tenderwatch/scoutd/internal/clock"
	"github.com/tenderwatch/scoutd/internal/model"
)

func openTestStore(t *testing.T) *Datastore {
	t.Helper()
	dir := t.TempDir()
	ds, err := Open(filepath.Join(dir, "scoutd.db"), clock.System{})
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}

func TestBeginRunAndFinalize(t *testing.T) {
	ds := openTestStore(t)
	ctx := context.Background()

	runID, err := ds.BeginRun(ctx, "HP", model.ScopeOnlyNew)
	require.NoError(t, err)
	require.Positive(t, runID)

	err = ds.FinalizeRun(ctx, runID, model.RunCompleted, nil)
	require.NoError(t, err)
}

func TestReplaceRunTendersInsertsThenUpdates(t *testing.T) {
	ds := openTestStore(t)
	ctx := context.Background()
	runID, err := ds.BeginRun(ctx, "HP", model.ScopeOnlyNew)
	require.NoError(t, err)

	tenders := []model.Tender{
		{TenderIDExtracted: "2026_PWD_1", ClosingAtText: "20-Feb-2026 10:00 AM", DepartmentName: "PWD"},
		{TenderIDExtracted: "2026_PWD_2", ClosingAtText: "20-Feb-2026 10:00 AM", DepartmentName: "PWD"},
	}
	result, err := ds.ReplaceRunTenders(ctx, runID, "HP", tenders)
	require.NoError(t, err)
	require.Equal(t, 2, result.Inserted)
	require.Equal(t, 0, result.Updated)

	// Same ids, changed closing date -> update in place, not a new row.
	tenders2 := []model.Tender{
		{TenderIDExtracted: "2026_PWD_1", ClosingAtText: "25-Feb-2026 10:00 AM", DepartmentName: "PWD"},
	}
	result2, err := ds.ReplaceRunTenders(ctx, runID, "HP", tenders2)
	require.NoError(t, err)
	require.Equal(t, 0, result2.Inserted)
	require.Equal(t, 1, result2.Updated)
}

func TestReplaceRunTendersDedupsWithinBatchKeepingLast(t *testing.T) {
	ds := openTestStore(t)
	ctx := context.Background()
	runID, err := ds.BeginRun(ctx, "HP", model.ScopeOnlyNew)
	require.NoError(t, err)

	tenders := []model.Tender{
		{TenderIDExtracted: "2026_X_1", ClosingAtText: "first"},
		{TenderIDExtracted: "2026_X_1", ClosingAtText: "second"},
	}
	result, err := ds.ReplaceRunTenders(ctx, runID, "HP", tenders)
	require.NoError(t, err)
	require.Equal(t, 1, result.Inserted)

	snap, err := ds.GetLiveSkipSnapshot(ctx, "HP", mustParseIST(t, "01-Jan-2020 00:00 AM"))
	require.NoError(t, err)
	// "second" is unparseable as a closing date -> conservative inclusion, text normalized.
	require.Contains(t, snap, "2026_X_1")
	require.Equal(t, "second", snap["2026_X_1"])
}

func TestReplaceRunTendersSkipsInvalidIDs(t *testing.T) {
	ds := openTestStore(t)
	ctx := context.Background()
	runID, err := ds.BeginRun(ctx, "HP", model.ScopeOnlyNew)
	require.NoError(t, err)

	tenders := []model.Tender{
		{TenderIDExtracted: "N/A"},
		{TenderIDExtracted: ""},
		{TenderIDExtracted: "2026_OK_1", ClosingAtText: "20-Feb-2026 10:00 AM"},
	}
	result, err := ds.ReplaceRunTenders(ctx, runID, "HP", tenders)
	require.NoError(t, err)
	require.Equal(t, 2, result.SkippedInvalid)
	require.Equal(t, 1, result.Inserted)
}

func TestGetLiveSkipSnapshotExcludesPastClosingDates(t *testing.T) {
	ds := openTestStore(t)
	ctx := context.Background()
	runID, err := ds.BeginRun(ctx, "HP", model.ScopeOnlyNew)
	require.NoError(t, err)

	tenders := []model.Tender{
		{TenderIDExtracted: "2026_PAST_1", ClosingAtText: "01-Jan-2020 10:00 AM"},
		{TenderIDExtracted: "2026_FUTURE_1", ClosingAtText: "01-Jan-2099 10:00 AM"},
	}
	_, err = ds.ReplaceRunTenders(ctx, runID, "HP", tenders)
	require.NoError(t, err)

	snap, err := ds.GetLiveSkipSnapshot(ctx, "HP", mustParseIST(t, "01-Jan-2025 00:00 AM"))
	require.NoError(t, err)
	require.NotContains(t, snap, "2026_PAST_1")
	require.Contains(t, snap, "2026_FUTURE_1")
}

func TestUpdateRunProgress(t *testing.T) {
	ds := openTestStore(t)
	ctx := context.Background()
	runID, err := ds.BeginRun(ctx, "HP", model.ScopeOnlyNew)
	require.NoError(t, err)

	err = ds.UpdateRunProgress(ctx, runID, model.Counters{
		ExpectedTotalTenders:  10,
		ExtractedTotalTenders: 5,
	})
	require.NoError(t, err)
}

func mustParseIST(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("02-Jan-2006 03:04 PM", s, clock.IST)
	require.NoError(t, err)
	return ts
}
