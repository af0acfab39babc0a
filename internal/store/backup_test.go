package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackupAllWritesEveryTier(t *testing.T) {
	ds := openTestStore(t)
	backupRoot := filepath.Join(t.TempDir(), "backups")

	ds.BackupAll(backupRoot, DefaultRetention(), time.Now())

	for _, tier := range []BackupTier{TierDaily, TierWeekly, TierMonthly, TierYearly} {
		entries, err := os.ReadDir(filepath.Join(backupRoot, string(tier)))
		require.NoError(t, err)
		require.Len(t, entries, 1)
	}
}

func TestPruneTierEnforcesRetention(t *testing.T) {
	dir := t.TempDir()
	tierDir := filepath.Join(dir, "daily")
	require.NoError(t, os.MkdirAll(tierDir, 0o755))
	for i := 0; i < 10; i++ {
		name := filepath.Join(tierDir, time.Now().Add(time.Duration(i)*time.Second).Format("20060102T150405")+".db")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
		time.Sleep(time.Millisecond)
	}

	require.NoError(t, pruneTier(dir, TierDaily, 3))

	entries, err := os.ReadDir(tierDir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestPruneTierNoopWhenUnderLimit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, pruneTier(dir, TierDaily, 5))
}
