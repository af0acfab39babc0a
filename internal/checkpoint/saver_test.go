package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tenderwatch/scoutd/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFlushWritesCheckpointFile(t *testing.T) {
	dir := t.TempDir()
	s := &Saver{Dir: dir, Interval: time.Hour}

	snap := Snapshot{
		PortalName: "Himachal Pradesh",
		RunID:      1,
		ProcessedDepartmentNamesNorm: []string{"pwd"},
		AllTenderDetails:             []model.Tender{{TenderIDExtracted: "2026_PWD_1"}},
		Counters:                     model.Counters{ExtractedTotalTenders: 1},
	}
	err := s.Flush(context.Background(), snap)
	require.NoError(t, err)

	loaded, err := s.Load("Himachal Pradesh")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, int64(1), loaded.RunID)
	require.Equal(t, []string{"pwd"}, loaded.ProcessedDepartmentNamesNorm)
	if diff := cmp.Diff(snap.AllTenderDetails, loaded.AllTenderDetails); diff != "" {
		t.Errorf("round-tripped tender details mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingCheckpointReturnsNilNotError(t *testing.T) {
	s := &Saver{Dir: t.TempDir()}
	loaded, err := s.Load("no such portal")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestDeleteRemovesCheckpointFile(t *testing.T) {
	dir := t.TempDir()
	s := &Saver{Dir: dir}
	require.NoError(t, s.Flush(context.Background(), Snapshot{PortalName: "HP", RunID: 1}))

	require.NoError(t, s.Delete("HP"))
	_, err := os.Stat(filepath.Join(dir, "hp_checkpoint.json"))
	require.True(t, os.IsNotExist(err))
}

func TestDeleteMissingCheckpointIsNotAnError(t *testing.T) {
	s := &Saver{Dir: t.TempDir()}
	require.NoError(t, s.Delete("never flushed"))
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	s := &Saver{Dir: t.TempDir(), Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx, func() Snapshot { return Snapshot{PortalName: "HP"} })
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
