package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tenderwatch/scoutd/internal/browser"
	"github.com/tenderwatch/scoutd/internal/model"
	"github.com/tenderwatch/scoutd/internal/normalize"
	"github.com/tenderwatch/scoutd/internal/skill"
)

type fakeSkill struct {
	openOK      bool
	openErr     error
	ids         []string
	details     map[string]*model.Tender
	detailsErrs map[string]error
}

func (f *fakeSkill) ListDepartments(ctx context.Context, s *browser.Session) ([]model.Department, error) {
	return nil, nil
}

func (f *fakeSkill) OpenDepartment(ctx context.Context, s *browser.Session, dept model.Department) (bool, error) {
	return f.openOK, f.openErr
}

func (f *fakeSkill) ExtractTenderIDs(ctx context.Context, s *browser.Session) ([]string, error) {
	return f.ids, nil
}

func (f *fakeSkill) ExtractTenderDetails(ctx context.Context, s *browser.Session, tenderID string) (*model.Tender, error) {
	if err, ok := f.detailsErrs[tenderID]; ok {
		return nil, err
	}
	return f.details[tenderID], nil
}

func (f *fakeSkill) DetectFastChange(ctx context.Context, p model.Portal) (skill.ChangeStatus, error) {
	return skill.ChangeUnknown, nil
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(Config{OpenDepartmentRetries: 3, DepartmentRowCeiling: 15000, PortalRPM: 6000, PortalBurst: 100}, nil)
}

func TestRunDepartmentFirstRunAllInserted(t *testing.T) {
	e := newEngine(t)
	f := &fakeSkill{
		openOK: true,
		ids:    []string{"2026_PWD_1", "2026_PWD_2", "2026_PWD_3"},
		details: map[string]*model.Tender{
			"2026_PWD_1": {TenderIDExtracted: "2026_PWD_1", ClosingAtText: "20-Feb-2026 10:00 AM"},
			"2026_PWD_2": {TenderIDExtracted: "2026_PWD_2", ClosingAtText: "20-Feb-2026 10:00 AM"},
			"2026_PWD_3": {TenderIDExtracted: "2026_PWD_3", ClosingAtText: "20-Feb-2026 10:00 AM"},
		},
	}
	changed := make(map[model.TenderKey]struct{})
	result := e.RunDepartment(context.Background(), f, nil, "HP", model.Department{Name: "PWD"}, SkipSnapshot{}, changed)

	require.Equal(t, 3, result.Expected)
	require.Equal(t, 3, result.Extracted)
	require.Equal(t, 0, result.SkippedExisting)
	require.Equal(t, 0, result.ChangedClosing)
	require.Empty(t, result.Errors)
}

func TestRunDepartmentSkipsUnchanged(t *testing.T) {
	e := newEngine(t)
	f := &fakeSkill{
		openOK: true,
		ids:    []string{"2026_PWD_1"},
		details: map[string]*model.Tender{
			"2026_PWD_1": {TenderIDExtracted: "2026_PWD_1", ClosingAtText: "same date"},
		},
	}
	skip := SkipSnapshot{"2026_PWD_1": normalizeForTest("same date")}
	changed := make(map[model.TenderKey]struct{})
	result := e.RunDepartment(context.Background(), f, nil, "HP", model.Department{Name: "PWD"}, skip, changed)

	require.Equal(t, 1, result.SkippedExisting)
	require.Equal(t, 0, result.Extracted)
}

func TestRunDepartmentChangedClosingDateCountsOnce(t *testing.T) {
	e := newEngine(t)
	f := &fakeSkill{
		openOK: true,
		ids:    []string{"2026_PWD_2", "2026_PWD_2"}, // duplicate observation within the run
		details: map[string]*model.Tender{
			"2026_PWD_2": {TenderIDExtracted: "2026_PWD_2", ClosingAtText: "25-Feb-2026 10:00 AM"},
		},
	}
	skip := SkipSnapshot{"2026_PWD_2": normalizeForTest("20-feb-2026 10:00 am")}
	changed := make(map[model.TenderKey]struct{})
	result := e.RunDepartment(context.Background(), f, nil, "HP", model.Department{Name: "PWD"}, skip, changed)

	require.Equal(t, 1, result.ChangedClosing)
}

func TestRunDepartmentSoftMiss(t *testing.T) {
	e := newEngine(t)
	f := &fakeSkill{
		openOK:  true,
		ids:     []string{"2026_PWD_9"},
		details: map[string]*model.Tender{}, // returns nil -> soft miss
	}
	changed := make(map[model.TenderKey]struct{})
	result := e.RunDepartment(context.Background(), f, nil, "HP", model.Department{Name: "PWD"}, SkipSnapshot{}, changed)

	require.Equal(t, 1, result.SoftMiss)
	require.Equal(t, 0, result.Extracted)
}

func TestRunDepartmentOversized(t *testing.T) {
	e := NewEngine(Config{OpenDepartmentRetries: 1, DepartmentRowCeiling: 2, PortalRPM: 6000, PortalBurst: 100}, nil)
	ids := []string{"a", "b", "c"}
	f := &fakeSkill{openOK: true, ids: ids}
	changed := make(map[model.TenderKey]struct{})
	result := e.RunDepartment(context.Background(), f, nil, "HP", model.Department{Name: "BIG"}, SkipSnapshot{}, changed)

	require.Equal(t, "oversized", result.Reason)
	require.Equal(t, 0, result.Extracted)
}

func TestRunDepartmentEmptyListIsNotAnError(t *testing.T) {
	e := newEngine(t)
	f := &fakeSkill{openOK: true, ids: nil}
	changed := make(map[model.TenderKey]struct{})
	result := e.RunDepartment(context.Background(), f, nil, "HP", model.Department{Name: "EMPTY"}, SkipSnapshot{}, changed)

	require.Equal(t, 0, result.Expected)
	require.Empty(t, result.Errors)
}

func TestRunDepartmentOpenFailsNonRetryable(t *testing.T) {
	e := newEngine(t)
	f := &fakeSkill{openOK: false, openErr: browser.Classify(browser.KindFatal, errors.New("boom"))}
	changed := make(map[model.TenderKey]struct{})
	result := e.RunDepartment(context.Background(), f, nil, "HP", model.Department{Name: "X"}, SkipSnapshot{}, changed)

	require.NotEmpty(t, result.Errors)
}

func normalizeForTest(s string) string {
	return normalize.NormalizePortalName(s)
}
