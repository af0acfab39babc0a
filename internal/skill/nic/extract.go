package nic

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tenderwatch/scoutd/internal/browser"
	"github.com/tenderwatch/scoutd/internal/model"
	"github.com/tenderwatch/scoutd/internal/normalize"
)

// rowCountScript counts the tender rows of the department's table as
// currently rendered (header row excluded), used to decide fast-path vs
// slow-path. Rows on other pages of a paginated table are not counted.
const rowCountScript = `() => document.querySelectorAll('table.tender-list tr').length - 1`

// batchRowScript extracts a [start, end) slice of row titles in one
// in-page evaluation, the batched fast path for large departments.
const batchRowScript = `(start, end) => {
	const rows = Array.from(document.querySelectorAll('table.tender-list tr')).slice(1);
	return rows.slice(start, end).map(r => {
		const cells = r.querySelectorAll('td');
		return cells.length ? cells[cells.length - 1].innerText.trim() : '';
	});
}`

// perRowScript extracts a single row's title cell by row index, the
// per-row fallback path used when a batch evaluation fails.
const perRowScript = `(idx) => {
	const rows = Array.from(document.querySelectorAll('table.tender-list tr')).slice(1);
	if (idx >= rows.length) return '';
	const cells = rows[idx].querySelectorAll('td');
	return cells.length ? cells[cells.length - 1].innerText.trim() : '';
}`

// ExtractTenderIDs returns every tender id shown in the currently rendered
// page of the open department's table, deduplicated; it does not follow
// pagination to further pages. Departments at or above cfg.JSBatchThreshold rows use the
// batched in-page evaluation path (cfg.JSBatchSize rows per call); any
// batch failure falls back to per-row DOM extraction for that department
// only, per spec.md §4.1.
func (s *Skill) ExtractTenderIDs(ctx context.Context, session *browser.Session) ([]string, error) {
	countVal, err := session.Script(ctx, rowCountScript)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	total := int(countVal.Int())
	if total <= 0 {
		return nil, nil
	}

	var titles []string
	if total >= s.cfg.JSBatchThreshold {
		titles, err = s.extractBatched(ctx, session, total)
		if err != nil {
			titles, err = s.extractPerRow(ctx, session, total)
			if err != nil {
				return nil, err
			}
		}
	} else {
		titles, err = s.extractPerRow(ctx, session, total)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{}, len(titles))
	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		id := normalize.NormalizeTenderID(title)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Skill) extractBatched(ctx context.Context, session *browser.Session, total int) ([]string, error) {
	batchSize := s.cfg.JSBatchSize
	if batchSize <= 0 {
		batchSize = total
	}
	var titles []string
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		val, err := session.Script(ctx, batchRowScript, start, end)
		if err != nil {
			return nil, browser.Classify(browser.KindTransient, fmt.Errorf("batch [%d,%d): %w", start, end, err))
		}
		for _, v := range val.Arr() {
			titles = append(titles, v.String())
		}
	}
	return titles, nil
}

func (s *Skill) extractPerRow(ctx context.Context, session *browser.Session, total int) ([]string, error) {
	titles := make([]string, 0, total)
	for i := 0; i < total; i++ {
		val, err := session.Script(ctx, perRowScript, i)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		titles = append(titles, val.String())
	}
	return titles, nil
}

// detailScript returns the full row object for the tender whose title
// cell's id, normalized the way normalize.NormalizeTenderID does it,
// equals needle, or null if no such row is present
// (a "soft miss" — the row vanished between list and detail extraction).
const detailScript = `(needle) => {
	const rows = Array.from(document.querySelectorAll('table.tender-list tr')).slice(1);
	for (const r of rows) {
		const cells = r.querySelectorAll('td');
		if (!cells.length) continue;
		const title = cells[cells.length - 1].innerText.trim();
		let raw = title.replace(/^tender\s*id\s*:\s*/i, '').trim();
		const m = raw.match(/[\[(]([A-Za-z0-9\/_.\-]+)[\])]/);
		if (m) raw = m[1];
		const id = raw.trim().replace(/[\s\-]+/g, '_').replace(/^_+|_+$/g, '').toUpperCase();
		if (id === needle) {
			return {
				title_ref: title,
				department_name: cells[1] ? cells[1].innerText.trim() : '',
				organisation_chain: cells[2] ? cells[2].innerText.trim() : '',
				published_at_text: cells[3] ? cells[3].innerText.trim() : '',
				closing_at_text: cells[4] ? cells[4].innerText.trim() : '',
				opening_at_text: cells[5] ? cells[5].innerText.trim() : '',
				emd_amount_text: cells[6] ? cells[6].innerText.trim() : '',
				tender_value_text: cells[7] ? cells[7].innerText.trim() : '',
				location: cells[8] ? cells[8].innerText.trim() : '',
				direct_url: r.querySelector('a') ? r.querySelector('a').href : ''
			};
		}
	}
	return null;
}`

// ExtractTenderDetails returns the full record for tenderID, or nil (not
// an error) when the row is no longer present.
func (s *Skill) ExtractTenderDetails(ctx context.Context, session *browser.Session, tenderID string) (*model.Tender, error) {
	val, err := session.Script(ctx, detailScript, tenderID)
	if err != nil {
		return nil, fmt.Errorf("extract details for %s: %w", tenderID, err)
	}
	if val.Nil() {
		return nil, nil
	}

	titleRef := val.Get("title_ref").String()
	t := &model.Tender{
		PortalName:        s.portal.Name,
		TenderIDRaw:       titleRef,
		TenderIDExtracted: normalize.NormalizeTenderID(titleRef),
		TitleRef:          titleRef,
		DepartmentName:    val.Get("department_name").String(),
		OrganisationChain: val.Get("organisation_chain").String(),
		PublishedAtText:   val.Get("published_at_text").String(),
		ClosingAtText:     val.Get("closing_at_text").String(),
		OpeningAtText:     val.Get("opening_at_text").String(),
		EMDAmountText:     val.Get("emd_amount_text").String(),
		TenderValueText:   val.Get("tender_value_text").String(),
		Location:          val.Get("location").String(),
		DirectURL:         val.Get("direct_url").String(),
		LifecycleStatus:   model.LifecycleActive,
	}
	if ts, ok := normalize.ParseClosingDate(t.ClosingAtText); ok {
		t.ClosingAtIST = &ts
	}
	if n, err := strconv.ParseFloat(strings.Map(digitsAndDot, t.EMDAmountText), 64); err == nil {
		t.EMDAmountNumeric = &n
	}
	if n, err := strconv.ParseFloat(strings.Map(digitsAndDot, t.TenderValueText), 64); err == nil {
		t.TenderValueNumeric = &n
	}
	return t, nil
}

func digitsAndDot(r rune) rune {
	if (r >= '0' && r <= '9') || r == '.' {
		return r
	}
	return -1
}
