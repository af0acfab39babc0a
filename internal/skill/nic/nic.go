// Package nic implements the dominant NIC/eProcure-style Portal Skill:
// server-rendered department tables with an HTTP+HTML fast path, falling
// back to driven-browser extraction, and bracketed canonical-tender-id
// extraction from the title cell. The HTTP fast path is grounded in the
// teacher's internal/shards/researcher/scraper.go fetchRawContent
// (bounded io.LimitReader GET, golang.org/x/net/html parse).
package nic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/tenderwatch/scoutd/internal/browser"
	"github.com/tenderwatch/scoutd/internal/model"
	"github.com/tenderwatch/scoutd/internal/skill"
)

// maxFetchBytes bounds the HTTP fast-path read at 2 MiB.
const maxFetchBytes = 2 * 1024 * 1024

// Config tunes the NIC skill's batched-extraction fast path (spec.md
// §4.1). Validated ranges are enforced by internal/config before this
// struct is built.
type Config struct {
	JSBatchThreshold int
	JSBatchSize      int
}

// Skill is the concrete NIC/eProcure-family Portal Skill.
type Skill struct {
	portal model.Portal
	cfg    Config
	http   *http.Client

	fastChangeMu    sync.Mutex
	fastChangeCache map[string]string
}

// New constructs a Skill for portal using cfg's batch tuning.
func New(portal model.Portal, cfg Config) *Skill {
	return &Skill{
		portal: portal,
		cfg:    cfg,
		http:   &http.Client{Timeout: 20 * time.Second},
	}
}

// Factory adapts New to skill.Factory for Registry registration.
func Factory(cfg Config) skill.Factory {
	return func(portal model.Portal) (skill.Skill, error) {
		return New(portal, cfg), nil
	}
}

// ListDepartments tries a plain HTTP GET + HTML table parse first; if
// the portal doesn't serve a server-rendered table (fetch fails or no
// rows found), it falls back to driving the browser session.
func (s *Skill) ListDepartments(ctx context.Context, session *browser.Session) ([]model.Department, error) {
	if depts, err := s.listDepartmentsHTTP(ctx); err == nil && len(depts) > 0 {
		return depts, nil
	}
	return s.listDepartmentsBrowser(ctx, session)
}

func (s *Skill) listDepartmentsHTTP(ctx context.Context) ([]model.Department, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.portal.OrgListURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "scoutd/1.0 (+tender watch)")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, browser.Classify(browser.KindTransient, fmt.Errorf("fetch org list: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, browser.Classify(browser.KindTransient, fmt.Errorf("org list status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, browser.Classify(browser.KindFatal, fmt.Errorf("org list status %d", resp.StatusCode))
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("parse org list html: %w", err)
	}
	return parseDepartmentTable(doc), nil
}

func (s *Skill) listDepartmentsBrowser(ctx context.Context, session *browser.Session) ([]model.Department, error) {
	if err := session.Navigate(ctx, s.portal.OrgListURL, "table"); err != nil {
		return nil, fmt.Errorf("navigate org list: %w", err)
	}
	val, err := session.Script(ctx, departmentTableScript)
	if err != nil {
		return nil, fmt.Errorf("extract org list: %w", err)
	}
	return decodeDepartmentRows(val.Arr()), nil
}

// departmentTableScript returns [{serial, name, count, url}, ...] for the
// organisation list table rendered in the current page.
const departmentTableScript = `() => {
	const rows = Array.from(document.querySelectorAll('table tr'));
	return rows.slice(1).map(r => {
		const cells = r.querySelectorAll('td');
		if (cells.length < 2) return null;
		const link = cells[1].querySelector('a');
		return {
			serial: cells[0] ? cells[0].innerText.trim() : '',
			name: cells[1] ? cells[1].innerText.trim() : '',
			count: cells[2] ? cells[2].innerText.trim() : '',
			url: link ? link.href : ''
		};
	}).filter(Boolean);
}`

// OpenDepartment navigates to dept's direct URL if known, otherwise
// clicks through from the organisation list.
func (s *Skill) OpenDepartment(ctx context.Context, session *browser.Session, dept model.Department) (bool, error) {
	if dept.DirectURL != nil && *dept.DirectURL != "" {
		if err := session.Navigate(ctx, *dept.DirectURL, "table"); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := session.Navigate(ctx, s.portal.OrgListURL, "table"); err != nil {
		return false, err
	}
	selector := fmt.Sprintf(`a[data-dept-name="%s"]`, strings.ReplaceAll(dept.Name, `"`, ``))
	if err := session.Click(ctx, selector); err != nil {
		return false, nil // not found: caller treats as "couldn't open", not a hard error
	}
	return true, nil
}
