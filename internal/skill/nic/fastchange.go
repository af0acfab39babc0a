package nic

import (
	"context"
	"net/http"

	"github.com/tenderwatch/scoutd/internal/model"
	"github.com/tenderwatch/scoutd/internal/skill"
)

// DetectFastChange issues a HEAD request against the portal's org list
// URL and compares ETag/Last-Modified against the cached value from the
// previous call. A portal that doesn't support HEAD, or returns neither
// header, yields ChangeUnknown — spec.md §4.1 requires that an unknown
// result never blocks a run.
func (s *Skill) DetectFastChange(ctx context.Context, portal model.Portal) (skill.ChangeStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, portal.OrgListURL, nil)
	if err != nil {
		return skill.ChangeUnknown, nil
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return skill.ChangeUnknown, nil
	}
	defer resp.Body.Close()

	etag := resp.Header.Get("ETag")
	lastMod := resp.Header.Get("Last-Modified")
	if etag == "" && lastMod == "" {
		return skill.ChangeUnknown, nil
	}

	key := s.portal.Name
	s.fastChangeMu.Lock()
	defer s.fastChangeMu.Unlock()
	if s.fastChangeCache == nil {
		s.fastChangeCache = make(map[string]string)
	}
	fingerprint := etag + "|" + lastMod
	prev, seen := s.fastChangeCache[key]
	s.fastChangeCache[key] = fingerprint
	if !seen {
		return skill.ChangeUnknown, nil
	}
	if prev == fingerprint {
		return skill.ChangeUnchanged, nil
	}
	return skill.ChangeChanged, nil
}
