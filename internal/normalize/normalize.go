// Package normalize holds the pure functions that turn raw scraped text
// into the canonical forms used for dedup keys and reporting. Every
// function here is side-effect free and idempotent: applying it twice
// yields the same result as applying it once (see normalize_test.go).
package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/tenderwatch/scoutd/internal/clock"
)

// bracketedID matches a tender id wrapped in square or round brackets,
// e.g. "[2024_DoT_123456_1]" or "(GEM/2024/B/123456)". Portal markup wraps
// the canonical id in brackets alongside free-form title text.
var bracketedID = regexp.MustCompile(`[\[(]([A-Za-z0-9/_.\-]+)[\])]`)

// tenderIDPrefix strips a leading "Tender ID:" label some portals emit
// ahead of the bracketed or bare id (spec.md §4.1/§6).
var tenderIDPrefix = regexp.MustCompile(`(?i)^tender\s*id\s*:\s*`)

// dashOrWhitespaceRun collapses any run of whitespace and/or dashes into
// the single underscore separator the dedup key uses (spec.md §6).
var dashOrWhitespaceRun = regexp.MustCompile(`[\s\-]+`)

// NormalizeTenderID extracts and canonicalizes a tender id from raw
// scraped text: strip a "Tender ID:" prefix, extract a bracketed token if
// present (falling back to the trimmed raw text otherwise), collapse
// whitespace/dash runs to a single underscore, trim leading/trailing
// underscores, and upper-case the result so "gem/2024/b/1" and
// "GEM/2024/B/1" collide to the same dedup key.
func NormalizeTenderID(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = tenderIDPrefix.ReplaceAllString(raw, "")
	raw = strings.TrimSpace(raw)
	if m := bracketedID.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)
	raw = dashOrWhitespaceRun.ReplaceAllString(raw, "_")
	raw = strings.Trim(raw, "_")
	return strings.ToUpper(raw)
}

// IsInvalidTenderID reports whether an extracted id is unusable as a dedup
// key: empty, or one of the placeholder tokens portals emit when a row has
// no id yet ("-", "NA", "N/A", "NIL", "NONE").
func IsInvalidTenderID(norm string) bool {
	switch norm {
	case "", "-", "NA", "N/A", "NIL", "NONE":
		return true
	}
	return false
}

// NormalizePortalName canonicalizes a portal name for use as half of the
// dedup key: trim, lowercase, collapse internal whitespace.
func NormalizePortalName(name string) string {
	return collapseLower(name)
}

// NormalizeDepartmentName canonicalizes a department name for delta
// comparison between runs: trim, lowercase, collapse internal whitespace.
func NormalizeDepartmentName(name string) string {
	return collapseLower(name)
}

func collapseLower(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// closingDateLayouts are spec.md §6's 5 accepted date/time formats for
// closing/opening timestamps (d-MMM-yyyy h:mm a, yyyy-MM-dd HH:mm:ss,
// yyyy-MM-dd, dd/MM/yyyy HH:mm, dd/MM/yyyy), tried in order; first match
// wins.
var closingDateLayouts = []string{
	"2-Jan-2006 3:04 PM",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

// ParseClosingDate parses a raw closing/opening timestamp string against
// the known portal layouts and returns it anchored to clock.IST. Returns
// false if none of the layouts match, in which case callers keep the raw
// text and leave the structured field nil.
func ParseClosingDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range closingDateLayouts {
		if t, err := time.ParseInLocation(layout, raw, clock.IST); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
