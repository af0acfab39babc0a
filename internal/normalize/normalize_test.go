package normalize

import "testing"

func TestNormalizeTenderIDBracketed(t *testing.T) {
	cases := map[string]string{
		"Supply of Cables [2024_DoT_123456_1]": "2024_DOT_123456_1",
		"(GEM/2024/B/123456) Annual rate contract": "GEM/2024/B/123456",
		"  gem/2024/b/1  ":                        "GEM/2024/B/1",
		"NA":                                       "NA",
	}
	for in, want := range cases {
		if got := NormalizeTenderID(in); got != want {
			t.Errorf("NormalizeTenderID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeTenderIDStripsPrefixAndCollapsesSeparators(t *testing.T) {
	cases := map[string]string{
		"Tender ID: 2026-PWD-001":        "2026_PWD_001",
		"tender id:   2026 - PWD - 001 ": "2026_PWD_001",
		"Tender ID: [2026_PWD_002]":      "2026_PWD_002",
		"-2026-PWD-003-":                 "2026_PWD_003",
	}
	for in, want := range cases {
		if got := NormalizeTenderID(in); got != want {
			t.Errorf("NormalizeTenderID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeTenderIDIdempotent(t *testing.T) {
	inputs := []string{
		"Supply of Cables [2024_DoT_123456_1]",
		"(GEM/2024/B/123456) Annual rate contract",
		"plain-id-no-brackets",
		"",
	}
	for _, in := range inputs {
		once := NormalizeTenderID(in)
		twice := NormalizeTenderID(once)
		if once != twice {
			t.Errorf("NormalizeTenderID not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestIsInvalidTenderID(t *testing.T) {
	invalid := []string{"", "-", "NA", "N/A", "NIL", "NONE"}
	for _, v := range invalid {
		if !IsInvalidTenderID(v) {
			t.Errorf("IsInvalidTenderID(%q) = false, want true", v)
		}
	}
	if IsInvalidTenderID("GEM/2024/B/1") {
		t.Error("IsInvalidTenderID(valid id) = true, want false")
	}
}

func TestNormalizePortalNameCollapsesWhitespace(t *testing.T) {
	got := NormalizePortalName("  Central   Public   Procurement Portal  ")
	want := "central public procurement portal"
	if got != want {
		t.Errorf("NormalizePortalName = %q, want %q", got, want)
	}
}

func TestNormalizeDepartmentNameIdempotent(t *testing.T) {
	in := "  Ministry Of   Road Transport  "
	once := NormalizeDepartmentName(in)
	twice := NormalizeDepartmentName(once)
	if once != twice {
		t.Errorf("not idempotent: %q vs %q", once, twice)
	}
}

func TestParseClosingDateLayouts(t *testing.T) {
	cases := []string{
		"20-Feb-2026 10:00 AM", // d-MMM-yyyy h:mm a (spec.md §6's own worked example)
		"2024-08-15 17:00:00",  // yyyy-MM-dd HH:mm:ss
		"2024-08-15",           // yyyy-MM-dd
		"15/08/2024 17:00",     // dd/MM/yyyy HH:mm
		"15/08/2024",           // dd/MM/yyyy
	}
	for _, raw := range cases {
		if _, ok := ParseClosingDate(raw); !ok {
			t.Errorf("ParseClosingDate(%q) failed to parse", raw)
		}
	}
}

func TestParseClosingDateUnrecognized(t *testing.T) {
	if _, ok := ParseClosingDate("not a date"); ok {
		t.Error("expected ParseClosingDate to fail for garbage input")
	}
	if _, ok := ParseClosingDate(""); ok {
		t.Error("expected ParseClosingDate to fail for empty input")
	}
}
