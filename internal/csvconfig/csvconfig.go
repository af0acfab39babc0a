// Package csvconfig loads the portal roster from base_urls.csv (spec.md
// §6): minimally Name, BaseURL, Keyword per row, with case-sensitive
// matching on Name and additive optional columns (category, skill id,
// rate limits, cooldown). No third-party CSV library appears anywhere in
// the retrieval pack, so this loader uses stdlib encoding/csv — see
// DESIGN.md for the justification.
package csvconfig

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tenderwatch/scoutd/internal/model"
)

// requiredColumns are the minimal columns every base_urls.csv must carry.
var requiredColumns = []string{"Name", "BaseURL", "Keyword"}

// optional column names, matched case-sensitively like the required ones.
const (
	colOrgListURL      = "OrgListURL"
	colSkillID         = "SkillID"
	colCategory        = "Category"
	colRateLimitRPM    = "RateLimitRPM"
	colCooldownSeconds = "CooldownSeconds"
)

// Load reads path and returns one Portal per data row, in file order.
// Extra columns beyond the required three are optional and additive: a
// missing optional column leaves its Portal field at the zero value.
func Load(path string) ([]model.Portal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvconfig: open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) ([]model.Portal, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csvconfig: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, want := range requiredColumns {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("csvconfig: missing required column %q", want)
		}
	}

	var portals []model.Portal
	rowNum := 1
	for {
		rowNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvconfig: row %d: %w", rowNum, err)
		}

		name := field(record, col, "Name")
		baseURL := field(record, col, "BaseURL")
		if name == "" || baseURL == "" {
			return nil, fmt.Errorf("csvconfig: row %d: Name and BaseURL are required", rowNum)
		}

		portal := model.Portal{
			Name:            name,
			BaseURL:         baseURL,
			OrgListURL:      field(record, col, colOrgListURL),
			SkillID:         field(record, col, colSkillID),
			Category:        model.PortalCategory(field(record, col, colCategory)),
			RateLimitRPM:    intField(record, col, colRateLimitRPM),
			CooldownSeconds: intField(record, col, colCooldownSeconds),
		}
		portals = append(portals, portal)
	}
	return portals, nil
}

// field returns the trimmed value of column name for record, or "" if the
// column wasn't present in the header or the row is short that column.
func field(record []string, col map[string]int, name string) string {
	idx, ok := col[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func intField(record []string, col map[string]int, name string) int {
	v := field(record, col, name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// FindByName returns the portal whose Name matches exactly
// (case-sensitive, per spec.md §6), or false if none match.
func FindByName(portals []model.Portal, name string) (model.Portal, bool) {
	for _, p := range portals {
		if p.Name == name {
			return p, true
		}
	}
	return model.Portal{}, false
}
