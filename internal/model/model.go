// Package model holds the entities persisted and exchanged across the
// scraping orchestration engine: portals, departments, tenders, runs, and
// checkpoints. Field names follow spec.md section 3 exactly, including the
// British-spelled OrganisationChain (see DESIGN.md for why no American
// alias is exposed).
package model

import (
	"time"

	"github.com/tenderwatch/scoutd/internal/normalize"
)

// PortalCategory classifies a portal for reporting/backup purposes.
type PortalCategory string

const (
	CategoryCentral PortalCategory = "Central"
	CategoryState   PortalCategory = "State"
	CategoryPSU     PortalCategory = "PSU"
	CategoryCustom  PortalCategory = "Custom"
)

// Portal is immutable configuration for one portal within a run.
type Portal struct {
	Name            string         `yaml:"name" json:"name"`
	BaseURL         string         `yaml:"base_url" json:"base_url"`
	OrgListURL      string         `yaml:"org_list_url" json:"org_list_url"`
	SkillID         string         `yaml:"skill_id" json:"skill_id"`
	Category        PortalCategory `yaml:"category" json:"category"`
	RateLimitRPM    int            `yaml:"rate_limit_rpm" json:"rate_limit_rpm"`
	CooldownSeconds int            `yaml:"cooldown_seconds" json:"cooldown_seconds"`
}

// Department is a per-portal grouping of tenders, transient to one run.
type Department struct {
	SerialNo        string  `json:"serial_no"`
	Name            string  `json:"name"`
	TenderCountText string  `json:"tender_count_text"`
	TenderCount     *int    `json:"tender_count,omitempty"`
	DirectURL       *string `json:"direct_url,omitempty"`
}

// NameNorm returns the dedup key for a department: trim+lowercase.
func (d Department) NameNorm() string {
	return normalize.NormalizeDepartmentName(d.Name)
}

// LifecycleStatus is reserved for future use; spec.md mandates that it is
// never the sole basis for a skip decision (see §9 Open Questions).
type LifecycleStatus string

const (
	LifecycleActive    LifecycleStatus = "active"
	LifecycleCancelled LifecycleStatus = "cancelled"
	LifecycleArchived  LifecycleStatus = "archived"
)

// TenderKey is the dedup identity: (portal_name_norm, tender_id_norm).
type TenderKey struct {
	PortalNorm   string
	TenderIDNorm string
}

// Tender is the persisted procurement-opportunity record.
type Tender struct {
	ID                 int64           `json:"id,omitempty"`
	RunID              int64           `json:"run_id"`
	PortalName         string          `json:"portal_name"`
	TenderIDRaw        string          `json:"tender_id_raw"`
	TenderIDExtracted  string          `json:"tender_id_extracted"`
	DepartmentName     string          `json:"department_name"`
	TitleRef           string          `json:"title_ref"`
	OrganisationChain  string          `json:"organisation_chain"`
	PublishedAtText    string          `json:"published_at_text"`
	ClosingAtText      string          `json:"closing_at_text"`
	OpeningAtText      string          `json:"opening_at_text"`
	ClosingAtIST       *time.Time      `json:"closing_at_ist,omitempty"`
	EMDAmountText      string          `json:"emd_amount_text"`
	EMDAmountNumeric   *float64        `json:"emd_amount_numeric,omitempty"`
	TenderValueText    string          `json:"tender_value_text"`
	TenderValueNumeric *float64        `json:"tender_value_numeric,omitempty"`
	Location           string          `json:"location"`
	ContractType       string          `json:"contract_type"`
	InvitingOfficer    string          `json:"inviting_officer"`
	WorkDescription    string          `json:"work_description"`
	DirectURL          string          `json:"direct_url"`
	StatusURL          string          `json:"status_url"`
	LifecycleStatus    LifecycleStatus `json:"lifecycle_status"`
	RawJSON            []byte          `json:"raw_json,omitempty"`
	CreatedAt          time.Time       `json:"created_at,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at,omitempty"`
}

// Key returns the dedup identity built from the two given values as they
// are; it normalizes nothing and reads no field of t, so callers pass
// already-normalized portal and tender-id values.
func (t Tender) Key(portalNorm, tenderIDNorm string) TenderKey {
	return TenderKey{PortalNorm: portalNorm, TenderIDNorm: tenderIDNorm}
}

// RunScopeMode selects delta behavior for a run.
type RunScopeMode string

const (
	ScopeOnlyNew      RunScopeMode = "only_new"
	ScopeFullRescrape RunScopeMode = "full_rescrape"
)

// RunStatus is the lifecycle state of a Run row.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is one scraping attempt of one portal.
type Run struct {
	ID                       int64
	PortalName               string
	ScopeMode                RunScopeMode
	StartedAt                time.Time
	CompletedAt              *time.Time
	DurationSeconds          float64
	Status                   RunStatus
	ExpectedTotalTenders     int
	ExtractedTotalTenders    int
	SkippedExistingTotal     int
	ChangedClosingDateCount  int
	ErrorMessage             string
	OutputFilePath           string
}

// Checkpoint is the per-portal durable partial-run snapshot.
type Checkpoint struct {
	PortalName                  string    `json:"portal_name"`
	RunID                       int64     `json:"run_id"`
	SavedAtISO                  time.Time `json:"saved_at_iso"`
	ProcessedDepartmentNamesNorm []string `json:"processed_department_names_norm"`
	AllTenderDetails            []Tender  `json:"all_tender_details"`
	Counters                    Counters  `json:"counters"`
}

// Counters mirrors a Run's live progress counters.
type Counters struct {
	ExpectedTotalTenders    int `json:"expected_total_tenders"`
	ExtractedTotalTenders   int `json:"extracted_total_tenders"`
	SkippedExistingTotal    int `json:"skipped_existing_total"`
	ChangedClosingDateCount int `json:"changed_closing_date_count"`
}

// DepartmentResult is what the Extraction Engine returns for one
// department (spec.md §4.3).
type DepartmentResult struct {
	Department      Department
	Expected        int
	Extracted       int
	SkippedExisting int
	SoftMiss        int
	ChangedClosing  int
	Duration        time.Duration
	Reason          string // e.g. "oversized"
	Errors          []error
	Tenders         []Tender
}
