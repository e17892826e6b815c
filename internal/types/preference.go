package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ModeOfJob is the user's preferred working arrangement.
type ModeOfJob string

// Recognized working arrangements.
const (
	ModeOnsite ModeOfJob = "onsite"
	ModeRemote ModeOfJob = "remote"
	ModeHybrid ModeOfJob = "hybrid"
)

// Valid reports whether m is a recognized mode. An empty mode is allowed
// (no preference).
func (m ModeOfJob) Valid() bool {
	switch m {
	case "", ModeOnsite, ModeRemote, ModeHybrid:
		return true
	}
	return false
}

// EmploymentType is a provider-compatible employment type tag.
type EmploymentType string

// Recognized employment types, matching the search provider's filter values.
const (
	EmploymentFullTime   EmploymentType = "FULLTIME"
	EmploymentPartTime   EmploymentType = "PARTTIME"
	EmploymentContractor EmploymentType = "CONTRACTOR"
	EmploymentIntern     EmploymentType = "INTERN"
)

// Valid reports whether e is a recognized employment type.
func (e EmploymentType) Valid() bool {
	switch e {
	case EmploymentFullTime, EmploymentPartTime, EmploymentContractor, EmploymentIntern:
		return true
	}
	return false
}

// CompanyType is a coarse employer category preference.
type CompanyType string

// Recognized company categories.
const (
	CompanyStartup    CompanyType = "startup"
	CompanyEnterprise CompanyType = "enterprise"
	CompanyNonprofit  CompanyType = "nonprofit"
	CompanyGovernment CompanyType = "government"
)

// Valid reports whether c is a recognized company type.
func (c CompanyType) Valid() bool {
	switch c {
	case CompanyStartup, CompanyEnterprise, CompanyNonprofit, CompanyGovernment:
		return true
	}
	return false
}

// UserPreference holds a user's job search preferences together with the
// parsed resume reference and the per-user scheduling watermark.
type UserPreference struct {
	UserID            uuid.UUID        `json:"user_id"`
	Query             string           `json:"query"`
	Location          string           `json:"location"`
	Mode              ModeOfJob        `json:"mode_of_job,omitempty"`
	ExperienceLevel   string           `json:"experience_level,omitempty"`
	EmploymentTypes   []EmploymentType `json:"employment_types,omitempty"`
	CompanyTypes      []CompanyType    `json:"company_types,omitempty"`
	ExtraRequirements string           `json:"extra_requirements,omitempty"`
	Resume            *ResumeProfile   `json:"resume,omitempty"`
	LastSearchAt      *time.Time       `json:"last_search_at,omitempty"`
}

// Complete reports whether the preference carries everything the scheduler
// needs to run a search cycle: a query, a location, and a parsed resume.
func (p *UserPreference) Complete() bool {
	if p == nil {
		return false
	}
	return strings.TrimSpace(p.Query) != "" &&
		strings.TrimSpace(p.Location) != "" &&
		!p.Resume.IsEmpty()
}
