package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job is a canonical persisted job listing, deduplicated by the provider's
// external id. Identity fields are immutable once the row exists.
type Job struct {
	ID             uuid.UUID       `json:"id"`
	ExternalID     string          `json:"external_id"`
	Title          string          `json:"title"`
	Employer       string          `json:"employer"`
	City           string          `json:"city,omitempty"`
	State          string          `json:"state,omitempty"`
	Country        string          `json:"country,omitempty"`
	Description    string          `json:"description,omitempty"`
	Requirements   string          `json:"requirements,omitempty"`
	EmploymentType string          `json:"employment_type,omitempty"`
	ApplyLink      string          `json:"apply_link,omitempty"`
	MinSalary      *float64        `json:"min_salary,omitempty"`
	MaxSalary      *float64        `json:"max_salary,omitempty"`
	SalaryCurrency string          `json:"salary_currency,omitempty"`
	SalaryPeriod   string          `json:"salary_period,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// LocationString joins the location fields into a display string, skipping
// empty parts.
func (j *Job) LocationString() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{j.City, j.State, j.Country} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
