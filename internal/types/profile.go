// Package types defines the core domain types shared across the job matcher.
package types

import "strings"

// PersonalInfo holds the candidate identity fields extracted from a resume.
type PersonalInfo struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
}

// ExperienceEntry is a single position from the parsed resume, most recent first.
type ExperienceEntry struct {
	Role        string   `json:"role"`
	Company     string   `json:"company"`
	Dates       string   `json:"dates,omitempty"`
	Description []string `json:"description,omitempty"`
}

// EducationEntry is a degree or program from the parsed resume.
type EducationEntry struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Dates       string `json:"dates,omitempty"`
}

// ProjectEntry is a notable project from the parsed resume.
type ProjectEntry struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

// ResumeProfile is the parsed representation of a candidate resume.
// It is produced by the (external) resume extraction pipeline and stored as
// JSONB on the user preference record.
type ResumeProfile struct {
	PersonalInfo   PersonalInfo      `json:"personal_info,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	Skills         []string          `json:"skills,omitempty"`
	Experience     []ExperienceEntry `json:"experience,omitempty"`
	Education      []EducationEntry  `json:"education,omitempty"`
	Projects       []ProjectEntry    `json:"projects,omitempty"`
	Certifications []string          `json:"certifications,omitempty"`
	Courses        []string          `json:"courses,omitempty"`
}

// IsEmpty reports whether the profile carries no usable signal for matching.
func (p *ResumeProfile) IsEmpty() bool {
	if p == nil {
		return true
	}
	return len(p.Skills) == 0 &&
		len(p.Experience) == 0 &&
		len(p.Education) == 0 &&
		len(p.Projects) == 0 &&
		strings.TrimSpace(p.Summary) == ""
}

// FullText flattens the profile into a single lowercase string for keyword
// matching in the fallback scorer.
func (p *ResumeProfile) FullText() string {
	if p == nil {
		return ""
	}

	var sb strings.Builder
	write := func(s string) {
		if s != "" {
			sb.WriteString(s)
			sb.WriteString(" ")
		}
	}

	write(p.Summary)
	for _, s := range p.Skills {
		write(s)
	}
	for _, exp := range p.Experience {
		write(exp.Role)
		write(exp.Company)
		for _, d := range exp.Description {
			write(d)
		}
	}
	for _, edu := range p.Education {
		write(edu.Degree)
		write(edu.Institution)
	}
	for _, proj := range p.Projects {
		write(proj.Name)
		write(proj.Description)
		for _, tech := range proj.Technologies {
			write(tech)
		}
	}
	for _, c := range p.Certifications {
		write(c)
	}
	for _, c := range p.Courses {
		write(c)
	}

	return strings.ToLower(strings.TrimSpace(sb.String()))
}
