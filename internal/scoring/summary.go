package scoring

import (
	"fmt"
	"strings"

	"github.com/jonathan/job-matcher/internal/types"
)

// Condensation limits for the resume summary sent to the scoring provider.
// The provider does not need the full resume; a condensed view keeps prompts
// small and cost predictable.
const (
	maxSummarySkills         = 15
	maxSummaryExperiences    = 3
	maxSummaryEducation      = 2
	maxSummaryProjects       = 2
	maxSummaryCertifications = 5
	maxSummaryBullets        = 2
)

// BuildResumeSummary condenses a parsed resume into the text block embedded
// in the scoring prompt.
func BuildResumeSummary(profile *types.ResumeProfile) string {
	if profile == nil || profile.IsEmpty() {
		return "No resume data available"
	}

	var parts []string

	name := profile.PersonalInfo.Name
	if name == "" {
		name = "Candidate"
	}
	parts = append(parts, fmt.Sprintf("Candidate: %s", name))

	if profile.Summary != "" {
		parts = append(parts, fmt.Sprintf("Professional Summary: %s", profile.Summary))
	}

	if len(profile.Experience) > 0 {
		parts = append(parts, "WORK EXPERIENCE:")
		for _, exp := range head(profile.Experience, maxSummaryExperiences) {
			desc := strings.Join(head(exp.Description, maxSummaryBullets), "; ")
			line := fmt.Sprintf("- %s at %s", orUnknown(exp.Role, "Unknown Role"), orUnknown(exp.Company, "Unknown Company"))
			if exp.Dates != "" {
				line += fmt.Sprintf(" (%s)", exp.Dates)
			}
			if desc != "" {
				line += ": " + desc
			}
			parts = append(parts, line)
		}
	}

	if len(profile.Education) > 0 {
		parts = append(parts, "EDUCATION:")
		for _, edu := range head(profile.Education, maxSummaryEducation) {
			parts = append(parts, fmt.Sprintf("- %s from %s",
				orUnknown(edu.Degree, "Degree"), orUnknown(edu.Institution, "Institution")))
		}
	}

	if len(profile.Skills) > 0 {
		parts = append(parts, fmt.Sprintf("KEY SKILLS: %s",
			strings.Join(head(profile.Skills, maxSummarySkills), ", ")))
	}

	if len(profile.Projects) > 0 {
		parts = append(parts, "NOTABLE PROJECTS:")
		for _, proj := range head(profile.Projects, maxSummaryProjects) {
			line := fmt.Sprintf("- %s", orUnknown(proj.Name, "Project"))
			if len(proj.Technologies) > 0 {
				line += fmt.Sprintf(" (Technologies: %s)", strings.Join(proj.Technologies, ", "))
			}
			parts = append(parts, line)
		}
	}

	if len(profile.Certifications) > 0 {
		parts = append(parts, fmt.Sprintf("CERTIFICATIONS: %s",
			strings.Join(head(profile.Certifications, maxSummaryCertifications), ", ")))
	}

	return strings.Join(parts, "\n")
}

func head[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func orUnknown(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
