package scoring

import (
	"regexp"
	"strings"

	"github.com/jonathan/job-matcher/internal/types"
)

// Weights for the deterministic fallback score. They sum to 1.0.
const (
	weightSkills     = 0.35
	weightExperience = 0.30
	weightEducation  = 0.15
	weightKeywords   = 0.20
)

// The fallback score is clamped into a band so that a degraded provider never
// produces a perfect or a zero score for real inputs.
const (
	fallbackFloor   = 0.2
	fallbackCeiling = 0.85
)

var tokenPattern = regexp.MustCompile(`\w+`)

// fallbackScore computes a keyword overlap score between resume and job text.
// It is used whenever the semantic path is unavailable or fails, and always
// succeeds.
func fallbackScore(profile *types.ResumeProfile, job *types.Job) Result {
	jobText := strings.ToLower(job.Title + " " + job.Description + " " + job.Requirements)
	resumeText := profile.FullText()

	if strings.TrimSpace(jobText) == "" && resumeText == "" {
		return Result{Score: 0.0, Source: SourceFallback}
	}

	skills := skillsMatchRatio(profile.Skills, jobText)
	experience := tokenOverlap(experienceText(profile), jobText, 3)
	education := tokenOverlap(educationText(profile), jobText, 3)
	keywords := tokenOverlap(resumeText, jobText, 3)

	raw := weightSkills*skills +
		weightExperience*experience +
		weightEducation*education +
		weightKeywords*keywords

	score := clamp(raw, fallbackFloor, fallbackCeiling)

	return Result{
		Score:               score,
		SkillsMatch:         skills,
		ExperienceRelevance: experience,
		EducationMatch:      education,
		RoleCompatibility:   keywords,
		Source:              SourceFallback,
	}
}

// skillsMatchRatio reports the fraction of resume skills that appear verbatim
// in the job text.
func skillsMatchRatio(skills []string, jobText string) float64 {
	if len(skills) == 0 {
		return 0
	}
	matched := 0
	for _, skill := range skills {
		s := strings.ToLower(strings.TrimSpace(skill))
		if s != "" && strings.Contains(jobText, s) {
			matched++
		}
	}
	return float64(matched) / float64(len(skills))
}

// tokenOverlap measures shared tokens between two texts, normalized by the
// smaller token set. Tokens shorter than minLen are ignored.
func tokenOverlap(a, b string, minLen int) float64 {
	setA := tokenSet(a, minLen)
	setB := tokenSet(b, minLen)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}

	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}
	return float64(shared) / float64(smaller)
}

func tokenSet(text string, minLen int) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(tok) > minLen {
			set[tok] = struct{}{}
		}
	}
	return set
}

func experienceText(profile *types.ResumeProfile) string {
	var sb strings.Builder
	for _, exp := range profile.Experience {
		sb.WriteString(exp.Role)
		sb.WriteString(" ")
		sb.WriteString(exp.Company)
		sb.WriteString(" ")
		sb.WriteString(strings.Join(exp.Description, " "))
		sb.WriteString(" ")
	}
	return sb.String()
}

func educationText(profile *types.ResumeProfile) string {
	var sb strings.Builder
	for _, edu := range profile.Education {
		sb.WriteString(edu.Degree)
		sb.WriteString(" ")
		sb.WriteString(edu.Institution)
		sb.WriteString(" ")
	}
	return sb.String()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
