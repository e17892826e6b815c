package scoring

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/job-matcher/internal/types"
)

type fakeLLM struct {
	response string
	err      error
	delay    time.Duration
	calls    int
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) Close() error { return nil }

func testProfile() *types.ResumeProfile {
	return &types.ResumeProfile{
		PersonalInfo: types.PersonalInfo{Name: "Ada Lovelace"},
		Summary:      "Backend engineer with a focus on distributed systems",
		Skills:       []string{"Go", "PostgreSQL", "Kubernetes"},
		Experience: []types.ExperienceEntry{
			{Role: "Software Engineer", Company: "Acme", Description: []string{"Built Go services on PostgreSQL"}},
		},
		Education: []types.EducationEntry{
			{Degree: "BS Computer Science", Institution: "State University"},
		},
	}
}

func testJob() *types.Job {
	return &types.Job{
		ExternalID:   "ext-1",
		Title:        "Senior Go Engineer",
		Description:  "Build backend services in Go with PostgreSQL and Kubernetes",
		Requirements: "5+ years Go experience\nPostgreSQL",
	}
}

const validResponse = `{
	"relevance_score": 0.82,
	"skills_match": 0.9,
	"experience_relevance": 0.8,
	"education_match": 0.7,
	"role_compatibility": 0.85,
	"key_matches": ["Go", "PostgreSQL"],
	"missing_requirements": ["Kubernetes certification"],
	"overall_assessment": "Strong match for the core stack."
}`

func TestScoreSemantic(t *testing.T) {
	client := &fakeLLM{response: validResponse}
	scorer := New(client, zap.NewNop())

	result := scorer.Score(context.Background(), testProfile(), testJob())

	assert.Equal(t, SourceSemantic, result.Source)
	assert.InDelta(t, 0.82, result.Score, 0.001)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, result.KeyMatches)
	assert.Equal(t, 1, client.calls)
}

func TestScoreSemanticFencedResponse(t *testing.T) {
	client := &fakeLLM{response: "```json\n" + validResponse + "\n```"}
	scorer := New(client, zap.NewNop())

	result := scorer.Score(context.Background(), testProfile(), testJob())

	assert.Equal(t, SourceSemantic, result.Source)
	assert.InDelta(t, 0.82, result.Score, 0.001)
}

func TestScoreClampsOutOfRangeValues(t *testing.T) {
	client := &fakeLLM{response: `{"relevance_score": 1.7, "skills_match": -0.3}`}
	scorer := New(client, zap.NewNop())

	result := scorer.Score(context.Background(), testProfile(), testJob())

	assert.Equal(t, SourceSemantic, result.Source)
	assert.Equal(t, 1.0, result.Score)
	assert.Equal(t, 0.0, result.SkillsMatch)
}

func TestScoreFallsBackOnProviderError(t *testing.T) {
	client := &fakeLLM{err: errors.New("quota exceeded")}
	scorer := New(client, zap.NewNop())

	result := scorer.Score(context.Background(), testProfile(), testJob())

	assert.Equal(t, SourceFallback, result.Source)
	assert.GreaterOrEqual(t, result.Score, fallbackFloor)
	assert.LessOrEqual(t, result.Score, fallbackCeiling)
}

func TestScoreFallsBackOnTimeout(t *testing.T) {
	client := &fakeLLM{response: validResponse, delay: 200 * time.Millisecond}
	scorer := New(client, zap.NewNop(), WithTimeout(10*time.Millisecond))

	result := scorer.Score(context.Background(), testProfile(), testJob())

	assert.Equal(t, SourceFallback, result.Source)
}

func TestScoreFallsBackOnMalformedJSON(t *testing.T) {
	client := &fakeLLM{response: "sure, here is the score: 0.8"}
	scorer := New(client, zap.NewNop())

	result := scorer.Score(context.Background(), testProfile(), testJob())

	assert.Equal(t, SourceFallback, result.Source)
}

func TestScoreFallsBackOnSchemaViolation(t *testing.T) {
	// Valid JSON but missing the required relevance_score field.
	client := &fakeLLM{response: `{"skills_match": 0.5}`}
	scorer := New(client, zap.NewNop())

	result := scorer.Score(context.Background(), testProfile(), testJob())

	assert.Equal(t, SourceFallback, result.Source)
}

func TestScoreNilClientUsesFallback(t *testing.T) {
	scorer := New(nil, zap.NewNop())

	result := scorer.Score(context.Background(), testProfile(), testJob())

	assert.Equal(t, SourceFallback, result.Source)
	assert.GreaterOrEqual(t, result.Score, fallbackFloor)
}

func TestFallbackScoreBand(t *testing.T) {
	result := fallbackScore(testProfile(), testJob())

	assert.Equal(t, SourceFallback, result.Source)
	assert.GreaterOrEqual(t, result.Score, fallbackFloor)
	assert.LessOrEqual(t, result.Score, fallbackCeiling)
	assert.Greater(t, result.SkillsMatch, 0.0, "all listed skills appear in the job text")
}

func TestFallbackScoreEmptyInputs(t *testing.T) {
	result := fallbackScore(&types.ResumeProfile{}, &types.Job{})

	assert.Equal(t, 0.0, result.Score)
}

func TestFallbackScoreUnrelatedTexts(t *testing.T) {
	profile := &types.ResumeProfile{
		Summary: "Pastry chef specialising in laminated doughs",
		Skills:  []string{"croissants", "sourdough"},
	}
	result := fallbackScore(profile, testJob())

	assert.Equal(t, fallbackFloor, result.Score, "no overlap still lands on the floor")
}

func TestBuildResumeSummary(t *testing.T) {
	summary := BuildResumeSummary(testProfile())

	assert.Contains(t, summary, "Ada Lovelace")
	assert.Contains(t, summary, "WORK EXPERIENCE:")
	assert.Contains(t, summary, "Software Engineer at Acme")
	assert.Contains(t, summary, "KEY SKILLS: Go, PostgreSQL, Kubernetes")
}

func TestBuildResumeSummaryLimits(t *testing.T) {
	profile := testProfile()
	for i := 0; i < 30; i++ {
		profile.Skills = append(profile.Skills, "skill")
		profile.Experience = append(profile.Experience, types.ExperienceEntry{Role: "Role", Company: "Co"})
	}

	summary := BuildResumeSummary(profile)

	// Only the most recent positions make it into the prompt.
	assert.LessOrEqual(t, countLines(summary, "- Role at Co"), maxSummaryExperiences)
}

func TestBuildResumeSummaryEmpty(t *testing.T) {
	assert.Equal(t, "No resume data available", BuildResumeSummary(nil))
	assert.Equal(t, "No resume data available", BuildResumeSummary(&types.ResumeProfile{}))
}

func TestBuildPromptSubstitutesFields(t *testing.T) {
	prompt := buildPrompt(testProfile(), testJob())

	require.NotContains(t, prompt, "{{JOB_TITLE}}")
	require.NotContains(t, prompt, "{{RESUME_SUMMARY}}")
	assert.Contains(t, prompt, "Senior Go Engineer")
	assert.Contains(t, prompt, "Ada Lovelace")
}

func TestBuildPromptTruncatesOnRuneBoundaries(t *testing.T) {
	job := testJob()
	job.Description = strings.Repeat("Entwicklung für Großkunden. ", 200)
	job.Requirements = strings.Repeat("日本語能力試験N1。", 400)

	prompt := buildPrompt(testProfile(), job)

	assert.True(t, utf8.ValidString(prompt), "truncation must not split a character")
	assert.NotContains(t, prompt, job.Description, "oversize sections are capped")
}

func countLines(s, want string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if line == want {
			n++
		}
	}
	return n
}
