// Package scoring computes relevance scores between a candidate resume and a
// job listing. The primary path asks a generative model to grade the pair
// against a fixed rubric; when the model is unavailable or returns something
// unusable, a deterministic keyword overlap fallback is used instead. Scoring
// never returns an error to the caller.
package scoring

import (
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/types"
)

//go:embed prompt.md
var promptTemplate string

//go:embed response.schema.json
var responseSchema string

// DefaultTimeout bounds a single semantic scoring call.
const DefaultTimeout = 30 * time.Second

// Source identifies which path produced a score.
type Source string

const (
	SourceSemantic Source = "semantic"
	SourceFallback Source = "fallback"
)

// Result is the outcome of scoring one resume against one job. Score is
// always in [0, 1].
type Result struct {
	Score               float64  `json:"score"`
	SkillsMatch         float64  `json:"skills_match"`
	ExperienceRelevance float64  `json:"experience_relevance"`
	EducationMatch      float64  `json:"education_match"`
	RoleCompatibility   float64  `json:"role_compatibility"`
	KeyMatches          []string `json:"key_matches,omitempty"`
	MissingRequirements []string `json:"missing_requirements,omitempty"`
	Assessment          string   `json:"assessment,omitempty"`
	Source              Source   `json:"source"`
}

// scoreResponse mirrors the JSON shape the model is instructed to return.
type scoreResponse struct {
	RelevanceScore      float64  `json:"relevance_score"`
	SkillsMatch         float64  `json:"skills_match"`
	ExperienceRelevance float64  `json:"experience_relevance"`
	EducationMatch      float64  `json:"education_match"`
	RoleCompatibility   float64  `json:"role_compatibility"`
	KeyMatches          []string `json:"key_matches"`
	MissingRequirements []string `json:"missing_requirements"`
	OverallAssessment   string   `json:"overall_assessment"`
}

// Scorer grades resume/job pairs. A nil client disables the semantic path
// entirely, which still yields valid fallback scores.
type Scorer struct {
	client  llm.Client
	timeout time.Duration
	schema  *gojsonschema.Schema
	logger  *zap.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithTimeout overrides the per-call semantic timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scorer) {
		s.timeout = d
	}
}

// New builds a Scorer. client may be nil when no scoring provider is
// configured.
func New(client llm.Client, logger *zap.Logger, opts ...Option) *Scorer {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(responseSchema))
	if err != nil {
		// The schema is embedded and fixed; a compile failure is a build
		// defect, not a runtime condition.
		panic("scoring: invalid embedded response schema: " + err.Error())
	}

	s := &Scorer{
		client:  client,
		timeout: DefaultTimeout,
		schema:  schema,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score grades profile against job. It never returns an error: any failure
// along the semantic path degrades to the deterministic fallback.
func (s *Scorer) Score(ctx context.Context, profile *types.ResumeProfile, job *types.Job) Result {
	if s.client == nil {
		return fallbackScore(profile, job)
	}

	result, err := s.semanticScore(ctx, profile, job)
	if err != nil {
		s.logger.Warn("semantic scoring failed, using fallback",
			zap.String("job_id", job.ExternalID),
			zap.Error(err))
		return fallbackScore(profile, job)
	}
	return result
}

func (s *Scorer) semanticScore(ctx context.Context, profile *types.ResumeProfile, job *types.Job) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := buildPrompt(profile, job)

	raw, err := s.client.GenerateJSON(ctx, prompt)
	if err != nil {
		return Result{}, err
	}

	cleaned := llm.CleanJSONBlock(raw)

	validation, err := s.schema.Validate(gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return Result{}, err
	}
	if !validation.Valid() {
		return Result{}, &llm.InvalidResponseError{Detail: validationDetail(validation)}
	}

	var resp scoreResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return Result{}, err
	}

	return Result{
		Score:               clamp(resp.RelevanceScore, 0, 1),
		SkillsMatch:         clamp(resp.SkillsMatch, 0, 1),
		ExperienceRelevance: clamp(resp.ExperienceRelevance, 0, 1),
		EducationMatch:      clamp(resp.EducationMatch, 0, 1),
		RoleCompatibility:   clamp(resp.RoleCompatibility, 0, 1),
		KeyMatches:          resp.KeyMatches,
		MissingRequirements: resp.MissingRequirements,
		Assessment:          resp.OverallAssessment,
		Source:              SourceSemantic,
	}, nil
}

func buildPrompt(profile *types.ResumeProfile, job *types.Job) string {
	replacer := strings.NewReplacer(
		"{{JOB_TITLE}}", job.Title,
		"{{JOB_DESCRIPTION}}", truncate(job.Description, 4000),
		"{{JOB_REQUIREMENTS}}", truncate(job.Requirements, 2000),
		"{{RESUME_SUMMARY}}", BuildResumeSummary(profile),
	)
	return replacer.Replace(promptTemplate)
}

// truncate caps prompt sections by rune count so multibyte text is never
// cut mid-character.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func validationDetail(result *gojsonschema.Result) string {
	errs := result.Errors()
	if len(errs) == 0 {
		return "schema validation failed"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}
