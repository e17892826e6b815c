// Package search provides the client for the external job search provider
// (JSearch via RapidAPI).
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/job-matcher/internal/types"
)

const (
	defaultBaseURL   = "https://jsearch.p.rapidapi.com"
	rapidAPIHost     = "jsearch.p.rapidapi.com"
	httpTimeout      = 15 * time.Second
	defaultCallDelay = time.Second
)

// CandidateSummary is a lightweight job listing returned by search, before
// detail enrichment. Provider relevance order is preserved by the client.
type CandidateSummary struct {
	ExternalID     string
	Title          string
	Employer       string
	City           string
	State          string
	Country        string
	EmploymentType string
	ApplyLink      string
	Description    string
	MinSalary      *float64
	MaxSalary      *float64
	SalaryCurrency string
	SalaryPeriod   string
	Raw            json.RawMessage
}

// DetailRecord is the enriched detail view of a candidate.
type DetailRecord struct {
	Title            string
	Description      string
	Qualifications   []string
	Responsibilities []string
}

// RequirementsText joins the qualification highlights into a single
// requirements blob for the scorer.
func (d *DetailRecord) RequirementsText() string {
	return strings.Join(d.Qualifications, "\n")
}

// Filters narrows a search request.
type Filters struct {
	EmploymentTypes []types.EmploymentType
}

// Client queries the external job search provider.
type Client interface {
	Search(ctx context.Context, query, location string, filters Filters) ([]CandidateSummary, error)
	FetchDetails(ctx context.Context, externalID string) (*DetailRecord, error)
}

// JSearchClient implements Client against the JSearch REST API. Calls are
// throttled with a fixed inter-call delay to respect provider throughput.
type JSearchClient struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	callDelay time.Duration

	// mu serializes throttled calls; the periodic cycle and on-demand
	// triggers share one client.
	mu       sync.Mutex
	lastCall time.Time
}

// Option configures a JSearchClient.
type Option func(*JSearchClient)

// WithBaseURL overrides the provider endpoint (used by tests).
func WithBaseURL(u string) Option {
	return func(c *JSearchClient) { c.baseURL = u }
}

// WithCallDelay overrides the fixed inter-call delay.
func WithCallDelay(d time.Duration) Option {
	return func(c *JSearchClient) { c.callDelay = d }
}

// NewJSearchClient constructs a client with a shared HTTP client.
func NewJSearchClient(apiKey string, opts ...Option) *JSearchClient {
	c := &JSearchClient{
		apiKey:    apiKey,
		baseURL:   defaultBaseURL,
		client:    &http.Client{Timeout: httpTimeout},
		callDelay: defaultCallDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchResponse mirrors the top-level JSearch JSON response.
type searchResponse struct {
	Data []searchResult `json:"data"`
}

// searchResult mirrors a single JSearch listing.
type searchResult struct {
	JobID             string   `json:"job_id"`
	JobTitle          string   `json:"job_title"`
	EmployerName      string   `json:"employer_name"`
	JobCity           string   `json:"job_city"`
	JobState          string   `json:"job_state"`
	JobCountry        string   `json:"job_country"`
	JobEmploymentType string   `json:"job_employment_type"`
	JobApplyLink      string   `json:"job_apply_link"`
	JobDescription    string   `json:"job_description"`
	JobMinSalary      *float64 `json:"job_min_salary"`
	JobMaxSalary      *float64 `json:"job_max_salary"`
	JobSalaryCurrency string   `json:"job_salary_currency"`
	JobSalaryPeriod   string   `json:"job_salary_period"`
}

// detailResponse mirrors the JSearch job-details response.
type detailResponse struct {
	Data []struct {
		JobTitle       string `json:"job_title"`
		JobDescription string `json:"job_description"`
		JobHighlights  struct {
			Qualifications   []string `json:"Qualifications"`
			Responsibilities []string `json:"Responsibilities"`
		} `json:"job_highlights"`
	} `json:"data"`
}

// Search queries the provider and returns candidates in provider order.
func (c *JSearchClient) Search(ctx context.Context, query, location string, filters Filters) ([]CandidateSummary, error) {
	params := url.Values{}
	params.Set("query", fmt.Sprintf("%s in %s", query, location))
	params.Set("page", "1")
	params.Set("num_pages", "1")

	if len(filters.EmploymentTypes) > 0 {
		tags := make([]string, 0, len(filters.EmploymentTypes))
		for _, t := range filters.EmploymentTypes {
			tags = append(tags, string(t))
		}
		params.Set("employment_types", strings.Join(tags, ","))
	}

	body, err := c.get(ctx, "/search", params)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderBadResponse, err)
	}

	candidates := make([]CandidateSummary, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.JobID == "" {
			continue
		}

		raw, err := json.Marshal(r)
		if err != nil {
			raw = nil
		}

		candidates = append(candidates, CandidateSummary{
			ExternalID:     r.JobID,
			Title:          r.JobTitle,
			Employer:       r.EmployerName,
			City:           r.JobCity,
			State:          r.JobState,
			Country:        r.JobCountry,
			EmploymentType: r.JobEmploymentType,
			ApplyLink:      r.JobApplyLink,
			Description:    StripHTML(r.JobDescription),
			MinSalary:      r.JobMinSalary,
			MaxSalary:      r.JobMaxSalary,
			SalaryCurrency: r.JobSalaryCurrency,
			SalaryPeriod:   r.JobSalaryPeriod,
			Raw:            raw,
		})
	}

	return candidates, nil
}

// FetchDetails enriches a summary with the full description and highlight
// sections. Callers degrade to the summary alone when this fails.
func (c *JSearchClient) FetchDetails(ctx context.Context, externalID string) (*DetailRecord, error) {
	params := url.Values{}
	params.Set("job_id", externalID)

	body, err := c.get(ctx, "/job-details", params)
	if err != nil {
		return nil, err
	}

	var resp detailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderBadResponse, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty detail payload for %s", ErrProviderBadResponse, externalID)
	}

	d := resp.Data[0]
	return &DetailRecord{
		Title:            d.JobTitle,
		Description:      StripHTML(d.JobDescription),
		Qualifications:   d.JobHighlights.Qualifications,
		Responsibilities: d.JobHighlights.Responsibilities,
	}, nil
}

// get performs a throttled GET against the provider.
func (c *JSearchClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	c.throttle(ctx)

	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-RapidAPI-Key", c.apiKey)
	req.Header.Set("X-RapidAPI-Host", rapidAPIHost)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: provider returned %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned %d: %s", ErrProviderBadResponse, resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

// throttle enforces the fixed inter-call delay. The lock is held across the
// pause so concurrent callers are spaced out rather than released together.
// The pause itself is skipped when the context is cancelled.
func (c *JSearchClient) throttle(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.callDelay <= 0 {
		c.lastCall = time.Now()
		return
	}

	if wait := c.callDelay - time.Since(c.lastCall); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
	c.lastCall = time.Now()
}

// StripHTML converts provider HTML descriptions into plain text. Plain text
// inputs pass through unchanged.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return strings.TrimSpace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}

	text := doc.Text()
	// Collapse whitespace runs introduced by removed tags.
	return strings.Join(strings.Fields(text), " ")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
