package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/job-matcher/internal/search"
	"github.com/jonathan/job-matcher/internal/types"
)

const jobColumns = `id, external_id, title, employer, city, state, country,
	description, requirements, employment_type, apply_link,
	min_salary, max_salary, salary_currency, salary_period, raw,
	created_at, updated_at`

// UpsertJob inserts a candidate as a canonical job row, deduplicated by
// external id. When a row with the same external id already exists it is
// returned unchanged; the uniqueness conflict is the dedup mechanism, not an
// error. Detail enrichment is optional: a nil detail stores the summary as-is.
func (db *DB) UpsertJob(ctx context.Context, cand search.CandidateSummary, detail *search.DetailRecord) (*types.Job, error) {
	description := cand.Description
	requirements := ""
	if detail != nil {
		if detail.Description != "" {
			description = detail.Description
		}
		requirements = detail.RequirementsText()
	}

	row := db.pool.QueryRow(ctx,
		`INSERT INTO jobs (external_id, title, employer, city, state, country,
			description, requirements, employment_type, apply_link,
			min_salary, max_salary, salary_currency, salary_period, raw)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (external_id) DO NOTHING
		 RETURNING `+jobColumns,
		cand.ExternalID, cand.Title, cand.Employer, cand.City, cand.State, cand.Country,
		description, requirements, cand.EmploymentType, cand.ApplyLink,
		cand.MinSalary, cand.MaxSalary, cand.SalaryCurrency, cand.SalaryPeriod, cand.Raw,
	)

	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to upsert job %s: %w", cand.ExternalID, err)
	}

	// Conflict: another writer already inserted this external id. Return the
	// existing row unchanged.
	existing, err := db.GetJobByExternalID(ctx, cand.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("job %s vanished after upsert conflict", cand.ExternalID)
	}
	return existing, nil
}

// GetJob retrieves a job by its internal id. Returns nil when absent.
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// GetJobByExternalID retrieves a job by its provider-assigned external id.
// Returns nil when absent.
func (db *DB) GetJobByExternalID(ctx context.Context, externalID string) (*types.Job, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE external_id = $1`, externalID)
	job, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job by external id: %w", err)
	}
	return job, nil
}

// JobFilters holds optional substring filters for listing jobs.
type JobFilters struct {
	Title    string
	Employer string
	Location string
	Limit    int
}

// ListJobs retrieves jobs with optional substring filters, newest first.
func (db *DB) ListJobs(ctx context.Context, filters JobFilters) ([]types.Job, error) {
	if filters.Limit == 0 {
		filters.Limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Title != "" {
		query += fmt.Sprintf(" AND title ILIKE $%d", argNum)
		args = append(args, "%"+filters.Title+"%")
		argNum++
	}
	if filters.Employer != "" {
		query += fmt.Sprintf(" AND employer ILIKE $%d", argNum)
		args = append(args, "%"+filters.Employer+"%")
		argNum++
	}
	if filters.Location != "" {
		query += fmt.Sprintf(" AND concat_ws(', ', city, state, country) ILIKE $%d", argNum)
		args = append(args, "%"+filters.Location+"%")
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*types.Job, error) {
	var j types.Job
	err := row.Scan(&j.ID, &j.ExternalID, &j.Title, &j.Employer, &j.City, &j.State, &j.Country,
		&j.Description, &j.Requirements, &j.EmploymentType, &j.ApplyLink,
		&j.MinSalary, &j.MaxSalary, &j.SalaryCurrency, &j.SalaryPeriod, &j.Raw,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
