package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/jonathan/job-matcher/internal/types"
)

const preferenceColumns = `user_id, query, location, mode_of_job, experience_level,
	employment_types, company_types, extra_requirements, resume, last_search_at`

// SavePreference upserts a user's search preferences. The last_search_at
// watermark is deliberately not written here; it only moves through
// MarkSearched.
func (db *DB) SavePreference(ctx context.Context, pref *types.UserPreference) error {
	resumeJSON, err := marshalResume(pref.Resume)
	if err != nil {
		return err
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO user_preferences (user_id, query, location, mode_of_job, experience_level,
			employment_types, company_types, extra_requirements, resume)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id) DO UPDATE SET
			query = $2, location = $3, mode_of_job = $4, experience_level = $5,
			employment_types = $6, company_types = $7, extra_requirements = $8,
			resume = $9, updated_at = NOW()`,
		pref.UserID, pref.Query, pref.Location, pref.Mode, pref.ExperienceLevel,
		employmentStrings(pref.EmploymentTypes), companyStrings(pref.CompanyTypes),
		pref.ExtraRequirements, resumeJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}
	return nil
}

// GetPreference retrieves a user's preferences. Returns nil when absent.
func (db *DB) GetPreference(ctx context.Context, userID uuid.UUID) (*types.UserPreference, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+preferenceColumns+` FROM user_preferences WHERE user_id = $1`, userID)
	pref, err := db.scanPreference(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}
	return pref, nil
}

// ListEligible returns users whose preferences are complete and whose last
// search is either absent or older than the cutoff. Resume completeness is
// re-checked in Go: a JSONB document can be present but empty.
func (db *DB) ListEligible(ctx context.Context, cutoff time.Time) ([]types.UserPreference, error) {
	return db.listPreferences(ctx,
		`SELECT `+preferenceColumns+` FROM user_preferences
		 WHERE query <> '' AND location <> '' AND resume IS NOT NULL
		   AND (last_search_at IS NULL OR last_search_at < $1)
		 ORDER BY last_search_at ASC NULLS FIRST`,
		cutoff)
}

// ListComplete returns all users whose preferences are complete, ignoring the
// staleness watermark. Used by the administrative force sweep.
func (db *DB) ListComplete(ctx context.Context) ([]types.UserPreference, error) {
	return db.listPreferences(ctx,
		`SELECT `+preferenceColumns+` FROM user_preferences
		 WHERE query <> '' AND location <> '' AND resume IS NOT NULL
		 ORDER BY last_search_at ASC NULLS FIRST`)
}

// MarkSearched advances the user's last_search_at watermark. Called only
// after a fully successful cycle so failed users are retried next pass.
func (db *DB) MarkSearched(ctx context.Context, userID uuid.UUID, at time.Time) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE user_preferences SET last_search_at = $1 WHERE user_id = $2`, at, userID)
	if err != nil {
		return fmt.Errorf("failed to mark searched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("preference for user %s: %w", userID, ErrNotFound)
	}
	return nil
}

func (db *DB) listPreferences(ctx context.Context, query string, args ...any) ([]types.UserPreference, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	var prefs []types.UserPreference
	for rows.Next() {
		pref, err := db.scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, *pref)
	}
	return prefs, rows.Err()
}

func (db *DB) scanPreference(row pgx.Row) (*types.UserPreference, error) {
	var p types.UserPreference
	var employmentTags, companyTags []string
	var resumeJSON []byte

	err := row.Scan(&p.UserID, &p.Query, &p.Location, &p.Mode, &p.ExperienceLevel,
		&employmentTags, &companyTags, &p.ExtraRequirements, &resumeJSON, &p.LastSearchAt)
	if err != nil {
		return nil, err
	}

	for _, tag := range employmentTags {
		p.EmploymentTypes = append(p.EmploymentTypes, types.EmploymentType(tag))
	}
	for _, tag := range companyTags {
		p.CompanyTypes = append(p.CompanyTypes, types.CompanyType(tag))
	}
	if len(resumeJSON) > 0 {
		var resume types.ResumeProfile
		if err := json.Unmarshal(resumeJSON, &resume); err != nil {
			// The user is treated as having no resume until the row is
			// re-saved, which makes them ineligible for matching.
			db.logger.Warn("stored resume does not unmarshal, ignoring it",
				zap.String("user_id", p.UserID.String()),
				zap.Error(err))
		} else {
			p.Resume = &resume
		}
	}

	return &p, nil
}

func marshalResume(resume *types.ResumeProfile) ([]byte, error) {
	if resume == nil {
		return nil, nil
	}
	data, err := json.Marshal(resume)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resume: %w", err)
	}
	return data, nil
}

func employmentStrings(tags []types.EmploymentType) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, string(t))
	}
	return out
}

func companyStrings(tags []types.CompanyType) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, string(t))
	}
	return out
}
