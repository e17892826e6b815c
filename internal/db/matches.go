package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/job-matcher/internal/types"
)

const matchColumns = `id, user_id, job_id, score, status, created_at`

// CreateMatch records a (user, job) relevance entry. The (user_id, job_id)
// uniqueness constraint makes this idempotent: when a match already exists it
// is returned with its original score untouched. Rescoring is an explicit
// administrative action (RescoreMatch), never implicit.
func (db *DB) CreateMatch(ctx context.Context, userID, jobID uuid.UUID, score float64) (*types.Match, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO matches (user_id, job_id, score, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, job_id) DO NOTHING
		 RETURNING `+matchColumns,
		userID, jobID, score, types.StatusPending,
	)

	match, err := scanMatch(row)
	if err == nil {
		return match, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	// Conflict: the pair already has a match. Return it unchanged.
	existing, err := db.GetMatchByPair(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("match (%s, %s) vanished after insert conflict", userID, jobID)
	}
	return existing, nil
}

// RescoreMatch overwrites a match's score. This is the administrative
// recompute path; the scheduler never calls it.
func (db *DB) RescoreMatch(ctx context.Context, matchID uuid.UUID, score float64) error {
	tag, err := db.pool.Exec(ctx, `UPDATE matches SET score = $1 WHERE id = $2`, score, matchID)
	if err != nil {
		return fmt.Errorf("failed to rescore match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	return nil
}

// UpdateMatchStatus sets the status annotation on a match. Any status may
// move to any other; this is a user annotation, not a workflow.
func (db *DB) UpdateMatchStatus(ctx context.Context, matchID uuid.UUID, status types.MatchStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid match status %q", status)
	}

	tag, err := db.pool.Exec(ctx, `UPDATE matches SET status = $1 WHERE id = $2`, status, matchID)
	if err != nil {
		return fmt.Errorf("failed to update match status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	return nil
}

// GetMatch retrieves a match by id. Returns nil when absent.
func (db *DB) GetMatch(ctx context.Context, matchID uuid.UUID) (*types.Match, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, matchID)
	match, err := scanMatch(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return match, nil
}

// GetMatchByPair retrieves the match for a (user, job) pair. Returns nil
// when absent.
func (db *DB) GetMatchByPair(ctx context.Context, userID, jobID uuid.UUID) (*types.Match, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE user_id = $1 AND job_id = $2`,
		userID, jobID,
	)
	match, err := scanMatch(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get match by pair: %w", err)
	}
	return match, nil
}

// ListMatchesForUser returns a user's matches ordered by score descending,
// ties broken by creation time newest first. The ordering is a stable
// contract consumed by the API layer.
func (db *DB) ListMatchesForUser(ctx context.Context, userID uuid.UUID, minScore float64, limit, offset int) ([]types.Match, error) {
	if limit == 0 {
		limit = 50
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+matchColumns+` FROM matches
		 WHERE user_id = $1 AND score >= $2
		 ORDER BY score DESC, created_at DESC
		 LIMIT $3 OFFSET $4`,
		userID, minScore, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var matches []types.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, *match)
	}
	return matches, rows.Err()
}

// CountMatchesForUser returns the user's total match count across all pages
// of the match listing.
func (db *DB) CountMatchesForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM matches WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return count, nil
}

func scanMatch(row pgx.Row) (*types.Match, error) {
	var m types.Match
	err := row.Scan(&m.ID, &m.UserID, &m.JobID, &m.Score, &m.Status, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
