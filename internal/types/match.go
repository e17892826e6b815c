package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MatchStatus is a user annotation on a match. It is not a workflow: any
// status may move to any other.
type MatchStatus string

// Recognized match statuses.
const (
	StatusPending       MatchStatus = "pending"
	StatusApplied       MatchStatus = "applied"
	StatusNotInterested MatchStatus = "not_interested"
)

// Valid reports whether s is one of the recognized statuses.
func (s MatchStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApplied, StatusNotInterested:
		return true
	}
	return false
}

// ParseMatchStatus converts a string into a MatchStatus, rejecting unknown
// values.
func ParseMatchStatus(s string) (MatchStatus, error) {
	status := MatchStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown match status %q", s)
	}
	return status, nil
}

// Match is a persisted (user, job) relevance entry. Exactly one row exists
// per (user, job) pair, enforced by a storage-level uniqueness constraint.
type Match struct {
	ID        uuid.UUID   `json:"id"`
	UserID    uuid.UUID   `json:"user_id"`
	JobID     uuid.UUID   `json:"job_id"`
	Score     float64     `json:"score"`
	Status    MatchStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}
