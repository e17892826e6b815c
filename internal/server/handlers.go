package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/job-matcher/internal/db"
	"github.com/jonathan/job-matcher/internal/types"
)

// TriggerResponse is returned by the scheduler control endpoints.
type TriggerResponse struct {
	Status string `json:"status"`
	Users  int    `json:"users,omitempty"`
}

// MatchListResponse wraps a page of matches for one user. Count is the size
// of this page; Total is the user's overall match count across all pages.
type MatchListResponse struct {
	UserID  uuid.UUID     `json:"user_id"`
	Matches []types.Match `json:"matches"`
	Count   int           `json:"count"`
	Total   int           `json:"total"`
}

// UpdateStatusRequest is the body for PATCH /matches/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// handleForceUpdateAll refreshes every user with complete preferences,
// regardless of how recent their last search was.
func (s *Server) handleForceUpdateAll(w http.ResponseWriter, r *http.Request) {
	users, err := s.trigger.ForceUpdateAll(r.Context())
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusAccepted, TriggerResponse{Status: "accepted", Users: users})
}

// handleTriggerUser enqueues an immediate refresh for one user.
func (s *Server) handleTriggerUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("user_id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid user id")
		return
	}

	pref, err := s.store.GetPreference(r.Context(), userID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	if pref == nil {
		nf := &ErrUserNotFound{UserID: userID}
		s.errorResponse(w, HTTPStatus(nf), nf.Error())
		return
	}
	if !pref.Complete() {
		s.errorResponse(w, http.StatusConflict, "preferences are incomplete: query, location and resume are required")
		return
	}

	if err := s.trigger.TriggerNow(userID); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusAccepted, TriggerResponse{Status: "accepted", Users: 1})
}

// handleSchedulerStatus reports scheduler state.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.trigger.Status())
}

// handleGetPreferences returns the stored preference record for a user.
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid user id")
		return
	}

	pref, err := s.store.GetPreference(r.Context(), userID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	if pref == nil {
		nf := &ErrUserNotFound{UserID: userID}
		s.errorResponse(w, HTTPStatus(nf), nf.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, pref)
}

// handleSavePreferences upserts the preference record for a user. The search
// watermark is managed by the scheduler and cannot be set here.
func (s *Server) handleSavePreferences(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var pref types.UserPreference
	if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	pref.UserID = userID

	if verr := validatePreference(&pref); verr != nil {
		s.errorResponse(w, HTTPStatus(verr), verr.Error())
		return
	}

	if err := s.store.SavePreference(r.Context(), &pref); err != nil {
		s.logger.Error("failed to save preferences", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	s.jsonResponse(w, http.StatusOK, pref)
}

func validatePreference(pref *types.UserPreference) error {
	if pref.Query == "" {
		return &ErrValidation{Field: "query", Message: "must not be empty"}
	}
	if pref.Mode != "" && !pref.Mode.Valid() {
		return &ErrValidation{Field: "mode_of_job", Message: "unknown mode"}
	}
	for _, et := range pref.EmploymentTypes {
		if !et.Valid() {
			return &ErrValidation{Field: "employment_types", Message: "unknown employment type"}
		}
	}
	for _, ct := range pref.CompanyTypes {
		if !ct.Valid() {
			return &ErrValidation{Field: "company_types", Message: "unknown company type"}
		}
	}
	return nil
}

// handleListMatches returns a user's matches ordered by score.
func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid user id")
		return
	}

	minScore := floatQuery(r, "min_score", 0)
	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)

	matches, err := s.store.ListMatchesForUser(r.Context(), userID, minScore, limit, offset)
	if err != nil {
		s.logger.Error("failed to list matches", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	total, err := s.store.CountMatchesForUser(r.Context(), userID)
	if err != nil {
		s.logger.Error("failed to count matches", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	s.jsonResponse(w, http.StatusOK, MatchListResponse{
		UserID:  userID,
		Matches: matches,
		Count:   len(matches),
		Total:   total,
	})
}

// handleUpdateMatchStatus sets a match's status annotation.
func (s *Server) handleUpdateMatchStatus(w http.ResponseWriter, r *http.Request) {
	matchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid match id")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	status, err := types.ParseMatchStatus(req.Status)
	if err != nil {
		verr := &ErrValidation{Field: "status", Message: err.Error()}
		s.errorResponse(w, HTTPStatus(verr), verr.Error())
		return
	}

	if err := s.store.UpdateMatchStatus(r.Context(), matchID, status); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"id":     matchID.String(),
		"status": string(status),
	})
}

// handleRescoreMatch recomputes the relevance score for an existing match
// using the current resume and job data.
func (s *Server) handleRescoreMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid match id")
		return
	}

	match, err := s.store.GetMatch(r.Context(), matchID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load match")
		return
	}
	if match == nil {
		nf := &ErrMatchNotFound{MatchID: matchID}
		s.errorResponse(w, HTTPStatus(nf), nf.Error())
		return
	}

	pref, err := s.store.GetPreference(r.Context(), match.UserID)
	if err != nil || pref == nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load preferences for match")
		return
	}
	job, err := s.store.GetJob(r.Context(), match.JobID)
	if err != nil || job == nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load job for match")
		return
	}

	grade := s.scorer.Score(r.Context(), pref.Resume, job)
	if err := s.store.RescoreMatch(r.Context(), matchID, grade.Score); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"id":     matchID.String(),
		"score":  grade.Score,
		"source": grade.Source,
	})
}

// handleListJobs returns stored jobs matching the filter query params.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filters := db.JobFilters{
		Title:    r.URL.Query().Get("title"),
		Employer: r.URL.Query().Get("employer"),
		Location: r.URL.Query().Get("location"),
		Limit:    intQuery(r, "limit", 50),
	}

	jobs, err := s.store.ListJobs(r.Context(), filters)
	if err != nil {
		s.logger.Error("failed to list jobs", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleGetJob returns one stored job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job == nil {
		nf := &ErrJobNotFound{JobID: id}
		s.errorResponse(w, HTTPStatus(nf), nf.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func floatQuery(r *http.Request, key string, fallback float64) float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}
