package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/job-matcher/internal/scoring"
	"github.com/jonathan/job-matcher/internal/search"
	"github.com/jonathan/job-matcher/internal/types"
)

type fakeStore struct {
	mu          sync.Mutex
	prefs       map[uuid.UUID]*types.UserPreference
	jobs        map[string]*types.Job
	matches     map[string]*types.Match
	searchedAt  map[uuid.UUID]time.Time
	upsertCalls int
	failUpsert  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		prefs:      make(map[uuid.UUID]*types.UserPreference),
		jobs:       make(map[string]*types.Job),
		matches:    make(map[string]*types.Match),
		searchedAt: make(map[uuid.UUID]time.Time),
	}
}

func (f *fakeStore) addUser(pref *types.UserPreference) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs[pref.UserID] = pref
}

func (f *fakeStore) ListEligible(ctx context.Context, cutoff time.Time) ([]types.UserPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.UserPreference
	for _, p := range f.prefs {
		if !p.Complete() {
			continue
		}
		if p.LastSearchAt == nil || p.LastSearchAt.Before(cutoff) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListComplete(ctx context.Context) ([]types.UserPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.UserPreference
	for _, p := range f.prefs {
		if p.Complete() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetPreference(ctx context.Context, userID uuid.UUID) (*types.UserPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefs[userID], nil
}

func (f *fakeStore) UpsertJob(ctx context.Context, cand search.CandidateSummary, detail *search.DetailRecord) (*types.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.failUpsert {
		return nil, fmt.Errorf("connection refused")
	}
	if existing, ok := f.jobs[cand.ExternalID]; ok {
		return existing, nil
	}
	job := &types.Job{
		ID:          uuid.New(),
		ExternalID:  cand.ExternalID,
		Title:       cand.Title,
		Description: cand.Description,
	}
	if detail != nil {
		job.Description = detail.Description
		job.Requirements = detail.RequirementsText()
	}
	f.jobs[cand.ExternalID] = job
	return job, nil
}

func (f *fakeStore) CreateMatch(ctx context.Context, userID, jobID uuid.UUID, score float64) (*types.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := userID.String() + "/" + jobID.String()
	if existing, ok := f.matches[key]; ok {
		return existing, nil
	}
	m := &types.Match{
		ID:     uuid.New(),
		UserID: userID,
		JobID:  jobID,
		Score:  score,
		Status: types.StatusPending,
	}
	f.matches[key] = m
	return m, nil
}

func (f *fakeStore) MarkSearched(ctx context.Context, userID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchedAt[userID] = at
	p := f.prefs[userID]
	p.LastSearchAt = &at
	return nil
}

func (f *fakeStore) matchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matches)
}

type fakeSearch struct {
	mu          sync.Mutex
	results     []search.CandidateSummary
	searchErr   map[string]error
	detailErr   map[string]error
	searchCalls []string
	detailCalls []string
}

func (f *fakeSearch) Search(ctx context.Context, query, location string, filters search.Filters) ([]search.CandidateSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls = append(f.searchCalls, query)
	if err, ok := f.searchErr[query]; ok {
		return nil, err
	}
	return f.results, nil
}

func (f *fakeSearch) FetchDetails(ctx context.Context, externalID string) (*search.DetailRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls = append(f.detailCalls, externalID)
	if err, ok := f.detailErr[externalID]; ok {
		return nil, err
	}
	return &search.DetailRecord{
		Description:    "detailed description for " + externalID,
		Qualifications: []string{"Go", "SQL"},
	}, nil
}

type fixedScorer struct {
	score float64
}

func (f fixedScorer) Score(ctx context.Context, profile *types.ResumeProfile, job *types.Job) scoring.Result {
	return scoring.Result{Score: f.score, Source: scoring.SourceFallback}
}

func completePref(lastSearch *time.Time) *types.UserPreference {
	return &types.UserPreference{
		UserID:   uuid.New(),
		Query:    "go developer",
		Location: "Berlin",
		Resume: &types.ResumeProfile{
			Skills: []string{"Go"},
		},
		LastSearchAt: lastSearch,
	}
}

func candidates(n int) []search.CandidateSummary {
	out := make([]search.CandidateSummary, n)
	for i := range out {
		out[i] = search.CandidateSummary{
			ExternalID:  fmt.Sprintf("job-%d", i),
			Title:       fmt.Sprintf("Engineer %d", i),
			Description: "summary description",
		}
	}
	return out
}

func newTestScheduler(store *fakeStore, srch *fakeSearch) *Scheduler {
	return New(store, srch, fixedScorer{score: 0.5}, Config{
		MaxJobsPerCycle:  10,
		MaxScoredPerUser: 3,
	}, zap.NewNop())
}

func TestProcessUserStoresJobsAndMatches(t *testing.T) {
	store := newFakeStore()
	srch := &fakeSearch{results: candidates(15)}
	pref := completePref(nil)
	store.addUser(pref)

	s := newTestScheduler(store, srch)
	res, err := s.ProcessUser(context.Background(), pref)

	require.NoError(t, err)
	assert.Equal(t, 10, res.JobsStored, "ingest is capped")
	assert.Equal(t, 3, res.MatchesCreated, "scoring is capped")
	assert.NotNil(t, pref.LastSearchAt, "watermark advanced on success")

	// Only scored candidates get a detail call and the enriched description.
	assert.Len(t, srch.detailCalls, 3)
	scored := store.jobs["job-0"]
	require.NotNil(t, scored)
	assert.Contains(t, scored.Description, "detailed description")
	unscored := store.jobs["job-5"]
	require.NotNil(t, unscored)
	assert.Equal(t, "summary description", unscored.Description)
}

func TestProcessUserSearchFailureLeavesWatermark(t *testing.T) {
	store := newFakeStore()
	srch := &fakeSearch{
		searchErr: map[string]error{"go developer": search.ErrProviderUnavailable},
	}
	pref := completePref(nil)
	store.addUser(pref)

	s := newTestScheduler(store, srch)
	_, err := s.ProcessUser(context.Background(), pref)

	require.ErrorIs(t, err, search.ErrProviderUnavailable)
	assert.Nil(t, pref.LastSearchAt, "watermark untouched on failure")
	assert.Equal(t, 0, store.matchCount())
}

func TestProcessUserUnusablePayloadCompletesCycle(t *testing.T) {
	store := newFakeStore()
	srch := &fakeSearch{
		searchErr: map[string]error{"go developer": search.ErrProviderBadResponse},
	}
	pref := completePref(nil)
	store.addUser(pref)

	s := newTestScheduler(store, srch)
	res, err := s.ProcessUser(context.Background(), pref)

	require.NoError(t, err, "an unparsable payload is an empty result, not a failure")
	assert.Equal(t, 0, res.JobsStored)
	assert.Equal(t, 0, store.matchCount())
	assert.NotNil(t, pref.LastSearchAt, "watermark advanced so the user is not retried immediately")
}

func TestProcessUserDetailFailureDegrades(t *testing.T) {
	store := newFakeStore()
	srch := &fakeSearch{
		results:   candidates(2),
		detailErr: map[string]error{"job-0": search.ErrProviderBadResponse},
	}
	pref := completePref(nil)
	store.addUser(pref)

	s := newTestScheduler(store, srch)
	res, err := s.ProcessUser(context.Background(), pref)

	require.NoError(t, err)
	assert.Equal(t, 2, res.JobsStored)
	assert.Equal(t, "summary description", store.jobs["job-0"].Description)
	assert.Contains(t, store.jobs["job-1"].Description, "detailed description")
}

func TestProcessUserStoreFailureStopsWatermark(t *testing.T) {
	store := newFakeStore()
	store.failUpsert = true
	srch := &fakeSearch{results: candidates(2)}
	pref := completePref(nil)
	store.addUser(pref)

	s := newTestScheduler(store, srch)
	_, err := s.ProcessUser(context.Background(), pref)

	require.Error(t, err)
	assert.Nil(t, pref.LastSearchAt)
}

func TestProcessUserIncompletePreferences(t *testing.T) {
	store := newFakeStore()
	srch := &fakeSearch{results: candidates(2)}
	pref := &types.UserPreference{UserID: uuid.New(), Query: "go developer"}

	s := newTestScheduler(store, srch)
	_, err := s.ProcessUser(context.Background(), pref)

	require.Error(t, err)
	assert.Empty(t, srch.searchCalls, "no provider call for incomplete preferences")
}

func TestProcessUserRepeatRunDeduplicates(t *testing.T) {
	store := newFakeStore()
	srch := &fakeSearch{results: candidates(3)}
	pref := completePref(nil)
	store.addUser(pref)

	s := newTestScheduler(store, srch)
	_, err := s.ProcessUser(context.Background(), pref)
	require.NoError(t, err)
	_, err = s.ProcessUser(context.Background(), pref)
	require.NoError(t, err)

	assert.Len(t, store.jobs, 3, "same listings are not duplicated")
	assert.Equal(t, 3, store.matchCount(), "one match per user/job pair")
}

func TestRunCycleIsolatesUserFailures(t *testing.T) {
	store := newFakeStore()
	good := completePref(nil)
	bad := completePref(nil)
	bad.Query = "broken query"
	store.addUser(good)
	store.addUser(bad)

	srch := &fakeSearch{
		results:   candidates(2),
		searchErr: map[string]error{"broken query": search.ErrProviderUnavailable},
	}

	s := newTestScheduler(store, srch)
	s.RunCycle(context.Background())

	st := s.Status()
	assert.Equal(t, 1, st.UsersProcessed)
	assert.Equal(t, 1, st.UsersFailed)
	assert.NotNil(t, good.LastSearchAt)
	assert.Nil(t, bad.LastSearchAt)
}

func TestRunCycleSkipsFreshAndIncompleteUsers(t *testing.T) {
	store := newFakeStore()
	fresh := time.Now().Add(-time.Hour)
	store.addUser(completePref(&fresh))
	store.addUser(&types.UserPreference{UserID: uuid.New(), Query: "no location"})

	stale := time.Now().Add(-48 * time.Hour)
	due := completePref(&stale)
	store.addUser(due)

	srch := &fakeSearch{results: candidates(1)}
	s := newTestScheduler(store, srch)
	s.RunCycle(context.Background())

	assert.Len(t, srch.searchCalls, 1, "only the stale complete user is searched")
	st := s.Status()
	assert.Equal(t, 1, st.UsersProcessed)
	assert.Equal(t, 0, st.UsersFailed)
}

func TestRunCycleHonorsCancellation(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 5; i++ {
		store.addUser(completePref(nil))
	}
	srch := &fakeSearch{results: candidates(1)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestScheduler(store, srch)
	s.RunCycle(ctx)

	assert.Empty(t, srch.searchCalls, "cancelled cycle performs no searches")
}

func TestTriggerNowRunsUser(t *testing.T) {
	store := newFakeStore()
	fresh := time.Now().Add(-time.Minute)
	pref := completePref(&fresh)
	store.addUser(pref)
	srch := &fakeSearch{results: candidates(2)}

	s := newTestScheduler(store, srch)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.NoError(t, s.TriggerNow(pref.UserID))

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		_, ok := store.searchedAt[pref.UserID]
		return ok
	}, 2*time.Second, 10*time.Millisecond, "trigger refreshes even a fresh user")
}

func TestTriggerNowRejectsWhenStopped(t *testing.T) {
	s := newTestScheduler(newFakeStore(), &fakeSearch{})
	err := s.TriggerNow(uuid.New())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestTriggerNowUnknownUserIsLoggedNotFatal(t *testing.T) {
	store := newFakeStore()
	srch := &fakeSearch{results: candidates(1)}

	s := newTestScheduler(store, srch)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.NoError(t, s.TriggerNow(uuid.New()))
	assert.Eventually(t, func() bool {
		return s.Status().QueueDepth == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, srch.searchCalls)
}

func TestTriggerNowDuringStopDoesNotPanic(t *testing.T) {
	store := newFakeStore()
	fresh := time.Now().Add(-time.Minute)
	pref := completePref(&fresh)
	store.addUser(pref)
	srch := &fakeSearch{results: candidates(1)}

	// Triggers racing a shutdown must either enqueue or get ErrNotRunning,
	// never hit a closed queue.
	for i := 0; i < 20; i++ {
		s := newTestScheduler(store, srch)
		require.NoError(t, s.Start(context.Background()))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 50; j++ {
				if errors.Is(s.TriggerNow(pref.UserID), ErrNotRunning) {
					return
				}
			}
		}()

		s.Stop()
		<-done
	}
}

func TestStopWaitsForForcedSweep(t *testing.T) {
	store := newFakeStore()
	fresh := time.Now().Add(-time.Minute)
	pref := completePref(&fresh)
	store.addUser(pref)
	srch := &fakeSearch{results: candidates(1)}

	s := newTestScheduler(store, srch)
	require.NoError(t, s.Start(context.Background()))

	n, err := s.ForceUpdateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Stop blocks until the sweep goroutine has finished.
	s.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	_, ok := store.searchedAt[pref.UserID]
	assert.True(t, ok, "sweep completed before Stop returned")
}

func TestForceUpdateAllIgnoresStaleness(t *testing.T) {
	store := newFakeStore()
	fresh := time.Now().Add(-time.Minute)
	a := completePref(&fresh)
	b := completePref(nil)
	store.addUser(a)
	store.addUser(b)
	store.addUser(&types.UserPreference{UserID: uuid.New()})
	srch := &fakeSearch{results: candidates(1)}

	s := newTestScheduler(store, srch)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	n, err := s.ForceUpdateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "incomplete users are excluded")

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.searchedAt) == 2
	}, 2*time.Second, 10*time.Millisecond)
}
