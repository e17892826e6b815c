// Package scheduler drives the periodic job matching cycle. On a fixed
// interval it finds users whose preferences are complete and whose last
// search is stale, then searches, ingests, and scores jobs for each of them.
// The same per-user orchestration backs the on-demand trigger endpoints.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jonathan/job-matcher/internal/scoring"
	"github.com/jonathan/job-matcher/internal/search"
	"github.com/jonathan/job-matcher/internal/types"
)

// Store is the subset of the persistence layer the scheduler needs.
type Store interface {
	ListEligible(ctx context.Context, cutoff time.Time) ([]types.UserPreference, error)
	ListComplete(ctx context.Context) ([]types.UserPreference, error)
	GetPreference(ctx context.Context, userID uuid.UUID) (*types.UserPreference, error)
	UpsertJob(ctx context.Context, cand search.CandidateSummary, detail *search.DetailRecord) (*types.Job, error)
	CreateMatch(ctx context.Context, userID, jobID uuid.UUID, score float64) (*types.Match, error)
	MarkSearched(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// Scorer grades a resume against a job. Implementations never fail.
type Scorer interface {
	Score(ctx context.Context, profile *types.ResumeProfile, job *types.Job) scoring.Result
}

// Config tunes the matching cycle.
type Config struct {
	// Interval between automatic cycles.
	Interval time.Duration
	// Staleness is how old a user's last search must be before the cycle
	// picks them up again.
	Staleness time.Duration
	// MaxJobsPerCycle caps how many search results are ingested per user.
	MaxJobsPerCycle int
	// MaxScoredPerUser caps how many of the ingested jobs are scored and
	// turned into matches.
	MaxScoredPerUser int
	// Workers is the size of the on-demand trigger pool.
	Workers int
	// QueueSize bounds the on-demand trigger queue.
	QueueSize int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 12 * time.Hour
	}
	if c.Staleness <= 0 {
		c.Staleness = 24 * time.Hour
	}
	if c.MaxJobsPerCycle <= 0 {
		c.MaxJobsPerCycle = 10
	}
	if c.MaxScoredPerUser <= 0 {
		c.MaxScoredPerUser = 3
	}
	if c.MaxScoredPerUser > c.MaxJobsPerCycle {
		c.MaxScoredPerUser = c.MaxJobsPerCycle
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
}

// Result summarizes one user's pass through the cycle.
type Result struct {
	JobsStored     int
	MatchesCreated int
}

// Status is a snapshot of scheduler state for the admin API.
type Status struct {
	Running        bool       `json:"running"`
	CycleActive    bool       `json:"cycle_active"`
	LastCycleStart *time.Time `json:"last_cycle_start,omitempty"`
	LastCycleEnd   *time.Time `json:"last_cycle_end,omitempty"`
	UsersProcessed int        `json:"users_processed"`
	UsersFailed    int        `json:"users_failed"`
	QueueDepth     int        `json:"queue_depth"`
}

// ErrQueueFull is returned by TriggerNow when the on-demand queue is at
// capacity.
var ErrQueueFull = errors.New("trigger queue is full")

// ErrNotRunning is returned by TriggerNow before Start or after Stop.
var ErrNotRunning = errors.New("scheduler is not running")

// Scheduler owns the periodic cycle and the on-demand trigger pool.
type Scheduler struct {
	store  Store
	search search.Client
	scorer Scorer
	cfg    Config
	logger *zap.Logger

	cron  *cron.Cron
	queue chan uuid.UUID
	wg    sync.WaitGroup

	mu       sync.Mutex
	running  bool
	inCycle  bool
	status   Status
	baseCtx  context.Context
	stopBase context.CancelFunc

	// now is swappable in tests.
	now func() time.Time
}

// New builds a Scheduler. Start must be called before triggers are accepted.
func New(store Store, searchClient search.Client, scorer Scorer, cfg Config, logger *zap.Logger) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		store:  store,
		search: searchClient,
		scorer: scorer,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start launches the cron schedule and the trigger worker pool. The context
// bounds all background work; cancelling it is equivalent to Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.running = true
	s.baseCtx, s.stopBase = context.WithCancel(ctx)
	s.queue = make(chan uuid.UUID, s.cfg.QueueSize)
	s.cron = cron.New()
	s.mu.Unlock()

	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := s.cron.AddFunc(spec, func() {
		s.RunCycle(s.baseCtx)
	}); err != nil {
		return fmt.Errorf("failed to register cycle schedule: %w", err)
	}
	s.cron.Start()

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.triggerWorker()
	}

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("staleness", s.cfg.Staleness),
		zap.Int("workers", s.cfg.Workers))
	return nil
}

// Stop halts the cron schedule, drains the trigger pool, and waits for
// in-flight work to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	// No sends can follow: TriggerNow enqueues under s.mu and rechecks
	// running there, and running is already false.
	close(s.queue)
	s.wg.Wait()
	s.stopBase()
	s.logger.Info("scheduler stopped")
}

// TriggerNow enqueues an immediate refresh for one user. It returns without
// waiting for the refresh to run.
func (s *Scheduler) TriggerNow(userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}
	select {
	case s.queue <- userID:
		return nil
	default:
		return ErrQueueFull
	}
}

// ForceUpdateAll refreshes every user with complete preferences regardless of
// staleness. It runs in the background and returns the number of users it
// will process.
func (s *Scheduler) ForceUpdateAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return 0, ErrNotRunning
	}
	base := s.baseCtx
	// Registered with the pool before releasing the lock so Stop's Wait
	// cannot miss the sweep.
	s.wg.Add(1)
	s.mu.Unlock()

	users, err := s.store.ListComplete(ctx)
	if err != nil {
		s.wg.Done()
		return 0, fmt.Errorf("failed to list users for forced update: %w", err)
	}

	go func() {
		defer s.wg.Done()
		s.runForUsers(base, users, "forced")
	}()
	return len(users), nil
}

// Status reports current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Running = s.running
	st.CycleActive = s.inCycle
	if s.queue != nil {
		st.QueueDepth = len(s.queue)
	}
	return st
}

// RunCycle performs one full matching pass over all eligible users. Only one
// cycle runs at a time; overlapping invocations are skipped.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.mu.Lock()
	if s.inCycle {
		s.mu.Unlock()
		s.logger.Warn("cycle already in progress, skipping")
		return
	}
	s.inCycle = true
	start := s.now()
	s.status.LastCycleStart = &start
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inCycle = false
		end := s.now()
		s.status.LastCycleEnd = &end
		s.mu.Unlock()
	}()

	cutoff := s.now().Add(-s.cfg.Staleness)
	users, err := s.store.ListEligible(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to list eligible users", zap.Error(err))
		return
	}

	s.logger.Info("matching cycle started", zap.Int("eligible_users", len(users)))
	processed, failed := s.runForUsers(ctx, users, "scheduled")

	s.mu.Lock()
	s.status.UsersProcessed = processed
	s.status.UsersFailed = failed
	s.mu.Unlock()
}

// runForUsers walks users sequentially, isolating failures so one bad user
// never blocks the rest.
func (s *Scheduler) runForUsers(ctx context.Context, users []types.UserPreference, reason string) (processed, failed int) {
	start := s.now()
	jobsStored := 0
	matchesCreated := 0

	for i := range users {
		if ctx.Err() != nil {
			s.logger.Warn("cycle interrupted",
				zap.String("reason", reason),
				zap.Int("remaining_users", len(users)-i))
			break
		}

		pref := &users[i]
		res, err := s.ProcessUser(ctx, pref)
		if err != nil {
			failed++
			s.logger.Error("user refresh failed",
				zap.String("user_id", pref.UserID.String()),
				zap.Error(err))
			continue
		}
		processed++
		jobsStored += res.JobsStored
		matchesCreated += res.MatchesCreated
	}

	s.logger.Info("matching cycle finished",
		zap.String("reason", reason),
		zap.Int("users_processed", processed),
		zap.Int("users_failed", failed),
		zap.Int("jobs_stored", jobsStored),
		zap.Int("matches_created", matchesCreated),
		zap.Duration("elapsed", s.now().Sub(start)))
	return processed, failed
}

// ProcessUser runs the search, ingest, and score pipeline for a single user.
// The user's search watermark is advanced only when every step succeeds.
func (s *Scheduler) ProcessUser(ctx context.Context, pref *types.UserPreference) (Result, error) {
	if !pref.Complete() {
		return Result{}, fmt.Errorf("preferences for user %s are incomplete", pref.UserID)
	}

	candidates, err := s.search.Search(ctx, pref.Query, pref.Location, search.Filters{
		EmploymentTypes: pref.EmploymentTypes,
	})
	if err != nil {
		if !errors.Is(err, search.ErrProviderBadResponse) {
			return Result{}, fmt.Errorf("search failed: %w", err)
		}
		// An unparsable payload counts as an empty result. The user's cycle
		// still completes so they are not retried against the same junk.
		s.logger.Warn("search returned unusable payload, treating as empty",
			zap.String("user_id", pref.UserID.String()),
			zap.Error(err))
		candidates = nil
	}
	if len(candidates) > s.cfg.MaxJobsPerCycle {
		candidates = candidates[:s.cfg.MaxJobsPerCycle]
	}

	var res Result
	for i := range candidates {
		cand := &candidates[i]
		scored := i < s.cfg.MaxScoredPerUser

		// Details are fetched only for candidates that will be scored; the
		// rest are stored from their summaries. A failed detail call
		// degrades to the summary data rather than failing the user.
		var detail *search.DetailRecord
		if scored {
			var derr error
			detail, derr = s.search.FetchDetails(ctx, cand.ExternalID)
			if derr != nil {
				s.logger.Warn("detail fetch failed, using summary only",
					zap.String("user_id", pref.UserID.String()),
					zap.String("external_id", cand.ExternalID),
					zap.Error(derr))
				detail = nil
			}
		}

		job, uerr := s.store.UpsertJob(ctx, *cand, detail)
		if uerr != nil {
			return res, fmt.Errorf("failed to store job %s: %w", cand.ExternalID, uerr)
		}
		res.JobsStored++

		if !scored {
			continue
		}
		grade := s.scorer.Score(ctx, pref.Resume, job)
		if _, merr := s.store.CreateMatch(ctx, pref.UserID, job.ID, grade.Score); merr != nil {
			return res, fmt.Errorf("failed to record match for job %s: %w", job.ExternalID, merr)
		}
		res.MatchesCreated++
	}

	if err := s.store.MarkSearched(ctx, pref.UserID, s.now()); err != nil {
		return res, fmt.Errorf("failed to advance search watermark: %w", err)
	}

	s.logger.Info("user refresh complete",
		zap.String("user_id", pref.UserID.String()),
		zap.Int("jobs_stored", res.JobsStored),
		zap.Int("matches_created", res.MatchesCreated))
	return res, nil
}

func (s *Scheduler) triggerWorker() {
	defer s.wg.Done()
	for userID := range s.queue {
		s.refreshOne(userID)
	}
}

func (s *Scheduler) refreshOne(userID uuid.UUID) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	pref, err := s.store.GetPreference(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load preferences for trigger",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}
	if pref == nil {
		s.logger.Warn("trigger for unknown user", zap.String("user_id", userID.String()))
		return
	}
	if !pref.Complete() {
		s.logger.Warn("trigger skipped, preferences incomplete",
			zap.String("user_id", userID.String()))
		return
	}

	if _, err := s.ProcessUser(ctx, pref); err != nil {
		s.logger.Error("triggered refresh failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}
