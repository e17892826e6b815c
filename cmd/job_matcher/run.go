package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/job-matcher/internal/config"
	"github.com/jonathan/job-matcher/internal/db"
	"github.com/jonathan/job-matcher/internal/logger"
	"github.com/jonathan/job-matcher/internal/scheduler"
)

var (
	runUserID string
	runForce  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one matching cycle and exit",
	Long: `Run a single matching pass without starting the server. By default only
users whose last search is stale are processed; --force processes every user
with complete preferences, and --user restricts the pass to one user.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVar(&runUserID, "user", "", "Refresh a single user by id")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Ignore staleness and refresh all complete users")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogJSON, cfg.LogDebug)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer database.Close()

	searchClient, err := buildSearchClient(ctx, cfg, log)
	if err != nil {
		return err
	}

	scorer, closeLLM, err := buildScorer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLLM()

	sched := scheduler.New(database, searchClient, scorer, scheduler.Config{
		Interval:         cfg.Interval,
		Staleness:        cfg.Staleness,
		MaxJobsPerCycle:  cfg.MaxJobsPerCycle,
		MaxScoredPerUser: cfg.MaxScoredPerUser,
	}, log)

	if runUserID != "" {
		return runSingleUser(ctx, database, sched, runUserID)
	}

	if runForce {
		users, err := database.ListComplete(ctx)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		for i := range users {
			if _, err := sched.ProcessUser(ctx, &users[i]); err != nil {
				log.Error("user refresh failed",
					zap.String("user_id", users[i].UserID.String()),
					zap.Error(err))
			}
		}
		return nil
	}

	sched.RunCycle(ctx)
	return nil
}

func runSingleUser(ctx context.Context, database *db.DB, sched *scheduler.Scheduler, id string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", id, err)
	}

	pref, err := database.GetPreference(ctx, userID)
	if err != nil {
		return err
	}
	if pref == nil {
		return fmt.Errorf("no preferences found for user %s", userID)
	}

	res, err := sched.ProcessUser(ctx, pref)
	if err != nil {
		return err
	}
	fmt.Printf("Stored %d jobs, created %d matches for user %s\n",
		res.JobsStored, res.MatchesCreated, userID)
	return nil
}
