package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/job-matcher/internal/config"
	"github.com/jonathan/job-matcher/internal/db"
	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/logger"
	"github.com/jonathan/job-matcher/internal/scheduler"
	"github.com/jonathan/job-matcher/internal/scoring"
	"github.com/jonathan/job-matcher/internal/search"
	"github.com/jonathan/job-matcher/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler and the admin API server",
	Long:  `Start the periodic matching cycle together with an HTTP server exposing scheduler control and match/job read endpoints.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogJSON, cfg.LogDebug)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	srv := server.New(server.Config{Port: cfg.Port}, database, sched, scorer, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}

// buildSearchClient assembles the provider client, wrapping it with the Redis
// detail cache when a Redis URL is configured.
func buildSearchClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (search.Client, error) {
	var client search.Client = search.NewJSearchClient(cfg.JSearchAPIKey)

	if cfg.RedisURL == "" {
		return client, nil
	}

	rdb, err := search.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	log.Info("job detail cache enabled")
	return search.NewCachedClient(client, rdb, search.DefaultDetailTTL, log), nil
}

// buildScorer assembles the relevance scorer. Without a Gemini key every
// score comes from the deterministic fallback.
func buildScorer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*scoring.Scorer, func(), error) {
	if cfg.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY not set, semantic scoring disabled")
		return scoring.New(nil, log), func() {}, nil
	}

	client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build scoring client: %w", err)
	}
	closer := func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close scoring client", zap.Error(err))
		}
	}
	return scoring.New(client, log), closer, nil
}
