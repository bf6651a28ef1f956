package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/sift-social/sift/cachestore"
	"github.com/sift-social/sift/countstore"
	"github.com/sift-social/sift/detection/coordination"
	"github.com/sift-social/sift/detection/indicator"
	"github.com/sift-social/sift/engine"
	"github.com/sift-social/sift/jobs"
	"github.com/sift-social/sift/platform"
	"github.com/sift-social/sift/store"
)

type Server struct {
	logger        *slog.Logger
	store         *store.Store
	jobstore      *jobs.Gormstore
	orchestrator  *jobs.Orchestrator
	engine        *engine.Engine
	checkInterval time.Duration
}

type Config struct {
	Logger              *slog.Logger
	RedisURL            string
	PlatformRateLimit   int
	ParallelJobs        int
	MaxJobRetries       int
	JobDeadline         time.Duration
	DetectionThreshold  float64
	SimilarityThreshold float64
	CheckInterval       time.Duration
	ActivityWindow      time.Duration
	MaxPostsPerAccount  int
	FakePlatform        bool
	FakePlatformSeed    int64
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	var client platform.Client
	if config.FakePlatform {
		logger.Info("using synthetic platform connector", "seed", config.FakePlatformSeed)
		client = platform.NewFakeClient(config.FakePlatformSeed)
	} else {
		return nil, fmt.Errorf("no platform connector configured; run with --fake-platform or wire a connector implementing platform.Client")
	}

	var counters countstore.CountStore
	var cache cachestore.CacheStore
	if config.RedisURL != "" {
		// check redis connection up front
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		if _, err := redis.NewClient(opt).Ping(context.TODO()).Result(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}

		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis countstore: %v", err)
		}
		counters = cnt

		csh, err := cachestore.NewRedisCacheStore(config.RedisURL, 30*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		cache = csh
	} else {
		counters = countstore.NewMemCountStore()
		cache = cachestore.NewMemCacheStore(5_000, 30*time.Minute)
	}

	st, err := store.NewStore(db, logger, config.DetectionThreshold)
	if err != nil {
		return nil, fmt.Errorf("initializing detection store: %w", err)
	}

	jobstore, err := jobs.NewGormstore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing job store: %w", err)
	}

	// one token bucket over every connector call, regardless of which job
	// makes it
	limiter := rate.NewLimiter(rate.Limit(config.PlatformRateLimit), 1)
	client = platform.NewLimitedClient(client, limiter)

	orchOpts := jobs.DefaultOrchestratorOptions()
	if config.ParallelJobs > 0 {
		orchOpts.Parallel = config.ParallelJobs
	}
	if config.MaxJobRetries > 0 {
		orchOpts.MaxRetries = config.MaxJobRetries
	}
	if config.JobDeadline > 0 {
		orchOpts.JobDeadline = config.JobDeadline
	}
	orch := jobs.NewOrchestrator("siftd", jobstore, nil, orchOpts)

	scorer := indicator.NewScorer(indicator.DefaultConfig())
	clusterer := coordination.NewClusterer(coordination.Config{
		SimilarityThreshold: config.SimilarityThreshold,
	})

	eng := engine.NewEngine(logger, client, st, orch, counters, cache, scorer, clusterer, engine.Config{
		ActivityWindow:     config.ActivityWindow,
		MaxPostsPerAccount: config.MaxPostsPerAccount,
	})
	eng.RegisterHandlers()

	checkInterval := config.CheckInterval
	if checkInterval == 0 {
		checkInterval = time.Hour
	}

	return &Server{
		logger:        logger,
		store:         st,
		jobstore:      jobstore,
		orchestrator:  orch,
		engine:        eng,
		checkInterval: checkInterval,
	}, nil
}

// Run starts the job orchestrator and the watch-list scheduler, blocking
// until the context is cancelled, then drains in-flight jobs.
func (s *Server) Run(ctx context.Context) error {
	if err := s.jobstore.LoadJobs(ctx); err != nil {
		return fmt.Errorf("recovering persisted jobs: %w", err)
	}

	go s.orchestrator.Start()
	go s.runScheduler(ctx)

	<-ctx.Done()
	s.logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.orchestrator.Stop(stopCtx)
}

// runScheduler periodically enqueues evaluations for watch-list accounts
// whose last check is older than the check interval. Enqueue idempotency
// makes overlapping ticks harmless.
func (s *Server) runScheduler(ctx context.Context) {
	// immediate first pass, then on the ticker
	s.scheduleDue(ctx)

	ticker := time.NewTicker(s.checkInterval / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scheduleDue(ctx)
		}
	}
}

func (s *Server) scheduleDue(ctx context.Context) {
	due, err := s.store.DueAccounts(ctx, time.Now().Add(-s.checkInterval))
	if err != nil {
		s.logger.Error("failed to list due accounts", "error", err)
		return
	}
	for _, acct := range due {
		if err := s.engine.MonitorAccount(ctx, acct.Username); err != nil {
			s.logger.Error("failed to enqueue account evaluation", "username", acct.Username, "error", err)
		}
	}
	if len(due) > 0 {
		s.logger.Info("scheduled account evaluations", "count", len(due))
	}
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}
