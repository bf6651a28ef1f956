package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sift-social/sift/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "siftd",
		Usage:   "bot detection and coordination analysis daemon",
		Version: versioninfo.Short(),
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/siftd/sift.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   40,
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection for counters and caches; in-memory stores when empty",
			EnvVars: []string{"SIFT_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"SIFT_METRICS_LISTEN"},
		},
		&cli.IntFlag{
			Name:    "platform-rate-limit",
			Usage:   "max platform API requests per second",
			Value:   2,
			EnvVars: []string{"SIFT_PLATFORM_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "parallel-jobs",
			Usage:   "max jobs executing concurrently",
			Value:   4,
			EnvVars: []string{"SIFT_PARALLEL_JOBS"},
		},
		&cli.IntFlag{
			Name:    "max-job-retries",
			Usage:   "retry cap for transient platform failures",
			Value:   2,
			EnvVars: []string{"SIFT_MAX_JOB_RETRIES"},
		},
		&cli.DurationFlag{
			Name:    "job-deadline",
			Value:   2 * time.Minute,
			EnvVars: []string{"SIFT_JOB_DEADLINE"},
		},
		&cli.Float64Flag{
			Name:    "detection-threshold",
			Usage:   "composite score at or above which a detection record is created",
			Value:   0.65,
			EnvVars: []string{"SIFT_DETECTION_THRESHOLD"},
		},
		&cli.Float64Flag{
			Name:    "similarity-threshold",
			Usage:   "minimum pairwise comment similarity for coordination clustering",
			Value:   0.85,
			EnvVars: []string{"SIFT_SIMILARITY_THRESHOLD"},
		},
		&cli.DurationFlag{
			Name:    "check-interval",
			Usage:   "how often watch-list accounts are re-evaluated",
			Value:   time.Hour,
			EnvVars: []string{"SIFT_CHECK_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "activity-window",
			Usage:   "how far back account activity fetches reach",
			Value:   24 * time.Hour,
			EnvVars: []string{"SIFT_ACTIVITY_WINDOW"},
		},
		&cli.IntFlag{
			Name:    "max-posts-per-account",
			Usage:   "per-post analysis jobs fanned out from one account evaluation",
			Value:   5,
			EnvVars: []string{"SIFT_MAX_POSTS_PER_ACCOUNT"},
		},
		&cli.BoolFlag{
			Name:    "fake-platform",
			Usage:   "use the synthetic platform connector instead of a real one",
			EnvVars: []string{"SIFT_FAKE_PLATFORM"},
		},
		&cli.Int64Flag{
			Name:    "fake-platform-seed",
			Value:   1,
			EnvVars: []string{"SIFT_FAKE_PLATFORM_SEED"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger, err := cliutil.SetupSlog(cliutil.LogOptions{})
		if err != nil {
			return err
		}

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}

		srv, err := NewServer(db, Config{
			Logger:              logger,
			RedisURL:            cctx.String("redis-url"),
			PlatformRateLimit:   cctx.Int("platform-rate-limit"),
			ParallelJobs:        cctx.Int("parallel-jobs"),
			MaxJobRetries:       cctx.Int("max-job-retries"),
			JobDeadline:         cctx.Duration("job-deadline"),
			DetectionThreshold:  cctx.Float64("detection-threshold"),
			SimilarityThreshold: cctx.Float64("similarity-threshold"),
			CheckInterval:       cctx.Duration("check-interval"),
			ActivityWindow:      cctx.Duration("activity-window"),
			MaxPostsPerAccount:  cctx.Int("max-posts-per-account"),
			FakePlatform:        cctx.Bool("fake-platform"),
			FakePlatformSeed:    cctx.Int64("fake-platform-seed"),
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run detection service: %w", err)
		}
		return nil
	},
}
