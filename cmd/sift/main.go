// sift is the operator CLI: manage the watch list, trigger evaluations, and
// review detections. It talks to the same database as siftd; work it enqueues
// is picked up by the running daemon.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/sift-social/sift/jobs"
	"github.com/sift-social/sift/review"
	"github.com/sift-social/sift/store"
	"github.com/sift-social/sift/util/cliutil"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "sift",
		Usage:   "operator CLI for the bot detection service",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/siftd/sift.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.Float64Flag{
			Name:    "detection-threshold",
			Value:   0.65,
			EnvVars: []string{"SIFT_DETECTION_THRESHOLD"},
		},
	}

	app.Commands = []*cli.Command{
		accountCmd,
		monitorCmd,
		reviewCmd,
		statsCmd,
	}

	return app.Run(args)
}

// openStores wires the store layer over the shared database. The orchestrator
// is enqueue-only here; the daemon runs the workers.
func openStores(cctx *cli.Context) (*store.Store, *jobs.Orchestrator, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	db, err := cliutil.SetupDatabase(cctx.String("database-url"), 10)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewStore(db, logger, cctx.Float64("detection-threshold"))
	if err != nil {
		return nil, nil, err
	}
	js, err := jobs.NewGormstore(db)
	if err != nil {
		return nil, nil, err
	}
	orch := jobs.NewOrchestrator("sift-cli", js, rate.NewLimiter(rate.Inf, 0), nil)
	return st, orch, nil
}

func openReview(cctx *cli.Context) (*review.Review, error) {
	st, orch, err := openStores(cctx)
	if err != nil {
		return nil, err
	}
	return review.New(st, orch, slog.Default()), nil
}
