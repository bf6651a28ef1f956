package main

import (
	"fmt"
	"strconv"
	"strings"

	cli "github.com/urfave/cli/v2"
)

var reviewCmd = &cli.Command{
	Name:  "review",
	Usage: "review detections and manage warning delivery",
	Subcommands: []*cli.Command{
		reviewListCmd,
		reviewViewCmd,
		reviewApproveCmd,
		reviewRejectCmd,
		reviewResendCmd,
		reviewFailedCmd,
	},
}

var reviewListCmd = &cli.Command{
	Name:  "list",
	Usage: "list pending detections, highest score first",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Value: 25,
		},
	},
	Action: func(cctx *cli.Context) error {
		r, err := openReview(cctx)
		if err != nil {
			return err
		}
		pending, err := r.ListPending(cctx.Context, cctx.Int("limit"))
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("no pending detections")
			return nil
		}
		for _, det := range pending {
			fmt.Printf("#%-5d %-14s score=%.2f %s\n", det.ID, det.Kind, det.CompositeScore, det.Target)
		}
		return nil
	},
}

var reviewViewCmd = &cli.Command{
	Name:      "view",
	Usage:     "show a detection with its evidence",
	ArgsUsage: "<id>",
	Action: func(cctx *cli.Context) error {
		id, err := argID(cctx)
		if err != nil {
			return err
		}
		r, err := openReview(cctx)
		if err != nil {
			return err
		}
		det, ev, err := r.View(cctx.Context, id)
		if err != nil {
			return err
		}

		fmt.Printf("detection #%d\n", det.ID)
		fmt.Printf("  kind:    %s\n", det.Kind)
		fmt.Printf("  target:  %s\n", det.Target)
		fmt.Printf("  state:   %s\n", det.State)
		fmt.Printf("  score:   %.3f\n", det.CompositeScore)
		fmt.Printf("  created: %s\n", det.CreatedAt.Format("2006-01-02 15:04:05"))
		if det.PostID != "" {
			fmt.Printf("  post:    %s\n", det.PostID)
		}
		if det.CommentID != "" {
			fmt.Printf("  comment: %s\n", det.CommentID)
		}
		if len(ev.Indicators) > 0 {
			fmt.Println("  indicators:")
			for name, sub := range ev.Indicators {
				fmt.Printf("    %-24s %.3f\n", name, sub)
			}
		}
		if len(ev.Signals) > 0 {
			fmt.Printf("  signals: %s\n", strings.Join(ev.Signals, ", "))
		}
		if len(ev.Members) > 0 {
			fmt.Printf("  members: %s\n", strings.Join(ev.Members, ", "))
			fmt.Printf("  comments: %d, mean similarity %.2f\n", ev.CommentCount, ev.Similarity)
			fmt.Printf("  representative: %q\n", ev.Representative)
		}
		return nil
	},
}

var reviewApproveCmd = &cli.Command{
	Name:      "approve",
	Usage:     "approve a pending detection and enqueue its warning",
	ArgsUsage: "<id>",
	Action: func(cctx *cli.Context) error {
		id, err := argID(cctx)
		if err != nil {
			return err
		}
		r, err := openReview(cctx)
		if err != nil {
			return err
		}
		det, err := r.Approve(cctx.Context, id)
		if err != nil {
			return err
		}
		fmt.Printf("approved #%d (%s %s); warning delivery enqueued\n", det.ID, det.Kind, det.Target)
		return nil
	},
}

var reviewRejectCmd = &cli.Command{
	Name:      "reject",
	Usage:     "reject a pending detection",
	ArgsUsage: "<id>",
	Action: func(cctx *cli.Context) error {
		id, err := argID(cctx)
		if err != nil {
			return err
		}
		r, err := openReview(cctx)
		if err != nil {
			return err
		}
		det, err := r.Reject(cctx.Context, id)
		if err != nil {
			return err
		}
		fmt.Printf("rejected #%d (%s %s)\n", det.ID, det.Kind, det.Target)
		return nil
	},
}

var reviewResendCmd = &cli.Command{
	Name:      "resend",
	Usage:     "re-enqueue warning delivery for an approved detection",
	ArgsUsage: "<id>",
	Action: func(cctx *cli.Context) error {
		id, err := argID(cctx)
		if err != nil {
			return err
		}
		r, err := openReview(cctx)
		if err != nil {
			return err
		}
		job, err := r.Resend(cctx.Context, id)
		if err != nil {
			return err
		}
		fmt.Printf("re-enqueued warning delivery for #%d: %s\n", id, job.Key())
		return nil
	},
}

var reviewFailedCmd = &cli.Command{
	Name:  "failed",
	Usage: "list jobs that exhausted their retries",
	Action: func(cctx *cli.Context) error {
		r, err := openReview(cctx)
		if err != nil {
			return err
		}
		failed, err := r.ListFailedJobs(cctx.Context)
		if err != nil {
			return err
		}
		if len(failed) == 0 {
			fmt.Println("no failed jobs")
			return nil
		}
		for _, job := range failed {
			fmt.Printf("%-16s %-24s retries=%d created=%s key=%s\n",
				job.Kind(), job.Target(), job.RetryCount(),
				job.CreatedAt().Format("2006-01-02 15:04"), job.Key())
		}
		return nil
	},
}

func argID(cctx *cli.Context) (uint, error) {
	raw := cctx.Args().First()
	if raw == "" {
		return 0, fmt.Errorf("detection id argument is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad detection id %q: %w", raw, err)
	}
	return uint(id), nil
}
