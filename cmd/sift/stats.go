package main

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"github.com/sift-social/sift/models"
)

var statsCmd = &cli.Command{
	Name:  "stats",
	Usage: "summarize detection and queue state",
	Action: func(cctx *cli.Context) error {
		st, orch, err := openStores(cctx)
		if err != nil {
			return err
		}

		fmt.Println("detections:")
		for _, state := range []string{
			models.DetectionPending,
			models.DetectionApproved,
			models.DetectionRejected,
			models.DetectionActioned,
		} {
			n, err := st.CountByState(cctx.Context, state)
			if err != nil {
				return err
			}
			fmt.Printf("  %-10s %d\n", state, n)
		}

		failed, err := orch.Store.ListFailed(cctx.Context)
		if err != nil {
			return err
		}
		fmt.Printf("failed jobs: %d\n", len(failed))
		return nil
	},
}
