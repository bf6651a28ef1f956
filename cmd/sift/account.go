package main

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"github.com/sift-social/sift/jobs"
)

var accountCmd = &cli.Command{
	Name:  "account",
	Usage: "manage the watch list",
	Subcommands: []*cli.Command{
		accountAddCmd,
		accountListCmd,
		accountEnableCmd,
		accountDisableCmd,
	},
}

var accountAddCmd = &cli.Command{
	Name:      "add",
	Usage:     "add an account to the watch list",
	ArgsUsage: "<username>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "platform",
			Value: "instagram",
		},
	},
	Action: func(cctx *cli.Context) error {
		username := cctx.Args().First()
		if username == "" {
			return fmt.Errorf("username argument is required")
		}
		st, _, err := openStores(cctx)
		if err != nil {
			return err
		}
		acct, err := st.AddAccount(cctx.Context, username, cctx.String("platform"))
		if err != nil {
			return err
		}
		fmt.Printf("added %s (%s) to the watch list\n", acct.Username, acct.Platform)
		return nil
	},
}

var accountListCmd = &cli.Command{
	Name:  "list",
	Usage: "list watch-list accounts",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "all",
			Usage: "include disabled accounts",
		},
	},
	Action: func(cctx *cli.Context) error {
		st, _, err := openStores(cctx)
		if err != nil {
			return err
		}
		accounts, err := st.ListAccounts(cctx.Context, !cctx.Bool("all"))
		if err != nil {
			return err
		}
		for _, acct := range accounts {
			status := "enabled"
			if !acct.Enabled {
				status = "disabled"
			}
			checked := "never"
			if acct.LastChecked != nil {
				checked = acct.LastChecked.Format("2006-01-02 15:04")
			}
			fmt.Printf("%-24s %-8s score=%.2f last-checked=%s\n", acct.Username, status, acct.AutomationScore, checked)
		}
		return nil
	},
}

var accountEnableCmd = &cli.Command{
	Name:      "enable",
	Usage:     "re-enable monitoring for an account",
	ArgsUsage: "<username>",
	Action:    setEnabled(true),
}

var accountDisableCmd = &cli.Command{
	Name:      "disable",
	Usage:     "pause monitoring for an account",
	ArgsUsage: "<username>",
	Action:    setEnabled(false),
}

func setEnabled(enabled bool) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		username := cctx.Args().First()
		if username == "" {
			return fmt.Errorf("username argument is required")
		}
		st, _, err := openStores(cctx)
		if err != nil {
			return err
		}
		if err := st.SetAccountEnabled(cctx.Context, username, enabled); err != nil {
			return err
		}
		fmt.Printf("%s: enabled=%v\n", username, enabled)
		return nil
	}
}

var monitorCmd = &cli.Command{
	Name:  "monitor",
	Usage: "trigger evaluations by hand",
	Subcommands: []*cli.Command{
		{
			Name:      "account",
			Usage:     "enqueue an account evaluation",
			ArgsUsage: "<username>",
			Action:    enqueueKind(jobs.KindMonitorAccount),
		},
		{
			Name:      "post",
			Usage:     "enqueue a post comment analysis",
			ArgsUsage: "<post-id>",
			Action:    enqueueKind(jobs.KindMonitorPost),
		},
	},
}

func enqueueKind(kind string) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		target := cctx.Args().First()
		if target == "" {
			return fmt.Errorf("target argument is required")
		}
		_, orch, err := openStores(cctx)
		if err != nil {
			return err
		}
		job, created, err := orch.Enqueue(cctx.Context, kind, target, "")
		if err != nil {
			return err
		}
		if !created {
			fmt.Printf("already enqueued: %s (state=%s)\n", job.Key(), job.State())
			return nil
		}
		fmt.Printf("enqueued %s for %s: %s\n", kind, target, job.Key())
		return nil
	}
}
