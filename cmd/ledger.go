package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"skypost/ledger"
)

// ledgerCmd inspects or tidies the remote ledger file
func ledgerCmd() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Show or tidy the published-links ledger",
		Description: `Prints the current contents of the remote ledger file as JSON.

With --tidy the ledger is truncated to the retention cap and written
back, which keeps the file size down if the cap was lowered.`,
		Flags: append(ledgerFlags(),
			&cli.IntFlag{
				Name:    "retention-cap",
				Usage:   "Maximum number of links kept in the ledger",
				Value:   100,
				EnvVars: []string{"SKYPOST_RETENTION_CAP"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "Timeout for each external HTTP call",
				Value:   30 * time.Second,
				EnvVars: []string{"SKYPOST_TIMEOUT"},
			},
			&cli.BoolFlag{
				Name:  "tidy",
				Usage: "Truncate the ledger to the retention cap",
			},
		),
		Action: func(ctx *cli.Context) error {
			if ctx.String("github-owner") == "" || ctx.String("github-repo") == "" {
				return fmt.Errorf("please provide the GitHub ledger repository")
			}

			store := ledger.NewGithubStore(
				ledger.NewGithubClient(ctx.Context, ctx.String("github-token"), ctx.Duration("timeout")),
				ctx.String("github-owner"),
				ctx.String("github-repo"),
				ctx.String("github-branch"),
				ctx.String("ledger-path"),
			)

			entries, version, err := store.Read(ctx.Context)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			if !ctx.Bool("tidy") {
				return nil
			}

			cap := ctx.Int("retention-cap")
			if len(entries) <= cap {
				log.Info("Ledger already within retention cap")
				return nil
			}

			tidied := ledger.Merge(nil, entries, cap)
			if err := store.Write(ctx.Context, tidied, version); err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"before": len(entries),
				"after":  len(tidied),
			}).Info("Tidied ledger")

			return nil
		},
	}
}
