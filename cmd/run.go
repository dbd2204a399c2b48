package cmd

import (
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"skypost/models"
)

// runCmd performs a single cycle and exits, for cron or serverless hosts
func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a single poll/post cycle and exit",
		Description: `Polls each configured feed once, posts the articles that are
not in the ledger yet and records them, then exits.

Intended to be triggered periodically by an external scheduler. A feed
or ledger failure aborts that feed's cycle without posting anything;
the next scheduled run picks up from the unchanged ledger.`,
		Flags: append(botFlags(), ledgerFlags()...),
		Action: func(ctx *cli.Context) error {
			targets, err := buildTargets(ctx)
			if err != nil {
				return err
			}

			for _, t := range targets {
				report, err := t.bot.RunCycle(ctx.Context)
				if err != nil {
					// Source errors are not fatal to the process: the
					// host re-triggers on the next schedule.
					log.WithFields(log.Fields{
						"feed":  t.id,
						"error": err,
					}).Error("Cycle aborted")
					continue
				}

				log.WithFields(log.Fields{
					"feed":       t.id,
					"new":        report.NewItems,
					"posted":     countPosted(report),
					"suppressed": report.Suppressed,
					"ledger":     report.LedgerWritten,
					"duration":   report.Duration,
				}).Info("Cycle complete")
			}

			return nil
		},
	}
}

func countPosted(report *models.CycleReport) int {
	return lo.CountBy(report.Results, func(result models.PostResult) bool {
		return result.Posted
	})
}
