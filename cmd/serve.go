package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"skypost/server"
)

// serveCmd runs the poll loop in-process for hosts without a scheduler
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the poll/post loop on an interval",
		Description: `Runs a cycle for each configured feed on the configured
interval, and serves health, status and Prometheus metrics over HTTP.

The first cycle runs immediately on startup. Each cycle
re-authenticates against Bluesky; no session state is kept between
cycles.`,
		Flags: append(append(botFlags(), ledgerFlags()...),
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Time between poll cycles",
				Value:   5 * time.Minute,
				EnvVars: []string{"SKYPOST_INTERVAL"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the health/status/metrics server",
				Value:   8080,
				EnvVars: []string{"SKYPOST_PORT"},
			},
		),
		Action: func(ctx *cli.Context) error {
			targets, err := buildTargets(ctx)
			if err != nil {
				return err
			}

			reports := server.NewReportStore()
			app := server.Server(&server.ServerConfig{
				Reports: reports,
			})

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)

			go func() {
				log.Infof("Starting server on port %d", ctx.Int("port"))
				if err := app.Listen(fmt.Sprintf(":%d", ctx.Int("port"))); err != nil {
					log.Panic(err)
				}
			}()

			runAll := func() {
				for _, t := range targets {
					report, err := t.bot.RunCycle(ctx.Context)
					if err != nil {
						log.WithFields(log.Fields{
							"feed":  t.id,
							"error": err,
						}).Error("Cycle aborted")
						continue
					}
					reports.Put(report)
				}
			}

			ticker := time.NewTicker(ctx.Duration("interval"))
			defer ticker.Stop()

			runAll()

			for {
				select {
				case <-c:
					log.Info("Gracefully shutting down...")
					return app.ShutdownWithTimeout(10 * time.Second)
				case <-ctx.Context.Done():
					return app.ShutdownWithTimeout(10 * time.Second)
				case <-ticker.C:
					runAll()
				}
			}
		},
	}
}
