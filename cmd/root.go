package cmd

import (
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func RootApp() *cli.App {
	return &cli.App{
		Name:  "skypost",
		Usage: "Posts new RSS articles to a Bluesky account",
		Description: `A bot that polls RSS feeds and posts articles that have not
		been posted yet to a Bluesky account, with an external link card
		and a size-adapted preview image.

		Published links are tracked in a JSON ledger file kept in a
		GitHub repository so duplicate posts are avoided across
		invocations without any local state.

		Flags can generally be set via environment variables, e.g.:

		--feed-url => SKYPOST_FEED_URL=https://example.com/rss
		--interval => SKYPOST_INTERVAL=10m
		`,
		Before: func(ctx *cli.Context) error {
			// Optional .env for local runs
			godotenv.Load()
			return nil
		},
		Commands: []*cli.Command{
			runCmd(),
			serveCmd(),
			ledgerCmd(),
			verifyCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}
