package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"skypost/bluesky"
	"skypost/bot"
	"skypost/config"
	"skypost/feed"
	"skypost/images"
	"skypost/ledger"
)

// target pairs a feed id with the bot that processes it
type target struct {
	id  string
	bot *bot.Bot
}

func botFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "feed-url",
			Aliases: []string{"f"},
			Usage:   "URL of the RSS/Atom feed to poll",
			EnvVars: []string{"SKYPOST_FEED_URL"},
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a feeds configuration file for posting multiple feeds",
			EnvVars: []string{"SKYPOST_CONFIG"},
		},
		&cli.IntFlag{
			Name:    "retention-cap",
			Usage:   "Maximum number of links kept in the ledger",
			Value:   100,
			EnvVars: []string{"SKYPOST_RETENTION_CAP"},
		},
		&cli.IntFlag{
			Name:    "image-ceiling",
			Usage:   "Maximum preview image size in bytes accepted by the upload API",
			Value:   1000000,
			EnvVars: []string{"SKYPOST_IMAGE_CEILING"},
		},
		&cli.IntFlag{
			Name:    "image-workers",
			Usage:   "Number of concurrent image resolutions per cycle",
			Value:   4,
			EnvVars: []string{"SKYPOST_IMAGE_WORKERS"},
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Timeout for each external HTTP call",
			Value:   30 * time.Second,
			EnvVars: []string{"SKYPOST_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "bluesky-identifier",
			Usage:   "Bluesky handle or DID to post as",
			EnvVars: []string{"SKYPOST_BLUESKY_IDENTIFIER"},
		},
		&cli.StringFlag{
			Name:    "bluesky-password",
			Usage:   "Bluesky app password",
			EnvVars: []string{"SKYPOST_BLUESKY_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "bluesky-host",
			Usage:   "PDS host to authenticate against",
			Value:   bluesky.DefaultPDSHost,
			EnvVars: []string{"SKYPOST_BLUESKY_HOST"},
		},
	}
}

func ledgerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "github-token",
			Usage:   "GitHub personal access token for the ledger repository",
			EnvVars: []string{"SKYPOST_GITHUB_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "github-owner",
			Usage:   "Owner of the ledger repository",
			EnvVars: []string{"SKYPOST_GITHUB_OWNER"},
		},
		&cli.StringFlag{
			Name:    "github-repo",
			Usage:   "Name of the ledger repository",
			EnvVars: []string{"SKYPOST_GITHUB_REPO"},
		},
		&cli.StringFlag{
			Name:    "github-branch",
			Usage:   "Branch holding the ledger file, empty for the default branch",
			EnvVars: []string{"SKYPOST_GITHUB_BRANCH"},
		},
		&cli.StringFlag{
			Name:    "ledger-path",
			Usage:   "Path of the ledger file within the repository",
			Value:   "published.json",
			EnvVars: []string{"SKYPOST_LEDGER_PATH"},
		},
	}
}

// buildTargets assembles one bot per configured feed. With --config each
// feed gets its own ledger file (ledger_path, defaulting to <id>.json);
// with a bare --feed-url the --ledger-path flag applies.
func buildTargets(ctx *cli.Context) ([]target, error) {
	var feedCfgs []config.TomlFeed

	if path := ctx.String("config"); path != "" {
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		feedCfgs = cfg.Feeds
	} else if url := ctx.String("feed-url"); url != "" {
		feedCfgs = []config.TomlFeed{{
			Id:         "default",
			Url:        url,
			LedgerPath: ctx.String("ledger-path"),
		}}
	} else {
		return nil, errors.New("please specify a feed with --feed-url or --config")
	}

	if ctx.String("bluesky-identifier") == "" || ctx.String("bluesky-password") == "" {
		return nil, errors.New("please provide Bluesky credentials")
	}
	if ctx.String("github-owner") == "" || ctx.String("github-repo") == "" {
		return nil, errors.New("please provide the GitHub ledger repository")
	}

	timeout := ctx.Duration("timeout")
	ghClient := ledger.NewGithubClient(ctx.Context, ctx.String("github-token"), timeout)
	resolver := images.NewResolver(ctx.Int("image-ceiling"), timeout)

	creds := &bluesky.Credentials{
		Identifier: ctx.String("bluesky-identifier"),
		Password:   ctx.String("bluesky-password"),
	}
	host := ctx.String("bluesky-host")
	login := func(loginCtx context.Context) (bot.Poster, error) {
		return bluesky.ClientFromCredentials(loginCtx, host, creds, timeout)
	}

	targets := make([]target, 0, len(feedCfgs))
	for _, feedCfg := range feedCfgs {
		ledgerPath := feedCfg.LedgerPath
		if ledgerPath == "" {
			ledgerPath = feedCfg.Id + ".json"
		}

		store := ledger.NewGithubStore(
			ghClient,
			ctx.String("github-owner"),
			ctx.String("github-repo"),
			ctx.String("github-branch"),
			ledgerPath,
		)
		fetcher := feed.NewFetcher(feedCfg.Url, timeout)

		targets = append(targets, target{
			id: feedCfg.Id,
			bot: bot.New(bot.Config{
				FeedID:       feedCfg.Id,
				RetentionCap: ctx.Int("retention-cap"),
				ImageWorkers: ctx.Int("image-workers"),
				Include:      feedCfg.Include,
				Exclude:      feedCfg.Exclude,
			}, fetcher, store, resolver, login),
		})
	}

	return targets, nil
}
