package cmd

import (
	"fmt"
	"time"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	"github.com/urfave/cli/v2"

	"skypost/bluesky"
)

// verifyCmd checks that a set of Bluesky credentials can log in
func verifyCmd() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Verify Bluesky credentials",
		Description: `Prompts for a Bluesky handle and app password and performs a
login round trip against the PDS to confirm the credentials work
before they are put into the bot's environment.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "bluesky-host",
				Usage:   "PDS host to authenticate against",
				Value:   bluesky.DefaultPDSHost,
				EnvVars: []string{"SKYPOST_BLUESKY_HOST"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "Timeout for each external HTTP call",
				Value:   30 * time.Second,
				EnvVars: []string{"SKYPOST_TIMEOUT"},
			},
		},
		Action: func(ctx *cli.Context) error {
			handle, err := prompt.New().Ask("Handle:").Input("myname.bsky.social")
			if err != nil {
				return err
			}

			password, err := prompt.New().Ask("Password:").Input("", input.WithEchoMode(input.EchoNone))
			if err != nil {
				return err
			}

			client, err := bluesky.ClientFromCredentials(ctx.Context, ctx.String("bluesky-host"), &bluesky.Credentials{
				Identifier: handle,
				Password:   password,
			}, ctx.Duration("timeout"))
			if err != nil {
				return fmt.Errorf("could not create client with provided credentials: %w", err)
			}

			fmt.Printf("Logged in as %s (%s)\n", client.Handle(), client.Did())
			return nil
		},
	}
}
