package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/adforge/copybot/pkg/agent/learning"
	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func learnCommand(logCfg *logConfig) *cli.Command {
	var (
		cfg       config
		channelID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "channel",
			Aliases:     []string{"c"},
			Usage:       "Slack channel ID to learn from",
			Sources:     cli.EnvVars("COPYBOT_CHANNEL"),
			Destination: &channelID,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "learn",
		Usage: "Run one learning pass for a channel and print the result",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.apply(ctx)
			w := c.Root().Writer

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			gemini, _, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
			sp.Suffix = " learning from " + channelID
			sp.Start()
			out, err := learning.New(repo, gemini).Run(ctx, channelID)
			sp.Stop()
			if err != nil {
				return goerr.Wrap(err, "learning failed", goerr.V("channel", channelID))
			}

			if out.Skipped {
				fmt.Fprintf(w, "Skipped: %s\n", out.Reason)
				return nil
			}
			fmt.Fprintf(w, "Reinforced: %d\nSuperseded: %d\nCreated: %d\nRejected: %d\n",
				out.Reinforced, out.Superseded, out.Created, out.Rejected)

			active, err := repo.ListActiveInsights(ctx, channelID)
			if err != nil {
				return goerr.Wrap(err, "failed to list insights")
			}
			for _, in := range active {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", in.ID, in.Category, in.Confidence, in.Insight)
			}
			return nil
		},
	}
}
