package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adforge/copybot/pkg/agent/learning"
	"github.com/adforge/copybot/pkg/policy"
	"github.com/adforge/copybot/pkg/server"
	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func serveCommand(logCfg *logConfig) *cli.Command {
	var (
		cfg              config
		addr             string
		mediaBucket      string
		telemetryTable   string
		admissionPolicy  string
		learningWorkers  int64
		learningQueue    int64
		learningSchedule string
		learningWindow   time.Duration
		strictExemplars  bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("COPYBOT_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "media-bucket",
			Usage:       "GCS bucket (optionally bucket/prefix) for archiving uploaded creatives",
			Sources:     cli.EnvVars("COPYBOT_MEDIA_BUCKET"),
			Destination: &mediaBucket,
		},
		&cli.StringFlag{
			Name:        "telemetry-table",
			Usage:       "BigQuery table (project.dataset.table) for generation telemetry",
			Sources:     cli.EnvVars("COPYBOT_TELEMETRY_TABLE"),
			Destination: &telemetryTable,
		},
		&cli.StringFlag{
			Name:        "admission-policy",
			Usage:       "Rego file or directory with the admission policy",
			Sources:     cli.EnvVars("COPYBOT_ADMISSION_POLICY"),
			Destination: &admissionPolicy,
		},
		&cli.IntFlag{
			Name:        "learning-workers",
			Usage:       "Number of background learning workers",
			Value:       learning.DefaultWorkers,
			Sources:     cli.EnvVars("COPYBOT_LEARNING_WORKERS"),
			Destination: &learningWorkers,
		},
		&cli.IntFlag{
			Name:        "learning-queue",
			Usage:       "Capacity of the learning queue",
			Value:       learning.DefaultCapacity,
			Sources:     cli.EnvVars("COPYBOT_LEARNING_QUEUE"),
			Destination: &learningQueue,
		},
		&cli.StringFlag{
			Name:        "learning-schedule",
			Usage:       "Cron schedule for periodic learning; empty disables it",
			Value:       learning.DefaultSchedule,
			Sources:     cli.EnvVars("COPYBOT_LEARNING_SCHEDULE"),
			Destination: &learningSchedule,
		},
		&cli.DurationFlag{
			Name:        "learning-window",
			Usage:       "Channels with generations inside this window are learned periodically",
			Value:       learning.DefaultWindow,
			Sources:     cli.EnvVars("COPYBOT_LEARNING_WINDOW"),
			Destination: &learningWindow,
		},
		&cli.BoolFlag{
			Name:        "strict-exemplars",
			Usage:       "Require the copy loop to fetch exemplars before submitting",
			Sources:     cli.EnvVars("COPYBOT_STRICT_EXEMPLARS"),
			Destination: &strictExemplars,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, slackFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the Slack webhook server",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.apply(ctx)
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := logging.From(ctx)

			if cfg.signingSecret == "" {
				return goerr.New("slack-signing-secret is required")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logger.Warn("failed to close repository", logging.ErrAttr(err))
				}
			}()

			gemini, fast, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			slack, err := cfg.newSlack()
			if err != nil {
				return err
			}

			storage, err := newStorage(ctx, mediaBucket)
			if err != nil {
				return err
			}

			sink, err := newTelemetrySink(ctx, telemetryTable)
			if err != nil {
				return err
			}

			admission, err := policy.Load(ctx, admissionPolicy)
			if err != nil {
				return goerr.Wrap(err, "failed to load admission policy")
			}

			queue := learning.NewQueue(learning.New(repo, gemini),
				learning.WithWorkers(int(learningWorkers)),
				learning.WithCapacity(int(learningQueue)),
			)
			queue.Start(ctx)
			defer queue.Stop()

			if learningSchedule != "" {
				scheduler := learning.NewScheduler(repo, queue,
					learning.WithSchedule(learningSchedule),
					learning.WithWindow(learningWindow),
				)
				if err := scheduler.Start(ctx); err != nil {
					return err
				}
				defer scheduler.Stop(context.WithoutCancel(ctx))
			}

			router, dispatcher, err := newPipeline(components{
				Repo:     repo,
				Gemini:   gemini,
				Fast:     fast,
				Slack:    slack,
				Storage:  storage,
				Sink:     sink,
				Learning: queue,
				Strict:   strictExemplars,
			})
			if err != nil {
				return err
			}

			srv := server.New(cfg.signingSecret, repo, router, dispatcher, server.WithAdmission(admission))
			return srv.Run(ctx, addr)
		},
	}
}
