package cli

import (
	"context"
	"os"
	"strings"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/repository"
	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

type logConfig struct {
	level  string
	format string
}

func logFlags(cfg *logConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("COPYBOT_LOG_LEVEL"),
			Destination: &cfg.level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("COPYBOT_LOG_FORMAT"),
			Destination: &cfg.format,
		},
	}
}

// apply installs the configured logger as default and into ctx
func (cfg *logConfig) apply(ctx context.Context) context.Context {
	logger := logging.NewWithFormat(cfg.level, logging.Format(cfg.format), os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// config holds configuration values
type config struct {
	// Repository
	project  string
	database string

	// Gemini
	geminiProject   string
	geminiLocation  string
	geminiModel     string
	geminiFastModel string

	// Slack
	slackToken    string
	signingSecret string
	slackRPS      float64
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Model for copy generation, onboarding, analysis and learning",
			Value:       "gemini-2.5-pro",
			Sources:     cli.EnvVars("COPYBOT_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "gemini-fast-model",
			Usage:       "Model for intent classification",
			Value:       "gemini-2.5-flash-lite",
			Sources:     cli.EnvVars("COPYBOT_GEMINI_FAST_MODEL"),
			Destination: &cfg.geminiFastModel,
		},
	}
}

func slackFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack bot token (xoxb-...)",
			Sources:     cli.EnvVars("SLACK_BOT_TOKEN"),
			Destination: &cfg.slackToken,
		},
		&cli.StringFlag{
			Name:        "slack-signing-secret",
			Usage:       "Slack signing secret for webhook verification",
			Sources:     cli.EnvVars("SLACK_SIGNING_SECRET"),
			Destination: &cfg.signingSecret,
		},
		&cli.FloatFlag{
			Name:        "slack-rate-limit",
			Usage:       "Maximum Slack Web API calls per second",
			Value:       5,
			Sources:     cli.EnvVars("COPYBOT_SLACK_RATE_LIMIT"),
			Destination: &cfg.slackRPS,
		},
	}
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (*repository.Firestore, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.New(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newGemini creates the main and the fast Gemini clients
func (cfg *config) newGemini(ctx context.Context) (main, fast adapter.Gemini, err error) {
	if cfg.geminiProject == "" {
		return nil, nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, nil, goerr.New("gemini-location is required")
	}

	m, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, adapter.WithGenerativeModel(cfg.geminiModel))
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create gemini client")
	}
	f, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, adapter.WithGenerativeModel(cfg.geminiFastModel))
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create fast gemini client")
	}
	return m, f, nil
}

func (cfg *config) newSlack() (adapter.Slack, error) {
	if cfg.slackToken == "" {
		return nil, goerr.New("slack-bot-token is required")
	}
	burst := int(cfg.slackRPS)
	if burst < 1 {
		burst = 1
	}
	return adapter.NewSlack(cfg.slackToken, adapter.WithSlackRateLimit(cfg.slackRPS, burst)), nil
}

// newStorage creates the media archive, or nil when no bucket is configured
func newStorage(ctx context.Context, bucket string) (adapter.Storage, error) {
	if bucket == "" {
		return nil, nil
	}
	name, prefix, _ := strings.Cut(bucket, "/")
	storage, err := adapter.NewStorage(ctx, name, prefix)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newTelemetrySink parses project.dataset.table; an empty value disables the export
func newTelemetrySink(ctx context.Context, table string) (adapter.TelemetrySink, error) {
	if table == "" {
		return nil, nil
	}
	parts := strings.Split(table, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, goerr.New("telemetry table must be project.dataset.table", goerr.V("table", table))
	}
	sink, err := adapter.NewBigQuery(ctx, parts[0], parts[1], parts[2])
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create telemetry sink")
	}
	return sink, nil
}
