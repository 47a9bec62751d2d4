package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/agent/learning"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/repository"
	"github.com/adforge/copybot/pkg/usecase/dispatch"
	"github.com/adforge/copybot/pkg/usecase/router"
	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const (
	simChannel = "CSIM"
	simDM      = "DSIM"
	simUser    = "USIM"
	simBot     = "UBOT"
)

const simulateHelp = `Type a message to send it. Console commands:
  :thread <ts>    reply inside a thread
  :top            back to top-level messages
  :dm             toggle direct-message mode
  :upload <path>  share a local image, video or audio file
  :join           add the bot to the channel
  :quit           exit`

// offlineClassifier stands in for the LLM classifier when no model is configured
type offlineClassifier struct{}

func (offlineClassifier) Classify(ctx context.Context, text string) (model.AgentName, error) {
	return model.AgentBrandContext, nil
}

type simulator struct {
	w        io.Writer
	console  *adapter.Console
	router   *router.Router
	dispatch *dispatch.Dispatcher
	threadTS string
	dm       bool
}

func simulateCommand(logCfg *logConfig) *cli.Command {
	var (
		cfg        config
		doDispatch bool
		strict     bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "dispatch",
			Usage:       "Run the selected agent and print its output (requires Gemini)",
			Destination: &doDispatch,
		},
		&cli.BoolFlag{
			Name:        "strict-exemplars",
			Usage:       "Require the copy loop to fetch exemplars before submitting",
			Sources:     cli.EnvVars("COPYBOT_STRICT_EXEMPLARS"),
			Destination: &strict,
		},
	}
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "simulate",
		Usage: "Interactive console against an in-memory store",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.apply(ctx)
			w := c.Root().Writer

			repo := repository.NewMemory()
			console := adapter.NewConsole(w, simBot)
			sim := &simulator{w: w, console: console}

			var classifier router.Classifier = offlineClassifier{}
			if cfg.geminiProject != "" {
				gemini, fast, err := cfg.newGemini(ctx)
				if err != nil {
					return err
				}
				classifier = router.NewClassifier(fast)

				if doDispatch {
					queue := learning.NewQueue(learning.New(repo, gemini), learning.WithWorkers(1),
						learning.WithRunHook(func(channelID string, out *learning.Outcome, err error) {
							switch {
							case err != nil:
								fmt.Fprintf(w, "[learning %s failed: %v]\n", channelID, err)
							case out.Skipped:
								fmt.Fprintf(w, "[learning %s skipped: %s]\n", channelID, out.Reason)
							default:
								fmt.Fprintf(w, "[learning %s: +%d new, %d reinforced, %d superseded]\n",
									channelID, out.Created, out.Reinforced, out.Superseded)
							}
						}))
					queue.Start(ctx)
					defer queue.Stop()

					_, d, err := newPipeline(components{
						Repo: repo, Gemini: gemini, Fast: fast, Slack: console, Learning: queue, Strict: strict,
					})
					if err != nil {
						return err
					}
					sim.dispatch = d
				}
			} else if doDispatch {
				return goerr.New("--dispatch requires gemini-project")
			}
			sim.router = router.New(repo, classifier)

			return sim.loop(ctx)
		},
	}
}

func (s *simulator) prompt() string {
	switch {
	case s.dm:
		return "dm> "
	case s.threadTS != "":
		return "thread " + s.threadTS + "> "
	default:
		return "#channel> "
	}
}

func (s *simulator) loop(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
	if err != nil {
		return goerr.Wrap(err, "failed to start console")
	}
	defer rl.Close()

	fmt.Fprintln(s.w, simulateHelp)
	for {
		rl.SetPrompt(s.prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		ev, quit, err := s.parse(line)
		if quit {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.w, "error: %v\n", err)
			continue
		}
		if ev != nil {
			s.handle(ctx, ev)
		}
	}
}

// parse turns one console line into an event. Console commands that only change the
// simulator state return a nil event.
func (s *simulator) parse(line string) (*model.EventContext, bool, error) {
	base := &model.EventContext{
		DeliveryID:  "Ev" + uuid.NewString(),
		WorkspaceID: "TSIM",
		BotUserID:   simBot,
		ActorID:     simUser,
		ChannelID:   simChannel,
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case ":quit", ":q":
		return nil, true, nil
	case ":help":
		fmt.Fprintln(s.w, simulateHelp)
		return nil, false, nil
	case ":top":
		s.threadTS = ""
		return nil, false, nil
	case ":dm":
		s.dm = !s.dm
		s.threadTS = ""
		return nil, false, nil
	case ":thread":
		if arg == "" {
			return nil, false, goerr.New("usage: :thread <ts>")
		}
		s.threadTS = arg
		return nil, false, nil
	case ":join":
		base.Kind = model.EventKindMemberJoined
		base.ActorID = simBot
		base.MessageTS = s.console.NextTS()
		base.ParentTS = base.MessageTS
		return base, false, nil
	case ":upload":
		if arg == "" {
			return nil, false, goerr.New("usage: :upload <path>")
		}
		fd, err := s.console.AddFile(arg, mime.TypeByExtension(filepath.Ext(arg)))
		if err != nil {
			return nil, false, err
		}
		base.Kind = model.EventKindFileUpload
		base.File = fd
		return base, false, nil
	}

	ts := s.console.NextTS()
	base.Kind = model.EventKindMessage
	base.Text = line
	base.MessageTS = ts
	base.ParentTS = ts
	if s.dm {
		base.ChannelID = simDM
		base.IsDM = true
	}
	if s.threadTS != "" {
		base.ThreadTS = s.threadTS
		base.ParentTS = s.threadTS
		base.IsThread = true
	}
	s.console.Record(base.ChannelID, base.ThreadTS, simUser, ts, line)
	return base, false, nil
}

func (s *simulator) handle(ctx context.Context, ev *model.EventContext) {
	route, err := s.router.Route(ctx, ev)
	if err != nil {
		fmt.Fprintf(s.w, "route error: %v\n", err)
		return
	}
	if route == nil {
		fmt.Fprintln(s.w, "[ignored]")
		return
	}

	by := "rules"
	if route.ByLLM {
		by = "classifier"
	}
	fmt.Fprintf(s.w, "[route %s via %s %v]\n", route.Agent, by, map[string]string(route.Meta))

	if s.dispatch == nil {
		return
	}
	if err := s.dispatch.Dispatch(ctx, ev, route); err != nil {
		fmt.Fprintf(s.w, "[dispatch failed: %v]\n", err)
	}
}
