package cli

import (
	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/agent/brandctx"
	"github.com/adforge/copybot/pkg/agent/command"
	"github.com/adforge/copybot/pkg/agent/competitor"
	"github.com/adforge/copybot/pkg/agent/conversation"
	"github.com/adforge/copybot/pkg/agent/copygen"
	"github.com/adforge/copybot/pkg/agent/onboarding"
	"github.com/adforge/copybot/pkg/agent/welcome"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/repository"
	"github.com/adforge/copybot/pkg/usecase/brand"
	"github.com/adforge/copybot/pkg/usecase/dispatch"
	"github.com/adforge/copybot/pkg/usecase/router"
	"github.com/m-mizutani/goerr/v2"
)

// components is everything an event handler needs. Storage, Sink and Learning are
// optional.
type components struct {
	Repo     repository.Repository
	Gemini   adapter.Gemini
	Fast     adapter.Gemini
	Slack    adapter.Slack
	Storage  adapter.Storage
	Sink     adapter.TelemetrySink
	Learning dispatch.LearningQueue
	Strict   bool
}

func newRegistry(c components) (*dispatch.Registry, error) {
	analyzer := competitor.NewAnalyzer(c.Gemini)
	loop := copygen.NewLoop(c.Gemini, copygen.WithStrictExemplarOrder(c.Strict))

	var copyOpts []copygen.Option
	if c.Storage != nil {
		copyOpts = append(copyOpts, copygen.WithStorage(c.Storage))
	}

	return dispatch.NewRegistry(
		dispatch.Entry{Name: model.AgentWelcome, Agent: welcome.New()},
		dispatch.Entry{Name: model.AgentOnboarding, Agent: onboarding.New(c.Gemini)},
		dispatch.Entry{Name: model.AgentCopyGeneration, Agent: copygen.New(c.Slack, adapter.NewMediaAnalyzer(c.Gemini), c.Gemini, loop, analyzer, copyOpts...)},
		dispatch.Entry{Name: model.AgentCompetitorAnalysis, Agent: competitor.New(analyzer)},
		dispatch.Entry{Name: model.AgentConversation, Agent: conversation.New(c.Gemini)},
		dispatch.Entry{Name: model.AgentCommand, Agent: command.New()},
		dispatch.Entry{Name: model.AgentBrandContext, Agent: brandctx.New()},
	)
}

func newPipeline(c components) (*router.Router, *dispatch.Dispatcher, error) {
	registry, err := newRegistry(c)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to build agent registry")
	}

	var opts []dispatch.Option
	if c.Sink != nil {
		opts = append(opts, dispatch.WithTelemetrySink(c.Sink))
	}
	if c.Learning != nil {
		opts = append(opts, dispatch.WithLearningQueue(c.Learning))
	}

	d := dispatch.New(registry, brand.New(c.Repo, c.Slack), c.Repo, c.Slack, opts...)
	r := router.New(c.Repo, router.NewClassifier(c.Fast))
	return r, d, nil
}
