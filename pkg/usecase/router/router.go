// Package router decides which agent handles an event. Deterministic rules run first;
// an LLM classifier is consulted only for top-level channel messages the rules leave open.
package router

import (
	"context"
	"errors"

	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Store is the subset of the repository the router reads
type Store interface {
	GetOnboarding(ctx context.Context, actorID string) (*model.CustomerOnboardingState, error)
	GetGenerationByThread(ctx context.Context, channelID, threadTS string) (*model.GenerationRecord, error)
}

type Router struct {
	store      Store
	classifier Classifier
}

func New(store Store, classifier Classifier) *Router {
	return &Router{store: store, classifier: classifier}
}

// Route returns the decision for ev, or nil when the event is ignored
func (r *Router) Route(ctx context.Context, ev *model.EventContext) (*model.Route, error) {
	switch ev.Kind {
	case model.EventKindMemberJoined:
		self := "false"
		if ev.BotUserID != "" && ev.ActorID == ev.BotUserID {
			self = "true"
		}
		return &model.Route{Agent: model.AgentWelcome, Meta: model.RouteMeta{MetaSelf: self}}, nil

	case model.EventKindFileUpload:
		// own creative vs competitor ad is decided after the file is described
		return &model.Route{Agent: model.AgentCopyGeneration}, nil

	case model.EventKindMessage:
	default:
		return nil, nil
	}

	switch {
	case ev.IsDM:
		return r.routeDM(ctx, ev)
	case ev.IsThread:
		return r.routeThread(ctx, ev)
	default:
		return r.routeTopLevel(ctx, ev)
	}
}

func (r *Router) onboarding(ctx context.Context, actorID string) (*model.CustomerOnboardingState, error) {
	state, err := r.store.GetOnboarding(ctx, actorID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load onboarding state", goerr.V("actor_id", actorID))
	}
	return state, nil
}

func (r *Router) routeDM(ctx context.Context, ev *model.EventContext) (*model.Route, error) {
	cmd, isCmd := ParseCommand(ev.Text)

	// setup/restart must be able to reset an interview that is in progress
	if isCmd && commandAgents[cmd] == model.AgentOnboarding {
		return commandRoute(cmd), nil
	}

	state, err := r.onboarding(ctx, ev.ActorID)
	if err != nil {
		return nil, err
	}
	if state.InProgress() {
		return &model.Route{Agent: model.AgentOnboarding}, nil
	}

	if isCmd {
		return commandRoute(cmd), nil
	}
	return commandRoute(CommandHelp), nil
}

func (r *Router) routeThread(ctx context.Context, ev *model.EventContext) (*model.Route, error) {
	state, err := r.onboarding(ctx, ev.ActorID)
	if err != nil {
		return nil, err
	}
	if state.IsActiveThread(ev.ChannelID, ev.ThreadTS) {
		if cmd, ok := ParseCommand(ev.Text); ok && cmd == CommandRestart {
			return commandRoute(cmd), nil
		}
		return &model.Route{Agent: model.AgentOnboarding}, nil
	}

	gen, err := r.store.GetGenerationByThread(ctx, ev.ChannelID, ev.ThreadTS)
	if errors.Is(err, model.ErrNotFound) {
		logging.From(ctx).Debug("dropping reply in unrecognized thread",
			"channel", ev.ChannelID, "thread_ts", ev.ThreadTS)
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up generation thread",
			goerr.V("channel_id", ev.ChannelID), goerr.V("thread_ts", ev.ThreadTS))
	}

	return &model.Route{
		Agent: model.AgentConversation,
		Meta: model.RouteMeta{
			MetaSourceType:   string(gen.SourceType),
			MetaGenerationID: string(gen.ID),
		},
	}, nil
}

func (r *Router) routeTopLevel(ctx context.Context, ev *model.EventContext) (*model.Route, error) {
	if cmd, ok := ParseCommand(ev.Text); ok {
		return commandRoute(cmd), nil
	}

	if url, ok := IsCompetitorRequest(ev.Text); ok {
		return &model.Route{
			Agent: model.AgentCompetitorAnalysis,
			Meta:  model.RouteMeta{MetaURL: url},
		}, nil
	}

	if IsShort(ev.Text) {
		return commandRoute(CommandHint), nil
	}

	agent, err := r.classifier.Classify(ctx, ev.Text)
	if err != nil {
		logging.From(ctx).Warn("classifier failed, treating message as brand context", logging.ErrAttr(err))
		agent = model.AgentBrandContext
	}

	route := &model.Route{
		Agent: agent,
		Meta:  model.RouteMeta{MetaClassifiedBy: "llm"},
		ByLLM: true,
	}
	switch agent {
	case model.AgentCommand:
		route.Meta[MetaCommand] = CommandHelp
	case model.AgentCompetitorAnalysis:
		if url := ExtractURL(ev.Text); url != "" {
			route.Meta[MetaURL] = url
		}
	}
	return route, nil
}
