// Package dispatch runs the selected agent for one event and applies its result.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/repository"
	"github.com/adforge/copybot/pkg/usecase/quality"
	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	FailureMessage = "Sorry, something went wrong on my side while handling that. Please try again in a moment."
	BusyMessage    = "I'm a little overloaded right now. Please try again in a minute or two."
)

// Assembler builds the brand context for an event
type Assembler interface {
	Assemble(ctx context.Context, ev *model.EventContext) (*model.BrandContext, error)
}

// LearningQueue accepts a background learning run. Enqueue must not block.
type LearningQueue interface {
	Enqueue(channelID string) bool
}

type Dispatcher struct {
	registry  *Registry
	assembler Assembler
	repo      repository.Repository
	slack     adapter.Slack
	sink      adapter.TelemetrySink
	learning  LearningQueue
}

type Option func(*Dispatcher)

func WithTelemetrySink(sink adapter.TelemetrySink) Option {
	return func(d *Dispatcher) {
		d.sink = sink
	}
}

func WithLearningQueue(q LearningQueue) Option {
	return func(d *Dispatcher) {
		d.learning = q
	}
}

func New(registry *Registry, assembler Assembler, repo repository.Repository, slack adapter.Slack, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		assembler: assembler,
		repo:      repo,
		slack:     slack,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one routed event. A failure is reported to the user as a single
// message in the event's thread and then returned for logging.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *model.EventContext, route *model.Route) (err error) {
	logger := logging.From(ctx).With("agent", route.Agent, "channel", ev.ChannelID, "delivery_id", ev.DeliveryID)
	ctx = logging.With(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("agent panic", goerr.V("panic", fmt.Sprint(r)), goerr.V("agent", route.Agent))
		}
		if err != nil {
			d.ReportFailure(ctx, ev, err)
		}
	}()

	agent, ok := d.registry.Get(route.Agent)
	if !ok {
		return goerr.New("no agent registered", goerr.V("agent", route.Agent))
	}

	bc, err := d.assembler.Assemble(ctx, ev)
	if err != nil {
		return goerr.Wrap(err, "failed to assemble brand context")
	}

	result, err := agent.Handle(ctx, ev, bc, route.Meta)
	if err != nil {
		return goerr.Wrap(err, "agent failed", goerr.V("agent", route.Agent))
	}
	if result == nil {
		return nil
	}

	report := quality.Check(result, bc.Profile)
	if len(report.Issues) > 0 {
		issues := report.Strings()
		logger.Warn("quality issues", "issues", issues, "major", report.HasMajor())
		attachIssues(result, issues)
	}

	d.post(ctx, ev, result.Messages)
	d.apply(ctx, result.SideEffects)

	if result.TriggerLearning && d.learning != nil {
		if !d.learning.Enqueue(ev.ChannelID) {
			logger.Warn("learning trigger dropped")
		}
	}
	return nil
}

// attachIssues records gate findings on the telemetry the agent is about to persist
func attachIssues(result *model.AgentResult, issues []string) {
	for _, se := range result.SideEffects {
		switch v := se.(type) {
		case model.SaveGeneration:
			if v.Record != nil && v.Record.Telemetry != nil {
				v.Record.Telemetry.QualityIssues = append(v.Record.Telemetry.QualityIssues, issues...)
			}
		case model.UpdateGenerationTelemetry:
			if v.Telemetry != nil {
				v.Telemetry.QualityIssues = append(v.Telemetry.QualityIssues, issues...)
			}
		}
	}
}

func (d *Dispatcher) post(ctx context.Context, ev *model.EventContext, messages []*model.Message) {
	logger := logging.From(ctx)
	for i, msg := range messages {
		channelID := msg.ChannelID
		if channelID == "" {
			channelID = ev.ChannelID
		}

		ts, err := d.slack.PostMessage(ctx, channelID, msg.ThreadTS, msg.Text)
		if err != nil {
			logger.Error("failed to post message", logging.ErrAttr(err), "index", i)
			continue
		}

		if msg.Pin {
			if err := d.slack.PinMessage(ctx, channelID, ts); err != nil {
				logger.Warn("failed to pin message", logging.ErrAttr(err), "ts", ts)
			}
		}

		if msg.File != nil {
			thread := msg.ThreadTS
			if thread == "" {
				thread = ts
			}
			if err := d.slack.UploadFile(ctx, channelID, thread, msg.File); err != nil {
				logger.Error("failed to upload file", logging.ErrAttr(err), "name", msg.File.Name)
			}
		}
	}
}

// apply executes side effects in order. One failure never stops the rest.
func (d *Dispatcher) apply(ctx context.Context, effects []model.SideEffect) {
	logger := logging.From(ctx)
	for _, se := range effects {
		if err := d.execute(ctx, se); err != nil {
			logger.Error("side effect failed", logging.ErrAttr(err), "effect", se.EffectName())
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, se model.SideEffect) error {
	switch v := se.(type) {
	case model.AddNote:
		return d.repo.PutNote(ctx, v.Note)
	case model.SaveGeneration:
		return d.repo.PutGeneration(ctx, v.Record)
	case model.UpdateProfile:
		return d.repo.PutProfile(ctx, v.Profile)
	case model.UpdateCustomerState:
		return d.repo.PutOnboarding(ctx, v.State)
	case model.SaveFeedback:
		return d.repo.PutFeedback(ctx, v.Record)
	case model.SaveExemplar:
		return d.repo.PutExemplars(ctx, v.Exemplars)
	case model.UpdateGenerationTelemetry:
		if err := d.repo.UpdateGenerationTelemetry(ctx, v.GenerationID, v.Telemetry); err != nil {
			return err
		}
		if d.sink != nil {
			if err := d.sink.Insert(ctx, v.ChannelID, v.GenerationID, v.Telemetry); err != nil {
				return goerr.Wrap(err, "failed to export telemetry")
			}
		}
		return nil
	default:
		return goerr.New("unknown side effect", goerr.V("effect", se.EffectName()))
	}
}

// ReportFailure logs err and tells the user, so a failed event never leaves the
// conversation silent. It is also used for failures before an agent was selected.
func (d *Dispatcher) ReportFailure(ctx context.Context, ev *model.EventContext, err error) {
	logger := logging.From(ctx)
	logger.Error("dispatch failed", logging.ErrAttr(err))

	text := FailureMessage
	if adapter.IsTransient(err) {
		text = BusyMessage
	}
	if _, postErr := d.slack.PostMessage(ctx, ev.ChannelID, failureThread(ev, err), text); postErr != nil {
		logger.Error("failed to post failure message", logging.ErrAttr(postErr))
	}
}

// failureThread prefers a thread the agent opened itself. Only message events carry a
// message ts; file_shared and member_joined timestamps cannot anchor a thread.
func failureThread(ev *model.EventContext, err error) string {
	var te *model.ThreadError
	if errors.As(err, &te) && te.ThreadTS != "" {
		return te.ThreadTS
	}
	if ev.Kind != model.EventKindMessage {
		return ""
	}
	return ev.ParentTS
}
