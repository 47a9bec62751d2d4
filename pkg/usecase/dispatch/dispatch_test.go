package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/repository"
	"github.com/adforge/copybot/pkg/usecase/dispatch"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

type post struct {
	channel, thread, text string
}

type mockSlack struct {
	adapter.Slack
	posts   []post
	pinned  []string
	uploads []string
}

func (m *mockSlack) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	m.posts = append(m.posts, post{channelID, threadTS, text})
	return "300." + string(rune('0'+len(m.posts))), nil
}

func (m *mockSlack) PinMessage(ctx context.Context, channelID, ts string) error {
	m.pinned = append(m.pinned, ts)
	return nil
}

func (m *mockSlack) UploadFile(ctx context.Context, channelID, threadTS string, file *model.FileUpload) error {
	m.uploads = append(m.uploads, threadTS+"/"+file.Name)
	return nil
}

type mockSink struct {
	rows []model.GenerationID
}

func (m *mockSink) Insert(ctx context.Context, channelID string, id model.GenerationID, telemetry *model.Telemetry) error {
	m.rows = append(m.rows, id)
	return nil
}

type mockQueue struct {
	channels []string
}

func (m *mockQueue) Enqueue(channelID string) bool {
	m.channels = append(m.channels, channelID)
	return true
}

type assemblerFunc func(ctx context.Context, ev *model.EventContext) (*model.BrandContext, error)

func (f assemblerFunc) Assemble(ctx context.Context, ev *model.EventContext) (*model.BrandContext, error) {
	return f(ctx, ev)
}

// failingNotes breaks one side effect so the rest can be observed
type failingNotes struct {
	repository.Repository
}

func (failingNotes) PutNote(ctx context.Context, note *model.BrandNote) error {
	return errors.New("write failed")
}

var profile = &model.VoiceProfile{ChannelID: "C1", BrandName: "Acme", BannedPhrases: []string{"guaranteed"}}

func staticContext() dispatch.Assembler {
	return assemblerFunc(func(ctx context.Context, ev *model.EventContext) (*model.BrandContext, error) {
		return &model.BrandContext{ChannelID: ev.ChannelID, Profile: profile}, nil
	})
}

func event() *model.EventContext {
	return &model.EventContext{
		Kind: model.EventKindMessage, DeliveryID: "Ev1", ChannelID: "C1", ActorID: "U1",
		Text: "hello there friends", MessageTS: "100.1", ParentTS: "100.1",
	}
}

func newDispatcher(t *testing.T, agent model.Agent, repo repository.Repository, slack adapter.Slack, opts ...dispatch.Option) *dispatch.Dispatcher {
	reg, err := dispatch.NewRegistry(dispatch.Entry{Name: model.AgentConversation, Agent: agent})
	gt.NoError(t, err)
	return dispatch.New(reg, staticContext(), repo, slack, opts...)
}

func TestDispatchAppliesResult(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	slack := &mockSlack{}
	sink := &mockSink{}
	queue := &mockQueue{}

	genID := model.NewGenerationID()
	agent := model.AgentFunc(func(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
		gt.Equal(t, bc.Profile, profile)
		return &model.AgentResult{
			Messages: []*model.Message{
				{ThreadTS: ev.ParentTS, Text: "reply in thread"},
				{Text: "pinned summary", Pin: true},
				{ThreadTS: ev.ParentTS, Text: "export", File: &model.FileUpload{Name: "copy.txt", Content: []byte("x")}},
			},
			SideEffects: []model.SideEffect{
				model.AddNote{Note: &model.BrandNote{ID: model.NewNoteID(), ChannelID: "C1", Kind: model.NoteKindContext, Text: "note"}},
				model.SaveGeneration{Record: &model.GenerationRecord{ID: genID, ChannelID: "C1", ThreadTS: "100.1", Telemetry: &model.Telemetry{}, CreatedAt: time.Now()}},
				model.UpdateGenerationTelemetry{GenerationID: genID, ChannelID: "C1", Telemetry: &model.Telemetry{Turns: 3}},
			},
			TriggerLearning: true,
		}, nil
	})

	d := newDispatcher(t, agent, repo, slack, dispatch.WithTelemetrySink(sink), dispatch.WithLearningQueue(queue))
	gt.NoError(t, d.Dispatch(ctx, event(), &model.Route{Agent: model.AgentConversation}))

	gt.A(t, slack.posts).Length(3)
	gt.Equal(t, slack.posts[0].thread, "100.1")
	gt.Equal(t, slack.posts[1].thread, "")
	gt.A(t, slack.pinned).Length(1)
	gt.A(t, slack.uploads).Length(1)
	gt.Equal(t, slack.uploads[0], "100.1/copy.txt")

	notes, err := repo.ListNotes(ctx, "C1", model.NoteKindContext, 10)
	gt.NoError(t, err)
	gt.A(t, notes).Length(1)

	gen, err := repo.GetGenerationByThread(ctx, "C1", "100.1")
	gt.NoError(t, err)
	gt.Equal(t, gen.Telemetry.Turns, 3)
	gt.A(t, sink.rows).Length(1)
	gt.A(t, queue.channels).Length(1)
}

func TestDispatchIsolatesSideEffectFailures(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	slack := &mockSlack{}

	idx := 1
	agent := model.AgentFunc(func(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
		return &model.AgentResult{
			Messages: []*model.Message{{ThreadTS: ev.ParentTS, Text: "ok"}},
			SideEffects: []model.SideEffect{
				model.AddNote{Note: &model.BrandNote{ID: model.NewNoteID(), ChannelID: "C1", Text: "note"}},
				model.SaveFeedback{Record: &model.CopyFeedbackRecord{ID: model.NewFeedbackID(), ChannelID: "C1", Action: model.FeedbackApproved, VariantIndex: &idx}},
			},
		}, nil
	})

	d := newDispatcher(t, agent, failingNotes{Repository: mem}, slack)
	gt.NoError(t, d.Dispatch(ctx, event(), &model.Route{Agent: model.AgentConversation}))

	fb, err := mem.ListFeedbackByChannel(ctx, "C1", 10)
	gt.NoError(t, err)
	gt.A(t, fb).Length(1)
	gt.A(t, slack.posts).Length(1)
	gt.Equal(t, slack.posts[0].text, "ok")
}

func TestDispatchFailures(t *testing.T) {
	testCases := map[string]struct {
		route   model.AgentName
		handle  func() (*model.AgentResult, error)
		message string
	}{
		"agent error": {
			route:   model.AgentConversation,
			handle:  func() (*model.AgentResult, error) { return nil, errors.New("broken") },
			message: dispatch.FailureMessage,
		},
		"upstream overload": {
			route: model.AgentConversation,
			handle: func() (*model.AgentResult, error) {
				return nil, genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}
			},
			message: dispatch.BusyMessage,
		},
		"panic": {
			route:   model.AgentConversation,
			handle:  func() (*model.AgentResult, error) { panic("nil map") },
			message: dispatch.FailureMessage,
		},
		"unknown agent": {
			route:   model.AgentWelcome,
			handle:  func() (*model.AgentResult, error) { return &model.AgentResult{}, nil },
			message: dispatch.FailureMessage,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			slack := &mockSlack{}
			agent := model.AgentFunc(func(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
				return tc.handle()
			})

			d := newDispatcher(t, agent, repository.NewMemory(), slack)
			gt.Error(t, d.Dispatch(context.Background(), event(), &model.Route{Agent: tc.route}))
			gt.A(t, slack.posts).Length(1)
			gt.Equal(t, slack.posts[0].text, tc.message)
			gt.Equal(t, slack.posts[0].thread, "100.1")
		})
	}
}

func TestFailureThread(t *testing.T) {
	upload := &model.EventContext{
		Kind: model.EventKindFileUpload, DeliveryID: "Ev2", ChannelID: "C1", ActorID: "U1",
		MessageTS: "150.9", ParentTS: "150.9", File: &model.FileDescriptor{ID: "F1"},
	}
	testCases := map[string]struct {
		ev     *model.EventContext
		err    error
		thread string
	}{
		"message reply stays in its thread": {
			ev:     event(),
			err:    errors.New("broken"),
			thread: "100.1",
		},
		"upload before the agent opened a thread": {
			ev:     upload,
			err:    errors.New("file info failed"),
			thread: "",
		},
		"upload after the status anchor was posted": {
			ev:     upload,
			err:    model.InThread(errors.New("describe failed"), "222.2"),
			thread: "222.2",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			slack := &mockSlack{}
			agent := model.AgentFunc(func(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
				return nil, tc.err
			})

			d := newDispatcher(t, agent, repository.NewMemory(), slack)
			gt.Error(t, d.Dispatch(context.Background(), tc.ev, &model.Route{Agent: model.AgentConversation}))
			gt.A(t, slack.posts).Length(1)
			gt.Equal(t, slack.posts[0].thread, tc.thread)
			gt.Equal(t, slack.posts[0].text, dispatch.FailureMessage)
		})
	}
}

func TestReportFailureWithoutAgent(t *testing.T) {
	slack := &mockSlack{}
	d := newDispatcher(t, model.AgentFunc(func(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
		return nil, nil
	}), repository.NewMemory(), slack)

	d.ReportFailure(context.Background(), event(), genai.APIError{Code: 503, Status: "UNAVAILABLE"})
	gt.A(t, slack.posts).Length(1)
	gt.Equal(t, slack.posts[0].channel, "C1")
	gt.Equal(t, slack.posts[0].thread, "100.1")
	gt.Equal(t, slack.posts[0].text, dispatch.BusyMessage)
}

func TestDispatchRecordsQualityIssues(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	slack := &mockSlack{}
	genID := model.NewGenerationID()

	body := "*Variant 1 · Pain*\n*Headline:* Guaranteed results\n*Primary text:* " + strings.Repeat("Dinner is ready in ten minutes. ", 8)
	agent := model.AgentFunc(func(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
		return &model.AgentResult{
			Messages: []*model.Message{{ThreadTS: "100.1", Text: body}},
			SideEffects: []model.SideEffect{
				model.SaveGeneration{Record: &model.GenerationRecord{ID: genID, ChannelID: "C1", ThreadTS: "100.1", Telemetry: &model.Telemetry{}}},
			},
		}, nil
	})

	d := newDispatcher(t, agent, repo, slack)
	gt.NoError(t, d.Dispatch(ctx, event(), &model.Route{Agent: model.AgentConversation}))

	gen, err := repo.GetGenerationByThread(ctx, "C1", "100.1")
	gt.NoError(t, err)
	gt.A(t, gen.Telemetry.QualityIssues).Longer(0)
	gt.S(t, strings.Join(gen.Telemetry.QualityIssues, "\n")).Contains("guaranteed")
}

func TestRegistry(t *testing.T) {
	noop := model.AgentFunc(func(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
		return nil, nil
	})

	reg, err := dispatch.NewRegistry(
		dispatch.Entry{Name: model.AgentWelcome, Agent: noop},
		dispatch.Entry{Name: model.AgentCommand, Agent: noop},
	)
	gt.NoError(t, err)
	gt.Equal(t, reg.Names(), []model.AgentName{model.AgentCommand, model.AgentWelcome})
	_, ok := reg.Get(model.AgentOnboarding)
	gt.False(t, ok)

	_, err = dispatch.NewRegistry(
		dispatch.Entry{Name: model.AgentWelcome, Agent: noop},
		dispatch.Entry{Name: model.AgentWelcome, Agent: noop},
	)
	gt.Error(t, err)

	_, err = dispatch.NewRegistry(dispatch.Entry{Name: model.AgentWelcome})
	gt.Error(t, err)
}
