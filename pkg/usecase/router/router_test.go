package router_test

import (
	"context"
	"errors"
	"testing"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/repository"
	"github.com/adforge/copybot/pkg/usecase/router"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

type mockClassifier struct {
	classifyFunc func(ctx context.Context, text string) (model.AgentName, error)
}

func (m *mockClassifier) Classify(ctx context.Context, text string) (model.AgentName, error) {
	return m.classifyFunc(ctx, text)
}

// forbidClassifier fails the test when the LLM tier is reached
func forbidClassifier(t *testing.T) router.Classifier {
	return &mockClassifier{
		classifyFunc: func(ctx context.Context, text string) (model.AgentName, error) {
			t.Fatalf("classifier must not be called for %q", text)
			return "", nil
		},
	}
}

func message(text string) *model.EventContext {
	return &model.EventContext{
		Kind:      model.EventKindMessage,
		BotUserID: "UBOT",
		ActorID:   "U1",
		ChannelID: "C1",
		Text:      text,
		MessageTS: "100.1",
		ParentTS:  "100.1",
	}
}

func TestRouteCommandsNeverCallLLM(t *testing.T) {
	r := router.New(repository.NewMemory(), forbidClassifier(t))
	ctx := context.Background()

	testCases := []struct {
		text  string
		agent model.AgentName
		cmd   string
	}{
		{"setup", model.AgentOnboarding, "setup"},
		{"SETUP", model.AgentOnboarding, "setup"},
		{"/restart", model.AgentOnboarding, "restart"},
		{"<@UBOT> help", model.AgentCommand, "help"},
		{"profile", model.AgentCommand, "profile"},
		{"insights!", model.AgentCommand, "insights"},
		{"status", model.AgentCommand, "status"},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			route, err := r.Route(ctx, message(tc.text))
			gt.NoError(t, err)
			gt.Equal(t, route.Agent, tc.agent)
			gt.Equal(t, route.Meta.Get(router.MetaCommand), tc.cmd)
			gt.False(t, route.ByLLM)
		})
	}
}

func TestRouteCompetitorSignal(t *testing.T) {
	r := router.New(repository.NewMemory(), forbidClassifier(t))

	route, err := r.Route(context.Background(), message("Can you analyze this competitor ad <https://example.com/ad/1|example.com>"))
	gt.NoError(t, err)
	gt.Equal(t, route.Agent, model.AgentCompetitorAnalysis)
	gt.Equal(t, route.Meta.Get(router.MetaURL), "https://example.com/ad/1")
}

func TestRouteShortMessageSkipsLLM(t *testing.T) {
	r := router.New(repository.NewMemory(), forbidClassifier(t))

	route, err := r.Route(context.Background(), message("thanks!!"))
	gt.NoError(t, err)
	gt.Equal(t, route.Agent, model.AgentCommand)
	gt.Equal(t, route.Meta.Get(router.MetaCommand), router.CommandHint)
}

func TestRouteLLMFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("uses classifier label", func(t *testing.T) {
		called := 0
		r := router.New(repository.NewMemory(), &mockClassifier{
			classifyFunc: func(ctx context.Context, text string) (model.AgentName, error) {
				called++
				return model.AgentConversation, nil
			},
		})
		route, err := r.Route(ctx, message("What headline length works best on Instagram?"))
		gt.NoError(t, err)
		gt.Equal(t, called, 1)
		gt.Equal(t, route.Agent, model.AgentConversation)
		gt.True(t, route.ByLLM)
	})

	t.Run("defaults to brand context on error", func(t *testing.T) {
		r := router.New(repository.NewMemory(), &mockClassifier{
			classifyFunc: func(ctx context.Context, text string) (model.AgentName, error) {
				return "", errors.New("overloaded")
			},
		})
		route, err := r.Route(ctx, message("Our customers are mostly new parents in their 30s"))
		gt.NoError(t, err)
		gt.Equal(t, route.Agent, model.AgentBrandContext)
	})
}

func TestRouteMembershipAndUpload(t *testing.T) {
	r := router.New(repository.NewMemory(), forbidClassifier(t))
	ctx := context.Background()

	route, err := r.Route(ctx, &model.EventContext{Kind: model.EventKindMemberJoined, BotUserID: "UBOT", ActorID: "UBOT", ChannelID: "C1"})
	gt.NoError(t, err)
	gt.Equal(t, route.Agent, model.AgentWelcome)
	gt.Equal(t, route.Meta.Get(router.MetaSelf), "true")

	route, err = r.Route(ctx, &model.EventContext{Kind: model.EventKindMemberJoined, BotUserID: "UBOT", ActorID: "U2", ChannelID: "C1"})
	gt.NoError(t, err)
	gt.Equal(t, route.Meta.Get(router.MetaSelf), "false")

	route, err = r.Route(ctx, &model.EventContext{Kind: model.EventKindFileUpload, ActorID: "U1", ChannelID: "C1", File: &model.FileDescriptor{ID: "F1"}})
	gt.NoError(t, err)
	gt.Equal(t, route.Agent, model.AgentCopyGeneration)
}

func TestRouteDM(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	r := router.New(repo, forbidClassifier(t))

	dm := message("hello there, what can you do")
	dm.IsDM = true

	route, err := r.Route(ctx, dm)
	gt.NoError(t, err)
	gt.Equal(t, route.Agent, model.AgentCommand)
	gt.Equal(t, route.Meta.Get(router.MetaCommand), router.CommandHelp)

	gt.NoError(t, repo.PutOnboarding(ctx, &model.CustomerOnboardingState{ActorID: "U1", Step: 2, ActiveChannelID: "D1", ActiveThreadTS: "1.1"}))
	route, err = r.Route(ctx, dm)
	gt.NoError(t, err)
	gt.Equal(t, route.Agent, model.AgentOnboarding)

	gt.NoError(t, repo.PutOnboarding(ctx, &model.CustomerOnboardingState{ActorID: "U1", Step: 7, Complete: true}))
	route, err = r.Route(ctx, dm)
	gt.NoError(t, err)
	gt.Equal(t, route.Agent, model.AgentCommand)
}

func TestRouteThread(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	r := router.New(repo, forbidClassifier(t))

	reply := message("Variant 2: make it punchier")
	reply.IsThread = true
	reply.ThreadTS = "50.5"
	reply.ParentTS = "50.5"
	reply.MessageTS = "60.1"

	route, err := r.Route(ctx, reply)
	gt.NoError(t, err)
	gt.Nil(t, route)

	genID := model.NewGenerationID()
	gt.NoError(t, repo.PutGeneration(ctx, &model.GenerationRecord{
		ID: genID, ChannelID: "C1", ThreadTS: "50.5", SourceType: model.SourceTypeVideo,
	}))
	route, err = r.Route(ctx, reply)
	gt.NoError(t, err)
	gt.Equal(t, route.Agent, model.AgentConversation)
	gt.Equal(t, route.Meta.Get(router.MetaSourceType), "video")
	gt.Equal(t, route.Meta.Get(router.MetaGenerationID), string(genID))

	// an onboarding thread takes precedence
	gt.NoError(t, repo.PutOnboarding(ctx, &model.CustomerOnboardingState{ActorID: "U1", Step: 1, ActiveChannelID: "C1", ActiveThreadTS: "50.5"}))
	route, err = r.Route(ctx, reply)
	gt.NoError(t, err)
	gt.Equal(t, route.Agent, model.AgentOnboarding)
}

type mockGemini struct {
	adapter.Gemini
	generateFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.generateFunc(ctx, contents, config)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func TestClassifier(t *testing.T) {
	var gotConfig *genai.GenerateContentConfig
	c := router.NewClassifier(&mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			gotConfig = config
			return textResponse("competitor_analysis\n"), nil
		},
	})

	agent, err := c.Classify(context.Background(), "what do you make of Nike's new campaign")
	gt.NoError(t, err)
	gt.Equal(t, agent, model.AgentCompetitorAnalysis)
	gt.Equal(t, gotConfig.MaxOutputTokens, int32(20))
}

func TestParseLabel(t *testing.T) {
	testCases := []struct {
		answer string
		want   model.AgentName
		ok     bool
	}{
		{"brand_context", model.AgentBrandContext, true},
		{"`command`", model.AgentCommand, true},
		{"Label: conversation.", model.AgentConversation, true},
		{"brand_context or conversation", "", false},
		{"unknown", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.answer, func(t *testing.T) {
			got, err := router.ParseLabel(tc.answer)
			if !tc.ok {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.Equal(t, got, tc.want)
		})
	}
}
