package brand_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/repository"
	"github.com/adforge/copybot/pkg/usecase/brand"
	"github.com/m-mizutani/gt"
)

type mockSlack struct {
	adapter.Slack
	historyFunc func(ctx context.Context, channelID, threadTS string, limit int) ([]model.HistoryMessage, error)
}

func (m *mockSlack) ThreadHistory(ctx context.Context, channelID, threadTS string, limit int) ([]model.HistoryMessage, error) {
	return m.historyFunc(ctx, channelID, threadTS, limit)
}

func seed(t *testing.T, repo *repository.Memory) *model.GenerationRecord {
	ctx := context.Background()
	gt.NoError(t, repo.PutProfile(ctx, &model.VoiceProfile{ChannelID: "C1", BrandName: "Acme", Tone: "playful"}))
	gt.NoError(t, repo.PutNote(ctx, &model.BrandNote{ID: model.NewNoteID(), ChannelID: "C1", Kind: model.NoteKindContext, Text: "We ship free", CreatedAt: time.Unix(10, 0)}))
	gt.NoError(t, repo.PutNote(ctx, &model.BrandNote{ID: model.NewNoteID(), ChannelID: "C1", Kind: model.NoteKindContext, Text: "No discounts", CreatedAt: time.Unix(20, 0)}))
	gt.NoError(t, repo.PutInsight(ctx, &model.LearningInsight{ID: model.NewInsightID(), ChannelID: "C1", Category: model.InsightStylePattern, Insight: "short sentences", Confidence: 0.6, Version: 1, Active: true}))

	gen := &model.GenerationRecord{
		ID:         model.NewGenerationID(),
		ChannelID:  "C1",
		ThreadTS:   "50.5",
		SourceType: model.SourceTypeImage,
		Variants:   []model.Variant{{Headline: "a"}, {Headline: "b"}, {Headline: "c"}, {Headline: "d"}},
		CreatedAt:  time.Unix(30, 0),
	}
	gt.NoError(t, repo.PutGeneration(ctx, gen))
	return gen
}

func TestAssembleTopLevel(t *testing.T) {
	repo := repository.NewMemory()
	seed(t, repo)

	a := brand.New(repo, &mockSlack{
		historyFunc: func(ctx context.Context, channelID, threadTS string, limit int) ([]model.HistoryMessage, error) {
			t.Fatal("history must not be loaded for top-level messages")
			return nil, nil
		},
	})

	bc, err := a.Assemble(context.Background(), &model.EventContext{ChannelID: "C1", ActorID: "U1", ParentTS: "1.1"})
	gt.NoError(t, err)
	gt.NotNil(t, bc.Profile)
	gt.Equal(t, bc.Profile.BrandName, "Acme")
	gt.Equal(t, bc.Notes, "- We ship free\n- No discounts")
	gt.S(t, bc.Insights).Contains("short sentences")
	gt.Equal(t, bc.Generations, 1)
	gt.Equal(t, bc.Maturity, model.MaturityOnboarding)
	gt.Nil(t, bc.Generation)
}

func TestAssembleThread(t *testing.T) {
	repo := repository.NewMemory()
	gen := seed(t, repo)

	a := brand.New(repo, &mockSlack{
		historyFunc: func(ctx context.Context, channelID, threadTS string, limit int) ([]model.HistoryMessage, error) {
			gt.Equal(t, threadTS, "50.5")
			gt.Equal(t, limit, brand.HistoryLimit)
			return []model.HistoryMessage{{UserID: "UBOT", Text: "variants", IsBot: true}}, nil
		},
	})

	bc, err := a.Assemble(context.Background(), &model.EventContext{ChannelID: "C1", ActorID: "U1", ThreadTS: "50.5", ParentTS: "50.5", IsThread: true})
	gt.NoError(t, err)
	gt.NotNil(t, bc.Generation)
	gt.Equal(t, bc.Generation.ID, gen.ID)
	gt.A(t, bc.History).Length(1)
}

func TestAssembleToleratesHistoryFailure(t *testing.T) {
	repo := repository.NewMemory()
	seed(t, repo)

	a := brand.New(repo, &mockSlack{
		historyFunc: func(ctx context.Context, channelID, threadTS string, limit int) ([]model.HistoryMessage, error) {
			return nil, errors.New("missing_scope")
		},
	})

	bc, err := a.Assemble(context.Background(), &model.EventContext{ChannelID: "C1", ThreadTS: "50.5", ParentTS: "50.5", IsThread: true})
	gt.NoError(t, err)
	gt.Nil(t, bc.History)
	gt.NotNil(t, bc.Generation)
}

func TestAssembleNoProfile(t *testing.T) {
	a := brand.New(repository.NewMemory(), nil)
	bc, err := a.Assemble(context.Background(), &model.EventContext{ChannelID: "C9", ParentTS: "1.1"})
	gt.NoError(t, err)
	gt.Nil(t, bc.Profile)
	gt.Equal(t, bc.Maturity, model.MaturityNew)
}
