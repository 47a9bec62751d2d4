package competitor

import (
	"context"
	"fmt"
	"time"

	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/usecase/render"
	"github.com/adforge/copybot/pkg/usecase/router"
	"github.com/adforge/copybot/pkg/utils/logging"
)

// Agent handles competitor_analysis routes for linked ads
type Agent struct {
	analyzer *Analyzer
	now      func() time.Time
}

func New(analyzer *Analyzer) *Agent {
	return &Agent{analyzer: analyzer, now: time.Now}
}

func (x *Agent) Handle(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
	url := meta.Get(router.MetaURL)
	if url == "" {
		url = router.ExtractURL(ev.Text)
	}

	creative := ev.Text
	if url != "" {
		desc, err := x.analyzer.DescribeURL(ctx, url, ev.Text)
		if err != nil {
			logging.From(ctx).Warn("falling back to message text for competitor analysis", logging.ErrAttr(err), "url", url)
		} else if desc != "" {
			creative = fmt.Sprintf("Link: %s\nRequest: %s\n\n%s", url, ev.Text, desc)
		}
	}

	analysis, err := x.analyzer.Analyze(ctx, creative, bc.Profile)
	if err != nil {
		return nil, err
	}

	rec := NewRecord(ev, bc, creative, analysis, x.now())
	rec.SourceURL = url
	rec.ThreadTS = ev.ParentTS

	return &model.AgentResult{
		Messages: []*model.Message{{
			ChannelID: ev.ChannelID,
			ThreadTS:  ev.ParentTS,
			Text:      render.Analysis(analysis),
		}},
		SideEffects: []model.SideEffect{model.SaveGeneration{Record: rec}},
	}, nil
}

// NewRecord builds the generation record of a competitor analysis
func NewRecord(ev *model.EventContext, bc *model.BrandContext, creative string, analysis *model.CompetitorAnalysis, now time.Time) *model.GenerationRecord {
	rec := &model.GenerationRecord{
		ID:            model.NewGenerationID(),
		ChannelID:     ev.ChannelID,
		ActorID:       ev.ActorID,
		Source:        ev.File,
		SourceContent: creative,
		SourceType:    model.SourceTypeCompetitor,
		Analysis:      analysis,
		CreatedAt:     now,
	}
	if bc.Profile != nil {
		rec.ProfileVersion = bc.Profile.Version
	}
	return rec
}
