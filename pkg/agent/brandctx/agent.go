// Package brandctx stores facts the team shares about their brand.
package brandctx

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/adforge/copybot/pkg/model"
)

// copyFeedback marks notes that comment on produced copy rather than the brand itself.
// The learning agent reads them when structured feedback is scarce.
var copyFeedback = regexp.MustCompile(`(?i)\b(copy|headlines?|variants?|captions?|cta|ads? (were|was|are|is))\b`)

type Agent struct {
	now func() time.Time
}

func New() *Agent {
	return &Agent{now: time.Now}
}

func (x *Agent) Handle(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
	text := strings.TrimSpace(ev.Text)

	kind := model.NoteKindContext
	ack := ":memo: Noted. I'll use that in future copy for this channel."
	if copyFeedback.MatchString(text) {
		kind = model.NoteKindFeedback
		ack = ":memo: Thanks for the feedback, I'll factor it in."
	}
	if bc.Profile == nil {
		ack += " Send `setup` when you're ready to build the full voice profile."
	}

	note := &model.BrandNote{
		ID:        model.NewNoteID(),
		ChannelID: ev.ChannelID,
		Kind:      kind,
		Text:      text,
		Author:    ev.ActorID,
		CreatedAt: x.now(),
	}

	return &model.AgentResult{
		Messages:        []*model.Message{{ChannelID: ev.ChannelID, ThreadTS: ev.ParentTS, Text: ack}},
		SideEffects:     []model.SideEffect{model.AddNote{Note: note}},
		TriggerLearning: kind == model.NoteKindFeedback,
	}, nil
}
