// Package command answers the fixed command words.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/usecase/render"
	"github.com/adforge/copybot/pkg/usecase/router"
)

const helpText = `*Here's what I can do*
• *Upload* a video, image or audio ad to this channel and I'll write 4 copy variants in your brand voice.
• *Reply in the variants thread* to refine: "Variant 2: make it punchier", "approve 3", "approve all", "export".
• *Paste a competitor's ad link* with a note like "analyze this competitor ad" for a breakdown.
• *Tell me about your brand* in a message and I'll remember it.

*Commands*
• ` + "`setup`" + ` start the brand voice interview
• ` + "`restart`" + ` redo the interview from scratch
• ` + "`profile`" + ` show the voice profile
• ` + "`insights`" + ` show what I've learned from your feedback
• ` + "`status`" + ` show channel stats`

const hintText = "Upload an ad creative and I'll write copy for it, or send `help` to see everything I can do."

type Agent struct{}

func New() *Agent {
	return &Agent{}
}

func (x *Agent) Handle(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
	var text string
	switch meta.Get(router.MetaCommand) {
	case router.CommandProfile:
		text = profile(bc)
	case router.CommandInsights:
		text = insights(bc)
	case router.CommandStatus:
		text = status(bc)
	case router.CommandHint:
		text = hintText
	default:
		text = helpText
	}

	return &model.AgentResult{
		Messages: []*model.Message{{ChannelID: ev.ChannelID, ThreadTS: ev.ParentTS, Text: text}},
	}, nil
}

func profile(bc *model.BrandContext) string {
	if bc.Profile == nil {
		return "This channel has no voice profile yet. Send `setup` to create one."
	}
	return render.Profile(bc.Profile)
}

func insights(bc *model.BrandContext) string {
	if len(bc.InsightRows) == 0 {
		return "I haven't learned any patterns yet. Approve, reject and revise a few generations and I'll start picking up your preferences."
	}

	var b strings.Builder
	b.WriteString("*What I've learned from your feedback*\n")
	for _, in := range bc.InsightRows {
		fmt.Fprintf(&b, "• %s _(%s, confidence %.0f%%, %d samples)_\n",
			in.Insight, strings.ReplaceAll(string(in.Category), "_", " "), in.Confidence*100, in.SampleSize)
	}
	return b.String()
}

func status(bc *model.BrandContext) string {
	var b strings.Builder
	b.WriteString("*Channel status*\n")
	if bc.Profile != nil {
		fmt.Fprintf(&b, "• Voice profile: %s (v%d)\n", bc.Profile.BrandName, bc.Profile.Version)
	} else {
		b.WriteString("• Voice profile: not set up (send `setup`)\n")
	}
	fmt.Fprintf(&b, "• Generations: %d (%s)\n", bc.Generations, bc.Maturity)
	fmt.Fprintf(&b, "• Approved exemplars: %d\n", len(bc.Exemplars))
	fmt.Fprintf(&b, "• Active insights: %d\n", len(bc.InsightRows))
	return b.String()
}
