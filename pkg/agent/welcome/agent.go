// Package welcome greets the channel when the bot or a new member joins.
package welcome

import (
	"context"
	"fmt"

	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/usecase/router"
)

const botIntro = `:wave: Hi everyone! I write ad copy in your brand's voice.
Upload a video, image or audio creative here and I'll come back with 4 variants you can refine right in the thread.`

const setupPrompt = `*First step:* send ` + "`setup`" + ` and I'll run a quick interview to learn your brand voice. Send ` + "`help`" + ` any time to see what I can do.`

type Agent struct{}

func New() *Agent {
	return &Agent{}
}

func (x *Agent) Handle(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
	if meta.Get(router.MetaSelf) == "true" {
		msgs := []*model.Message{{ChannelID: ev.ChannelID, Text: botIntro}}
		if bc.Profile == nil {
			msgs = append(msgs, &model.Message{ChannelID: ev.ChannelID, Text: setupPrompt, Pin: true})
		}
		return &model.AgentResult{Messages: msgs}, nil
	}

	text := fmt.Sprintf("Welcome <@%s>! Upload an ad creative here and I'll write copy for it. Send `help` to see more.", ev.ActorID)
	if bc.Profile == nil {
		text = fmt.Sprintf("Welcome <@%s>! This channel doesn't have a brand voice yet; send `setup` to create one.", ev.ActorID)
	}
	return &model.AgentResult{
		Messages: []*model.Message{{ChannelID: ev.ChannelID, Text: text}},
	}, nil
}
