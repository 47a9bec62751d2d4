// Package onboarding runs the brand-voice interview and turns the answers into a voice
// profile.
package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/usecase/render"
	"github.com/adforge/copybot/pkg/usecase/router"
	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

type Agent struct {
	gemini adapter.Gemini
	script *Script
	now    func() time.Time
}

type Option func(*Agent)

func WithScript(script *Script) Option {
	return func(a *Agent) {
		a.script = script
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

func New(gemini adapter.Gemini, opts ...Option) *Agent {
	a := &Agent{
		gemini: gemini,
		script: DefaultScript(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// extractionStep is the step at which every answer is in and the profile is pending
func (x *Agent) extractionStep() int {
	return len(x.script.Questions) + 1
}

func (x *Agent) question(step int) string {
	return fmt.Sprintf("*Question %d of %d*\n%s", step, len(x.script.Questions), x.script.Questions[step-1].Text)
}

func reply(ev *model.EventContext, threadTS, text string) *model.Message {
	return &model.Message{ChannelID: ev.ChannelID, ThreadTS: threadTS, Text: text}
}

func (x *Agent) Handle(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
	switch meta.Get(router.MetaCommand) {
	case router.CommandRestart:
		return x.start(ev), nil

	case router.CommandSetup:
		if bc.Profile != nil && !bc.Onboarding.InProgress() {
			return &model.AgentResult{
				Messages: []*model.Message{reply(ev, ev.ParentTS,
					render.Profile(bc.Profile)+"\nThis channel already has a voice profile. Send `restart` to redo the interview.")},
			}, nil
		}
		return x.start(ev), nil
	}

	state := bc.Onboarding.Copy()
	if !state.InProgress() {
		return &model.AgentResult{
			Messages: []*model.Message{reply(ev, ev.ParentTS, "Send `setup` to start the brand voice interview.")},
		}, nil
	}
	return x.answer(ctx, ev, bc, state)
}

// start resets the interview and asks the first question under the triggering message
func (x *Agent) start(ev *model.EventContext) *model.AgentResult {
	now := x.now()
	state := &model.CustomerOnboardingState{
		ActorID:         ev.ActorID,
		Step:            1,
		Answers:         map[string]string{},
		ActiveChannelID: ev.ChannelID,
		ActiveThreadTS:  ev.ParentTS,
		StartedAt:       now,
		UpdatedAt:       now,
	}

	return &model.AgentResult{
		Messages: []*model.Message{
			reply(ev, ev.ParentTS, strings.TrimSpace(x.script.Intro)+"\n\n"+x.question(1)),
		},
		SideEffects: []model.SideEffect{model.UpdateCustomerState{State: state}},
	}
}

func (x *Agent) answer(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, state *model.CustomerOnboardingState) (*model.AgentResult, error) {
	thread := state.ActiveThreadTS
	if state.ActiveChannelID != ev.ChannelID {
		// answered from a DM or another channel; keep the conversation where the user is
		thread = ev.ParentTS
	}

	if state.Step < x.extractionStep() {
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return &model.AgentResult{
				Messages: []*model.Message{reply(ev, thread, x.question(state.Step))},
			}, nil
		}

		state.Answers[strconv.Itoa(state.Step)] = text
		state.Step++
		state.UpdatedAt = x.now()

		if state.Step < x.extractionStep() {
			return &model.AgentResult{
				Messages:    []*model.Message{reply(ev, thread, x.question(state.Step))},
				SideEffects: []model.SideEffect{model.UpdateCustomerState{State: state}},
			}, nil
		}
	}

	profile, err := x.extract(ctx, state)
	if err != nil {
		logging.From(ctx).Warn("profile extraction failed", logging.ErrAttr(err), "actor", state.ActorID)
		state.UpdatedAt = x.now()
		return &model.AgentResult{
			Messages: []*model.Message{reply(ev, thread,
				"I have all your answers but couldn't put the profile together just now. Reply here with anything and I'll try again.")},
			SideEffects: []model.SideEffect{model.UpdateCustomerState{State: state}},
		}, nil
	}

	profile.ChannelID = state.ActiveChannelID
	profile.CreatedBy = state.ActorID
	profile.UpdatedAt = x.now()
	profile.Version = 1
	if bc.Profile != nil && bc.ChannelID == profile.ChannelID {
		profile.Version = bc.Profile.Version + 1
	}

	state.Complete = true
	state.UpdatedAt = x.now()

	return &model.AgentResult{
		Messages: []*model.Message{
			reply(ev, thread, strings.TrimSpace(x.script.Outro)),
			{
				ChannelID: state.ActiveChannelID,
				Text:      render.Profile(profile) + "\nUpload a video, image or audio ad to this channel and I'll write copy for it.",
				Pin:       true,
			},
		},
		SideEffects: []model.SideEffect{
			model.UpdateProfile{Profile: profile},
			model.UpdateCustomerState{State: state},
		},
	}, nil
}

var profileSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"brand_name":        {Type: genai.TypeString},
		"summary":           {Type: genai.TypeString, Description: "Two sentences on what the brand sells and stands for"},
		"tone":              {Type: genai.TypeString},
		"audience":          {Type: genai.TypeString},
		"angles":            {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"banned_phrases":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"mandatory_phrases": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"brand_name", "summary", "tone", "audience", "angles", "banned_phrases", "mandatory_phrases"},
}

func (x *Agent) extract(ctx context.Context, state *model.CustomerOnboardingState) (*model.VoiceProfile, error) {
	var b strings.Builder
	for i, q := range x.script.Questions {
		fmt.Fprintf(&b, "Q%d (%s): %s\nA: %s\n\n", i+1, q.Key, q.Text, state.Answers[strconv.Itoa(i+1)])
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(
			"Turn this brand interview into a voice profile. Keep the customer's own words where possible. "+
				"Phrase lists contain exact phrases only; answers like \"none\" mean an empty list.", ""),
		ResponseMIMEType: "application/json",
		ResponseSchema:   profileSchema,
		Temperature:      adapter.Ptr[float32](0.2),
		ThinkingConfig:   adapter.NoThinking(),
	}

	resp, err := x.gemini.GenerateContent(ctx, []*genai.Content{genai.NewContentFromText(b.String(), genai.RoleUser)}, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to extract voice profile")
	}

	raw := adapter.ResponseText(resp)
	var profile model.VoiceProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, goerr.Wrap(err, "failed to parse voice profile", goerr.V("response", raw))
	}
	if strings.TrimSpace(profile.BrandName) == "" {
		return nil, goerr.New("extracted profile has no brand name", goerr.V("response", raw))
	}
	profile.BannedPhrases = cleanPhrases(profile.BannedPhrases)
	profile.MandatoryPhrases = cleanPhrases(profile.MandatoryPhrases)
	return &profile, nil
}

func cleanPhrases(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" || strings.EqualFold(p, "none") {
			continue
		}
		out = append(out, p)
	}
	return out
}
