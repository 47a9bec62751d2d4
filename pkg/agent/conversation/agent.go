// Package conversation handles thread replies on generations and free-form questions.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/agent/copygen"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/usecase/render"
	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const rationaleQuestion = "Nice! :tada: Saved as approved. Quick one so I can learn: *what made this work for you?*"

// maxReviseAttempts bounds the validate-and-retry cycle of one revision
const maxReviseAttempts = 2

type Agent struct {
	gemini adapter.Gemini
	now    func() time.Time
}

type Option func(*Agent)

func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

func New(gemini adapter.Gemini, opts ...Option) *Agent {
	a := &Agent{gemini: gemini, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (x *Agent) Handle(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
	gen := bc.Generation
	switch {
	case gen == nil:
		return x.chat(ctx, ev, bc)
	case gen.SourceType == model.SourceTypeCompetitor || len(gen.Variants) == 0:
		return x.discussAnalysis(ctx, ev, bc)
	default:
		return x.feedback(ctx, ev, bc)
	}
}

func (x *Agent) reply(ev *model.EventContext, text string) *model.Message {
	return &model.Message{ChannelID: ev.ChannelID, ThreadTS: ev.ParentTS, Text: text}
}

func (x *Agent) newFeedback(ev *model.EventContext, gen *model.GenerationRecord, action model.FeedbackAction) *model.CopyFeedbackRecord {
	return &model.CopyFeedbackRecord{
		ID:           model.NewFeedbackID(),
		GenerationID: gen.ID,
		ChannelID:    gen.ChannelID,
		ActorID:      ev.ActorID,
		Action:       action,
		Comment:      ev.Text,
		CreatedAt:    x.now(),
	}
}

// pendingRationale returns the approval still waiting for its "why" answer
func pendingRationale(records []*model.CopyFeedbackRecord) *model.CopyFeedbackRecord {
	if len(records) == 0 {
		return nil
	}
	last := records[len(records)-1]
	if last.Action == model.FeedbackApproved && last.Rationale == "" {
		return last
	}
	return nil
}

func (x *Agent) feedback(ctx context.Context, ev *model.EventContext, bc *model.BrandContext) (*model.AgentResult, error) {
	gen := bc.Generation
	current := model.ApplyRevisions(gen, bc.Feedback)
	intent := ParseIntent(ev.Text, len(current))

	logging.From(ctx).Debug("thread feedback", "intent", intent.Kind, "indexes", intent.Indexes, "generation_id", gen.ID)

	if approval := pendingRationale(bc.Feedback); approval != nil && len(intent.Indexes) == 0 &&
		intent.Kind != IntentExport && intent.Kind != IntentReject && !(intent.Kind == IntentRevise && intent.Explicit) {
		return x.captureRationale(ev, gen, approval), nil
	}

	switch intent.Kind {
	case IntentExport:
		return x.export(ev, gen, current), nil
	case IntentApprove:
		return x.approve(ev, bc, current, intent.Indexes), nil
	case IntentReject:
		return x.reject(ev, gen, current, intent.Indexes), nil
	case IntentQuestion:
		return x.clarify(ctx, ev, bc, current)
	default:
		return x.revise(ctx, ev, bc, current, intent.Indexes)
	}
}

func (x *Agent) captureRationale(ev *model.EventContext, gen *model.GenerationRecord, approval *model.CopyFeedbackRecord) *model.AgentResult {
	rec := x.newFeedback(ev, gen, model.FeedbackApproved)
	rec.VariantIndex = approval.VariantIndex
	rec.Rationale = strings.TrimSpace(ev.Text)
	rec.Comment = ""

	return &model.AgentResult{
		Messages:        []*model.Message{x.reply(ev, "Thanks, noted. I'll lean into that in future copy for this channel.")},
		SideEffects:     []model.SideEffect{model.SaveFeedback{Record: rec}},
		TriggerLearning: true,
	}
}

func (x *Agent) export(ev *model.EventContext, gen *model.GenerationRecord, current []model.Variant) *model.AgentResult {
	id := string(gen.ID)
	if len(id) > 8 {
		id = id[:8]
	}
	return &model.AgentResult{
		Messages: []*model.Message{{
			ChannelID: ev.ChannelID,
			ThreadTS:  ev.ParentTS,
			Text:      "Here's the current set as a file.",
			File: &model.FileUpload{
				Name:    fmt.Sprintf("copy-%s.txt", id),
				Title:   "Ad copy variants",
				Content: []byte(render.PlainText(current)),
			},
		}},
	}
}

func (x *Agent) approve(ev *model.EventContext, bc *model.BrandContext, current []model.Variant, indexes []int) *model.AgentResult {
	gen := bc.Generation
	targets := indexes
	if len(targets) == 0 {
		for i := range current {
			targets = append(targets, i+1)
		}
	}

	var (
		effects   []model.SideEffect
		exemplars []*model.Exemplar
	)
	if len(indexes) == 0 {
		effects = append(effects, model.SaveFeedback{Record: x.newFeedback(ev, gen, model.FeedbackApproved)})
	}
	for _, idx := range targets {
		v := current[idx-1]
		if len(indexes) > 0 {
			rec := x.newFeedback(ev, gen, model.FeedbackApproved)
			rec.VariantIndex = &idx
			rec.Before = &v
			effects = append(effects, model.SaveFeedback{Record: rec})
		}
		exemplars = append(exemplars, &model.Exemplar{
			ID:           model.NewExemplarID(),
			ChannelID:    gen.ChannelID,
			GenerationID: gen.ID,
			VariantIndex: idx,
			Variant:      v,
			SourceType:   gen.SourceType,
			ApprovedAt:   x.now(),
		})
	}
	effects = append(effects, model.SaveExemplar{Exemplars: exemplars})

	return &model.AgentResult{
		Messages:        []*model.Message{x.reply(ev, rationaleQuestion)},
		SideEffects:     effects,
		TriggerLearning: true,
	}
}

func (x *Agent) reject(ev *model.EventContext, gen *model.GenerationRecord, current []model.Variant, indexes []int) *model.AgentResult {
	var effects []model.SideEffect
	if len(indexes) == 0 {
		effects = append(effects, model.SaveFeedback{Record: x.newFeedback(ev, gen, model.FeedbackRejected)})
	}
	for _, idx := range indexes {
		v := current[idx-1]
		rec := x.newFeedback(ev, gen, model.FeedbackRejected)
		rec.VariantIndex = &idx
		rec.Before = &v
		effects = append(effects, model.SaveFeedback{Record: rec})
	}

	return &model.AgentResult{
		Messages: []*model.Message{x.reply(ev,
			"Got it, I'll steer away from that. Tell me what to change (e.g. \"Variant 1: more playful\") and I'll rewrite it.")},
		SideEffects:     effects,
		TriggerLearning: true,
	}
}

var variantSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"angle":        {Type: genai.TypeString},
		"headline":     {Type: genai.TypeString},
		"primary_text": {Type: genai.TypeString},
		"cta":          {Type: genai.TypeString},
	},
	Required: []string{"angle", "headline", "primary_text", "cta"},
}

func (x *Agent) revise(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, current []model.Variant, indexes []int) (*model.AgentResult, error) {
	gen := bc.Generation
	targets := indexes
	if len(targets) == 0 {
		for i := range current {
			targets = append(targets, i+1)
		}
	}

	revised := make([]model.Variant, len(current))
	copy(revised, current)

	var effects []model.SideEffect
	for _, idx := range targets {
		after, err := x.reviseOne(ctx, ev.Text, bc, revised, idx)
		if err != nil {
			return nil, err
		}
		before := revised[idx-1]
		revised[idx-1] = *after

		rec := x.newFeedback(ev, gen, model.FeedbackRevised)
		i := idx
		rec.VariantIndex = &i
		rec.Before = &before
		rec.After = after
		effects = append(effects, model.SaveFeedback{Record: rec})
	}

	header := fmt.Sprintf("Updated variant %d:", targets[0])
	if len(targets) > 1 {
		header = "Updated the set:"
	}

	return &model.AgentResult{
		Messages:        []*model.Message{x.reply(ev, render.Variants(header, revised))},
		SideEffects:     effects,
		TriggerLearning: true,
	}, nil
}

// reviseOne rewrites one variant and validates it like the generation loop does. After the
// last attempt the candidate is used even with issues; the quality gate reports them.
func (x *Agent) reviseOne(ctx context.Context, request string, bc *model.BrandContext, set []model.Variant, idx int) (*model.Variant, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrite variant %d of this ad copy set according to the request.\n\nRequest: %s\n\n", idx, request)
	for i, v := range set {
		marker := ""
		if i+1 == idx {
			marker = " (rewrite this one)"
		}
		fmt.Fprintf(&b, "Variant %d%s\nAngle: %s\nHeadline: %s\nPrimary text:\n%s\nCTA: %s\n\n", i+1, marker, v.Angle, v.Headline, v.PrimaryText, v.CTA)
	}
	fmt.Fprintf(&b, "Keep the headline at most %d characters, the primary text in at least %d paragraphs separated by a blank line, and the headline different from the other variants.",
		copygen.MaxHeadline, copygen.MinParagraphs)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(brandInstruction(bc), ""),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    variantSchema,
		ThinkingConfig:    adapter.NoThinking(),
	}
	contents := []*genai.Content{genai.NewContentFromText(b.String(), genai.RoleUser)}

	var last *model.Variant
	for attempt := 1; attempt <= maxReviseAttempts; attempt++ {
		resp, err := x.gemini.GenerateContent(ctx, contents, config)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to revise variant", goerr.V("index", idx))
		}
		raw := adapter.ResponseText(resp)

		var v model.Variant
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, goerr.Wrap(err, "failed to parse revised variant", goerr.V("response", raw))
		}
		last = &v

		issues := copygen.ValidateVariant(v, bc.Profile, set, idx)
		if len(issues) == 0 {
			return &v, nil
		}

		logging.From(ctx).Info("revised variant failed validation", "attempt", attempt, "issues", issues)
		contents = append(contents,
			genai.NewContentFromText(raw, genai.RoleModel),
			genai.NewContentFromText("Fix these issues and answer again:\n- "+strings.Join(issues, "\n- "), genai.RoleUser),
		)
	}
	return last, nil
}

func (x *Agent) clarify(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, current []model.Variant) (*model.AgentResult, error) {
	gen := bc.Generation
	background := fmt.Sprintf("The creative (%s):\n%s\n\nCurrent variants:\n%s", gen.SourceType, gen.SourceContent, render.PlainText(current))

	answer, err := x.ask(ctx, bc, background, ev.Text)
	if err != nil {
		return nil, err
	}

	return &model.AgentResult{
		Messages:    []*model.Message{x.reply(ev, answer)},
		SideEffects: []model.SideEffect{model.SaveFeedback{Record: x.newFeedback(ev, gen, model.FeedbackClarification)}},
	}, nil
}

func (x *Agent) discussAnalysis(ctx context.Context, ev *model.EventContext, bc *model.BrandContext) (*model.AgentResult, error) {
	gen := bc.Generation
	background := "Competitor creative:\n" + gen.SourceContent
	if gen.Analysis != nil {
		background += "\n\nYour earlier breakdown:\n" + render.Analysis(gen.Analysis)
	}

	answer, err := x.ask(ctx, bc, background, ev.Text)
	if err != nil {
		return nil, err
	}
	return &model.AgentResult{Messages: []*model.Message{x.reply(ev, answer)}}, nil
}

func (x *Agent) chat(ctx context.Context, ev *model.EventContext, bc *model.BrandContext) (*model.AgentResult, error) {
	answer, err := x.ask(ctx, bc, "", ev.Text)
	if err != nil {
		return nil, err
	}
	return &model.AgentResult{Messages: []*model.Message{x.reply(ev, answer)}}, nil
}

// ask answers a free-form message with the brand, thread history and extra context
func (x *Agent) ask(ctx context.Context, bc *model.BrandContext, extra, question string) (string, error) {
	var b strings.Builder
	if extra != "" {
		b.WriteString(extra + "\n\n")
	}
	if len(bc.History) > 0 {
		b.WriteString("Thread so far:\n")
		for _, h := range bc.History {
			who := "user"
			if h.IsBot {
				who = "you"
			}
			fmt.Fprintf(&b, "[%s] %s\n", who, h.Text)
		}
		b.WriteString("\n")
	}
	b.WriteString("Message: " + question)

	resp, err := x.gemini.GenerateContent(ctx,
		[]*genai.Content{genai.NewContentFromText(b.String(), genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(brandInstruction(bc)+
				"\nAnswer briefly in Slack mrkdwn (*bold*, _italic_, bullets). No code blocks, no JSON.", ""),
			ThinkingConfig: adapter.NoThinking(),
		})
	if err != nil {
		return "", goerr.Wrap(err, "failed to answer message")
	}

	answer := strings.TrimSpace(adapter.ResponseText(resp))
	if answer == "" {
		return "", goerr.New("empty answer")
	}
	return answer, nil
}

func brandInstruction(bc *model.BrandContext) string {
	var b strings.Builder
	b.WriteString("You are an ad copywriting assistant working inside a team's Slack channel.\n")
	if p := bc.Profile; p != nil {
		fmt.Fprintf(&b, "Brand: %s. %s\nTone: %s\nAudience: %s\n", p.BrandName, p.Summary, p.Tone, p.Audience)
		if len(p.BannedPhrases) > 0 {
			fmt.Fprintf(&b, "Never use: %s\n", strings.Join(p.BannedPhrases, ", "))
		}
		if len(p.MandatoryPhrases) > 0 {
			fmt.Fprintf(&b, "Ad copy must include: %s\n", strings.Join(p.MandatoryPhrases, ", "))
		}
	} else {
		b.WriteString("The brand has no voice profile yet; suggest sending `setup` when relevant.\n")
	}
	if bc.Notes != "" {
		b.WriteString("Brand notes:\n" + bc.Notes + "\n")
	}
	if bc.Insights != "" {
		b.WriteString("Learned preferences:\n" + bc.Insights + "\n")
	}
	return b.String()
}
