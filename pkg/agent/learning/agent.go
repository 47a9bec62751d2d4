// Package learning distills feedback into per-channel insights. It runs in the background
// and never posts to chat.
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/repository"
	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const (
	MinFeedback    = 3
	MinGenerations = 3
	MinSupport     = 2

	generationWindow  = 20
	feedbackWindow    = 50
	defaultConfidence = 0.5
)

const (
	ActionReinforce = "reinforce"
	ActionSupersede = "supersede"
	ActionNew       = "new"
)

// Action is one merge instruction returned by the model
type Action struct {
	Action     string   `json:"action"`
	InsightID  string   `json:"insight_id,omitempty"`
	Category   string   `json:"category,omitempty"`
	Insight    string   `json:"insight,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Evidence   []string `json:"evidence"`
}

type actionList struct {
	Actions []Action `json:"actions"`
}

// Outcome summarizes one run
type Outcome struct {
	ChannelID  string
	Skipped    bool
	Reason     string
	Reinforced int
	Superseded int
	Created    int
	Rejected   int
}

type Agent struct {
	repo   repository.Repository
	gemini adapter.Gemini
	now    func() time.Time
}

type Option func(*Agent)

func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

func New(repo repository.Repository, gemini adapter.Gemini, opts ...Option) *Agent {
	a := &Agent{repo: repo, gemini: gemini, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// evidence is one feedback item shown to the model under a stable label
type evidence struct {
	label string
	text  string
}

func (x *Agent) gather(ctx context.Context, channelID string) ([]evidence, error) {
	records, err := x.repo.ListFeedbackByChannel(ctx, channelID, feedbackWindow)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load feedback")
	}

	var items []evidence
	for _, r := range records {
		if r.Action == model.FeedbackClarification {
			continue
		}
		items = append(items, evidence{text: describeFeedback(r)})
	}

	if len(items) < MinFeedback {
		notes, err := x.repo.ListNotes(ctx, channelID, model.NoteKindFeedback, feedbackWindow)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load feedback notes")
		}
		for _, n := range notes {
			items = append(items, evidence{text: "free-text feedback: " + n.Text})
		}
	}

	for i := range items {
		items[i].label = fmt.Sprintf("E%d", i+1)
	}
	return items, nil
}

func describeFeedback(r *model.CopyFeedbackRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", r.Action)
	if r.VariantIndex != nil {
		fmt.Fprintf(&b, " variant %d", *r.VariantIndex)
	} else {
		b.WriteString(" whole set")
	}
	if r.Before != nil {
		fmt.Fprintf(&b, "; before: [%s] %q", r.Before.Angle, r.Before.Headline)
	}
	if r.After != nil {
		fmt.Fprintf(&b, "; after: [%s] %q / %q", r.After.Angle, r.After.Headline, r.After.PrimaryText)
	}
	if r.Comment != "" {
		fmt.Fprintf(&b, "; user said: %q", r.Comment)
	}
	if r.Rationale != "" {
		fmt.Fprintf(&b, "; why it worked: %q", r.Rationale)
	}
	return b.String()
}

// Run reconciles recent evidence of a channel with its active insights
func (x *Agent) Run(ctx context.Context, channelID string) (*Outcome, error) {
	logger := logging.From(ctx).With("channel", channelID)
	out := &Outcome{ChannelID: channelID}

	items, err := x.gather(ctx, channelID)
	if err != nil {
		return nil, err
	}
	gens, err := x.repo.ListGenerations(ctx, channelID, generationWindow)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load generations")
	}

	if len(items) < MinFeedback || len(gens) < MinGenerations {
		out.Skipped = true
		out.Reason = fmt.Sprintf("not enough evidence: %d feedback items, %d generations", len(items), len(gens))
		logger.Debug("learning skipped", "reason", out.Reason)
		return out, nil
	}

	active, err := x.repo.ListActiveInsights(ctx, channelID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load insights")
	}

	actions, err := x.propose(ctx, gens, items, active)
	if err != nil {
		return nil, err
	}

	byID := make(map[model.InsightID]*model.LearningInsight, len(active))
	for _, in := range active {
		byID[in.ID] = in
	}
	labels := make(map[string]bool, len(items))
	for _, it := range items {
		labels[it.label] = true
	}

	for i, a := range actions {
		if err := x.apply(ctx, channelID, a, byID, labels, out); err != nil {
			out.Rejected++
			logger.Warn("learning action skipped", logging.ErrAttr(err), "index", i, "action", a.Action)
		}
	}

	logger.Info("learning finished",
		"reinforced", out.Reinforced, "superseded", out.Superseded, "created", out.Created, "rejected", out.Rejected)
	return out, nil
}

func support(a Action, labels map[string]bool) int {
	seen := map[string]bool{}
	for _, e := range a.Evidence {
		e = strings.ToUpper(strings.TrimSpace(e))
		if labels[e] {
			seen[e] = true
		}
	}
	return len(seen)
}

// apply executes one action. byID is updated so that a later action in the same batch
// cannot refer to an insight that an earlier one superseded.
func (x *Agent) apply(ctx context.Context, channelID string, a Action, byID map[model.InsightID]*model.LearningInsight, labels map[string]bool, out *Outcome) error {
	n := support(a, labels)
	if n < MinSupport {
		return goerr.New("not enough supporting examples", goerr.V("support", n), goerr.V("required", MinSupport))
	}
	now := x.now()

	switch a.Action {
	case ActionReinforce:
		id := model.InsightID(a.InsightID)
		if _, ok := byID[id]; !ok {
			return goerr.New("reinforce refers to unknown or inactive insight", goerr.V("insight_id", a.InsightID))
		}
		updated, err := x.repo.ReinforceInsight(ctx, id, now)
		if err != nil {
			return err
		}
		byID[id] = updated
		out.Reinforced++
		return nil

	case ActionSupersede:
		oldID := model.InsightID(a.InsightID)
		old, ok := byID[oldID]
		if !ok {
			return goerr.New("supersede refers to unknown or inactive insight", goerr.V("insight_id", a.InsightID))
		}
		category := old.Category
		if a.Category != "" {
			category = model.InsightCategory(a.Category)
		}
		next, err := x.newInsight(channelID, category, a, n, now)
		if err != nil {
			return err
		}
		if err := x.repo.SupersedeInsight(ctx, oldID, next); err != nil {
			return err
		}
		delete(byID, oldID)
		byID[next.ID] = next
		out.Superseded++
		return nil

	case ActionNew:
		next, err := x.newInsight(channelID, model.InsightCategory(a.Category), a, n, now)
		if err != nil {
			return err
		}
		if err := x.repo.PutInsight(ctx, next); err != nil {
			return err
		}
		byID[next.ID] = next
		out.Created++
		return nil

	default:
		return goerr.New("unknown learning action", goerr.V("action", a.Action))
	}
}

// newInsight builds a v1 row. sampleSize is the number of distinct examples backing it.
func (x *Agent) newInsight(channelID string, category model.InsightCategory, a Action, sampleSize int, now time.Time) (*model.LearningInsight, error) {
	if err := category.Validate(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(a.Insight)
	if text == "" {
		return nil, goerr.New("insight text is empty")
	}
	confidence := a.Confidence
	if confidence <= 0 {
		confidence = defaultConfidence
	}
	return &model.LearningInsight{
		ID:               model.NewInsightID(),
		ChannelID:        channelID,
		Category:         category,
		Insight:          text,
		Confidence:       model.ClampConfidence(confidence),
		SampleSize:       sampleSize,
		Version:          1,
		Active:           true,
		CreatedAt:        now,
		LastReinforcedAt: now,
	}, nil
}

var actionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"actions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"action":     {Type: genai.TypeString, Enum: []string{ActionReinforce, ActionSupersede, ActionNew}},
					"insight_id": {Type: genai.TypeString, Description: "Existing insight id, for reinforce and supersede"},
					"category": {Type: genai.TypeString, Enum: []string{
						string(model.InsightAnglePreference), string(model.InsightStylePattern),
						string(model.InsightToneDrift), string(model.InsightFormat),
					}},
					"insight":    {Type: genai.TypeString, Description: "The claim, for supersede and new"},
					"confidence": {Type: genai.TypeNumber},
					"evidence":   {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Evidence labels such as E2"},
				},
				Required: []string{"action", "evidence"},
			},
		},
	},
	Required: []string{"actions"},
}

const learningPrompt = `You maintain a list of learned preferences for one brand's ad copy. Compare the evidence with the existing insights and answer with a list of actions:

- reinforce(insight_id): the evidence confirms an existing insight.
- supersede(insight_id, insight): the evidence contradicts or refines an existing insight; write the corrected claim.
- new(category, insight): a pattern not covered by any existing insight.

Every action must cite at least 2 evidence labels. Do not repeat an existing insight as new. If nothing is well supported, return an empty list; that is the expected answer for thin evidence.`

func (x *Agent) propose(ctx context.Context, gens []*model.GenerationRecord, items []evidence, active []*model.LearningInsight) ([]Action, error) {
	var b strings.Builder
	b.WriteString("# Recent generations\n")
	for _, g := range gens {
		fmt.Fprintf(&b, "- %s (%s):", g.CreatedAt.Format("2006-01-02"), g.SourceType)
		for i, v := range g.Variants {
			fmt.Fprintf(&b, " [%d %s] %q", i+1, v.Angle, v.Headline)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n# Evidence\n")
	for _, it := range items {
		fmt.Fprintf(&b, "%s: %s\n", it.label, it.text)
	}

	b.WriteString("\n# Existing insights\n")
	if len(active) == 0 {
		b.WriteString("(none)\n")
	}
	for _, in := range active {
		fmt.Fprintf(&b, "- id=%s category=%s confidence=%.2f samples=%d: %s\n", in.ID, in.Category, in.Confidence, in.SampleSize, in.Insight)
	}

	resp, err := x.gemini.GenerateContent(ctx,
		[]*genai.Content{genai.NewContentFromText(b.String(), genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(learningPrompt, ""),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    actionSchema,
			Temperature:       adapter.Ptr[float32](0.1),
			ThinkingConfig:    adapter.NoThinking(),
		})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to propose learning actions")
	}

	raw := adapter.ResponseText(resp)
	var list actionList
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, goerr.Wrap(err, "failed to parse learning actions", goerr.V("response", raw))
	}
	return list.Actions, nil
}
