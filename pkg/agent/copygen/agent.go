// Package copygen writes brand-voiced ad copy for uploaded creative.
package copygen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/agent/competitor"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/usecase/render"
	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// MaxMediaBytes bounds inline media sent to the model
const MaxMediaBytes = 20 << 20

const (
	statusReceived   = ":eyes: Got your creative, taking a look…"
	statusDescribing = ":movie_camera: Watching and transcribing…"
	statusWriting    = ":pencil2: Writing %d variants in your brand voice…"
	statusAnalyzing  = ":mag: This looks like a competitor's ad, breaking it down…"
	statusDone       = ":white_check_mark: Done. Replies in the thread go straight to me."
	statusFailed     = ":warning: I couldn't finish this one."

	noProfileMessage = "I need your brand's voice profile before I can write copy. Send `setup` and I'll ask a few quick questions."
)

// Agent handles copy_generation routes for file uploads
type Agent struct {
	slack    adapter.Slack
	media    adapter.MediaAnalyzer
	gemini   adapter.Gemini
	storage  adapter.Storage
	loop     *Loop
	analyzer *competitor.Analyzer
	now      func() time.Time
}

type Option func(*Agent)

// WithStorage archives downloaded creative
func WithStorage(storage adapter.Storage) Option {
	return func(a *Agent) {
		a.storage = storage
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

func New(slack adapter.Slack, media adapter.MediaAnalyzer, gemini adapter.Gemini, loop *Loop, analyzer *competitor.Analyzer, opts ...Option) *Agent {
	a := &Agent{
		slack:    slack,
		media:    media,
		gemini:   gemini,
		loop:     loop,
		analyzer: analyzer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type statusLine struct {
	slack     adapter.Slack
	channelID string
	ts        string
}

func (s *statusLine) set(ctx context.Context, text string) {
	if s.ts == "" {
		return
	}
	if err := s.slack.UpdateMessage(ctx, s.channelID, s.ts, text); err != nil {
		logging.From(ctx).Warn("failed to update status line", logging.ErrAttr(err))
	}
}

func (x *Agent) Handle(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, meta model.RouteMeta) (*model.AgentResult, error) {
	if ev.File == nil {
		return nil, goerr.New("copy generation requires a file", goerr.V("delivery_id", ev.DeliveryID))
	}

	if bc.Profile == nil {
		return &model.AgentResult{
			Messages: []*model.Message{{ChannelID: ev.ChannelID, Text: noProfileMessage}},
		}, nil
	}

	info, err := x.slack.GetFileInfo(ctx, ev.File.ID)
	if err != nil {
		return nil, err
	}
	if !adapter.IsSupportedMedia(info.MIMEType) {
		return &model.AgentResult{
			Messages: []*model.Message{{
				ChannelID: ev.ChannelID,
				Text:      fmt.Sprintf("I can work with video, audio and image files, but `%s` is %s.", info.Name, info.MIMEType),
			}},
		}, nil
	}
	if info.Size > MaxMediaBytes {
		return &model.AgentResult{
			Messages: []*model.Message{{
				ChannelID: ev.ChannelID,
				Text:      fmt.Sprintf("`%s` is %d MB; I can read files up to %d MB. A shorter cut works fine.", info.Name, info.Size>>20, MaxMediaBytes>>20),
			}},
		}, nil
	}

	// the status message anchors the generation thread
	anchor, err := x.slack.PostMessage(ctx, ev.ChannelID, "", statusReceived)
	if err != nil {
		return nil, err
	}
	status := &statusLine{slack: x.slack, channelID: ev.ChannelID, ts: anchor}

	result, err := x.generate(ctx, ev, bc, info, anchor, status)
	if err != nil {
		status.set(ctx, statusFailed)
		return nil, model.InThread(err, anchor)
	}
	return result, nil
}

func (x *Agent) generate(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, info *model.FileDescriptor, anchor string, status *statusLine) (*model.AgentResult, error) {
	logger := logging.From(ctx)

	var buf bytes.Buffer
	if err := x.slack.DownloadFile(ctx, info.URL, &buf); err != nil {
		return nil, err
	}
	data := buf.Bytes()

	if x.storage != nil {
		if err := x.archive(ctx, ev.ChannelID, info, data); err != nil {
			logger.Warn("failed to archive creative", logging.ErrAttr(err), "file_id", info.ID)
		}
	}

	status.set(ctx, statusDescribing)
	content, err := x.media.Describe(ctx, data, info.MIMEType)
	if err != nil {
		return nil, err
	}

	competitorAd, err := x.isCompetitor(ctx, content, bc.Profile)
	if err != nil {
		logger.Warn("ownership classification failed, treating creative as own", logging.ErrAttr(err))
	}
	if competitorAd {
		return x.analyzeCompetitor(ctx, ev, bc, info, content, anchor, status)
	}

	status.set(ctx, fmt.Sprintf(statusWriting, model.VariantCount))
	out, err := x.loop.Run(ctx, &Input{
		Profile:       bc.Profile,
		Notes:         bc.Notes,
		Insights:      bc.Insights,
		Exemplars:     bc.Exemplars,
		SourceType:    adapter.SourceTypeOf(info.MIMEType),
		SourceContent: content,
	})
	if errors.Is(err, ErrNoVariants) && !adapter.IsTransient(err) {
		status.set(ctx, statusFailed)
		return &model.AgentResult{
			Messages: []*model.Message{{
				ChannelID: ev.ChannelID,
				ThreadTS:  anchor,
				Text:      "I couldn't write copy that passed your brand rules this time. Tell me a bit more about the product in this channel and upload it again.",
			}},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	rec := &model.GenerationRecord{
		ID:             model.NewGenerationID(),
		ChannelID:      ev.ChannelID,
		ThreadTS:       anchor,
		ActorID:        ev.ActorID,
		ProfileVersion: bc.Profile.Version,
		Source:         info,
		SourceContent:  content,
		SourceType:     adapter.SourceTypeOf(info.MIMEType),
		Variants:       out.Variants,
		Telemetry:      &out.Telemetry,
		CreatedAt:      x.now(),
	}

	header := fmt.Sprintf("Here are %d variants for `%s`:", len(out.Variants), info.Name)
	if len(out.Variants) < model.VariantCount {
		header = fmt.Sprintf("I could only finalize %d of %d variants for `%s` within my time budget:", len(out.Variants), model.VariantCount, info.Name)
	}
	status.set(ctx, statusDone)

	telemetry := out.Telemetry
	return &model.AgentResult{
		Messages: []*model.Message{{
			ChannelID: ev.ChannelID,
			ThreadTS:  anchor,
			Text:      render.Variants(header, out.Variants),
		}},
		SideEffects: []model.SideEffect{
			model.SaveGeneration{Record: rec},
			model.UpdateGenerationTelemetry{GenerationID: rec.ID, ChannelID: ev.ChannelID, Telemetry: &telemetry},
		},
	}, nil
}

func (x *Agent) analyzeCompetitor(ctx context.Context, ev *model.EventContext, bc *model.BrandContext, info *model.FileDescriptor, content, anchor string, status *statusLine) (*model.AgentResult, error) {
	status.set(ctx, statusAnalyzing)
	analysis, err := x.analyzer.Analyze(ctx, content, bc.Profile)
	if err != nil {
		return nil, err
	}
	status.set(ctx, statusDone)

	rec := competitor.NewRecord(ev, bc, content, analysis, x.now())
	rec.Source = info
	rec.ThreadTS = anchor

	return &model.AgentResult{
		Messages: []*model.Message{{
			ChannelID: ev.ChannelID,
			ThreadTS:  anchor,
			Text:      render.Analysis(analysis),
		}},
		SideEffects: []model.SideEffect{model.SaveGeneration{Record: rec}},
	}, nil
}

func (x *Agent) archive(ctx context.Context, channelID string, info *model.FileDescriptor, data []byte) error {
	key := path.Join(channelID, info.ID, info.Name)
	w, err := x.storage.Put(ctx, key, info.MIMEType)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write creative", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close creative writer", goerr.V("key", key))
	}
	return nil
}

type ownership struct {
	Competitor bool   `json:"competitor"`
	Reason     string `json:"reason"`
}

var ownershipSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"competitor": {Type: genai.TypeBoolean},
		"reason":     {Type: genai.TypeString},
	},
	Required: []string{"competitor"},
}

// isCompetitor decides whether the described creative belongs to another brand
func (x *Agent) isCompetitor(ctx context.Context, content string, profile *model.VoiceProfile) (bool, error) {
	prompt := fmt.Sprintf("Our brand is %q (%s). Below is a description of an ad creative a team member uploaded. "+
		"Answer competitor=true only if the creative clearly shows a different brand's product or logo.\n\n%s",
		profile.BrandName, profile.Summary, content)

	resp, err := x.gemini.GenerateContent(ctx,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   ownershipSchema,
			Temperature:      adapter.Ptr[float32](0),
			ThinkingConfig:   adapter.NoThinking(),
		})
	if err != nil {
		return false, goerr.Wrap(err, "failed to classify creative ownership")
	}

	var o ownership
	raw := strings.TrimSpace(adapter.ResponseText(resp))
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return false, goerr.Wrap(err, "failed to parse ownership answer", goerr.V("response", raw))
	}
	return o.Competitor, nil
}
