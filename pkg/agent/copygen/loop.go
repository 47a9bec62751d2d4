package copygen

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const (
	MaxTurns    = 12
	MaxDuration = 100 * time.Second
)

const (
	StopReviewPassed = "review_passed"
	StopModelDone    = "model_done"
	StopMaxTurns     = "max_turns"
	StopTimeout      = "timeout"
	StopLLMError     = "llm_error"
)

// ErrNoVariants is returned when the loop ends without a single accepted variant
var ErrNoVariants = goerr.New("no variant was accepted")

//go:embed prompt/system.md
var systemPromptRaw string

var systemPromptTmpl = template.Must(template.New("system").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(systemPromptRaw))

// Input is everything the loop needs to write copy for one creative
type Input struct {
	Profile       *model.VoiceProfile
	Notes         string
	Insights      string
	Exemplars     []*model.Exemplar
	SourceType    model.SourceType
	SourceContent string
}

type Output struct {
	Variants  []model.Variant
	Telemetry model.Telemetry
}

// Loop drives the propose/validate/repair conversation with the model
type Loop struct {
	gemini      adapter.Gemini
	maxTurns    int
	maxDuration time.Duration
	strict      bool
	now         func() time.Time
}

type LoopOption func(*Loop)

// WithStrictExemplarOrder only offers submit_variant after fetch_exemplars was called
func WithStrictExemplarOrder(strict bool) LoopOption {
	return func(l *Loop) {
		l.strict = strict
	}
}

func WithBudget(turns int, duration time.Duration) LoopOption {
	return func(l *Loop) {
		if turns > 0 {
			l.maxTurns = turns
		}
		if duration > 0 {
			l.maxDuration = duration
		}
	}
}

func WithLoopClock(now func() time.Time) LoopOption {
	return func(l *Loop) {
		l.now = now
	}
}

func NewLoop(gemini adapter.Gemini, opts ...LoopOption) *Loop {
	l := &Loop{
		gemini:      gemini,
		maxTurns:    MaxTurns,
		maxDuration: MaxDuration,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func buildSystemPrompt(in *Input) (string, error) {
	profile := in.Profile
	if profile == nil {
		profile = &model.VoiceProfile{}
	}
	brandName := profile.BrandName
	if brandName == "" {
		brandName = "this brand"
	}

	var buf bytes.Buffer
	if err := systemPromptTmpl.Execute(&buf, map[string]any{
		"BrandName":     brandName,
		"Profile":       profile,
		"Notes":         in.Notes,
		"Insights":      in.Insights,
		"SourceType":    in.SourceType,
		"SourceContent": in.SourceContent,
		"VariantCount":  model.VariantCount,
		"MaxHeadline":   MaxHeadline,
		"MinParagraphs": MinParagraphs,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute system prompt template")
	}
	return buf.String(), nil
}

// Run executes the loop. It stops when review_set passes, when the model stops calling
// tools, or when the turn or time budget runs out; in every case the accepted variants so
// far are returned. ErrNoVariants is returned only when nothing was accepted.
func (l *Loop) Run(ctx context.Context, in *Input) (*Output, error) {
	logger := logging.From(ctx)

	prompt, err := buildSystemPrompt(in)
	if err != nil {
		return nil, err
	}

	s := &session{
		profile:   in.Profile,
		exemplars: in.Exemplars,
		strict:    l.strict,
	}
	registry := s.registry()

	ctx, cancel := context.WithTimeout(ctx, l.maxDuration)
	defer cancel()

	started := l.now()
	contents := []*genai.Content{
		genai.NewContentFromText("Write the variants for the creative above.", genai.RoleUser),
	}

	var (
		turns   int
		stop    string
		lastErr error
	)

	for {
		if turns >= l.maxTurns {
			stop = StopMaxTurns
			break
		}
		if l.now().Sub(started) >= l.maxDuration {
			stop = StopTimeout
			break
		}
		turns++

		config := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(
				fmt.Sprintf("%s\n\nTurn %d of %d. Accepted variants: %d/%d.", prompt, turns, l.maxTurns, len(s.accepted), model.VariantCount), ""),
			Tools:          registry.Specs(s.offered()...),
			ThinkingConfig: adapter.NoThinking(),
		}

		resp, err := l.gemini.GenerateContent(ctx, contents, config)
		if err != nil {
			if ctx.Err() != nil {
				stop = StopTimeout
			} else {
				stop = StopLLMError
				lastErr = err
			}
			logger.Warn("copy loop stopped by model call failure", logging.ErrAttr(err), "turn", turns, "accepted", len(s.accepted))
			break
		}

		var responses []*genai.Part
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			contents = append(contents, candidate.Content)

			for _, part := range candidate.Content.Parts {
				if part.FunctionCall == nil {
					continue
				}
				funcResp, execErr := registry.Execute(ctx, *part.FunctionCall)
				if execErr != nil {
					logger.Debug("tool call failed", logging.ErrAttr(execErr), "name", part.FunctionCall.Name)
				}
				responses = append(responses, &genai.Part{FunctionResponse: funcResp})
			}
			// one candidate is requested
			break
		}

		if len(responses) == 0 {
			stop = StopModelDone
			break
		}
		contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: responses})

		if s.reviewPassed {
			stop = StopReviewPassed
			break
		}
	}

	out := &Output{
		Variants: s.accepted,
		Telemetry: model.Telemetry{
			Turns:                 turns,
			Duration:              l.now().Sub(started),
			Rejections:            s.rejections,
			ReviewPassed:          s.reviewPassed,
			ExemplarsFetchedFirst: s.fetchedFirst,
			StopReason:            stop,
		},
	}

	logger.Info("copy loop finished",
		"stop", stop, "turns", turns, "accepted", len(s.accepted), "rejections", s.rejections)

	if len(out.Variants) == 0 {
		if lastErr != nil {
			return out, goerr.Wrap(errors.Join(ErrNoVariants, lastErr), "copy loop produced no variants", goerr.V("stop", stop))
		}
		return out, goerr.Wrap(ErrNoVariants, "copy loop produced no variants", goerr.V("stop", stop), goerr.V("turns", turns))
	}
	return out, nil
}
