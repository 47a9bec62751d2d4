// Package competitor breaks down a competitor's ad into hook, angle, triggers and takeaways.
package competitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

type Analyzer struct {
	gemini adapter.Gemini
}

func NewAnalyzer(gemini adapter.Gemini) *Analyzer {
	return &Analyzer{gemini: gemini}
}

var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"hook":               {Type: genai.TypeString, Description: "The opening hook and why it stops the scroll"},
		"angle":              {Type: genai.TypeString, Description: "The core value-proposition angle"},
		"emotional_triggers": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"cta":                {Type: genai.TypeString, Description: "The call to action"},
		"strengths":          {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"weaknesses":         {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"takeaways":          {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "What our brand can learn, in our own voice"},
	},
	Required: []string{"hook", "angle", "emotional_triggers", "cta", "takeaways"},
}

// Analyze produces a structured breakdown of the described creative. profile may be nil;
// when set, takeaways are written for that brand.
func (a *Analyzer) Analyze(ctx context.Context, creative string, profile *model.VoiceProfile) (*model.CompetitorAnalysis, error) {
	if strings.TrimSpace(creative) == "" {
		return nil, goerr.New("competitor creative is empty")
	}

	var sys strings.Builder
	sys.WriteString("You are a performance marketing strategist. Break down the competitor ad below: its hook, angle, emotional triggers, call to action, strengths and weaknesses, and concrete takeaways.\n")
	if profile != nil {
		fmt.Fprintf(&sys, "\nTakeaways are for %s (tone: %s; audience: %s). Never suggest copying the competitor's wording.\n",
			profile.BrandName, profile.Tone, profile.Audience)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(sys.String(), ""),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    analysisSchema,
		Temperature:       adapter.Ptr[float32](0.3),
		ThinkingConfig:    adapter.NoThinking(),
	}
	contents := []*genai.Content{genai.NewContentFromText(creative, genai.RoleUser)}

	resp, err := a.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to analyze competitor ad")
	}

	raw := adapter.ResponseText(resp)
	var out model.CompetitorAnalysis
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, goerr.Wrap(err, "failed to parse competitor analysis", goerr.V("response", raw))
	}
	if out.Hook == "" && out.Angle == "" {
		return nil, goerr.New("competitor analysis is empty", goerr.V("response", raw))
	}
	return &out, nil
}

// DescribeURL asks the model, grounded with Google Search, what the ad behind url shows
func (a *Analyzer) DescribeURL(ctx context.Context, url, message string) (string, error) {
	prompt := fmt.Sprintf("Find the ad or landing page at %s and describe it for a copywriter: "+
		"the brand, the headline and body copy, the visuals, the offer and the call to action. "+
		"If you cannot access it, say what can be inferred from the URL and this request: %q", url, message)

	resp, err := a.gemini.GenerateContent(ctx,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Tools:          []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
			ThinkingConfig: adapter.NoThinking(),
		})
	if err != nil {
		return "", goerr.Wrap(err, "failed to describe competitor url", goerr.V("url", url))
	}
	return strings.TrimSpace(adapter.ResponseText(resp)), nil
}
