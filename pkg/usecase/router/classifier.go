package router

import (
	"context"
	"strings"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Classifier resolves a top-level message the rules could not decide
type Classifier interface {
	Classify(ctx context.Context, text string) (model.AgentName, error)
}

const classifierMaxTokens = 20

var classifierLabels = map[string]model.AgentName{
	"brand_context":       model.AgentBrandContext,
	"competitor_analysis": model.AgentCompetitorAnalysis,
	"command":             model.AgentCommand,
	"conversation":        model.AgentConversation,
}

const classifierPrompt = `You route messages sent to an ad copywriting assistant in a team chat channel.
Answer with exactly one label and nothing else:

brand_context - the user shares facts about their brand, product, audience, offers or rules
competitor_analysis - the user asks to analyze another company's ad or marketing
command - the user asks what the assistant can do or how to use it
conversation - anything else: questions, requests for copy advice, small talk`

type llmClassifier struct {
	gemini adapter.Gemini
}

// NewClassifier creates an LLM classifier. gemini should be bound to a small, fast model.
func NewClassifier(gemini adapter.Gemini) Classifier {
	return &llmClassifier{gemini: gemini}
}

func (c *llmClassifier) Classify(ctx context.Context, text string) (model.AgentName, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(classifierPrompt, ""),
		Temperature:       adapter.Ptr[float32](0),
		MaxOutputTokens:   classifierMaxTokens,
		ThinkingConfig:    adapter.NoThinking(),
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	resp, err := c.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to classify message")
	}

	return ParseLabel(adapter.ResponseText(resp))
}

// ParseLabel maps a model answer to an agent. The answer must contain exactly one label.
func ParseLabel(answer string) (model.AgentName, error) {
	a := strings.ToLower(strings.TrimSpace(answer))
	a = strings.Trim(a, "`\"'. \n")
	if agent, ok := classifierLabels[a]; ok {
		return agent, nil
	}

	var found []model.AgentName
	for label, agent := range classifierLabels {
		if strings.Contains(a, label) {
			found = append(found, agent)
		}
	}
	if len(found) == 1 {
		return found[0], nil
	}
	return "", goerr.New("unrecognized classifier label", goerr.V("answer", answer))
}
