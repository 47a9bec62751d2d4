package adapter_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func TestGenerateContent(t *testing.T) {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewGemini(ctx, projectID, "us-central1")
	gt.NoError(t, err)

	contents := []*genai.Content{
		genai.NewContentFromText("Write a five word headline for a meal kit brand.", genai.RoleUser),
	}

	resp, err := client.GenerateContent(ctx, contents, &genai.GenerateContentConfig{ThinkingConfig: adapter.NoThinking()})
	gt.NoError(t, err)
	gt.NotEqual(t, adapter.ResponseText(resp), "")
	t.Log("response:", adapter.ResponseText(resp))
}

func TestResponseText(t *testing.T) {
	gt.Equal(t, adapter.ResponseText(nil), "")
	gt.Equal(t, adapter.ResponseText(&genai.GenerateContentResponse{}), "")

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking about it", Thought: true},
			{Text: "first"},
			{FunctionCall: &genai.FunctionCall{Name: "submit_variant"}},
			{Text: "second"},
		}}}},
	}
	gt.Equal(t, adapter.ResponseText(resp), "first\nsecond")
}

func TestIsTransient(t *testing.T) {
	testCases := map[string]struct {
		err  error
		want bool
	}{
		"nil":                {err: nil, want: false},
		"rate limit":         {err: genai.APIError{Code: 429}, want: true},
		"unavailable":        {err: genai.APIError{Code: 503}, want: true},
		"exhausted status":   {err: genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}, want: true},
		"bad request":        {err: genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}, want: false},
		"wrapped rate limit": {err: goerr.Wrap(genai.APIError{Code: 429}, "failed to generate content"), want: true},
		"deadline":           {err: goerr.Wrap(context.DeadlineExceeded, "timeout"), want: true},
		"plain":              {err: errors.New("boom"), want: false},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			gt.Equal(t, adapter.IsTransient(tc.err), tc.want)
		})
	}
}
