package adapter

import (
	"context"
	"strings"

	"github.com/adforge/copybot/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// MediaAnalyzer turns raw media into text: a transcript with scene notes for video and
// audio, a visual description for images.
type MediaAnalyzer interface {
	Describe(ctx context.Context, data []byte, mimeType string) (string, error)
}

type geminiMedia struct {
	gemini Gemini
}

// NewMediaAnalyzer creates a MediaAnalyzer backed by Gemini multimodal input
func NewMediaAnalyzer(gemini Gemini) MediaAnalyzer {
	return &geminiMedia{gemini: gemini}
}

const describeVideoPrompt = `Transcribe the spoken words of this ad creative verbatim, then list the on-screen text,
key scenes in order, the product shown and the overall mood. Use plain text with short headings.`

const describeImagePrompt = `Describe this ad creative for a copywriter: the product, on-screen text, setting,
people, colors, mood and the implied offer. Use plain text.`

func (m *geminiMedia) Describe(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", goerr.New("media is empty")
	}

	prompt := describeImagePrompt
	if t := SourceTypeOf(mimeType); t == model.SourceTypeVideo || t == model.SourceTypeAudio {
		prompt = describeVideoPrompt
	}

	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				genai.NewPartFromBytes(data, mimeType),
				genai.NewPartFromText(prompt),
			},
		},
	}
	resp, err := m.gemini.GenerateContent(ctx, contents, &genai.GenerateContentConfig{
		Temperature:    Ptr[float32](0.2),
		ThinkingConfig: NoThinking(),
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to describe media", goerr.V("mime_type", mimeType))
	}

	text := strings.TrimSpace(ResponseText(resp))
	if text == "" {
		return "", goerr.New("empty media description", goerr.V("mime_type", mimeType))
	}
	return text, nil
}

// SourceTypeOf maps a MIME type to a source type. Unknown types are treated as images.
func SourceTypeOf(mimeType string) model.SourceType {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return model.SourceTypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return model.SourceTypeAudio
	default:
		return model.SourceTypeImage
	}
}

// IsSupportedMedia reports whether a file of the given MIME type can be processed.
func IsSupportedMedia(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/") ||
		strings.HasPrefix(mimeType, "audio/") ||
		strings.HasPrefix(mimeType, "image/")
}
