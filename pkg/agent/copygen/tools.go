package copygen

import (
	"context"
	"fmt"

	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/tool"
	"google.golang.org/genai"
)

const (
	toolFetchExemplars = "fetch_exemplars"
	toolSubmitVariant  = "submit_variant"
	toolReviewSet      = "review_set"
)

// session is the mutable state of one generation run. It is owned by a single loop and
// never shared.
type session struct {
	profile   *model.VoiceProfile
	exemplars []*model.Exemplar
	strict    bool

	accepted     []model.Variant
	calls        int
	rejections   int
	fetched      bool
	fetchedFirst bool
	reviewPassed bool
}

func (s *session) record(name string) {
	if s.calls == 0 && name == toolFetchExemplars {
		s.fetchedFirst = true
	}
	s.calls++
}

// offered returns the function names the model may call in the next turn
func (s *session) offered() []string {
	if s.strict && !s.fetched {
		return []string{toolFetchExemplars}
	}
	names := []string{toolFetchExemplars, toolSubmitVariant}
	if len(s.accepted) == model.VariantCount {
		names = append(names, toolReviewSet)
	}
	return names
}

func (s *session) registry() *tool.Registry {
	return tool.New(
		&fetchExemplars{s: s},
		&submitVariant{s: s},
		&reviewSet{s: s},
	)
}

type fetchExemplars struct {
	s *session
}

func (x *fetchExemplars) Spec() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        toolFetchExemplars,
		Description: "Return up to 5 previously approved copy variants for this brand. Call this before writing.",
		Parameters:  &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}},
	}
}

func (x *fetchExemplars) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	x.s.record(toolFetchExemplars)
	x.s.fetched = true

	items := make([]map[string]any, 0, len(x.s.exemplars))
	for _, e := range x.s.exemplars {
		items = append(items, map[string]any{
			"angle":        e.Variant.Angle,
			"headline":     e.Variant.Headline,
			"primary_text": e.Variant.PrimaryText,
			"cta":          e.Variant.CTA,
			"source_type":  string(e.SourceType),
		})
	}

	resp := map[string]any{
		"count":     len(items),
		"exemplars": items,
	}
	if len(items) == 0 {
		resp["note"] = "no approved exemplars yet; follow the voice profile"
	}
	return resp, nil
}

type submitVariant struct {
	s *session
}

func (x *submitVariant) Spec() *genai.FunctionDeclaration {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.FunctionDeclaration{
		Name: toolSubmitVariant,
		Description: fmt.Sprintf("Submit one ad copy variant for validation. Accepted variants are kept; rejected ones come back with issues to fix. "+
			"Headline at most %d characters, primary text at least %d paragraphs separated by a blank line.", MaxHeadline, MinParagraphs),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"angle":        str("Value-proposition angle of this variant, distinct from the others"),
				"headline":     str("Headline"),
				"primary_text": str("Primary text, plain text, paragraphs separated by a blank line"),
				"cta":          str("Call to action"),
				"replace_index": {
					Type:        genai.TypeInteger,
					Description: "1-based index of an accepted variant to replace. Use only to repair issues reported by review_set.",
				},
			},
			Required: []string{"angle", "headline", "primary_text", "cta"},
		},
	}
}

func (x *submitVariant) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	s := x.s
	s.record(toolSubmitVariant)

	reject := func(issues ...string) (map[string]any, error) {
		s.rejections++
		return map[string]any{
			"status":   "rejected",
			"issues":   issues,
			"accepted": len(s.accepted),
		}, nil
	}

	if s.strict && !s.fetched {
		return reject("call fetch_exemplars before submitting variants")
	}

	v := model.Variant{
		Angle:       tool.String(args, "angle"),
		Headline:    tool.String(args, "headline"),
		PrimaryText: tool.String(args, "primary_text"),
		CTA:         tool.String(args, "cta"),
	}

	replace, hasReplace := tool.Int(args, "replace_index")
	if hasReplace && replace != 0 {
		if replace < 1 || replace > len(s.accepted) {
			return reject(fmt.Sprintf("replace_index %d is out of range; %d variants are accepted", replace, len(s.accepted)))
		}
	} else {
		replace = 0
		if len(s.accepted) >= model.VariantCount {
			return reject(fmt.Sprintf("%d variants are already accepted; call review_set, or pass replace_index to replace one", model.VariantCount))
		}
	}

	if issues := ValidateVariant(v, s.profile, s.accepted, replace); len(issues) > 0 {
		return reject(issues...)
	}

	index := replace
	if replace > 0 {
		s.accepted[replace-1] = v
		s.reviewPassed = false
	} else {
		s.accepted = append(s.accepted, v)
		index = len(s.accepted)
	}

	resp := map[string]any{
		"status":    "accepted",
		"index":     index,
		"accepted":  len(s.accepted),
		"remaining": model.VariantCount - len(s.accepted),
	}
	if len(s.accepted) == model.VariantCount {
		resp["next"] = "all variants accepted; call review_set"
	}
	return resp, nil
}

type reviewSet struct {
	s *session
}

func (x *reviewSet) Spec() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name: toolReviewSet,
		Description: fmt.Sprintf("Review the complete set of %d accepted variants for distinct angles, unique headlines and overlapping wording. "+
			"Only valid once exactly %d variants are accepted.", model.VariantCount, model.VariantCount),
		Parameters: &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}},
	}
}

func (x *reviewSet) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	s := x.s
	s.record(toolReviewSet)

	if issues := ReviewSet(s.accepted); len(issues) > 0 {
		s.rejections++
		return map[string]any{
			"status": "rejected",
			"issues": issues,
			"hint":   "fix each issue with submit_variant and replace_index, then call review_set again",
		}, nil
	}

	s.reviewPassed = true
	return map[string]any{"status": "approved"}, nil
}
