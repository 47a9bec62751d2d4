package copygen

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/adforge/copybot/pkg/model"
)

const (
	MaxHeadline        = 40
	MinParagraphs      = 2
	MinPrimaryText     = 80
	SimilarityLimit    = 0.70
	paragraphSeparator = `\n\s*\n`
)

var (
	paragraphSplit = regexp.MustCompile(paragraphSeparator)
	wordPattern    = regexp.MustCompile(`[\p{L}\p{N}']+`)
)

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func paragraphs(text string) int {
	n := 0
	for _, p := range paragraphSplit.Split(strings.TrimSpace(text), -1) {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

// ValidateVariant checks one candidate against the voice profile and the variants accepted
// so far. replaceIndex is the 1-based slot being replaced, or 0 for a new variant; the
// replaced slot is excluded from the duplicate check. The returned issues are written for
// the model to act on.
func ValidateVariant(v model.Variant, profile *model.VoiceProfile, accepted []model.Variant, replaceIndex int) []string {
	var issues []string

	n := utf8.RuneCountInString(v.Headline)
	switch {
	case n == 0:
		issues = append(issues, "headline is empty")
	case n > MaxHeadline:
		issues = append(issues, fmt.Sprintf("headline is %d characters, over the %d character limit; cut at least %d characters", n, MaxHeadline, n-MaxHeadline))
	}

	if strings.TrimSpace(v.PrimaryText) == "" {
		issues = append(issues, "primary_text is empty")
	} else if p := paragraphs(v.PrimaryText); p < MinParagraphs {
		issues = append(issues, fmt.Sprintf("primary_text has %d paragraph(s); write at least %d separated by a blank line", p, MinParagraphs))
	}

	if strings.TrimSpace(v.CTA) == "" {
		issues = append(issues, "cta is empty")
	}

	for _, field := range []string{v.Angle, v.Headline, v.PrimaryText, v.CTA} {
		if strings.Contains(field, "```") {
			issues = append(issues, "remove code fence markers (```); send plain text")
			break
		}
	}

	for _, phrase := range profile.FindBanned(v.Text()) {
		issues = append(issues, fmt.Sprintf("contains banned phrase %q; remove or reword it", phrase))
	}
	for _, phrase := range profile.FindMissingMandatory(v.Text()) {
		issues = append(issues, fmt.Sprintf("missing mandatory phrase %q; include it verbatim", phrase))
	}

	if h := normalizeKey(v.Headline); h != "" {
		for i, a := range accepted {
			if i+1 == replaceIndex {
				continue
			}
			if normalizeKey(a.Headline) == h {
				issues = append(issues, fmt.Sprintf("headline duplicates accepted variant %d; write a different headline", i+1))
			}
		}
	}

	return issues
}

// ReviewSet re-validates a complete set. It fails unless exactly VariantCount variants are
// given.
func ReviewSet(vs []model.Variant) []string {
	if len(vs) != model.VariantCount {
		return []string{fmt.Sprintf("review_set needs exactly %d accepted variants, have %d", model.VariantCount, len(vs))}
	}

	var issues []string
	angles := map[string]int{}
	headlines := map[string]int{}
	for i, v := range vs {
		idx := i + 1
		if a := normalizeKey(v.Angle); a == "" {
			issues = append(issues, fmt.Sprintf("variant %d has no angle", idx))
		} else if prev, ok := angles[a]; ok {
			issues = append(issues, fmt.Sprintf("variants %d and %d use the same angle %q; give variant %d a distinct angle", prev, idx, v.Angle, idx))
		} else {
			angles[a] = idx
		}

		h := normalizeKey(v.Headline)
		if prev, ok := headlines[h]; ok {
			issues = append(issues, fmt.Sprintf("variants %d and %d share the headline %q", prev, idx, v.Headline))
		} else {
			headlines[h] = idx
		}

		if n := utf8.RuneCountInString(strings.TrimSpace(v.PrimaryText)); n < MinPrimaryText {
			issues = append(issues, fmt.Sprintf("variant %d primary_text is %d characters; the minimum is %d", idx, n, MinPrimaryText))
		}
	}

	for i := 0; i < len(vs); i++ {
		for j := i + 1; j < len(vs); j++ {
			if sim := Jaccard(vs[i].PrimaryText, vs[j].PrimaryText); sim > SimilarityLimit {
				issues = append(issues, fmt.Sprintf("variants %d and %d share %.0f%% of their primary_text words (limit %.0f%%); rewrite variant %d",
					i+1, j+1, sim*100, SimilarityLimit*100, j+1))
			}
		}
	}

	return issues
}

// Jaccard returns the token-set similarity of two texts, ignoring case
func Jaccard(a, b string) float64 {
	sa := tokenSet(a)
	sb := tokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}

	inter := 0
	for w := range sa {
		if sb[w] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
		set[w] = true
	}
	return set
}
