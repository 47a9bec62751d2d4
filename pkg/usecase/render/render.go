// Package render formats copy variants and analyses as Slack mrkdwn. The quality gate reads
// the same labels back, so changes here must keep HeadlineLabel and PrimaryTextLabel stable.
package render

import (
	"fmt"
	"strings"

	"github.com/adforge/copybot/pkg/model"
)

const (
	HeadlineLabel    = "*Headline:*"
	PrimaryTextLabel = "*Primary text:*"
	CTALabel         = "*CTA:*"
)

// Variant renders one variant under its 1-based index
func Variant(index int, v model.Variant) string {
	var b strings.Builder
	title := fmt.Sprintf("*Variant %d*", index)
	if v.Angle != "" {
		title = fmt.Sprintf("*Variant %d · %s*", index, v.Angle)
	}
	b.WriteString(title + "\n")
	b.WriteString(HeadlineLabel + " " + v.Headline + "\n")
	b.WriteString(PrimaryTextLabel + "\n" + strings.TrimSpace(v.PrimaryText) + "\n")
	if v.CTA != "" {
		b.WriteString(CTALabel + " " + v.CTA + "\n")
	}
	return b.String()
}

// Variants renders a full set with an optional header line
func Variants(header string, variants []model.Variant) string {
	parts := make([]string, 0, len(variants)+1)
	if header != "" {
		parts = append(parts, header)
	}
	for i, v := range variants {
		parts = append(parts, Variant(i+1, v))
	}
	parts = append(parts, "_Reply in this thread: \"Variant 2: make it punchier\", \"approve 3\", or \"approve all\"._")
	return strings.Join(parts, "\n")
}

// PlainText renders variants without mrkdwn, for file exports
func PlainText(variants []model.Variant) string {
	var b strings.Builder
	for i, v := range variants {
		fmt.Fprintf(&b, "Variant %d (%s)\n", i+1, v.Angle)
		fmt.Fprintf(&b, "Headline: %s\n\n%s\n\nCTA: %s\n", v.Headline, strings.TrimSpace(v.PrimaryText), v.CTA)
		b.WriteString("\n----------------------------------------\n\n")
	}
	return b.String()
}

// Analysis renders a competitor analysis
func Analysis(a *model.CompetitorAnalysis) string {
	var b strings.Builder
	b.WriteString("*Competitor ad breakdown*\n")
	fmt.Fprintf(&b, "*Hook:* %s\n", a.Hook)
	fmt.Fprintf(&b, "*Angle:* %s\n", a.Angle)
	if len(a.EmotionalTriggers) > 0 {
		fmt.Fprintf(&b, "*Emotional triggers:* %s\n", strings.Join(a.EmotionalTriggers, ", "))
	}
	fmt.Fprintf(&b, "*CTA:* %s\n", a.CTA)
	writeList(&b, "What works", a.Strengths)
	writeList(&b, "What doesn't", a.Weaknesses)
	writeList(&b, "Takeaways for your brand", a.Takeaways)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "*%s:*\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "• %s\n", item)
	}
}

// Profile renders a voice profile summary
func Profile(p *model.VoiceProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Voice profile: %s* (v%d)\n", p.BrandName, p.Version)
	if p.Summary != "" {
		b.WriteString(p.Summary + "\n")
	}
	fmt.Fprintf(&b, "*Tone:* %s\n", p.Tone)
	fmt.Fprintf(&b, "*Audience:* %s\n", p.Audience)
	if len(p.Angles) > 0 {
		fmt.Fprintf(&b, "*Angles:* %s\n", strings.Join(p.Angles, "; "))
	}
	if len(p.BannedPhrases) > 0 {
		fmt.Fprintf(&b, "*Never say:* %s\n", strings.Join(p.BannedPhrases, ", "))
	}
	if len(p.MandatoryPhrases) > 0 {
		fmt.Fprintf(&b, "*Always include:* %s\n", strings.Join(p.MandatoryPhrases, ", "))
	}
	return b.String()
}
