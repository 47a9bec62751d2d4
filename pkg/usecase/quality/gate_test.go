package quality_test

import (
	"strings"
	"testing"

	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/usecase/quality"
	"github.com/adforge/copybot/pkg/usecase/render"
	"github.com/m-mizutani/gt"
)

func variants() []model.Variant {
	return []model.Variant{
		{Angle: "Convenience", Headline: "Dinner in ten minutes", PrimaryText: "Skip the grocery run tonight.\n\nEvery kit arrives prepped, portioned and ready for the pan.", CTA: "Order now"},
		{Angle: "Savings", Headline: "Cheaper than takeout", PrimaryText: "A family meal costs less than a delivery order.\n\nNo hidden fees and no minimum basket size.", CTA: "See plans"},
		{Angle: "Health", Headline: "Real food, fast", PrimaryText: "Fresh produce from local farms in every single box.\n\nNothing frozen and nothing processed.", CTA: "Start today"},
		{Angle: "Family", Headline: "Kids actually eat it", PrimaryText: "Recipes tested by picky eaters aged four to fourteen.\n\nParents approve as well.", CTA: "Try a box"},
	}
}

func issuesOf(r *quality.Report, check quality.CheckName) []quality.Issue {
	var out []quality.Issue
	for _, issue := range r.Issues {
		if issue.Check == check {
			out = append(out, issue)
		}
	}
	return out
}

func TestCleanRenderedSetPasses(t *testing.T) {
	result := &model.AgentResult{Messages: []*model.Message{{Text: render.Variants("Here are your variants:", variants())}}}
	report := quality.Check(result, &model.VoiceProfile{BannedPhrases: []string{"guaranteed"}})
	gt.A(t, report.Issues).Length(0)
}

func TestShortMessagesAreExempt(t *testing.T) {
	result := &model.AgentResult{Messages: []*model.Message{{Text: "```{\"a\": 1}``` *unbalanced"}}}
	report := quality.Check(result, nil)
	gt.A(t, report.Issues).Length(0)
	gt.Equal(t, result.Messages[0].Text, "```{\"a\": 1}``` *unbalanced")
}

func TestCodeFenceIsStripped(t *testing.T) {
	text := "```json\n" + render.Variants("", variants()) + "```"
	result := &model.AgentResult{Messages: []*model.Message{{Text: text}}}

	report := quality.Check(result, nil)
	fences := issuesOf(report, quality.CheckCodeFence)
	gt.A(t, fences).Length(1)
	gt.True(t, fences[0].Fixed)
	gt.False(t, strings.Contains(result.Messages[0].Text, "```"))
	gt.False(t, strings.HasPrefix(result.Messages[0].Text, "json"))
}

func TestLeakedJSON(t *testing.T) {
	text := render.Variants("", variants()) + "\n{\"headline\": \"Dinner in ten minutes\", \"cta\": \"Order now\"}"
	report := quality.Check(&model.AgentResult{Messages: []*model.Message{{Text: text}}}, nil)
	gt.A(t, issuesOf(report, quality.CheckLeakedJSON)).Length(1)
	gt.False(t, report.HasMajor())
}

func TestBannedAndMandatory(t *testing.T) {
	vs := variants()
	vs[1].PrimaryText = "It is cheap and cheerful, cheaper than any takeout order you have made.\n\nNo fees."
	profile := &model.VoiceProfile{
		BannedPhrases:    []string{"Cheap"},
		MandatoryPhrases: []string{"free delivery"},
	}
	report := quality.Check(&model.AgentResult{Messages: []*model.Message{{Text: render.Variants("", vs)}}}, profile)

	banned := issuesOf(report, quality.CheckBannedPhrase)
	gt.A(t, banned).Length(1)
	gt.Equal(t, banned[0].Severity, quality.SeverityMajor)

	missing := issuesOf(report, quality.CheckMissingMandatory)
	gt.A(t, missing).Length(1)
	gt.Equal(t, missing[0].Severity, quality.SeverityMinor)
	gt.True(t, report.HasMajor())
}

func TestMandatoryOnlyOnLongForm(t *testing.T) {
	text := strings.Repeat("Fresh meals for busy families. ", 10)
	profile := &model.VoiceProfile{MandatoryPhrases: []string{"free delivery"}}
	report := quality.Check(&model.AgentResult{Messages: []*model.Message{{Text: text}}}, profile)
	gt.A(t, issuesOf(report, quality.CheckMissingMandatory)).Length(0)
}

func TestDuplicateHeadlines(t *testing.T) {
	vs := variants()
	vs[3].Headline = "dinner in TEN minutes"
	report := quality.Check(&model.AgentResult{Messages: []*model.Message{{Text: render.Variants("", vs)}}}, nil)
	dup := issuesOf(report, quality.CheckDuplicateHeadline)
	gt.A(t, dup).Length(1)
	gt.Equal(t, dup[0].Severity, quality.SeverityMajor)
}

func TestTruncatedPrimaryText(t *testing.T) {
	vs := variants()
	vs[2].PrimaryText = "Fresh produce."
	report := quality.Check(&model.AgentResult{Messages: []*model.Message{{Text: render.Variants("", vs)}}}, nil)
	trunc := issuesOf(report, quality.CheckTruncation)
	gt.A(t, trunc).Length(1)
	gt.S(t, trunc[0].Detail).Contains("14")
}

func TestUnbalancedEmphasis(t *testing.T) {
	text := render.Variants("", variants()) + "\n*Note: prices vary by region"
	report := quality.Check(&model.AgentResult{Messages: []*model.Message{{Text: text}}}, nil)
	gt.A(t, issuesOf(report, quality.CheckUnbalanced)).Length(1)
}
