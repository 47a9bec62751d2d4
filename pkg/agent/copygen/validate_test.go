package copygen_test

import (
	"strings"
	"testing"

	"github.com/adforge/copybot/pkg/agent/copygen"
	"github.com/adforge/copybot/pkg/model"
	"github.com/m-mizutani/gt"
)

func goodVariants() []model.Variant {
	return []model.Variant{
		{
			Angle:       "Convenience",
			Headline:    "Dinner in ten minutes",
			PrimaryText: "Skip the grocery run tonight and let the box do the planning for you.\n\nEvery kit arrives prepped, portioned and ready for the pan.",
			CTA:         "Order now",
		},
		{
			Angle:       "Savings",
			Headline:    "Cheaper than takeout",
			PrimaryText: "A full family meal costs less than a single delivery order from the app.\n\nNo hidden fees, no minimum basket and you can skip any week.",
			CTA:         "See plans",
		},
		{
			Angle:       "Health",
			Headline:    "Real food, fast",
			PrimaryText: "Fresh produce from local farms goes into every single box we pack.\n\nNothing frozen, nothing processed, and the labels are easy to read.",
			CTA:         "Start today",
		},
		{
			Angle:       "Family",
			Headline:    "Kids actually eat it",
			PrimaryText: "Our recipes are tested by picky eaters aged four to fourteen at home.\n\nParents approve of the cleanup, which takes about five minutes.",
			CTA:         "Try a box",
		},
	}
}

func TestValidateVariantHeadlineLength(t *testing.T) {
	v := goodVariants()[0]
	v.Headline = strings.Repeat("x", 45)

	issues := copygen.ValidateVariant(v, nil, nil, 0)
	gt.A(t, issues).Length(1)
	gt.S(t, issues[0]).Contains("45 characters")
	gt.S(t, issues[0]).Contains("40 character limit")
}

func TestValidateVariantHeadlineCountsRunes(t *testing.T) {
	v := goodVariants()[0]
	v.Headline = strings.Repeat("é", 40)
	gt.A(t, copygen.ValidateVariant(v, nil, nil, 0)).Length(0)
}

func TestValidateVariantDuplicateHeadlineAnyOrder(t *testing.T) {
	vs := goodVariants()
	dup := vs[3]
	dup.Headline = "  DINNER in ten   minutes "

	// the duplicate is rejected wherever the original sits in the accepted list
	for pos := 0; pos < 3; pos++ {
		accepted := []model.Variant{vs[1], vs[2]}
		accepted = append(accepted[:pos], append([]model.Variant{vs[0]}, accepted[pos:]...)...)

		issues := copygen.ValidateVariant(dup, nil, accepted, 0)
		gt.A(t, issues).Length(1)
		gt.S(t, issues[0]).Contains("duplicates accepted variant")
	}

	// replacing the slot that holds the original is allowed
	issues := copygen.ValidateVariant(dup, nil, []model.Variant{vs[0], vs[1]}, 1)
	gt.A(t, issues).Length(0)
}

func TestValidateVariantProfileRules(t *testing.T) {
	profile := &model.VoiceProfile{
		BannedPhrases:    []string{"cheap"},
		MandatoryPhrases: []string{"free shipping"},
	}
	v := goodVariants()[1]

	issues := copygen.ValidateVariant(v, profile, nil, 0)
	gt.A(t, issues).Length(2)
	gt.S(t, issues[0]).Contains(`banned phrase "cheap"`)
	gt.S(t, issues[1]).Contains(`mandatory phrase "free shipping"`)
}

func TestValidateVariantStructure(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(v *model.Variant)
		want   string
	}{
		{"single paragraph", func(v *model.Variant) { v.PrimaryText = "One long paragraph without any break at all." }, "1 paragraph"},
		{"code fence", func(v *model.Variant) { v.PrimaryText = "```\nfirst\n\nsecond\n```" }, "code fence"},
		{"empty headline", func(v *model.Variant) { v.Headline = "" }, "headline is empty"},
		{"empty cta", func(v *model.Variant) { v.CTA = "" }, "cta is empty"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := goodVariants()[0]
			tc.modify(&v)
			issues := copygen.ValidateVariant(v, nil, nil, 0)
			gt.A(t, issues).Longer(0)
			gt.S(t, strings.Join(issues, "\n")).Contains(tc.want)
		})
	}
}

func TestReviewSet(t *testing.T) {
	t.Run("passes a distinct set", func(t *testing.T) {
		gt.A(t, copygen.ReviewSet(goodVariants())).Length(0)
	})

	t.Run("never passes with fewer than four", func(t *testing.T) {
		vs := goodVariants()
		for n := 0; n < model.VariantCount; n++ {
			issues := copygen.ReviewSet(vs[:n])
			gt.A(t, issues).Length(1)
			gt.S(t, issues[0]).Contains("exactly 4")
		}
	})

	t.Run("flags repeated angles and overlapping text", func(t *testing.T) {
		vs := goodVariants()
		vs[3].Angle = "convenience"
		vs[2].PrimaryText = vs[0].PrimaryText + " Really."
		issues := strings.Join(copygen.ReviewSet(vs), "\n")
		gt.S(t, issues).Contains("same angle")
		gt.S(t, issues).Contains("variants 1 and 3 share")
	})

	t.Run("flags short primary text", func(t *testing.T) {
		vs := goodVariants()
		vs[1].PrimaryText = "Cheaper.\n\nReally."
		gt.S(t, strings.Join(copygen.ReviewSet(vs), "\n")).Contains("variant 2 primary_text")
	})
}

func TestJaccard(t *testing.T) {
	gt.Equal(t, copygen.Jaccard("a b c", "a b c"), 1.0)
	gt.Equal(t, copygen.Jaccard("a b", "c d"), 0.0)
	gt.Equal(t, copygen.Jaccard("A b", "a B c d"), 0.5)
	gt.Equal(t, copygen.Jaccard("", ""), 0.0)
}
