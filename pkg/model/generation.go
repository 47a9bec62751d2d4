package model

import (
	"fmt"
	"time"
)

type GenerationID string

func NewGenerationID() GenerationID {
	return GenerationID(newID())
}

type SourceType string

const (
	SourceTypeVideo      SourceType = "video"
	SourceTypeImage      SourceType = "image"
	SourceTypeAudio      SourceType = "audio"
	SourceTypeCompetitor SourceType = "competitor"
)

// VariantCount is the number of copy variants produced per generation.
const VariantCount = 4

// Variant is one ad copy candidate.
type Variant struct {
	Angle       string `json:"angle" firestore:"angle"`
	Headline    string `json:"headline" firestore:"headline"`
	PrimaryText string `json:"primary_text" firestore:"primary_text"`
	CTA         string `json:"cta" firestore:"cta"`
}

// Text returns every user-visible field joined, for phrase checks.
func (x Variant) Text() string {
	return x.Headline + "\n" + x.PrimaryText + "\n" + x.CTA
}

// CompetitorAnalysis is the structured record produced for a competitor creative.
type CompetitorAnalysis struct {
	Hook              string   `json:"hook" firestore:"hook"`
	Angle             string   `json:"angle" firestore:"angle"`
	EmotionalTriggers []string `json:"emotional_triggers" firestore:"emotional_triggers"`
	CTA               string   `json:"cta" firestore:"cta"`
	Strengths         []string `json:"strengths" firestore:"strengths"`
	Weaknesses        []string `json:"weaknesses" firestore:"weaknesses"`
	Takeaways         []string `json:"takeaways" firestore:"takeaways"`
}

// Telemetry is recorded by the copy-generation loop.
type Telemetry struct {
	Turns                 int           `json:"turns" firestore:"turns"`
	Duration              time.Duration `json:"duration" firestore:"duration"`
	Rejections            int           `json:"rejections" firestore:"rejections"`
	ReviewPassed          bool          `json:"review_passed" firestore:"review_passed"`
	ExemplarsFetchedFirst bool          `json:"exemplars_fetched_first" firestore:"exemplars_fetched_first"`
	StopReason            string        `json:"stop_reason" firestore:"stop_reason"`
	QualityIssues         []string      `json:"quality_issues" firestore:"quality_issues"`
}

// GenerationRecord is one processed creative. It is immutable after save except for
// its telemetry.
type GenerationRecord struct {
	ID             GenerationID        `firestore:"id"`
	ChannelID      string              `firestore:"channel_id"`
	ThreadTS       string              `firestore:"thread_ts"`
	ActorID        string              `firestore:"actor_id"`
	ProfileVersion int                 `firestore:"profile_version"`
	Source         *FileDescriptor     `firestore:"source"`
	SourceURL      string              `firestore:"source_url"`
	SourceContent  string              `firestore:"source_content"`
	SourceType     SourceType          `firestore:"source_type"`
	Variants       []Variant           `firestore:"variants"`
	Analysis       *CompetitorAnalysis `firestore:"analysis"`
	Telemetry      *Telemetry          `firestore:"telemetry"`
	CreatedAt      time.Time           `firestore:"created_at"`
}

// Variant returns the 1-based variant, or an error when the index is out of range.
func (x *GenerationRecord) Variant(index int) (Variant, error) {
	if index < 1 || index > len(x.Variants) {
		return Variant{}, fmt.Errorf("variant %d does not exist (have %d)", index, len(x.Variants))
	}
	return x.Variants[index-1], nil
}
