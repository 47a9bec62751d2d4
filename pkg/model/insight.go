package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

type InsightID string

func NewInsightID() InsightID {
	return InsightID(newID())
}

type InsightCategory string

const (
	InsightAnglePreference InsightCategory = "angle_preference"
	InsightStylePattern    InsightCategory = "style_pattern"
	InsightToneDrift       InsightCategory = "tone_drift"
	InsightFormat          InsightCategory = "format_insight"
)

var InsightCategories = []InsightCategory{
	InsightAnglePreference,
	InsightStylePattern,
	InsightToneDrift,
	InsightFormat,
}

func (x InsightCategory) Validate() error {
	for _, c := range InsightCategories {
		if x == c {
			return nil
		}
	}
	return goerr.Wrap(ErrInvalidInsightCategory, "unknown category", goerr.V("category", x))
}

const (
	ReinforceStep = 0.05
	MaxConfidence = 1.0
)

// LearningInsight is a distilled pattern for a channel. Rows are never deleted: a
// superseded insight is deactivated and points at its replacement.
type LearningInsight struct {
	ID               InsightID       `firestore:"id"`
	ChannelID        string          `firestore:"channel_id"`
	Category         InsightCategory `firestore:"category"`
	Insight          string          `firestore:"insight"`
	Confidence       float64         `firestore:"confidence"`
	SampleSize       int             `firestore:"sample_size"`
	Version          int             `firestore:"version"`
	Active           bool            `firestore:"active"`
	SupersededBy     InsightID       `firestore:"superseded_by"`
	CreatedAt        time.Time       `firestore:"created_at"`
	LastReinforcedAt time.Time       `firestore:"last_reinforced_at"`
}

// Reinforce applies one reinforcement in place.
func (x *LearningInsight) Reinforce(now time.Time) {
	x.Confidence += ReinforceStep
	if x.Confidence > MaxConfidence {
		x.Confidence = MaxConfidence
	}
	x.SampleSize++
	x.Version++
	x.LastReinforcedAt = now
}

// ClampConfidence bounds c to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > MaxConfidence:
		return MaxConfidence
	default:
		return c
	}
}
