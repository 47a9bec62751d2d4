package model

import "time"

type Maturity string

const (
	MaturityNew        Maturity = "new"
	MaturityOnboarding Maturity = "onboarding"
	MaturityActive     Maturity = "active"
)

// activeGenerationThreshold is the generation count from which a channel is active.
const activeGenerationThreshold = 5

// MaturityFor derives the channel maturity tier from its generation count.
func MaturityFor(generations int) Maturity {
	switch {
	case generations <= 0:
		return MaturityNew
	case generations < activeGenerationThreshold:
		return MaturityOnboarding
	default:
		return MaturityActive
	}
}

// HistoryMessage is one message of a chat thread.
type HistoryMessage struct {
	UserID    string
	Text      string
	IsBot     bool
	Timestamp string
}

// BrandContext is the per-dispatch read-mostly snapshot handed to agents. It is a view over
// durable records and is never stored.
type BrandContext struct {
	ChannelID   string
	Profile     *VoiceProfile
	Notes       string
	Generation  *GenerationRecord
	Feedback    []*CopyFeedbackRecord
	Insights    string
	InsightRows []*LearningInsight
	Exemplars   []*Exemplar
	History     []HistoryMessage
	Onboarding  *CustomerOnboardingState
	Generations int
	Maturity    Maturity
	LoadedAt    time.Time
}

// LastBotMessage returns the most recent bot-authored history message, if any.
func (x *BrandContext) LastBotMessage() *HistoryMessage {
	for i := len(x.History) - 1; i >= 0; i-- {
		if x.History[i].IsBot {
			return &x.History[i]
		}
	}
	return nil
}
