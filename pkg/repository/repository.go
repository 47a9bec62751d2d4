package repository

import (
	"context"
	"time"

	"github.com/adforge/copybot/pkg/model"
)

// Repository defines persistence for everything the bot reads and writes. Get methods
// return an error wrapping model.ErrNotFound when the record does not exist.
type Repository interface {
	// AdmitEvent records a delivery ID. It returns false when the ID was already admitted.
	AdmitEvent(ctx context.Context, deliveryID string) (bool, error)

	// GetProfile retrieves the voice profile of a channel
	GetProfile(ctx context.Context, channelID string) (*model.VoiceProfile, error)
	// PutProfile upserts the single voice profile of a channel and bumps its version
	PutProfile(ctx context.Context, profile *model.VoiceProfile) error

	GetOnboarding(ctx context.Context, actorID string) (*model.CustomerOnboardingState, error)
	PutOnboarding(ctx context.Context, state *model.CustomerOnboardingState) error

	PutNote(ctx context.Context, note *model.BrandNote) error
	// ListNotes returns notes newest first. An empty kind matches every kind.
	ListNotes(ctx context.Context, channelID string, kind model.NoteKind, limit int) ([]*model.BrandNote, error)

	PutGeneration(ctx context.Context, gen *model.GenerationRecord) error
	GetGenerationByThread(ctx context.Context, channelID, threadTS string) (*model.GenerationRecord, error)
	// ListGenerations returns generations newest first
	ListGenerations(ctx context.Context, channelID string, limit int) ([]*model.GenerationRecord, error)
	CountGenerations(ctx context.Context, channelID string) (int, error)
	UpdateGenerationTelemetry(ctx context.Context, id model.GenerationID, telemetry *model.Telemetry) error
	// ListActiveChannels returns channels that have a generation created at or after since
	ListActiveChannels(ctx context.Context, since time.Time) ([]string, error)

	PutFeedback(ctx context.Context, rec *model.CopyFeedbackRecord) error
	// ListFeedbackByGeneration returns feedback oldest first
	ListFeedbackByGeneration(ctx context.Context, id model.GenerationID) ([]*model.CopyFeedbackRecord, error)
	// ListFeedbackByChannel returns feedback newest first
	ListFeedbackByChannel(ctx context.Context, channelID string, limit int) ([]*model.CopyFeedbackRecord, error)

	PutExemplars(ctx context.Context, exemplars []*model.Exemplar) error
	// ListExemplars returns exemplars ranked by approval time, newest first
	ListExemplars(ctx context.Context, channelID string, limit int) ([]*model.Exemplar, error)

	GetInsight(ctx context.Context, id model.InsightID) (*model.LearningInsight, error)
	ListActiveInsights(ctx context.Context, channelID string) ([]*model.LearningInsight, error)
	// ListInsights returns every insight of a channel, including superseded ones
	ListInsights(ctx context.Context, channelID string) ([]*model.LearningInsight, error)
	PutInsight(ctx context.Context, insight *model.LearningInsight) error
	// ReinforceInsight atomically applies one reinforcement to an active insight
	ReinforceInsight(ctx context.Context, id model.InsightID, now time.Time) (*model.LearningInsight, error)
	// SupersedeInsight atomically inserts next as active and deactivates oldID with a
	// forward pointer to next
	SupersedeInsight(ctx context.Context, oldID model.InsightID, next *model.LearningInsight) error
}
