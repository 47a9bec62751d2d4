package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

type FeedbackID string

func NewFeedbackID() FeedbackID {
	return FeedbackID(newID())
}

type FeedbackAction string

const (
	FeedbackApproved      FeedbackAction = "approved"
	FeedbackRevised       FeedbackAction = "revised"
	FeedbackRejected      FeedbackAction = "rejected"
	FeedbackClarification FeedbackAction = "clarification_requested"
)

func (x FeedbackAction) Validate() error {
	switch x {
	case FeedbackApproved, FeedbackRevised, FeedbackRejected, FeedbackClarification:
		return nil
	default:
		return goerr.Wrap(ErrInvalidFeedbackAction, "unknown action", goerr.V("action", x))
	}
}

// CopyFeedbackRecord is an append-only audit entry of feedback against a generation.
type CopyFeedbackRecord struct {
	ID           FeedbackID     `firestore:"id"`
	GenerationID GenerationID   `firestore:"generation_id"`
	ChannelID    string         `firestore:"channel_id"`
	ActorID      string         `firestore:"actor_id"`
	Action       FeedbackAction `firestore:"action"`
	// VariantIndex is 1-based; nil means the whole set.
	VariantIndex *int      `firestore:"variant_index"`
	Before       *Variant  `firestore:"before"`
	After        *Variant  `firestore:"after"`
	Comment      string    `firestore:"comment"`
	Rationale    string    `firestore:"rationale"`
	CreatedAt    time.Time `firestore:"created_at"`
}

// ApplyRevisions returns the generation's variants with every revised feedback applied in
// order. Records are expected oldest first.
func ApplyRevisions(gen *GenerationRecord, records []*CopyFeedbackRecord) []Variant {
	current := make([]Variant, len(gen.Variants))
	copy(current, gen.Variants)
	for _, r := range records {
		if r.Action != FeedbackRevised || r.After == nil || r.VariantIndex == nil {
			continue
		}
		idx := *r.VariantIndex
		if idx < 1 || idx > len(current) {
			continue
		}
		current[idx-1] = *r.After
	}
	return current
}

type ExemplarID string

func NewExemplarID() ExemplarID {
	return ExemplarID(newID())
}

// Exemplar is an approved variant kept as a few-shot reference.
type Exemplar struct {
	ID           ExemplarID   `firestore:"id"`
	ChannelID    string       `firestore:"channel_id"`
	GenerationID GenerationID `firestore:"generation_id"`
	VariantIndex int          `firestore:"variant_index"`
	Variant      Variant      `firestore:"variant"`
	SourceType   SourceType   `firestore:"source_type"`
	ApprovedAt   time.Time    `firestore:"approved_at"`
}
