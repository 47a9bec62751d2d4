package repository

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/adforge/copybot/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collAdmissions  = "admissions"
	collProfiles    = "profiles"
	collOnboarding  = "onboarding"
	collNotes       = "notes"
	collGenerations = "generations"
	collFeedback    = "feedback"
	collExemplars   = "exemplars"
	collInsights    = "insights"
)

// Firestore implements Repository on Cloud Firestore
type Firestore struct {
	client *firestore.Client
}

var _ Repository = (*Firestore)(nil)

// New creates a Firestore repository
func New(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID),
			goerr.V("database", databaseID))
	}
	return &Firestore{client: client}, nil
}

// Close releases the underlying client
func (r *Firestore) Close() error {
	return r.client.Close()
}

type admission struct {
	DeliveryID string    `firestore:"delivery_id"`
	AdmittedAt time.Time `firestore:"admitted_at"`
}

func (r *Firestore) AdmitEvent(ctx context.Context, deliveryID string) (bool, error) {
	ref := r.client.Collection(collAdmissions).Doc(deliveryID)
	_, err := ref.Create(ctx, &admission{DeliveryID: deliveryID, AdmittedAt: time.Now()})
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to admit event", goerr.V("delivery_id", deliveryID))
	}
	return true, nil
}

func (r *Firestore) GetProfile(ctx context.Context, channelID string) (*model.VoiceProfile, error) {
	var profile model.VoiceProfile
	if err := r.get(ctx, r.client.Collection(collProfiles).Doc(channelID), &profile); err != nil {
		return nil, goerr.Wrap(err, "failed to get profile", goerr.V("channel_id", channelID))
	}
	return &profile, nil
}

func (r *Firestore) PutProfile(ctx context.Context, profile *model.VoiceProfile) error {
	ref := r.client.Collection(collProfiles).Doc(profile.ChannelID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		version := 0
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var current model.VoiceProfile
			if err := snap.DataTo(&current); err != nil {
				return err
			}
			version = current.Version
		}

		profile.Version = version + 1
		profile.UpdatedAt = time.Now()
		return tx.Set(ref, profile)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to put profile", goerr.V("channel_id", profile.ChannelID))
	}
	return nil
}

func (r *Firestore) GetOnboarding(ctx context.Context, actorID string) (*model.CustomerOnboardingState, error) {
	var state model.CustomerOnboardingState
	if err := r.get(ctx, r.client.Collection(collOnboarding).Doc(actorID), &state); err != nil {
		return nil, goerr.Wrap(err, "failed to get onboarding state", goerr.V("actor_id", actorID))
	}
	return &state, nil
}

func (r *Firestore) PutOnboarding(ctx context.Context, state *model.CustomerOnboardingState) error {
	if _, err := r.client.Collection(collOnboarding).Doc(state.ActorID).Set(ctx, state); err != nil {
		return goerr.Wrap(err, "failed to put onboarding state", goerr.V("actor_id", state.ActorID))
	}
	return nil
}

func (r *Firestore) PutNote(ctx context.Context, note *model.BrandNote) error {
	if _, err := r.client.Collection(collNotes).Doc(string(note.ID)).Set(ctx, note); err != nil {
		return goerr.Wrap(err, "failed to put note", goerr.V("note_id", note.ID))
	}
	return nil
}

func (r *Firestore) ListNotes(ctx context.Context, channelID string, kind model.NoteKind, limit int) ([]*model.BrandNote, error) {
	q := r.client.Collection(collNotes).Where("channel_id", "==", channelID)
	if kind != "" {
		q = q.Where("kind", "==", string(kind))
	}
	q = q.OrderBy("created_at", firestore.Desc).Limit(limit)

	notes, err := collect[model.BrandNote](ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list notes", goerr.V("channel_id", channelID))
	}
	return notes, nil
}

func (r *Firestore) PutGeneration(ctx context.Context, gen *model.GenerationRecord) error {
	if _, err := r.client.Collection(collGenerations).Doc(string(gen.ID)).Create(ctx, gen); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return goerr.Wrap(model.ErrAlreadyExists, "generation is immutable", goerr.V("generation_id", gen.ID))
		}
		return goerr.Wrap(err, "failed to put generation", goerr.V("generation_id", gen.ID))
	}
	return nil
}

func (r *Firestore) GetGenerationByThread(ctx context.Context, channelID, threadTS string) (*model.GenerationRecord, error) {
	q := r.client.Collection(collGenerations).
		Where("channel_id", "==", channelID).
		Where("thread_ts", "==", threadTS).
		Limit(1)

	gens, err := collect[model.GenerationRecord](ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get generation by thread",
			goerr.V("channel_id", channelID), goerr.V("thread_ts", threadTS))
	}
	if len(gens) == 0 {
		return nil, goerr.Wrap(model.ErrNotFound, "generation not found",
			goerr.V("channel_id", channelID), goerr.V("thread_ts", threadTS))
	}
	return gens[0], nil
}

func (r *Firestore) ListGenerations(ctx context.Context, channelID string, limit int) ([]*model.GenerationRecord, error) {
	q := r.client.Collection(collGenerations).
		Where("channel_id", "==", channelID).
		OrderBy("created_at", firestore.Desc).
		Limit(limit)

	gens, err := collect[model.GenerationRecord](ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list generations", goerr.V("channel_id", channelID))
	}
	return gens, nil
}

func (r *Firestore) CountGenerations(ctx context.Context, channelID string) (int, error) {
	q := r.client.Collection(collGenerations).Where("channel_id", "==", channelID)
	res, err := q.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count generations", goerr.V("channel_id", channelID))
	}
	v, ok := res["count"].(*firestorepb.Value)
	if !ok {
		return 0, goerr.New("unexpected count result", goerr.V("result", res))
	}
	return int(v.GetIntegerValue()), nil
}

func (r *Firestore) UpdateGenerationTelemetry(ctx context.Context, id model.GenerationID, telemetry *model.Telemetry) error {
	ref := r.client.Collection(collGenerations).Doc(string(id))
	if _, err := ref.Update(ctx, []firestore.Update{{Path: "telemetry", Value: telemetry}}); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNotFound, "generation not found", goerr.V("generation_id", id))
		}
		return goerr.Wrap(err, "failed to update telemetry", goerr.V("generation_id", id))
	}
	return nil
}

func (r *Firestore) ListActiveChannels(ctx context.Context, since time.Time) ([]string, error) {
	iter := r.client.Collection(collGenerations).
		Where("created_at", ">=", since).
		Select("channel_id").
		Documents(ctx)
	defer iter.Stop()

	seen := make(map[string]struct{})
	var channels []string
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list active channels")
		}
		v, err := doc.DataAt("channel_id")
		if err != nil {
			continue
		}
		ch, ok := v.(string)
		if !ok || ch == "" {
			continue
		}
		if _, dup := seen[ch]; !dup {
			seen[ch] = struct{}{}
			channels = append(channels, ch)
		}
	}
	return channels, nil
}

func (r *Firestore) PutFeedback(ctx context.Context, rec *model.CopyFeedbackRecord) error {
	if _, err := r.client.Collection(collFeedback).Doc(string(rec.ID)).Create(ctx, rec); err != nil {
		return goerr.Wrap(err, "failed to put feedback", goerr.V("feedback_id", rec.ID))
	}
	return nil
}

func (r *Firestore) ListFeedbackByGeneration(ctx context.Context, id model.GenerationID) ([]*model.CopyFeedbackRecord, error) {
	q := r.client.Collection(collFeedback).
		Where("generation_id", "==", string(id)).
		OrderBy("created_at", firestore.Asc)

	recs, err := collect[model.CopyFeedbackRecord](ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list feedback", goerr.V("generation_id", id))
	}
	return recs, nil
}

func (r *Firestore) ListFeedbackByChannel(ctx context.Context, channelID string, limit int) ([]*model.CopyFeedbackRecord, error) {
	q := r.client.Collection(collFeedback).
		Where("channel_id", "==", channelID).
		OrderBy("created_at", firestore.Desc).
		Limit(limit)

	recs, err := collect[model.CopyFeedbackRecord](ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list feedback", goerr.V("channel_id", channelID))
	}
	return recs, nil
}

func (r *Firestore) PutExemplars(ctx context.Context, exemplars []*model.Exemplar) error {
	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(exemplars))
	for _, ex := range exemplars {
		job, err := bw.Set(r.client.Collection(collExemplars).Doc(string(ex.ID)), ex)
		if err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue exemplar", goerr.V("exemplar_id", ex.ID))
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(err, "failed to write exemplar", goerr.V("exemplar_id", exemplars[i].ID))
		}
	}
	return nil
}

func (r *Firestore) ListExemplars(ctx context.Context, channelID string, limit int) ([]*model.Exemplar, error) {
	q := r.client.Collection(collExemplars).
		Where("channel_id", "==", channelID).
		OrderBy("approved_at", firestore.Desc).
		Limit(limit)

	exemplars, err := collect[model.Exemplar](ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list exemplars", goerr.V("channel_id", channelID))
	}
	return exemplars, nil
}

func (r *Firestore) GetInsight(ctx context.Context, id model.InsightID) (*model.LearningInsight, error) {
	var insight model.LearningInsight
	if err := r.get(ctx, r.client.Collection(collInsights).Doc(string(id)), &insight); err != nil {
		return nil, goerr.Wrap(err, "failed to get insight", goerr.V("insight_id", id))
	}
	return &insight, nil
}

func (r *Firestore) ListActiveInsights(ctx context.Context, channelID string) ([]*model.LearningInsight, error) {
	q := r.client.Collection(collInsights).
		Where("channel_id", "==", channelID).
		Where("active", "==", true).
		OrderBy("confidence", firestore.Desc)

	insights, err := collect[model.LearningInsight](ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list active insights", goerr.V("channel_id", channelID))
	}
	return insights, nil
}

func (r *Firestore) ListInsights(ctx context.Context, channelID string) ([]*model.LearningInsight, error) {
	q := r.client.Collection(collInsights).
		Where("channel_id", "==", channelID).
		OrderBy("created_at", firestore.Asc)

	insights, err := collect[model.LearningInsight](ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list insights", goerr.V("channel_id", channelID))
	}
	return insights, nil
}

func (r *Firestore) PutInsight(ctx context.Context, insight *model.LearningInsight) error {
	if _, err := r.client.Collection(collInsights).Doc(string(insight.ID)).Create(ctx, insight); err != nil {
		return goerr.Wrap(err, "failed to put insight", goerr.V("insight_id", insight.ID))
	}
	return nil
}

func (r *Firestore) ReinforceInsight(ctx context.Context, id model.InsightID, now time.Time) (*model.LearningInsight, error) {
	ref := r.client.Collection(collInsights).Doc(string(id))
	var updated model.LearningInsight

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNotFound, "insight not found")
		}
		if err != nil {
			return err
		}
		if err := snap.DataTo(&updated); err != nil {
			return err
		}
		if !updated.Active {
			return goerr.Wrap(model.ErrInsightInactive, "cannot reinforce superseded insight")
		}

		updated.Reinforce(now)
		return tx.Set(ref, &updated)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to reinforce insight", goerr.V("insight_id", id))
	}
	return &updated, nil
}

func (r *Firestore) SupersedeInsight(ctx context.Context, oldID model.InsightID, next *model.LearningInsight) error {
	oldRef := r.client.Collection(collInsights).Doc(string(oldID))
	nextRef := r.client.Collection(collInsights).Doc(string(next.ID))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(oldRef)
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNotFound, "insight not found")
		}
		if err != nil {
			return err
		}
		var old model.LearningInsight
		if err := snap.DataTo(&old); err != nil {
			return err
		}
		if !old.Active {
			return goerr.Wrap(model.ErrInsightInactive, "insight already superseded",
				goerr.V("superseded_by", old.SupersededBy))
		}

		next.Active = true
		next.Version = 1
		if err := tx.Create(nextRef, next); err != nil {
			return err
		}
		return tx.Update(oldRef, []firestore.Update{
			{Path: "active", Value: false},
			{Path: "superseded_by", Value: next.ID},
		})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to supersede insight",
			goerr.V("old_id", oldID), goerr.V("new_id", next.ID))
	}
	return nil
}

func (r *Firestore) get(ctx context.Context, ref *firestore.DocumentRef, dst any) error {
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("path", ref.Path))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to get document", goerr.V("path", ref.Path))
	}
	if err := snap.DataTo(dst); err != nil {
		return goerr.Wrap(err, "failed to decode document", goerr.V("path", ref.Path))
	}
	return nil
}

func collect[T any](ctx context.Context, q firestore.Query) ([]*T, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*T
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate documents")
		}
		var v T
		if err := doc.DataTo(&v); err != nil {
			return nil, goerr.Wrap(err, "failed to decode document", goerr.V("id", doc.Ref.ID))
		}
		out = append(out, &v)
	}
	return out, nil
}
