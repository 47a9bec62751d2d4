// Package brand assembles the per-event BrandContext snapshot.
package brand

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/repository"
	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
)

const (
	ExemplarLimit = 5
	HistoryLimit  = 20
	NoteLimit     = 30
)

// Assembler loads everything an agent may read for one event
type Assembler struct {
	repo  repository.Repository
	slack adapter.Slack
	now   func() time.Time
}

type Option func(*Assembler)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		a.now = now
	}
}

// New creates an Assembler. slack may be nil, in which case thread history is not loaded.
func New(repo repository.Repository, slack adapter.Slack, opts ...Option) *Assembler {
	a := &Assembler{
		repo:  repo,
		slack: slack,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble loads the snapshot for ev. Lookups run concurrently; any store failure fails the
// whole snapshot except thread history, which is optional.
func (a *Assembler) Assemble(ctx context.Context, ev *model.EventContext) (*model.BrandContext, error) {
	bc := &model.BrandContext{
		ChannelID: ev.ChannelID,
		LoadedAt:  a.now(),
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		profile, err := a.repo.GetProfile(ctx, ev.ChannelID)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to load voice profile")
		}
		bc.Profile = profile
		return nil
	})

	eg.Go(func() error {
		notes, err := a.repo.ListNotes(ctx, ev.ChannelID, model.NoteKindContext, NoteLimit)
		if err != nil {
			return goerr.Wrap(err, "failed to load brand notes")
		}
		bc.Notes = JoinNotes(notes)
		return nil
	})

	eg.Go(func() error {
		insights, err := a.repo.ListActiveInsights(ctx, ev.ChannelID)
		if err != nil {
			return goerr.Wrap(err, "failed to load insights")
		}
		bc.InsightRows = insights
		bc.Insights = FlattenInsights(insights)
		return nil
	})

	eg.Go(func() error {
		exemplars, err := a.repo.ListExemplars(ctx, ev.ChannelID, ExemplarLimit)
		if err != nil {
			return goerr.Wrap(err, "failed to load exemplars")
		}
		bc.Exemplars = exemplars
		return nil
	})

	eg.Go(func() error {
		count, err := a.repo.CountGenerations(ctx, ev.ChannelID)
		if err != nil {
			return goerr.Wrap(err, "failed to count generations")
		}
		bc.Generations = count
		bc.Maturity = model.MaturityFor(count)
		return nil
	})

	if ev.ActorID != "" {
		eg.Go(func() error {
			state, err := a.repo.GetOnboarding(ctx, ev.ActorID)
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			if err != nil {
				return goerr.Wrap(err, "failed to load onboarding state")
			}
			bc.Onboarding = state
			return nil
		})
	}

	if ev.IsThread {
		eg.Go(func() error {
			gen, err := a.repo.GetGenerationByThread(ctx, ev.ChannelID, ev.ParentTS)
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			if err != nil {
				return goerr.Wrap(err, "failed to load thread generation")
			}
			feedback, err := a.repo.ListFeedbackByGeneration(ctx, gen.ID)
			if err != nil {
				return goerr.Wrap(err, "failed to load generation feedback")
			}
			bc.Generation = gen
			bc.Feedback = feedback
			return nil
		})

		if a.slack != nil {
			eg.Go(func() error {
				history, err := a.slack.ThreadHistory(ctx, ev.ChannelID, ev.ParentTS, HistoryLimit)
				if err != nil {
					logging.From(ctx).Warn("failed to load thread history", logging.ErrAttr(err),
						"channel", ev.ChannelID, "thread_ts", ev.ParentTS)
					return nil
				}
				bc.History = history
				return nil
			})
		}
	}

	if err := eg.Wait(); err != nil {
		return nil, goerr.Wrap(err, "failed to assemble brand context",
			goerr.V("channel_id", ev.ChannelID), goerr.V("parent_ts", ev.ParentTS))
	}
	return bc, nil
}

// JoinNotes concatenates notes oldest first.
func JoinNotes(notes []*model.BrandNote) string {
	lines := make([]string, 0, len(notes))
	for i := len(notes) - 1; i >= 0; i-- {
		if t := strings.TrimSpace(notes[i].Text); t != "" {
			lines = append(lines, "- "+t)
		}
	}
	return strings.Join(lines, "\n")
}

// FlattenInsights renders active insights as prompt lines, highest confidence first as
// returned by the store.
func FlattenInsights(insights []*model.LearningInsight) string {
	lines := make([]string, 0, len(insights))
	for _, in := range insights {
		if !in.Active {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [%s, confidence %.2f] %s", in.Category, in.Confidence, in.Insight))
	}
	return strings.Join(lines, "\n")
}
