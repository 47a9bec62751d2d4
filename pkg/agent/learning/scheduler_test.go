package learning_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adforge/copybot/pkg/agent/learning"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/repository"
	"github.com/m-mizutani/gt"
)

type recordingQueue struct {
	accept   bool
	channels []string
}

func (q *recordingQueue) Enqueue(channelID string) bool {
	q.channels = append(q.channels, channelID)
	return q.accept
}

type failingLister struct{}

func (failingLister) ListActiveChannels(ctx context.Context, since time.Time) ([]string, error) {
	return nil, errors.New("unavailable")
}

func TestSchedulerTick(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	for _, g := range []struct {
		channel string
		age     time.Duration
	}{
		{"C1", time.Hour},
		{"C1", 2 * time.Hour},
		{"C2", 48 * time.Hour},
		{"C3", 30 * 24 * time.Hour},
	} {
		gt.NoError(t, repo.PutGeneration(ctx, &model.GenerationRecord{
			ID: model.NewGenerationID(), ChannelID: g.channel, CreatedAt: now.Add(-g.age),
		}))
	}

	q := &recordingQueue{accept: true}
	s := learning.NewScheduler(repo, q, learning.WithWindow(7*24*time.Hour), learning.WithSchedulerClock(clock))
	gt.Equal(t, s.Tick(ctx), 2)
	gt.A(t, q.channels).Length(2)

	full := &recordingQueue{}
	gt.Equal(t, learning.NewScheduler(repo, full, learning.WithSchedulerClock(clock)).Tick(ctx), 0)
	gt.A(t, full.channels).Length(2)

	gt.Equal(t, learning.NewScheduler(failingLister{}, q).Tick(ctx), 0)
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := learning.NewScheduler(repository.NewMemory(), &recordingQueue{}, learning.WithSchedule("not a schedule"))
	gt.Error(t, s.Start(context.Background()))

	ok := learning.NewScheduler(repository.NewMemory(), &recordingQueue{}, learning.WithSchedule("*/5 * * * *"))
	gt.NoError(t, ok.Start(context.Background()))
	ok.Stop(context.Background())
}
