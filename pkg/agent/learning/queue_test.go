package learning_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adforge/copybot/pkg/agent/learning"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

type runnerFunc func(ctx context.Context, channelID string) (*learning.Outcome, error)

func (f runnerFunc) Run(ctx context.Context, channelID string) (*learning.Outcome, error) {
	return f(ctx, channelID)
}

func TestQueueCoalescesPendingChannel(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	runs := map[string]int{}

	runner := runnerFunc(func(ctx context.Context, channelID string) (*learning.Outcome, error) {
		<-release
		mu.Lock()
		runs[channelID]++
		mu.Unlock()
		return &learning.Outcome{ChannelID: channelID}, nil
	})

	// no workers started yet, so every enqueue stays pending
	q := learning.NewQueue(runner, learning.WithWorkers(1), learning.WithCapacity(4))
	gt.True(t, q.Enqueue("C1"))
	gt.True(t, q.Enqueue("C1"))
	gt.True(t, q.Enqueue("C2"))
	gt.False(t, q.Enqueue(""))

	close(release)
	q.Start(context.Background())
	q.Stop()

	gt.Equal(t, runs["C1"], 1)
	gt.Equal(t, runs["C2"], 1)
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := learning.NewQueue(runnerFunc(func(ctx context.Context, channelID string) (*learning.Outcome, error) {
		return nil, nil
	}), learning.WithCapacity(2))

	gt.True(t, q.Enqueue("C1"))
	gt.True(t, q.Enqueue("C2"))
	gt.False(t, q.Enqueue("C3"))
	q.Stop()
	gt.False(t, q.Enqueue("C4"))
}

func TestQueueRecoversPanicsAndErrors(t *testing.T) {
	var mu sync.Mutex
	var errs []error

	runner := runnerFunc(func(ctx context.Context, channelID string) (*learning.Outcome, error) {
		switch channelID {
		case "panic":
			panic("boom")
		case "error":
			return nil, errors.New("failed")
		}
		return &learning.Outcome{ChannelID: channelID}, nil
	})

	q := learning.NewQueue(runner, learning.WithWorkers(1), learning.WithRunTimeout(time.Second),
		learning.WithRunHook(func(channelID string, out *learning.Outcome, err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}))
	q.Start(context.Background())
	gt.True(t, q.Enqueue("panic"))
	gt.True(t, q.Enqueue("error"))
	gt.True(t, q.Enqueue("ok"))
	q.Stop()

	gt.A(t, errs).Length(3)
	gt.Error(t, errs[0])
	panicErr := goerr.Unwrap(errs[0])
	gt.NotEqual(t, panicErr, nil)
	gt.Equal(t, panicErr.Values()["panic"], any("boom"))
	gt.Equal(t, panicErr.Values()["channel_id"], any("panic"))
	gt.Error(t, errs[1])
	gt.NoError(t, errs[2])
}

func TestQueueRunsAgainAfterPickup(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	var mu sync.Mutex
	count := 0

	runner := runnerFunc(func(ctx context.Context, channelID string) (*learning.Outcome, error) {
		started <- struct{}{}
		<-release
		mu.Lock()
		count++
		mu.Unlock()
		return nil, nil
	})

	q := learning.NewQueue(runner, learning.WithWorkers(1))
	q.Start(context.Background())
	gt.True(t, q.Enqueue("C1"))
	<-started
	// the first run is in flight, so this is a new pending pass
	gt.True(t, q.Enqueue("C1"))
	close(release)
	q.Stop()

	gt.Equal(t, count, 2)
}
