package learning

import (
	"context"
	"time"

	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "@every 6h"
	DefaultWindow   = 7 * 24 * time.Hour
	stopTimeout     = 10 * time.Second
)

// ChannelLister returns channels with generations since a point in time
type ChannelLister interface {
	ListActiveChannels(ctx context.Context, since time.Time) ([]string, error)
}

// Enqueuer accepts a channel for a learning run
type Enqueuer interface {
	Enqueue(channelID string) bool
}

// Scheduler periodically enqueues every recently active channel.
type Scheduler struct {
	lister   ChannelLister
	queue    Enqueuer
	schedule string
	window   time.Duration
	now      func() time.Time
	cron     *cron.Cron
}

type SchedulerOption func(*Scheduler)

func WithSchedule(spec string) SchedulerOption {
	return func(s *Scheduler) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

func WithWindow(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.window = d
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

func NewScheduler(lister ChannelLister, queue Enqueuer, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		lister:   lister,
		queue:    queue,
		schedule: DefaultSchedule,
		window:   DefaultWindow,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the job and starts the cron runner. The schedule uses five fields or a
// descriptor such as "@every 6h".
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	if _, err := s.cron.AddFunc(s.schedule, func() { s.Tick(ctx) }); err != nil {
		return goerr.Wrap(err, "invalid learning schedule", goerr.V("schedule", s.schedule))
	}
	s.cron.Start()
	logging.From(ctx).Info("learning scheduler started", "schedule", s.schedule, "window", s.window)
	return nil
}

// Tick enqueues every channel with generations inside the window. It returns the number
// of channels accepted by the queue.
func (s *Scheduler) Tick(ctx context.Context) int {
	logger := logging.From(ctx)
	channels, err := s.lister.ListActiveChannels(ctx, s.now().Add(-s.window))
	if err != nil {
		logger.Error("failed to list active channels", logging.ErrAttr(err))
		return 0
	}

	accepted := 0
	for _, ch := range channels {
		if s.queue.Enqueue(ch) {
			accepted++
		} else {
			logger.Warn("learning queue full, channel skipped", "channel", ch)
		}
	}
	logger.Debug("learning tick", "channels", len(channels), "accepted", accepted)
	return accepted
}

func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(stopTimeout):
		logging.From(ctx).Warn("learning scheduler stop timed out")
	}
}
