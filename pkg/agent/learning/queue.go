package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultWorkers    = 2
	DefaultCapacity   = 64
	DefaultRunTimeout = 2 * time.Minute
)

// Runner runs one learning pass for a channel
type Runner interface {
	Run(ctx context.Context, channelID string) (*Outcome, error)
}

// Queue is a bounded background pool for learning runs. A channel that is already
// waiting is not queued twice. Enqueue never blocks.
type Queue struct {
	runner     Runner
	workers    int
	runTimeout time.Duration

	mu      sync.Mutex
	ch      chan string
	pending map[string]bool
	closed  bool
	wg      sync.WaitGroup
	onRun   func(channelID string, out *Outcome, err error)
}

type QueueOption func(*Queue)

func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithCapacity(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan string, n)
		}
	}
}

func WithRunTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.runTimeout = d
		}
	}
}

// WithRunHook is called after every run, including failed ones.
func WithRunHook(fn func(channelID string, out *Outcome, err error)) QueueOption {
	return func(q *Queue) {
		q.onRun = fn
	}
}

func NewQueue(runner Runner, opts ...QueueOption) *Queue {
	q := &Queue{
		runner:     runner,
		workers:    DefaultWorkers,
		runTimeout: DefaultRunTimeout,
		ch:         make(chan string, DefaultCapacity),
		pending:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the workers. ctx carries the logger and cancels in-flight runs.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.work(ctx)
		}()
	}
}

// Enqueue schedules a run for channelID. It returns false when the queue is full or
// stopped; the trigger is then dropped and the next one will pick the evidence up.
func (q *Queue) Enqueue(channelID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || channelID == "" {
		return false
	}
	if q.pending[channelID] {
		return true
	}

	select {
	case q.ch <- channelID:
		q.pending[channelID] = true
		return true
	default:
		return false
	}
}

// Stop stops accepting work, drains queued channels and waits for the workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) work(ctx context.Context) {
	for channelID := range q.ch {
		q.mu.Lock()
		delete(q.pending, channelID)
		q.mu.Unlock()

		q.runOne(ctx, channelID)
	}
}

func (q *Queue) runOne(ctx context.Context, channelID string) {
	logger := logging.From(ctx).With("channel", channelID)
	ctx, cancel := context.WithTimeout(ctx, q.runTimeout)
	defer cancel()

	var (
		out *Outcome
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = goerr.New("learning panic", goerr.V("panic", fmt.Sprint(r)), goerr.V("channel_id", channelID))
			}
		}()
		out, err = q.runner.Run(ctx, channelID)
	}()

	if err != nil {
		logger.Error("learning run failed", logging.ErrAttr(err))
	}
	if q.onRun != nil {
		q.onRun(channelID, out, err)
	}
}
