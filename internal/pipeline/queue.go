package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ImageQueue issues page image requests in submission order, spaced by a
// fixed interval, with a bound on requests in flight. Requests may resolve
// in any order.
type ImageQueue struct {
	limiter *rate.Limiter // nil when no spacing is configured
	group   errgroup.Group
}

// NewImageQueue creates a queue whose first issue happens one interval after
// creation, so the n-th submitted task starts at about n × interval.
// maxInFlight <= 0 leaves concurrency unbounded.
func NewImageQueue(interval time.Duration, maxInFlight int) *ImageQueue {
	q := &ImageQueue{}
	if maxInFlight > 0 {
		q.group.SetLimit(maxInFlight)
	}
	if interval > 0 {
		q.limiter = rate.NewLimiter(rate.Every(interval), 1)
		// Drain the initial burst token.
		q.limiter.Allow()
	}
	return q
}

// Submit blocks until the task may be issued, then runs it in the
// background. It returns ctx's error if cancelled before the issue slot
// arrives; the task is not run in that case.
func (q *ImageQueue) Submit(ctx context.Context, task func()) error {
	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			return err
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	q.group.Go(func() error {
		task()
		return nil
	})
	return nil
}

// Wait blocks until every issued task has returned
func (q *ImageQueue) Wait() {
	_ = q.group.Wait()
}
