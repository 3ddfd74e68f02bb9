package buildmeta

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/majorcontext/nupush/internal/log"
)

const maxConcurrentPosts = 4

// Tracker runs build association posts in the background. A failed post is
// logged when the tracker is drained and never fails the caller.
type Tracker struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu       sync.Mutex
	failures []error
}

// NewTracker returns a tracker whose tasks stop when ctx is done or Cancel
// is called.
func NewTracker(ctx context.Context) *Tracker {
	ctx, cancel := context.WithCancel(ctx)
	t := &Tracker{ctx: ctx, cancel: cancel}
	t.group.SetLimit(maxConcurrentPosts)
	return t
}

// Submit schedules fn. It may block while the concurrency limit is reached.
func (t *Tracker) Submit(fn func(ctx context.Context) error) {
	t.group.Go(func() error {
		if err := fn(t.ctx); err != nil {
			t.mu.Lock()
			t.failures = append(t.failures, err)
			t.mu.Unlock()
		}
		return nil
	})
}

// Cancel aborts outstanding tasks.
func (t *Tracker) Cancel() {
	t.cancel()
}

// Wait blocks until every submitted task has finished, logs each failure and
// returns them.
func (t *Tracker) Wait() []error {
	_ = t.group.Wait()
	t.cancel()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, err := range t.failures {
		log.Warn("build metadata association failed", "error", err)
	}
	return append([]error(nil), t.failures...)
}
