// Package waitqueue composes a retry-with-backpressure discipline on top
// of the fail-fast sequencer.Sequencer, per spec §4.1's "waiting-queue
// layer (composable)": a per-resource FIFO of single-shot wakers, woken
// one-at-a-time as endpoints become idle, under a bounded retry budget.
//
// Grounded on go.ref's runtimes/google/lib/publisher single-goroutine
// command-loop idiom for "never hold a lock across a channel send" — here
// the equivalent discipline is simpler (wakers are plain channels, never
// sent on: a waker is dequeued under the queue's own mutex and closed
// after that mutex is released), but the rule is the same
// one named in spec §5: no data-structure lock may be held across a
// suspension point.
package waitqueue

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/sequencer"
	"github.com/trace2e/t2ecore/t2eerrors"
)

// Queue wraps a sequencer.Sequencer with a waiting discipline.
type Queue struct {
	seq        *sequencer.Sequencer
	maxRetries int // 0 disables the layer: ReserveFlow behaves fail-fast.

	mu      sync.Mutex
	waiters map[naming.Resource][]chan struct{}

	log *logrus.Entry
}

// New wraps seq with a waiting-queue layer. maxRetries bounds how many
// times one ReserveFlow call waits and retries after a failed attempt, so
// a call makes at most maxRetries+1 reserve attempts; 0 disables waiting
// entirely (the layer degenerates to the bare sequencer).
func New(seq *sequencer.Sequencer, maxRetries int, log *logrus.Entry) *Queue {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Queue{
		seq:        seq,
		maxRetries: maxRetries,
		waiters:    make(map[naming.Resource][]chan struct{}),
		log:        log.WithField("component", "sequencer.waitqueue"),
	}
}

// enqueue registers a single-shot waker for resource and returns it. The
// caller must eventually either receive from it (it closes on wake) or
// have it removed by a matching deque in the error path of a context
// cancellation; leaked wakers are harmless (closed channels are GC'd once
// unreferenced) since release always closes every outstanding waker it
// wakes.
func (q *Queue) enqueue(resource naming.Resource) chan struct{} {
	ch := make(chan struct{})
	q.mu.Lock()
	q.waiters[resource] = append(q.waiters[resource], ch)
	q.mu.Unlock()
	return ch
}

// wakeOne closes (and dequeues) the oldest waiter for resource, if any.
func (q *Queue) wakeOne(resource naming.Resource) {
	q.mu.Lock()
	queue := q.waiters[resource]
	if len(queue) == 0 {
		q.mu.Unlock()
		return
	}
	ch := queue[0]
	rest := queue[1:]
	if len(rest) == 0 {
		delete(q.waiters, resource)
	} else {
		q.waiters[resource] = rest
	}
	q.mu.Unlock()
	close(ch)
}

// ReserveFlow reserves source -> destination, retrying against the
// waiting queue on Unavailable* errors until either the reservation
// succeeds, maxRetries is exhausted (ReachedMaxRetriesWaitingQueue), or
// ctx is done (the external cancellation-budget timeout layer named in
// spec §4.1/§5).
func (q *Queue) ReserveFlow(ctx context.Context, source, destination naming.Resource) error {
	attempts := 0
	for {
		err := q.seq.ReserveFlow(source, destination)
		if err == nil {
			return nil
		}
		if q.maxRetries == 0 {
			return err
		}
		attempts++
		if attempts > q.maxRetries {
			q.log.WithFields(logrus.Fields{"source": source, "destination": destination}).Debug("reservation denied: reached max retries")
			return t2eerrors.ReachedMaxRetriesWaitingQueue(attempts - 1)
		}

		var wakers []chan struct{}
		switch {
		case t2eerrors.IsUnavailableSourceAndDestination(err):
			wakers = []chan struct{}{q.enqueue(source), q.enqueue(destination)}
		case t2eerrors.IsUnavailableSource(err):
			wakers = []chan struct{}{q.enqueue(source)}
		case t2eerrors.IsUnavailableDestination(err):
			wakers = []chan struct{}{q.enqueue(destination)}
		default:
			return err
		}

		if werr := q.awaitAny(ctx, wakers); werr != nil {
			return werr
		}
	}
}

// awaitAny blocks until any one of wakers closes or ctx is done.
func (q *Queue) awaitAny(ctx context.Context, wakers []chan struct{}) error {
	if len(wakers) == 1 {
		select {
		case <-wakers[0]:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	var once sync.Once
	for _, w := range wakers {
		go func(w chan struct{}) {
			select {
			case <-w:
				once.Do(func() { close(done) })
			case <-done:
			}
		}(w)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsWritable reports whether resource currently has neither a writer nor
// any readers, delegating to the wrapped Sequencer.
func (q *Queue) IsWritable(resource naming.Resource) bool {
	return q.seq.IsWritable(resource)
}

// ReleaseFlow releases destination, given the source of the flow being
// released (the P2M orchestrator always has both endpoints of the flow it
// is releasing), and wakes one waiter per endpoint that became idle.
func (q *Queue) ReleaseFlow(source, destination naming.Resource) sequencer.Released {
	released := q.seq.ReleaseFlow(destination)
	if released.DestinationBecameIdle {
		q.wakeOne(destination)
	}
	if released.SourceBecameIdle {
		q.wakeOne(source)
	}
	return released
}
