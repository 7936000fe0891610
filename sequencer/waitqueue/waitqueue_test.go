package waitqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/sequencer"
	"github.com/trace2e/t2ecore/t2eerrors"
)

func TestZeroMaxRetriesIsFailFast(t *testing.T) {
	q := New(sequencer.New(nil), 0, nil)
	a := naming.NewFile("/tmp/a")
	b := naming.NewFile("/tmp/b")
	c := naming.NewFile("/tmp/c")

	require.NoError(t, q.ReserveFlow(context.Background(), a, b))
	err := q.ReserveFlow(context.Background(), c, b)
	require.True(t, t2eerrors.IsUnavailableDestination(err))
}

func TestWaiterWokenOnRelease(t *testing.T) {
	q := New(sequencer.New(nil), 5, nil)
	a := naming.NewFile("/tmp/a")
	b := naming.NewFile("/tmp/b")
	c := naming.NewFile("/tmp/c")

	require.NoError(t, q.ReserveFlow(context.Background(), a, b))

	done := make(chan error, 1)
	go func() {
		done <- q.ReserveFlow(context.Background(), c, b)
	}()

	// give the waiter time to enqueue
	time.Sleep(20 * time.Millisecond)
	q.ReleaseFlow(a, b)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken")
	}
}

func TestMaxRetriesExhausted(t *testing.T) {
	q := New(sequencer.New(nil), 2, nil)
	a := naming.NewFile("/tmp/a")
	b := naming.NewFile("/tmp/b")
	c := naming.NewFile("/tmp/c")

	require.NoError(t, q.ReserveFlow(context.Background(), a, b))

	done := make(chan error, 1)
	go func() {
		done <- q.ReserveFlow(context.Background(), c, b)
	}()

	// b stays reserved: every wake-up without a release makes the waiter
	// retry and fail again, until its retry budget is spent
	deadline := time.After(time.Second)
	for {
		select {
		case err := <-done:
			require.True(t, t2eerrors.IsReachedMaxRetriesWaitingQueue(err))
			return
		case <-deadline:
			t.Fatal("retry budget was never exhausted")
		case <-time.After(5 * time.Millisecond):
			q.wakeOne(b)
		}
	}
}

func TestExternalTimeoutPropagates(t *testing.T) {
	q := New(sequencer.New(nil), 1000, nil)
	a := naming.NewFile("/tmp/a")
	b := naming.NewFile("/tmp/b")
	c := naming.NewFile("/tmp/c")

	require.NoError(t, q.ReserveFlow(context.Background(), a, b))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.ReserveFlow(ctx, c, b)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentContentionNoDeadlock(t *testing.T) {
	q := New(sequencer.New(nil), 50, nil)
	files := make([]naming.Resource, 10)
	for i := range files {
		files[i] = naming.NewFile(string(rune('a' + i)))
	}

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				src := files[i%len(files)]
				dst := files[(i+1)%len(files)]
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := q.ReserveFlow(ctx, src, dst); err == nil {
					q.ReleaseFlow(src, dst)
				}
				cancel()
			}
		}(p)
	}
	wg.Wait()
}
