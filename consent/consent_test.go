package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/t2eerrors"
)

func TestFailClosedWithNoOwner(t *testing.T) {
	s := New()
	src := naming.NewFile("/tmp/a")
	dst := Node("n2")

	decided, err := s.RequestConsent(context.Background(), src, dst, 0)
	require.NoError(t, err)
	require.False(t, decided)
}

func TestOwnerGrantsConsent(t *testing.T) {
	s := New()
	src := naming.NewFile("/tmp/a")
	notifications := s.TakeResourceOwnership(src)
	dst := Node("n2")

	done := make(chan bool, 1)
	go func() {
		decided, err := s.RequestConsent(context.Background(), src, dst, 0)
		require.NoError(t, err)
		done <- decided
	}()

	select {
	case requested := <-notifications:
		require.Equal(t, dst, requested)
		s.SetConsent(src, requested, true)
	case <-time.After(time.Second):
		t.Fatal("owner never notified")
	}

	select {
	case decided := <-done:
		require.True(t, decided)
	case <-time.After(time.Second):
		t.Fatal("requester never resolved")
	}
}

func TestCachedDecisionShortCircuits(t *testing.T) {
	s := New()
	src := naming.NewFile("/tmp/a")
	dst := Node("n2")
	s.SetConsent(src, dst, true)

	decided, err := s.RequestConsent(context.Background(), src, dst, 0)
	require.NoError(t, err)
	require.True(t, decided)
}

func TestNodeLevelGrantUnblocksResourceLevelWaiter(t *testing.T) {
	s := New()
	src := naming.NewFile("/tmp/a")
	s.TakeResourceOwnership(src)

	nodeDst := Node("n2")
	resourceDst := ForResource(naming.NewLocalized("n2", naming.NewFile("/tmp/y")), &nodeDst)

	done := make(chan bool, 1)
	go func() {
		decided, err := s.RequestConsent(context.Background(), src, resourceDst, 0)
		require.NoError(t, err)
		done <- decided
	}()

	// give the waiter time to register before the coarser grant arrives
	time.Sleep(20 * time.Millisecond)
	s.SetConsent(src, nodeDst, true)

	select {
	case decided := <-done:
		require.True(t, decided)
	case <-time.After(time.Second):
		t.Fatal("resource-level waiter was never unblocked by the node-level grant")
	}
}

func TestConsentRequestTimeout(t *testing.T) {
	s := New()
	src := naming.NewFile("/tmp/a")
	s.TakeResourceOwnership(src) // owner exists but never answers
	dst := Node("n2")

	_, err := s.RequestConsent(context.Background(), src, dst, 20*time.Millisecond)
	require.True(t, t2eerrors.IsConsentRequestTimeout(err))
}

func TestContextCancellation(t *testing.T) {
	s := New()
	src := naming.NewFile("/tmp/a")
	s.TakeResourceOwnership(src)
	dst := Node("n2")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.RequestConsent(ctx, src, dst, 0)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("request never observed cancellation")
	}
}
