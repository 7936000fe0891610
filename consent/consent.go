// Package consent is the owner-driven grant/deny sub-service from spec
// §4.4: an owner calls TakeResourceOwnership to receive a notification
// channel of Destinations requesting consent for flows out of a resource
// they own; requesters call RequestConsent and block until a decision
// arrives (or a timeout, or a fail-closed default when no owner exists).
//
// The critical ownership discipline (spec §4.4, §5): notification senders
// and decision channels are always cloned out of the guarding mutex
// before any blocking send/receive, so a slow or absent owner can never
// stall another request's access to the registry. This is the same
// invariant go.ref's publisher package observes by funneling all state
// mutation through a single command-loop goroutine
// (runtimes/google/lib/publisher.runLoop) so that no caller ever blocks
// while holding the publisher's internal state; here the equivalent
// guarantee is achieved directly, by never performing a channel operation
// while mu is held.
package consent

import (
	"context"
	"sync"
	"time"

	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/t2eerrors"
)

// notificationBuffer bounds how many outstanding requests an owner can
// have queued before RequestConsent's publish step blocks; sized
// generously since a stalled owner is a caller problem the timeout option
// (or the lack of one) already covers, not a reason to add unbounded
// buffering here.
const notificationBuffer = 64

type waiter struct {
	source      naming.Resource
	destination Destination
	ch          chan bool
}

// Service is the Consent sub-service.
type Service struct {
	mu sync.Mutex

	owners    map[naming.Resource]chan Destination
	decisions map[string]bool // key: source.String()+"|"+destination.Key()
	waiters   map[naming.Resource][]*waiter
}

// New creates an empty consent Service.
func New() *Service {
	return &Service{
		owners:    make(map[naming.Resource]chan Destination),
		decisions: make(map[string]bool),
		waiters:   make(map[naming.Resource][]*waiter),
	}
}

func decisionKey(source naming.Resource, destination Destination) string {
	return source.String() + "|" + destination.Key()
}

// TakeResourceOwnership registers the caller as the owner of resource and
// returns the channel of Destinations it must decide on via SetConsent.
// Re-taking ownership of a resource replaces the previous channel (the
// prior owner, if any, stops receiving new requests — it is the caller's
// responsibility to have at most one active owner per resource, as the
// spec leaves multi-owner semantics undefined).
func (s *Service) TakeResourceOwnership(resource naming.Resource) <-chan Destination {
	ch := make(chan Destination, notificationBuffer)
	s.mu.Lock()
	s.owners[resource] = ch
	s.mu.Unlock()
	return ch
}

// RequestConsent resolves a consent decision for source -> destination.
// Resolution order (spec §4.4):
//  1. Walk destination's hierarchy, most specific to least; the first
//     cached decision wins.
//  2. If nothing is cached and no owner is registered for source, fail
//     closed (false, nil error).
//  3. Otherwise publish destination to the owner and await a decision,
//     honoring timeout (0 = unbounded).
func (s *Service) RequestConsent(ctx context.Context, source naming.Resource, destination Destination, timeout time.Duration) (bool, error) {
	if decided, ok := s.cachedDecision(source, destination); ok {
		return decided, nil
	}

	s.mu.Lock()
	ownerCh, hasOwner := s.owners[source]
	if !hasOwner {
		s.mu.Unlock()
		return false, nil
	}
	w := &waiter{source: source, destination: destination, ch: make(chan bool, 1)}
	s.waiters[source] = append(s.waiters[source], w)
	s.mu.Unlock() // never hold mu across the notify/await below

	select {
	case ownerCh <- destination:
	case <-ctx.Done():
		s.removeWaiter(source, w)
		return false, ctx.Err()
	}

	return s.awaitDecision(ctx, source, w, timeout)
}

func (s *Service) awaitDecision(ctx context.Context, source naming.Resource, w *waiter, timeout time.Duration) (bool, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case decided := <-w.ch:
		return decided, nil
	case <-timeoutCh:
		s.removeWaiter(source, w)
		return false, t2eerrors.ConsentRequestTimeout()
	case <-ctx.Done():
		s.removeWaiter(source, w)
		return false, ctx.Err()
	}
}

func (s *Service) cachedDecision(source naming.Resource, destination Destination) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, level := range destination.Chain() {
		if v, ok := s.decisions[decisionKey(source, level)]; ok {
			return v, true
		}
	}
	return false, false
}

func (s *Service) removeWaiter(source naming.Resource, target *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.waiters[source]
	for i, w := range list {
		if w == target {
			s.waiters[source] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// SetConsent caches consent for source -> destination and resolves any
// matching waiters: the exact waiter for destination, plus any waiter
// whose requested destination's hierarchy includes destination (so a
// Node-level decision unblocks pending Resource-level requests scoped
// under that node, per spec §4.4).
func (s *Service) SetConsent(source naming.Resource, destination Destination, decision bool) {
	s.mu.Lock()
	s.decisions[decisionKey(source, destination)] = decision

	var toResolve []*waiter
	remaining := s.waiters[source][:0:0]
	for _, w := range s.waiters[source] {
		if w.destination.includes(destination) {
			toResolve = append(toResolve, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	if len(remaining) == 0 {
		delete(s.waiters, source)
	} else {
		s.waiters[source] = remaining
	}
	s.mu.Unlock() // clone out the waiter list before sending on any channel

	for _, w := range toResolve {
		w.ch <- decision
	}
}
