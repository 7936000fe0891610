// Package sequencer is the fail-fast reservation engine from spec §4.1: a
// map destination -> source (at most one writer per destination) plus a
// source reference count (multiple concurrent readers of one source are
// allowed). It is the pure predicate half of the Sequencer; the waiting
// FIFO/retry discipline lives one layer up in sequencer/waitqueue,
// mirroring the original implementation's core/sequencer.rs vs
// layers/sequencer.rs split (see DESIGN.md).
//
// Per spec §9 ("do not wrap each Resource in its own mutex... a single
// keyed concurrent map per subsystem"), reservation state is guarded by a
// single mutex rather than keyedmap.Map: the reservation predicate must
// inspect the map as a whole (is destination a value anywhere?), which a
// per-key lock cannot answer without a second pass anyway.
package sequencer

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/t2eerrors"
)

// Released reports which endpoints transitioned to idle on a ReleaseFlow,
// driving waiter wake-up in sequencer/waitqueue.
type Released struct {
	SourceBecameIdle      bool
	DestinationBecameIdle bool
}

// Sequencer is the fail-fast reservation engine.
type Sequencer struct {
	mu sync.Mutex
	// destSource maps a reserved destination to its reserving source.
	destSource map[naming.Resource]naming.Resource
	// readers counts, per source, how many destination entries currently
	// reference it as a reader (a resource is writable iff it is absent
	// here and absent from destSource's keys).
	readers map[naming.Resource]int

	log *logrus.Entry
}

// New creates an empty Sequencer.
func New(log *logrus.Entry) *Sequencer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sequencer{
		destSource: make(map[naming.Resource]naming.Resource),
		readers:    make(map[naming.Resource]int),
		log:        log.WithField("component", "sequencer"),
	}
}

// ReserveFlow attempts to reserve source -> destination. See spec §4.1 for
// the exact predicate.
func (s *Sequencer) ReserveFlow(source, destination naming.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, destIsWriter := s.destSource[destination]
	destIsReader := s.readers[destination] > 0
	_, sourceIsWriter := s.destSource[source]

	destUnavailable := destIsWriter || destIsReader
	sourceUnavailable := sourceIsWriter

	switch {
	case destUnavailable && sourceUnavailable:
		s.log.WithFields(logrus.Fields{"source": source, "destination": destination}).Debug("reservation denied: source and destination unavailable")
		return t2eerrors.UnavailableSourceAndDestination(source, destination)
	case destUnavailable:
		s.log.WithField("destination", destination).Debug("reservation denied: destination unavailable")
		return t2eerrors.UnavailableDestination(destination)
	case sourceUnavailable:
		s.log.WithField("source", source).Debug("reservation denied: source unavailable")
		return t2eerrors.UnavailableSource(source)
	}

	s.destSource[destination] = source
	s.readers[source]++
	return nil
}

// ReleaseFlow releases the reservation held on destination, reporting
// which endpoints transitioned to idle.
func (s *Sequencer) ReleaseFlow(destination naming.Resource) Released {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.destSource[destination]
	if !ok {
		return Released{}
	}
	delete(s.destSource, destination)

	s.readers[source]--
	sourceIdle := s.readers[source] <= 0
	if sourceIdle {
		delete(s.readers, source)
	}

	return Released{SourceBecameIdle: sourceIdle, DestinationBecameIdle: true}
}

// IsWritable reports whether resource currently has neither a writer nor
// any readers — exposed for tests and for O2M introspection.
func (s *Sequencer) IsWritable(resource naming.Resource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, isWriter := s.destSource[resource]
	return !isWriter && s.readers[resource] == 0
}
