package p2m

import (
	"sync"

	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/t2eerrors"
)

// fdKey identifies one enrolled (pid, fd) pair.
type fdKey struct {
	pid int32
	fd  int32
}

// resourceMapEntry is the per-orchestrator resource-map entry from spec
// §3: (pid, fd) -> (process_resource, peer_resource).
type resourceMapEntry struct {
	process naming.Resource
	peer    naming.Resource
}

// resourceMap is the per-orchestrator map consulted on every I/O request.
// Enrollment is idempotent overwrite, so it is backed by a plain mutex-
// guarded map rather than keyedmap.Map: LocalEnroll/RemoteEnroll always
// fully replace an entry, there is no partial read-modify-write to protect
// against races on.
type resourceMap struct {
	mu      sync.Mutex
	entries map[fdKey]resourceMapEntry
}

func newResourceMap() *resourceMap {
	return &resourceMap{entries: make(map[fdKey]resourceMapEntry)}
}

func (m *resourceMap) enroll(pid, fd int32, process, peer naming.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[fdKey{pid, fd}] = resourceMapEntry{process: process, peer: peer}
}

func (m *resourceMap) lookup(pid, fd int32) (resourceMapEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[fdKey{pid, fd}]
	if !ok {
		return resourceMapEntry{}, t2eerrors.UndeclaredResource(pid, fd)
	}
	return e, nil
}
