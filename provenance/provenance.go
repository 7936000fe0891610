// Package provenance is the per-resource ancestry store from spec §4.2: a
// map node_id -> set<Resource>, partitioned by owning node, unioned
// transitively on every write. Updates are serialized per destination by
// the caller holding a Sequencer write reservation (spec §4.2 Ordering);
// this package itself only guarantees that concurrent updates to
// different destinations never contend, via keyedmap.Map.
package provenance

import (
	"github.com/trace2e/t2ecore/keyedmap"
	"github.com/trace2e/t2ecore/naming"
)

// References is the transitive ancestry of a resource: for each
// contributing node, the set of resources from that node.
type References map[string]map[naming.Resource]struct{}

// Clone deep-copies r.
func (r References) Clone() References {
	out := make(References, len(r))
	for node, set := range r {
		s := make(map[naming.Resource]struct{}, len(set))
		for res := range set {
			s[res] = struct{}{}
		}
		out[node] = s
	}
	return out
}

// union merges src into dst in place.
func union(dst, src References) {
	for node, set := range src {
		existing, ok := dst[node]
		if !ok {
			existing = make(map[naming.Resource]struct{}, len(set))
			dst[node] = existing
		}
		for res := range set {
			existing[res] = struct{}{}
		}
	}
}

// Contains reports whether r names resource anywhere in its ancestry.
func (r References) Contains(resource naming.Resource) bool {
	for _, set := range r {
		if _, ok := set[resource]; ok {
			return true
		}
	}
	return false
}

// Engine is the per-node provenance store.
type Engine struct {
	selfNodeID string
	byResource *keyedmap.Map[naming.Resource, References]
}

// New creates a provenance Engine for the node identified by selfNodeID.
func New(selfNodeID string) *Engine {
	return &Engine{
		selfNodeID: selfNodeID,
		byResource: keyedmap.New[naming.Resource, References](),
	}
}

// defaultReferences returns the spec-mandated default ancestry: for a
// non-stream resource, {self_node_id: {self}}; for a stream, {} (spec §4.2
// Default, and the Stream-opacity invariant).
func (e *Engine) defaultReferences(resource naming.Resource) References {
	if resource.IsStream() {
		return References{}
	}
	return References{
		e.selfNodeID: {resource: {}},
	}
}

// GetReferences returns the complete transitive ancestry of resource,
// including its own identity under the local node for non-stream
// resources (spec §4.2).
func (e *Engine) GetReferences(resource naming.Resource) References {
	refs, ok := e.byResource.Load(resource)
	if !ok {
		return e.defaultReferences(resource)
	}
	return refs.Clone()
}

// UpdateProvenance unions the current provenance of source into the
// current provenance of destination and stores the result as
// destination's new provenance (spec §4.2). Stream sources never
// contribute themselves (they carry no self-membership, only whatever
// they have already accumulated), and stream destinations never receive a
// self-membership entry either — only non-stream resources ever appear in
// any provenance set (Stream-opacity invariant).
func (e *Engine) UpdateProvenance(source, destination naming.Resource) References {
	sourceRefs := e.GetReferences(source)
	return e.updateFromReferences(sourceRefs, destination)
}

// UpdateProvenanceRaw is UpdateProvenance but with the source's provenance
// supplied directly, for the M2M ingress path where the source lives on a
// remote node (spec §4.2).
func (e *Engine) UpdateProvenanceRaw(sourceRefs References, destination naming.Resource) References {
	return e.updateFromReferences(sourceRefs, destination)
}

func (e *Engine) updateFromReferences(sourceRefs References, destination naming.Resource) References {
	merged, _ := e.byResource.Update(destination, func(current References, ok bool) (References, bool) {
		if !ok {
			current = e.defaultReferences(destination)
		} else {
			current = current.Clone()
		}
		union(current, sourceRefs)
		return current, true
	})
	return merged.Clone()
}
