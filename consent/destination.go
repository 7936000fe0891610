package consent

import "github.com/trace2e/t2ecore/naming"

// DestKind discriminates the Destination tagged union (spec §3/§4.4):
// either a bare Node, or a Resource scoped under an optional parent
// (itself a Destination), forming a hierarchy from most to least
// specific. Modeled as an algebraic type per spec §9 design notes
// ("model Destination as an algebraic type... do not model it as class
// inheritance"), not as an interface with two implementations.
type DestKind uint8

const (
	DestNode DestKind = iota
	DestResource
)

// Destination is one level of the consent scope hierarchy.
type Destination struct {
	Kind     DestKind
	NodeID   string              // valid when Kind == DestNode
	Resource naming.LocalizedResource // valid when Kind == DestResource
	Parent   *Destination        // optional; nil means this level has no broader scope
}

// Node builds a Node(node_id) Destination.
func Node(nodeID string) Destination {
	return Destination{Kind: DestNode, NodeID: nodeID}
}

// ForResource builds a Resource{resource, parent} Destination.
func ForResource(resource naming.LocalizedResource, parent *Destination) Destination {
	return Destination{Kind: DestResource, Resource: resource, Parent: parent}
}

// Key is the canonical identity of this single hierarchy level (it
// deliberately ignores Parent: two Destinations naming the same node or
// resource are the same cache key regardless of how they were scoped).
func (d Destination) Key() string {
	if d.Kind == DestNode {
		return "node:" + d.NodeID
	}
	return "resource:" + d.Resource.String()
}

// Chain returns this Destination's hierarchy from most specific (d itself)
// to least specific (walking Parent pointers to the root).
func (d Destination) Chain() []Destination {
	chain := []Destination{d}
	for p := d.Parent; p != nil; p = p.Parent {
		chain = append(chain, *p)
	}
	return chain
}

// includes reports whether other appears anywhere in d's hierarchy chain
// (used by SetConsent to find waiters a coarser-grained decision unblocks).
func (d Destination) includes(other Destination) bool {
	for _, level := range d.Chain() {
		if level.Key() == other.Key() {
			return true
		}
	}
	return false
}
