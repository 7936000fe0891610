package p2m

import (
	"context"

	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/policy"
	"github.com/trace2e/t2ecore/provenance"
)

// M2MClient is the peer-to-peer surface the orchestrator depends on (spec
// §6 M2M wire surface, §1 "the wire transport... is out of scope"). The
// transport package provides a concrete implementation over gRPC; p2m
// only depends on this interface, following go.ref's Dispatcher-style
// split between a service interface a component is driven by and the
// concrete RPC plumbing that implements it.
type M2MClient interface {
	// GetDestinationCompliance fetches destination's policy from its
	// owning (remote) node, for the Pull-mode remote-stream-destination
	// path (spec §4.5 step 5).
	GetDestinationCompliance(ctx context.Context, source naming.Resource, destination naming.LocalizedResource) (policy.Policy, error)

	// GetSourceCompliance fetches policies for resources owned by
	// authorityIP, for the Pull-mode remote-source-partition path (spec
	// §4.5 step 7).
	GetSourceCompliance(ctx context.Context, authorityIP string, resources []naming.Resource) (map[naming.Resource]policy.Policy, error)

	// UpdateProvenance pushes sourceProv to destination's owning node
	// (spec §4.5 IoReport step 2, and the Push-mode variant's report-time
	// propagation).
	UpdateProvenance(ctx context.Context, sourceProv provenance.References, destination naming.LocalizedResource) error

	// PushSourcePolicies optionally warms a peer's confidentiality
	// fallback cache after a grant (spec §4.5 IoReport step 2: "also
	// (optionally) push fetched source policies via M2M so the peer's
	// cache warms").
	PushSourcePolicies(ctx context.Context, peer string, policies map[naming.Resource]policy.Policy) error
}
