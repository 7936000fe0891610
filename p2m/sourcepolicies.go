package p2m

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/policy"
	"github.com/trace2e/t2ecore/provenance"
	"github.com/trace2e/t2ecore/t2eerrors"
)

// resolveSourcePolicies partitions refs by owning node and resolves every
// named resource's policy: the self partition locally, every remote
// partition concurrently via M2M.GetSourceCompliance (spec §4.5 step 7,
// "fan out one GetSourceCompliance call per distinct remote node").
func (o *Orchestrator) resolveSourcePolicies(ctx context.Context, refs provenance.References) (map[naming.Resource]policy.Policy, error) {
	out := make(map[naming.Resource]policy.Policy, len(refs))

	var remoteNodes []string
	for node, set := range refs {
		if node == o.selfNodeID {
			resources := make([]naming.Resource, 0, len(set))
			for r := range set {
				resources = append(resources, r)
			}
			for r, p := range o.compliance.GetPolicies(resources) {
				out[r] = p
			}
			continue
		}
		remoteNodes = append(remoteNodes, node)
	}

	if len(remoteNodes) == 0 {
		return out, nil
	}

	group, gctx := errgroup.WithContext(ctx)
	results := make([]map[naming.Resource]policy.Policy, len(remoteNodes))
	for i, node := range remoteNodes {
		i, node := i, node
		resources := make([]naming.Resource, 0, len(refs[node]))
		for r := range refs[node] {
			resources = append(resources, r)
		}
		group.Go(func() error {
			remote, err := o.m2m.GetSourceCompliance(gctx, node, resources)
			if err != nil {
				return t2eerrors.TransportFailedToContactRemote(node, err)
			}
			results[i] = remote
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	for i, node := range remoteNodes {
		for r, p := range results[i] {
			out[r] = p
			o.compliance.CacheRemotePolicy(node, r, p)
		}
	}
	return out, nil
}

// splitHost extracts the host portion of a "host:port" socket string,
// used to decide whether a Stream's peer side is local or remote.
func splitHost(socket string) (string, string, error) {
	return net.SplitHostPort(socket)
}
