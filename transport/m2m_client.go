package transport

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/p2m"
	"github.com/trace2e/t2ecore/policy"
	"github.com/trace2e/t2ecore/provenance"
)

const (
	methodGetDestinationCompliance = "/trace2e.M2M/GetDestinationCompliance"
	methodGetSourceCompliance      = "/trace2e.M2M/GetSourceCompliance"
	methodUpdateProvenance         = "/trace2e.M2M/UpdateProvenance"
	methodPushSourcePolicies       = "/trace2e.M2M/PushSourcePolicies"
	methodBroadcastDeletion        = "/trace2e.M2M/BroadcastDeletion"
)

// PeerDialer resolves a peer node_id (spec §6: "typically IP") to a live
// connection, dialing lazily and caching, per spec §6 "Connections are
// established lazily on first use, keyed by peer IP, and cached" — mirrors
// go.ref's mounttable client's lazy-resolve-and-cache-by-address habit.
type PeerDialer interface {
	Dial(ctx context.Context, peerNodeID string) (*grpc.ClientConn, error)
}

// GRPCM2MClient is the concrete p2m.M2MClient implementation over gRPC.
type GRPCM2MClient struct {
	selfNodeID  string
	dialer      PeerDialer
	callTimeout time.Duration // 0 means the caller's own ctx deadline governs
}

// NewGRPCM2MClient creates a GRPCM2MClient dialing peers via dialer.
// selfNodeID is sent with every push/broadcast call so the receiving
// peer knows which node_id to cache the payload under.
func NewGRPCM2MClient(selfNodeID string, dialer PeerDialer) *GRPCM2MClient {
	return &GRPCM2MClient{selfNodeID: selfNodeID, dialer: dialer}
}

// WithCallTimeout sets the per-RPC deadline applied on top of whatever
// ctx the caller passes in (spec §6 Configuration's m2m.dial_timeout_ms).
func (c *GRPCM2MClient) WithCallTimeout(d time.Duration) *GRPCM2MClient {
	c.callTimeout = d
	return c
}

var _ p2m.M2MClient = (*GRPCM2MClient)(nil)

func (c *GRPCM2MClient) conn(ctx context.Context, peerNodeID string) (*grpc.ClientConn, error) {
	return c.dialer.Dial(ctx, peerNodeID)
}

// withCallTimeout bounds ctx by c.callTimeout when one is configured,
// returning a no-op cancel func otherwise.
func (c *GRPCM2MClient) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

// GetDestinationCompliance implements p2m.M2MClient.
func (c *GRPCM2MClient) GetDestinationCompliance(ctx context.Context, source naming.Resource, destination naming.LocalizedResource) (policy.Policy, error) {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()
	conn, err := c.conn(ctx, destination.NodeID)
	if err != nil {
		return policy.Policy{}, err
	}
	req := getDestinationComplianceRequest{Source: source.String(), Destination: destination.String()}
	var resp getDestinationComplianceResponse
	if err := invokeJSON(ctx, conn, methodGetDestinationCompliance, &req, &resp); err != nil {
		return policy.Policy{}, err
	}
	return resp.Policy.toDomain(), nil
}

// GetSourceCompliance implements p2m.M2MClient.
func (c *GRPCM2MClient) GetSourceCompliance(ctx context.Context, authorityIP string, resources []naming.Resource) (map[naming.Resource]policy.Policy, error) {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()
	conn, err := c.conn(ctx, authorityIP)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(resources))
	for i, r := range resources {
		names[i] = r.String()
	}
	req := getSourceComplianceRequest{Resources: names}
	var resp getSourceComplianceResponse
	if err := invokeJSON(ctx, conn, methodGetSourceCompliance, &req, &resp); err != nil {
		return nil, err
	}
	return resp.Policies.toDomain()
}

// UpdateProvenance implements p2m.M2MClient.
func (c *GRPCM2MClient) UpdateProvenance(ctx context.Context, sourceProv provenance.References, destination naming.LocalizedResource) error {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()
	conn, err := c.conn(ctx, destination.NodeID)
	if err != nil {
		return err
	}
	req := updateProvenanceRequest{SourceProv: toWireReferences(sourceProv), Destination: destination.String()}
	var resp ackResponse
	return invokeJSON(ctx, conn, methodUpdateProvenance, &req, &resp)
}

// PushSourcePolicies implements p2m.M2MClient.
func (c *GRPCM2MClient) PushSourcePolicies(ctx context.Context, peer string, policies map[naming.Resource]policy.Policy) error {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()
	conn, err := c.conn(ctx, peer)
	if err != nil {
		return err
	}
	req := pushSourcePoliciesRequest{Policies: toWirePolicyMap(policies), Peer: c.selfNodeID}
	var resp ackResponse
	return invokeJSON(ctx, conn, methodPushSourcePolicies, &req, &resp)
}

// BroadcastDeletion sends the spec §6 m2m_broadcast_deletion hint to peer,
// letting it evict resource from its confidentiality fallback cache (spec
// §9 Open Questions: "implementers may treat it as a hint").
func (c *GRPCM2MClient) BroadcastDeletion(ctx context.Context, peer string, resource naming.Resource) error {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()
	conn, err := c.conn(ctx, peer)
	if err != nil {
		return err
	}
	req := broadcastDeletionRequest{Resource: resource.String(), Peer: c.selfNodeID}
	var resp ackResponse
	return invokeJSON(ctx, conn, methodBroadcastDeletion, &req, &resp)
}
